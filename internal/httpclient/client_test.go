package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		client := New(nil)
		require.NotNil(t, client)
		assert.Equal(t, DefaultTimeout, client.defaultTimeout)
		assert.Equal(t, defaultUserAgent, client.userAgent)
		assert.Nil(t, client.limiter, "no rate limit by default")
	})

	t.Run("custom config", func(t *testing.T) {
		cfg := Config{DefaultTimeout: 5 * time.Second, UserAgent: "TestAgent/1.0", RateLimit: 2}
		client := New(&cfg)
		assert.Equal(t, 5*time.Second, client.defaultTimeout)
		assert.Equal(t, "TestAgent/1.0", client.userAgent)
		require.NotNil(t, client.limiter)
		assert.Equal(t, 2, client.limiter.Burst())
	})
}

func TestDo_UserAgentAndBody(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, defaultUserAgent, r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("success"))
	})
	client := newTestClient(t, nil)

	resp, err := client.Get(t.Context(), server.URL)
	require.NoError(t, err)
	defer drain(t, resp)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "success", string(body))
}

func TestDo_ContextCancellation(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	client := newTestClient(t, nil)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	resp, err := client.Get(ctx, server.URL)
	defer drain(t, resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_DefaultTimeout(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	client := newTestClient(t, &Config{DefaultTimeout: 50 * time.Millisecond})

	resp, err := client.Get(t.Context(), server.URL)
	defer drain(t, resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_ContextTimeoutOverridesDefault(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	client := newTestClient(t, &Config{DefaultTimeout: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(t.Context(), 500*time.Millisecond)
	defer cancel()

	resp, err := client.Get(ctx, server.URL)
	require.NoError(t, err)
	defer drain(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDo_BodyReadableAfterReturn(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, "http://frigate.local/data",
		httpmock.NewStringResponder(http.StatusOK, "payload"))
	client := newTestClient(t, &Config{Transport: transport, DefaultTimeout: time.Second})

	// no deadline on the caller context, so the client owns the timeout
	resp, err := client.Get(context.Background(), "http://frigate.local/data")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "payload", string(body))
}

func TestDo_RateLimit(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, "http://frigate.local/",
		httpmock.NewStringResponder(http.StatusOK, ""))
	client := newTestClient(t, &Config{Transport: transport, RateLimit: 1})

	resp, err := client.Get(t.Context(), "http://frigate.local/")
	require.NoError(t, err)
	drain(t, resp)

	// the burst is spent, a short deadline cannot wait for the next token
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Get(ctx, "http://frigate.local/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestDo_Hooks(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, "http://frigate.local/hook",
		httpmock.NewStringResponder(http.StatusNoContent, ""))
	client := newTestClient(t, &Config{Transport: transport})

	var before, after atomic.Bool
	var status atomic.Int32
	client.SetBeforeRequestHook(func(r *http.Request) {
		before.Store(true)
		assert.Equal(t, "/hook", r.URL.Path)
	})
	client.SetAfterResponseHook(func(r *http.Request, resp *http.Response, err error) {
		after.Store(true)
		assert.NoError(t, err)
		status.Store(int32(resp.StatusCode))
	})

	resp, err := client.Get(t.Context(), "http://frigate.local/hook")
	require.NoError(t, err)
	drain(t, resp)

	assert.True(t, before.Load())
	assert.True(t, after.Load())
	assert.EqualValues(t, http.StatusNoContent, status.Load())
}

func TestPost_JSONBody(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, "http://frigate.local/post",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			var body map[string]string
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "value", body["key"])
			return httpmock.NewStringResponse(http.StatusCreated, ""), nil
		})
	client := newTestClient(t, &Config{Transport: transport})

	resp, err := client.Post(t.Context(), "http://frigate.local/post", "", map[string]string{"key": "value"})
	require.NoError(t, err)
	defer drain(t, resp)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestClose(t *testing.T) {
	client := New(nil)
	client.Close()
	client.Close()
}
