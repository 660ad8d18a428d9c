// Package frigate talks to the Frigate NVR HTTP API and decodes its MQTT
// event payloads.
package frigate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/httpclient"
	"github.com/frigate-speciesid/speciesid/internal/logger"
)

// maxSnapshotBytes bounds how much of a snapshot response is read.
const maxSnapshotBytes = 20 << 20

var errMissingAfter = errors.NewStd("event has no after object")

// StatusError is returned when Frigate answers with an unexpected status.
// It is recoverable: the event is skipped and ingestion continues.
type StatusError struct {
	Op         string
	EventID    string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("frigate %s for event %s: unexpected status %d", e.Op, e.EventID, e.StatusCode)
}

// Config configures a Client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
	// Transport overrides the HTTP transport, used by tests
	Transport http.RoundTripper
}

// Client calls the Frigate HTTP API.
type Client struct {
	baseURL string
	http    *httpclient.Client
}

// NewClient returns a client for the Frigate instance at cfg.BaseURL.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf("invalid frigate url %q", cfg.BaseURL).
			Component("frigate").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return &Client{
		baseURL: base,
		http: httpclient.New(&httpclient.Config{
			DefaultTimeout: cfg.Timeout,
			RateLimit:      cfg.RateLimit,
			Transport:      cfg.Transport,
		}),
	}, nil
}

// SetBeforeRequestHook installs a hook run before each outgoing request.
func (c *Client) SetBeforeRequestHook(fn func(*http.Request)) {
	c.http.SetBeforeRequestHook(fn)
}

// SetAfterResponseHook installs an observer for every Frigate response.
func (c *Client) SetAfterResponseHook(fn func(*http.Request, *http.Response, error)) {
	c.http.SetAfterResponseHook(fn)
}

// SnapshotURL returns the cropped high-quality snapshot URL for an event.
func (c *Client) SnapshotURL(eventID string) string {
	return fmt.Sprintf("%s/api/events/%s/snapshot.jpg?crop=1&quality=95", c.baseURL, url.PathEscape(eventID))
}

// Snapshot downloads the event snapshot bytes. A non-200 status returns a
// *StatusError wrapped in an image-fetch error.
func (c *Client) Snapshot(ctx context.Context, eventID string) ([]byte, error) {
	start := time.Now()
	target := c.SnapshotURL(eventID)

	resp, err := c.http.Get(ctx, target)
	if err != nil {
		return nil, errors.New(fmt.Errorf("snapshot request failed: %w", err)).
			Component("frigate").
			Category(errors.CategoryNetwork).
			Context("event_id", eventID).
			Timing("snapshot", time.Since(start)).
			Build()
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			GetLogger().Debug("failed to close snapshot body", logger.Error(cerr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, errors.New(&StatusError{Op: "snapshot", EventID: eventID, StatusCode: resp.StatusCode}).
			Component("frigate").
			Category(errors.CategoryImageFetch).
			Context("event_id", eventID).
			Context("status_code", resp.StatusCode).
			Build()
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, errors.New(fmt.Errorf("reading snapshot body: %w", err)).
			Component("frigate").
			Category(errors.CategoryNetwork).
			Context("event_id", eventID).
			Build()
	}

	GetLogger().Trace("snapshot fetched",
		logger.String("event_id", eventID),
		logger.Int("bytes", len(data)),
		logger.Duration("elapsed", time.Since(start)))
	return data, nil
}

type subLabelRequest struct {
	SubLabel string `json:"subLabel"`
}

// SetSubLabel writes label back to the event. The caller bounds the label length.
func (c *Client) SetSubLabel(ctx context.Context, eventID, label string) error {
	target := fmt.Sprintf("%s/api/events/%s/sub_label", c.baseURL, url.PathEscape(eventID))

	resp, err := c.http.Post(ctx, target, "application/json", subLabelRequest{SubLabel: label})
	if err != nil {
		return errors.New(fmt.Errorf("sub_label request failed: %w", err)).
			Component("frigate").
			Category(errors.CategoryNetwork).
			Context("event_id", eventID).
			Build()
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		if cerr := resp.Body.Close(); cerr != nil {
			GetLogger().Debug("failed to close sub_label body", logger.Error(cerr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return errors.New(&StatusError{Op: "sub_label", EventID: eventID, StatusCode: resp.StatusCode}).
			Component("frigate").
			Category(errors.CategoryHTTP).
			Context("event_id", eventID).
			Context("status_code", resp.StatusCode).
			Build()
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.Close()
}
