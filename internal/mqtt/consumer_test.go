package mqtt

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/frigate-speciesid/speciesid/internal/conf"
	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/frigate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBroker delivers payloads synchronously to the subscribed handler.
type fakeBroker struct {
	mu           sync.Mutex
	failConnects int
	connects     int
	disconnects  int
	onLost       func(error)
	handler      func([]byte)
	topic        string
}

func (b *fakeBroker) Connect(_ context.Context, onLost func(error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connects++
	if b.failConnects > 0 {
		b.failConnects--
		return errors.NewStd("connection refused")
	}
	b.onLost = onLost
	return nil
}

func (b *fakeBroker) Subscribe(_ context.Context, topic string, handler func([]byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topic = topic
	b.handler = handler
	return nil
}

func (b *fakeBroker) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnects++
}

func (b *fakeBroker) publish(payload string) {
	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()
	h([]byte(payload))
}

func (b *fakeBroker) currentHandler() func([]byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handler
}

func (b *fakeBroker) lose(err error) {
	b.mu.Lock()
	onLost := b.onLost
	b.mu.Unlock()
	onLost(err)
}

func (b *fakeBroker) connectCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

type recordingHandler struct {
	events chan *frigate.EventDetails
}

func (h *recordingHandler) Handle(_ context.Context, ev *frigate.EventDetails) error {
	h.events <- ev
	if ev.ID == "fail" {
		return errors.NewStd("snapshot unavailable")
	}
	return nil
}

type countingRecorder struct {
	mu         sync.Mutex
	messages   map[string]int
	states     []State
	reconnects int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{messages: map[string]int{}}
}

func (r *countingRecorder) RecordMessage(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[result]++
}

func (r *countingRecorder) RecordConnectionState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *countingRecorder) RecordReconnectAttempt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconnects++
}

func (r *countingRecorder) count(result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages[result]
}

func eventJSON(id, camera, label string) string {
	return fmt.Sprintf(`{"type":"new","before":null,"after":{"id":%q,"camera":%q,"label":%q,"start_time":1714548600.25}}`, id, camera, label)
}

type harness struct {
	broker   *fakeBroker
	handler  *recordingHandler
	recorder *countingRecorder
	consumer *Consumer
	done     chan error
}

func startConsumer(t *testing.T, broker *fakeBroker) *harness {
	t.Helper()
	h := &harness{
		broker:   broker,
		handler:  &recordingHandler{events: make(chan *frigate.EventDetails, 16)},
		recorder: newCountingRecorder(),
		done:     make(chan error, 1),
	}
	cfg := DefaultConfig()
	cfg.Topic = "frigate/events"
	cfg.ReconnectDelay = 10 * time.Millisecond
	h.consumer = NewConsumer(cfg, broker, h.handler, NewFilter([]string{"birdcam"}, "bird"), h.recorder)

	go func() { h.done <- h.consumer.Run(context.Background()) }()
	t.Cleanup(func() {
		h.consumer.Stop()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Error("consumer did not stop")
		}
	})
	h.waitSubscribed(t)
	return h
}

func (h *harness) waitSubscribed(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.consumer.State() == StateSubscribed && h.broker.currentHandler() != nil
	}, time.Second, time.Millisecond)
}

func (h *harness) next(t *testing.T) *frigate.EventDetails {
	t.Helper()
	select {
	case ev := <-h.handler.events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event handled")
		return nil
	}
}

func (h *harness) assertNoEvent(t *testing.T) {
	t.Helper()
	select {
	case ev := <-h.handler.events:
		t.Fatalf("unexpected event %q handled", ev.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConsumer_SkipsFirstMessage(t *testing.T) {
	h := startConsumer(t, &fakeBroker{})
	assert.Equal(t, "frigate/events", h.broker.topic)

	h.broker.publish(eventJSON("first", "birdcam", "bird"))
	h.broker.publish(eventJSON("second", "birdcam", "bird"))

	assert.Equal(t, "second", h.next(t).ID)
	h.assertNoEvent(t)
	assert.Equal(t, 1, h.recorder.count(MessageSkipped))
	require.Eventually(t, func() bool { return h.recorder.count(MessageProcessed) == 1 }, time.Second, time.Millisecond)
}

func TestConsumer_FiltersEvents(t *testing.T) {
	h := startConsumer(t, &fakeBroker{})

	h.broker.publish(eventJSON("skip", "birdcam", "bird"))
	h.broker.publish(eventJSON("other-cam", "driveway", "bird"))
	h.broker.publish(eventJSON("other-label", "birdcam", "person"))
	h.broker.publish(`{not json`)
	h.broker.publish(`{"type":"end"}`)
	h.broker.publish(eventJSON("keep", "birdcam", "bird"))

	ev := h.next(t)
	assert.Equal(t, "keep", ev.ID)
	assert.Equal(t, "birdcam", ev.Camera)
	h.assertNoEvent(t)

	assert.Equal(t, 2, h.recorder.count(MessageFiltered))
	assert.Equal(t, 2, h.recorder.count(MessageMalformed))
}

func TestConsumer_HandlerErrorDoesNotStop(t *testing.T) {
	h := startConsumer(t, &fakeBroker{})

	h.broker.publish(eventJSON("skip", "birdcam", "bird"))
	h.broker.publish(eventJSON("fail", "birdcam", "bird"))
	h.broker.publish(eventJSON("ok", "birdcam", "bird"))

	assert.Equal(t, "fail", h.next(t).ID)
	assert.Equal(t, "ok", h.next(t).ID)
	require.Eventually(t, func() bool {
		return h.recorder.count(MessageFailed) == 1 && h.recorder.count(MessageProcessed) == 1
	}, time.Second, time.Millisecond)
}

func TestConsumer_ReconnectResetsFirstMessageGuard(t *testing.T) {
	h := startConsumer(t, &fakeBroker{})

	h.broker.publish(eventJSON("skip-1", "birdcam", "bird"))
	h.broker.publish(eventJSON("a", "birdcam", "bird"))
	assert.Equal(t, "a", h.next(t).ID)

	stale := h.broker.currentHandler()
	h.broker.lose(errors.NewStd("connection reset by peer"))
	require.Eventually(t, func() bool { return h.broker.connectCount() == 2 }, time.Second, time.Millisecond)
	h.waitSubscribed(t)

	// deliveries from the previous session are ignored
	stale([]byte(eventJSON("late", "birdcam", "bird")))

	h.broker.publish(eventJSON("skip-2", "birdcam", "bird"))
	h.broker.publish(eventJSON("b", "birdcam", "bird"))
	assert.Equal(t, "b", h.next(t).ID)
	h.assertNoEvent(t)

	assert.Equal(t, 2, h.recorder.count(MessageSkipped))
	assert.Equal(t, 1, h.recorder.count(MessageStale))
}

func TestConsumer_RetriesFailedConnect(t *testing.T) {
	h := startConsumer(t, &fakeBroker{failConnects: 2})

	assert.Equal(t, 3, h.broker.connectCount())
	h.recorder.mu.Lock()
	assert.Equal(t, 2, h.recorder.reconnects)
	h.recorder.mu.Unlock()
}

func TestConsumer_StopReturnsNil(t *testing.T) {
	broker := &fakeBroker{}
	consumer := NewConsumer(Config{Topic: "frigate/events"}, broker, &recordingHandler{events: make(chan *frigate.EventDetails, 1)}, NewFilter(nil, "bird"), nil)

	done := make(chan error, 1)
	go func() { done <- consumer.Run(context.Background()) }()
	require.Eventually(t, func() bool { return consumer.State() == StateSubscribed }, time.Second, time.Millisecond)

	consumer.Stop()
	consumer.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.Equal(t, StateDisconnected, consumer.State())
	broker.mu.Lock()
	assert.Positive(t, broker.disconnects)
	broker.mu.Unlock()
}

func TestConsumer_ContextCancelStopsRetrying(t *testing.T) {
	broker := &fakeBroker{failConnects: 1000}
	cfg := Config{Topic: "frigate/events", ReconnectDelay: time.Hour}
	consumer := NewConsumer(cfg, broker, &recordingHandler{}, NewFilter(nil, "bird"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()
	require.Eventually(t, func() bool { return broker.connectCount() == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConsumer_RunTwice(t *testing.T) {
	h := startConsumer(t, &fakeBroker{})
	err := h.consumer.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
}

func TestFilter_Match(t *testing.T) {
	t.Parallel()
	f := NewFilter([]string{"birdcam", "feeder"}, "bird")

	tests := []struct {
		name   string
		event  *frigate.EventDetails
		expect bool
	}{
		{"allowed camera and label", &frigate.EventDetails{Camera: "feeder", Label: "bird"}, true},
		{"unknown camera", &frigate.EventDetails{Camera: "porch", Label: "bird"}, false},
		{"wrong label", &frigate.EventDetails{Camera: "birdcam", Label: "cat"}, false},
		{"label is case sensitive", &frigate.EventDetails{Camera: "birdcam", Label: "Bird"}, false},
		{"nil event", nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expect, f.Match(tt.event), tt.name)
	}
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()
	settings := &conf.Settings{}
	settings.Frigate.MQTTServer = "broker.local"
	settings.Frigate.MQTTPort = 1883
	settings.Frigate.MainTopic = "frigate"
	settings.Frigate.MQTTUsername = "user"
	settings.Frigate.MQTTPassword = "secret"
	settings.MQTT.ClientID = "feeder"

	cfg := ConfigFromSettings(settings)
	assert.Equal(t, "tcp://broker.local:1883", cfg.Broker)
	assert.Equal(t, "frigate/events", cfg.Topic)
	assert.Regexp(t, `^feeder-[0-9a-f]{8}$`, cfg.ClientID)
	assert.Empty(t, cfg.Username, "credentials need mqtt_auth")
	assert.Equal(t, conf.DefaultReconnectDelay, cfg.ReconnectDelay)

	settings.Frigate.MQTTAuth = true
	cfg = ConfigFromSettings(settings)
	assert.Equal(t, "user", cfg.Username)
	assert.Equal(t, "secret", cfg.Password)
}

func TestDiagnose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	cfg := Config{Broker: "tcp://" + ln.Addr().String(), Topic: "frigate/events"}

	t.Run("all stages pass", func(t *testing.T) {
		broker := &fakeBroker{}
		results := Diagnose(context.Background(), cfg, broker)
		require.Len(t, results, 3, "DNS is skipped for IP brokers")
		for _, r := range results {
			assert.True(t, r.Success, r.Stage)
		}
		assert.Equal(t, StageSubscribe.String(), results[2].Stage)
		assert.Equal(t, 1, broker.disconnects)
	})

	t.Run("stops at failed connect", func(t *testing.T) {
		results := Diagnose(context.Background(), cfg, &fakeBroker{failConnects: 1})
		require.Len(t, results, 2)
		assert.False(t, results[1].Success)
		assert.Equal(t, StageConnect.String(), results[1].Stage)
		assert.Contains(t, results[1].Error, "connection refused")
	})

	t.Run("invalid url", func(t *testing.T) {
		results := Diagnose(context.Background(), Config{Broker: "::"}, &fakeBroker{})
		require.Len(t, results, 1)
		assert.False(t, results[0].Success)
	})
}

// slowHandler blocks until released and reports the context state it saw.
type slowHandler struct {
	started chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func (h *slowHandler) Handle(ctx context.Context, _ *frigate.EventDetails) error {
	close(h.started)
	<-h.release
	h.ctxErr <- ctx.Err()
	return nil
}

func TestConsumer_StopLetsInFlightEventFinish(t *testing.T) {
	broker := &fakeBroker{}
	handler := &slowHandler{
		started: make(chan struct{}),
		release: make(chan struct{}),
		ctxErr:  make(chan error, 1),
	}
	cfg := DefaultConfig()
	cfg.Topic = "frigate/events"
	c := NewConsumer(cfg, broker, handler, NewFilter([]string{"birdcam"}, "bird"), newCountingRecorder())

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()
	require.Eventually(t, func() bool {
		return c.State() == StateSubscribed && broker.currentHandler() != nil
	}, time.Second, time.Millisecond)

	broker.publish(eventJSON("skip", "birdcam", "bird"))
	broker.publish(eventJSON("E1", "birdcam", "bird"))
	select {
	case <-handler.started:
	case <-time.After(time.Second):
		t.Fatal("handler never started")
	}

	c.Stop()
	select {
	case <-done:
		t.Fatal("Run returned before the in-flight event finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(handler.release)
	require.NoError(t, <-handler.ctxErr, "in-flight event must not be cancelled by Stop")
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Equal(t, StateDisconnected, c.State())
}
