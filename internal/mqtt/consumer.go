package mqtt

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/frigate"
	"github.com/frigate-speciesid/speciesid/internal/logger"
)

// Handler processes one accepted event. Errors are logged by the consumer
// and never stop it.
type Handler interface {
	Handle(ctx context.Context, event *frigate.EventDetails) error
}

// Recorder receives consumer metrics. Implementations must be safe for
// concurrent use.
type Recorder interface {
	RecordMessage(result string)
	RecordConnectionState(state State)
	RecordReconnectAttempt()
}

type nopRecorder struct{}

func (nopRecorder) RecordMessage(string)        {}
func (nopRecorder) RecordConnectionState(State) {}
func (nopRecorder) RecordReconnectAttempt()     {}

// session is the state of one subscription. The first message delivered
// on a fresh subscription is a retained or replayed event and is dropped.
type session struct {
	id        uint64
	skipFirst atomic.Bool
}

// Consumer subscribes to the Frigate events topic and feeds matching events
// to a Handler on a single worker goroutine, preserving delivery order.
type Consumer struct {
	config   Config
	broker   Broker
	handler  Handler
	filter   Filter
	recorder Recorder

	state   atomic.Int32
	running atomic.Bool

	sessionMu  sync.Mutex
	session    *session
	sessionSeq uint64

	queue    chan []byte
	stop     chan struct{}
	stopOnce sync.Once
}

// NewConsumer creates a consumer. A nil recorder disables metrics.
func NewConsumer(cfg Config, broker Broker, handler Handler, filter Filter, recorder Recorder) *Consumer {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultConfig().ReconnectDelay
	}
	return &Consumer{
		config:   cfg,
		broker:   broker,
		handler:  handler,
		filter:   filter,
		recorder: recorder,
		queue:    make(chan []byte, cfg.QueueSize),
		stop:     make(chan struct{}),
	}
}

// State returns the current connection state.
func (c *Consumer) State() State {
	return State(c.state.Load())
}

func (c *Consumer) setState(s State) {
	if State(c.state.Swap(int32(s))) != s {
		c.recorder.RecordConnectionState(s)
		GetLogger().Debug("connection state changed", logger.String("state", s.String()))
	}
}

// Stop requests a graceful shutdown. The message in progress is not
// cancelled, Run returns once the worker has finished it. Messages still
// queued may be dropped. Safe to call more than once.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Run connects, subscribes and supervises the connection until ctx is
// cancelled or Stop is called. A lost connection is retried immediately,
// then every ReconnectDelay while the broker stays unreachable. Run
// returns nil on a graceful shutdown.
func (c *Consumer) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.Newf("consumer is already running").
			Component("mqtt").
			Category(errors.CategoryState).
			Build()
	}
	defer c.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.work(ctx)
	}()

	c.supervise(ctx)

	c.invalidateSession()
	c.broker.Disconnect()
	cancel()
	wg.Wait()
	c.setState(StateDisconnected)
	GetLogger().Info("consumer stopped", logger.String("topic", c.config.Topic))
	return nil
}

// supervise runs the Disconnected -> Connecting -> Subscribed cycle.
func (c *Consumer) supervise(ctx context.Context) {
	log := GetLogger()
	attempt := 0
	for ctx.Err() == nil {
		if attempt > 0 {
			c.recorder.RecordReconnectAttempt()
		}
		attempt++
		c.setState(StateConnecting)

		lost := make(chan error, 1)
		err := c.connect(ctx, lost)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("broker connection failed, retrying",
				logger.String("broker", c.config.Broker),
				logger.Duration("retry_in", c.config.ReconnectDelay),
				logger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.config.ReconnectDelay):
			}
			continue
		}

		c.setState(StateSubscribed)
		log.Info("subscribed to events topic",
			logger.String("broker", c.config.Broker),
			logger.String("topic", c.config.Topic))

		select {
		case <-ctx.Done():
			return
		case err := <-lost:
			c.invalidateSession()
			c.broker.Disconnect()
			log.Warn("unexpected disconnection, reconnecting", logger.Error(err))
		}
	}
}

// connect opens a broker session and subscribes with a fresh message guard.
func (c *Consumer) connect(ctx context.Context, lost chan<- error) error {
	onLost := func(err error) {
		select {
		case lost <- err:
		default:
		}
	}
	if err := c.broker.Connect(ctx, onLost); err != nil {
		return err
	}

	sess := c.newSession()
	if err := c.broker.Subscribe(ctx, c.config.Topic, c.deliver(ctx, sess)); err != nil {
		c.invalidateSession()
		c.broker.Disconnect()
		return err
	}
	return nil
}

func (c *Consumer) newSession() *session {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	c.sessionSeq++
	sess := &session{id: c.sessionSeq}
	sess.skipFirst.Store(true)
	c.session = sess
	return sess
}

func (c *Consumer) invalidateSession() {
	c.sessionMu.Lock()
	c.session = nil
	c.sessionMu.Unlock()
}

func (c *Consumer) current(sess *session) bool {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.session == sess
}

// deliver returns the broker callback for sess. It applies the first
// message guard and hands the payload to the worker. The send blocks while
// the queue is full so that no message is silently dropped.
func (c *Consumer) deliver(ctx context.Context, sess *session) func([]byte) {
	return func(payload []byte) {
		if !c.current(sess) {
			c.recorder.RecordMessage(MessageStale)
			return
		}
		if sess.skipFirst.CompareAndSwap(true, false) {
			c.recorder.RecordMessage(MessageSkipped)
			GetLogger().Debug("skipping first message of session", logger.Int64("session", int64(sess.id)))
			return
		}

		buf := make([]byte, len(payload))
		copy(buf, payload)
		select {
		case c.queue <- buf:
		case <-ctx.Done():
		}
	}
}

// work drains the queue one message at a time.
func (c *Consumer) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-c.queue:
			c.process(ctx, payload)
		}
	}
}

func (c *Consumer) process(ctx context.Context, payload []byte) {
	log := GetLogger()

	event, err := frigate.ParseEvent(payload)
	if err != nil {
		c.recorder.RecordMessage(MessageMalformed)
		log.Trace("dropping malformed message", logger.Error(err))
		return
	}
	if !c.filter.Match(event.After) {
		c.recorder.RecordMessage(MessageFiltered)
		log.Trace("event filtered",
			logger.String("camera", event.After.Camera),
			logger.String("label", event.After.Label))
		return
	}

	// an accepted event runs to completion, each stage carries its own timeout
	if err := c.handler.Handle(context.WithoutCancel(ctx), event.After); err != nil {
		c.recorder.RecordMessage(MessageFailed)
		log.Warn("event processing failed",
			logger.String("event_id", event.After.ID),
			logger.String("camera", event.After.Camera),
			logger.Error(err))
		return
	}
	c.recorder.RecordMessage(MessageProcessed)
}
