package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/logger"
)

// Broker is the transport the consumer drives. Implementations must not
// reconnect on their own; the consumer's supervisor owns reconnection.
type Broker interface {
	// Connect opens a session. onLost is called at most once if the
	// session later drops unexpectedly.
	Connect(ctx context.Context, onLost func(error)) error
	// Subscribe delivers payloads of topic to handler in arrival order.
	Subscribe(ctx context.Context, topic string, handler func(payload []byte)) error
	// Disconnect closes the session. It does not trigger onLost.
	Disconnect()
}

// pahoBroker implements Broker over the Eclipse Paho client.
type pahoBroker struct {
	config    Config
	newClient func(*paho.ClientOptions) paho.Client
	mu        sync.Mutex
	client    paho.Client
}

// NewPahoBroker returns a Broker backed by paho.
func NewPahoBroker(cfg Config) Broker {
	return &pahoBroker{config: cfg, newClient: paho.NewClient}
}

// Connect resolves the broker host and opens a clean session.
func (b *pahoBroker) Connect(ctx context.Context, onLost func(error)) error {
	u, err := url.Parse(b.config.Broker)
	if err != nil {
		return errors.New(fmt.Errorf("invalid broker URL: %w", err)).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return errors.New(fmt.Errorf("failed to resolve hostname %s: %w", host, err)).
				Component("mqtt").
				Category(errors.CategoryNetwork).
				Context("broker", b.config.Broker).
				Build()
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(b.config.Broker)
	opts.SetClientID(b.config.ClientID)
	if b.config.Username != "" {
		opts.SetUsername(b.config.Username)
		opts.SetPassword(b.config.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetOrderMatters(true)
	opts.SetConnectTimeout(b.config.ConnectTimeout)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		if onLost != nil {
			onLost(err)
		}
	})

	client := b.newClient(opts)
	token := client.Connect()
	if err := waitToken(ctx, token, b.config.ConnectTimeout); err != nil {
		// a connect still pending in paho would otherwise hold the client id
		client.Disconnect(0)
		return errors.New(fmt.Errorf("connection error: %w", err)).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Context("broker", b.config.Broker).
			Build()
	}

	b.mu.Lock()
	b.client = client
	b.mu.Unlock()
	return nil
}

// Subscribe subscribes at QoS 0, matching what Frigate publishes.
func (b *pahoBroker) Subscribe(ctx context.Context, topic string, handler func([]byte)) error {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return errors.Newf("not connected to MQTT broker").
			Component("mqtt").
			Category(errors.CategoryMQTTSubscribe).
			Build()
	}

	token := client.Subscribe(topic, 0, func(_ paho.Client, msg paho.Message) {
		handler(msg.Payload())
	})
	if err := waitToken(ctx, token, b.config.SubscribeTimeout); err != nil {
		return errors.New(fmt.Errorf("subscribe error: %w", err)).
			Component("mqtt").
			Category(errors.CategoryMQTTSubscribe).
			Context("topic", topic).
			Build()
	}
	return nil
}

// Disconnect closes the session if one is open.
func (b *pahoBroker) Disconnect() {
	b.mu.Lock()
	client := b.client
	b.client = nil
	b.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(uint(b.config.DisconnectTimeout.Milliseconds()))
		GetLogger().Debug("disconnected from broker", logger.String("broker", b.config.Broker))
	}
}

// waitToken waits for a paho token, honoring ctx and timeout.
func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timeout after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
