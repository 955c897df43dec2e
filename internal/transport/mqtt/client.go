// Package mqtt adapts an MQTT broker connection to the transport boundary:
// subscriptions trigger handler invocations and Publish is fire-and-forget.
package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	defaults "github.com/xtxerr/edgeflow/config"
	"github.com/xtxerr/edgeflow/internal/errors"
	"github.com/xtxerr/edgeflow/internal/logging"
	"github.com/xtxerr/edgeflow/internal/transport"
)

// Options configures the broker connection.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	QoS       byte

	// ConnectRetryInterval is the delay between connect attempts.
	ConnectRetryInterval time.Duration

	// ConnectTimeout bounds the initial connect. Zero waits until connected.
	ConnectTimeout time.Duration

	// InvocationTimeout bounds each handler invocation.
	InvocationTimeout time.Duration
}

// Client is a broker connection shared by the handlers of one process.
type Client struct {
	raw     paho.Client
	qos     byte
	timeout time.Duration
	log     *slog.Logger

	mu       sync.Mutex
	filters  []string
	inflight sync.WaitGroup
	closed   bool
}

// New connects to the broker.
func New(opts Options) (*Client, error) {
	if opts.ClientID == "" {
		opts.ClientID = defaults.DefaultMQTTClientID
	}
	if opts.ConnectRetryInterval <= 0 {
		opts.ConnectRetryInterval = defaults.DefaultMQTTConnectRetryInterval
	}
	if opts.InvocationTimeout <= 0 {
		opts.InvocationTimeout = defaults.DefaultInvocationTimeout
	}

	log := logging.Component("mqtt")

	o := paho.NewClientOptions()
	o.AddBroker(opts.BrokerURL)
	o.SetClientID(opts.ClientID)
	o.SetUsername(opts.Username)
	o.SetPassword(opts.Password)
	o.SetConnectRetry(true)
	o.SetConnectRetryInterval(opts.ConnectRetryInterval)
	o.SetAutoReconnect(true)
	// Every delivery is an independent invocation.
	o.SetOrderMatters(false)
	o.SetOnConnectHandler(func(paho.Client) {
		log.Info("connected to broker", "broker", opts.BrokerURL)
	})
	o.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn("broker connection lost", "error", err)
	})

	c := paho.NewClient(o)

	token := c.Connect()
	if opts.ConnectTimeout > 0 {
		if !token.WaitTimeout(opts.ConnectTimeout) {
			c.Disconnect(0)
			return nil, fmt.Errorf("connect %s: %w", opts.BrokerURL, errors.ErrTimeout)
		}
	} else {
		token.Wait()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w: %w", opts.BrokerURL, errors.ErrConnectionFailed, err)
	}

	return &Client{
		raw:     c,
		qos:     opts.QoS,
		timeout: opts.InvocationTimeout,
		log:     log,
	}, nil
}

// Publish queues payload for topic and returns without waiting for the
// broker. Delivery failures are logged.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("publish %s: %w", topic, errors.ErrClosed)
	}

	token := c.raw.Publish(topic, c.qos, false, payload)
	log := logging.WithContext(ctx, c.log)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			log.Warn("publish failed", "topic", topic, "error", err)
		}
	}()

	return nil
}

// Subscribe invokes h for every message matching filter. Each message runs
// in its own goroutine under the invocation timeout. Handler errors are
// logged; the transport does not retry.
func (c *Client) Subscribe(filter string, h transport.Handler) error {
	token := c.raw.Subscribe(filter, c.qos, func(_ paho.Client, m paho.Message) {
		c.invoke(h, transport.Message{
			Topic:   m.Topic(),
			Payload: m.Payload(),
		})
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}

	c.mu.Lock()
	c.filters = append(c.filters, filter)
	c.mu.Unlock()

	c.log.Info("subscribed", "filter", filter)
	return nil
}

// invoke runs h for one delivery. Deliveries that arrive after Close has
// started are dropped; the in-flight count only grows under c.mu while the
// client is open.
func (c *Client) invoke(h transport.Handler, msg transport.Message) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.log.Debug("delivery after close dropped", "topic", msg.Topic)
		return
	}
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := h.Handle(ctx, msg); err != nil {
		c.log.Error("invocation failed",
			"topic", msg.Topic,
			"error", err,
			"retriable", errors.IsRetriable(err))
	}
}

// Close unsubscribes, waits for in-flight invocations, and disconnects.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	filters := c.filters
	c.mu.Unlock()

	if len(filters) > 0 {
		token := c.raw.Unsubscribe(filters...)
		token.WaitTimeout(time.Second)
	}

	c.inflight.Wait()
	c.raw.Disconnect(defaults.DefaultMQTTDisconnectQuiesceMs)
}

// String returns a short description of the client.
func (c *Client) String() string {
	return "MQTTClient"
}
