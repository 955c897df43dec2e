// Package transport defines the boundary between the handlers and the
// message transport: inbound messages, the publish collaborator, and topic
// naming.
package transport

import (
	"context"
	"strings"
	"sync"

	"github.com/xtxerr/edgeflow/internal/constants"
	"github.com/xtxerr/edgeflow/internal/errors"
)

// Message is one inbound delivery.
type Message struct {
	// Topic is the slash-delimited topic the message arrived on.
	Topic string

	// Payload is the raw message body, a JSON object.
	Payload []byte

	// CorrelationID threads the request through ingest, read and publish.
	// Empty when the transport did not supply one.
	CorrelationID string
}

// Publisher is the outbound publish collaborator. Publish hands the payload
// to the transport and returns without waiting for delivery; an error means
// the publish could not even be attempted.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Handler processes one inbound message.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg Message) error

// Handle calls f(ctx, msg).
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// DeviceFromTopic returns the last segment of topic.
func DeviceFromTopic(topic string) (string, error) {
	i := strings.LastIndexByte(topic, '/')
	device := topic[i+1:]
	if device == "" || device == "#" || device == "+" {
		return "", errors.Wrapf(errors.ErrInvalidTopic, "no device id in topic %q", topic)
	}
	return device, nil
}

// StoredTopic is where the receiver announces a stored record.
func StoredTopic(deviceID string) string {
	return constants.TopicStoredPrefix + deviceID
}

// FilledTopic is where the analyzer publishes a materialized window.
func FilledTopic(deviceID string) string {
	return constants.TopicFilledPrefix + deviceID
}

// Published is one payload captured by a Recorder.
type Published struct {
	Topic   string
	Payload []byte
}

// Recorder is an in-memory Publisher. It is used in tests and when running
// without a broker.
type Recorder struct {
	mu   sync.Mutex
	msgs []Published
	err  error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish records the payload, or returns the error set by FailWith.
func (r *Recorder) Publish(_ context.Context, topic string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, Published{Topic: topic, Payload: append([]byte(nil), payload...)})
	return nil
}

// FailWith makes subsequent publishes fail with err. Nil restores success.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Messages returns a copy of everything published so far.
func (r *Recorder) Messages() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.msgs...)
}
