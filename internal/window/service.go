// Package window implements the analyzer: it reads a trailing window of a
// device's retained records, materializes it as columns, and republishes it.
package window

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	defaults "github.com/xtxerr/edgeflow/config"
	"github.com/xtxerr/edgeflow/internal/constants"
	"github.com/xtxerr/edgeflow/internal/logging"
	"github.com/xtxerr/edgeflow/internal/storage/types"
	"github.com/xtxerr/edgeflow/internal/transport"
)

// Store is the part of the bounded store the reader needs.
type Store interface {
	RangeRead(ctx context.Context, deviceID string, start, end int64, fields []string) ([]types.Row, error)
}

// Sink receives every materialized window, e.g. an archive.
type Sink interface {
	WriteWindow(ctx context.Context, w *types.Window) error
}

// Options configures the reader.
type Options struct {
	// Width is the trailing window length. Defaults to one hour.
	Width time.Duration

	// Fields are the columns read for every window.
	Fields []string

	// Now is the clock that anchors the window end. Defaults to time.Now.
	Now func() time.Time

	// Sink, if set, receives each window after it is published.
	Sink Sink
}

// Service is the window reader.
type Service struct {
	store  Store
	pub    transport.Publisher
	sink   Sink
	width  int64
	fields []string
	now    func() time.Time
	log    *slog.Logger

	newID func() string

	stats struct {
		Reads         atomic.Int64
		Rows          atomic.Int64
		EmptyWindows  atomic.Int64
		NonNumeric    atomic.Int64
		StoreErrors   atomic.Int64
		PublishErrors atomic.Int64
		SinkErrors    atomic.Int64
	}
}

// New creates a reader over store that publishes on pub.
func New(store Store, pub transport.Publisher, opts Options) *Service {
	width := int64(opts.Width / time.Second)
	if width <= 0 {
		width = defaults.DefaultWindowSec
	}
	fields := opts.Fields
	if len(fields) == 0 {
		fields = defaults.DefaultWindowFields
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		store:  store,
		pub:    pub,
		sink:   opts.Sink,
		width:  width,
		fields: append([]string(nil), fields...),
		now:    now,
		log:    logging.Component("window"),
		newID:  uuid.NewString,
	}
}

// Handle reads the trailing window for the device named by the topic and
// publishes it. The trigger payload may carry the upstream request id.
func (s *Service) Handle(ctx context.Context, msg transport.Message) error {
	device, err := transport.DeviceFromTopic(msg.Topic)
	if err != nil {
		s.log.Warn("trigger rejected", "topic", msg.Topic, "error", err)
		return err
	}

	corr := upstreamID(msg.Payload)
	if corr == "" {
		corr = msg.CorrelationID
	}
	if corr == "" {
		corr = s.newID()
	}

	_, err = s.Process(ctx, device, corr)
	return err
}

// Process reads the window for deviceID, publishes it, and hands it to the
// sink. Publish and sink failures are logged; only a failed read is returned.
func (s *Service) Process(ctx context.Context, deviceID, correlationID string) (*types.Window, error) {
	ctx = logging.ContextWithDeviceID(ctx, deviceID)
	ctx = logging.ContextWithCorrelationID(ctx, correlationID)
	log := logging.WithContext(ctx, s.log)

	w, err := s.Read(ctx, deviceID, correlationID)
	if err != nil {
		return nil, err
	}

	payload, err := EncodePayload(w, correlationID)
	if err != nil {
		return nil, fmt.Errorf("encode window: %w", err)
	}
	if err := s.pub.Publish(ctx, transport.FilledTopic(deviceID), payload); err != nil {
		s.stats.PublishErrors.Add(1)
		log.Warn("window not published", "error", err)
	}

	if s.sink != nil {
		if err := s.sink.WriteWindow(ctx, w); err != nil {
			s.stats.SinkErrors.Add(1)
			log.Warn("window not archived", "error", err)
		}
	}

	return w, nil
}

// Read returns the trailing window [now-width, now] for deviceID with one
// column per configured field. No retained records yields an empty window.
func (s *Service) Read(ctx context.Context, deviceID, correlationID string) (*types.Window, error) {
	s.stats.Reads.Add(1)

	end := s.now().Unix()
	start := end - s.width

	ctx = logging.ContextWithDeviceID(ctx, deviceID)
	if logging.CorrelationID(ctx) == "" {
		ctx = logging.ContextWithCorrelationID(ctx, correlationID)
	}
	log := logging.WithContext(ctx, s.log)

	rows, err := s.store.RangeRead(ctx, deviceID, start, end, s.fields)
	if err != nil {
		s.stats.StoreErrors.Add(1)
		log.Error("window read failed", "start", start, "end", end, "error", err)
		return nil, fmt.Errorf("read window %s [%d, %d]: %w", deviceID, start, end, err)
	}

	w := types.NewWindow(deviceID, start, end, s.fields)
	for _, row := range rows {
		values := make(map[string]float64, len(row.Values))
		for field, raw := range row.Values {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				s.stats.NonNumeric.Add(1)
				log.Warn("non-numeric value", "timestamp", row.Timestamp, "field", field, "value", raw)
				continue
			}
			values[field] = v
		}
		w.Append(row.Timestamp, values)
	}

	s.stats.Rows.Add(int64(w.Len()))
	if w.Empty() {
		s.stats.EmptyWindows.Add(1)
		log.Info("empty window", "start", start, "end", end)
	} else {
		log.Debug("window read", "rows", w.Len(), "start", start, "end", end)
	}

	return w, nil
}

// EncodePayload renders w as the filled-window message body.
func EncodePayload(w *types.Window, correlationID string) ([]byte, error) {
	body := make(map[string]any, len(w.Fields)+5)
	body[constants.KeyUpstreamRequestID] = correlationID
	body[constants.KeyDeviceID] = w.DeviceID
	body["start"] = w.Start
	body["end"] = w.End
	body[constants.FieldTimestamp] = w.Timestamps
	for _, f := range w.Fields {
		body[f] = w.Columns[f]
	}
	return json.Marshal(body)
}

// upstreamID extracts the upstream request id from a trigger payload. Any
// decoding problem yields "".
func upstreamID(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	id, _ := body[constants.KeyUpstreamRequestID].(string)
	return id
}

// Stats returns current counters.
func (s *Service) Stats() Stats {
	return Stats{
		Reads:         s.stats.Reads.Load(),
		Rows:          s.stats.Rows.Load(),
		EmptyWindows:  s.stats.EmptyWindows.Load(),
		NonNumeric:    s.stats.NonNumeric.Load(),
		StoreErrors:   s.stats.StoreErrors.Load(),
		PublishErrors: s.stats.PublishErrors.Load(),
		SinkErrors:    s.stats.SinkErrors.Load(),
	}
}

// Stats holds reader counters.
type Stats struct {
	Reads         int64
	Rows          int64
	EmptyWindows  int64
	NonNumeric    int64
	StoreErrors   int64
	PublishErrors int64
	SinkErrors    int64
}
