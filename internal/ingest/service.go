// Package ingest implements the receiver: it stores incoming device readings
// in the bounded store and announces each stored record downstream.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/xtxerr/edgeflow/internal/constants"
	"github.com/xtxerr/edgeflow/internal/errors"
	"github.com/xtxerr/edgeflow/internal/logging"
	"github.com/xtxerr/edgeflow/internal/storage/types"
	"github.com/xtxerr/edgeflow/internal/transport"
)

// Store is the part of the bounded store the writer needs.
type Store interface {
	Put(ctx context.Context, deviceID string, rec types.Record) error
}

// Service is the ingest writer.
type Service struct {
	store Store
	pub   transport.Publisher
	log   *slog.Logger

	newID func() string

	stats struct {
		Received      atomic.Int64
		Stored        atomic.Int64
		Rejected      atomic.Int64
		StoreErrors   atomic.Int64
		PublishErrors atomic.Int64
	}
}

// New creates a writer that stores into store and announces on pub.
func New(store Store, pub transport.Publisher) *Service {
	return &Service{
		store: store,
		pub:   pub,
		log:   logging.Component("ingest"),
		newID: uuid.NewString,
	}
}

// Handle ingests one raw-metrics message. The device id is the last topic
// segment and the payload is a JSON object carrying the reading.
func (s *Service) Handle(ctx context.Context, msg transport.Message) error {
	corr := msg.CorrelationID
	if corr == "" {
		corr = s.newID()
	}

	device, err := transport.DeviceFromTopic(msg.Topic)
	if err != nil {
		s.stats.Received.Add(1)
		return s.reject(ctx, corr, fmt.Errorf("%w: %w", errors.ErrInvalidRecord, err))
	}

	raw, err := DecodePayload(msg.Payload)
	if err != nil {
		s.stats.Received.Add(1)
		return s.reject(logging.ContextWithDeviceID(ctx, device), corr, err)
	}

	return s.Ingest(ctx, device, corr, raw)
}

// Ingest validates raw, stores it for deviceID, and publishes the stored
// notification. A failed publish is logged and does not fail the call.
func (s *Service) Ingest(ctx context.Context, deviceID, correlationID string, raw map[string]any) error {
	s.stats.Received.Add(1)

	if correlationID == "" {
		correlationID = s.newID()
	}
	ctx = logging.ContextWithDeviceID(ctx, deviceID)

	if deviceID == "" {
		return s.reject(ctx, correlationID, errors.NewMissingField(constants.KeyDeviceID))
	}

	rec, err := ParseRecord(deviceID, raw)
	if err != nil {
		return s.reject(ctx, correlationID, err)
	}

	ctx = logging.ContextWithCorrelationID(ctx, correlationID)
	log := logging.WithContext(ctx, s.log)

	if err := s.store.Put(ctx, deviceID, rec); err != nil {
		s.stats.StoreErrors.Add(1)
		log.Error("store write failed", "timestamp", rec.Timestamp, "error", err)
		return fmt.Errorf("store %s@%d: %w", deviceID, rec.Timestamp, err)
	}
	s.stats.Stored.Add(1)
	log.Debug("record stored", "timestamp", rec.Timestamp, "fields", len(rec.Fields))

	payload, err := json.Marshal(map[string]string{constants.KeyUpstreamRequestID: correlationID})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := s.pub.Publish(ctx, transport.StoredTopic(deviceID), payload); err != nil {
		s.stats.PublishErrors.Add(1)
		log.Warn("stored notification not published", "error", err)
	}

	return nil
}

func (s *Service) reject(ctx context.Context, corr string, err error) error {
	s.stats.Rejected.Add(1)
	ctx = logging.ContextWithCorrelationID(ctx, corr)
	logging.WithContext(ctx, s.log).Warn("record rejected", "error", err)
	return err
}

// Stats returns current counters.
func (s *Service) Stats() Stats {
	return Stats{
		Received:      s.stats.Received.Load(),
		Stored:        s.stats.Stored.Load(),
		Rejected:      s.stats.Rejected.Load(),
		StoreErrors:   s.stats.StoreErrors.Load(),
		PublishErrors: s.stats.PublishErrors.Load(),
	}
}

// Stats holds writer counters.
type Stats struct {
	Received      int64
	Stored        int64
	Rejected      int64
	StoreErrors   int64
	PublishErrors int64
}
