package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/xtxerr/edgeflow/internal/constants"
	"github.com/xtxerr/edgeflow/internal/errors"
	"github.com/xtxerr/edgeflow/internal/storage/types"
)

// DecodePayload decodes a message body into a JSON object. Numbers are kept
// as json.Number so integer timestamps survive unchanged.
func DecodePayload(payload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode payload: %w", errors.ErrInvalidRecord, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: payload is not an object", errors.ErrInvalidRecord)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after payload", errors.ErrInvalidRecord)
	}

	return raw, nil
}

// ParseRecord builds a record for deviceID from a decoded payload.
//
// The timestamp is mandatory. Every other key becomes a field holding the
// string form of its scalar value.
func ParseRecord(deviceID string, raw map[string]any) (types.Record, error) {
	rec := types.Record{
		DeviceID: deviceID,
		Fields:   make(map[string]string, len(raw)),
	}

	v, ok := raw[constants.FieldTimestamp]
	if !ok {
		return types.Record{}, errors.NewMissingField(constants.FieldTimestamp)
	}
	ts, err := coerceTimestamp(v)
	if err != nil {
		return types.Record{}, err
	}
	rec.Timestamp = ts

	for name, value := range raw {
		if name == constants.FieldTimestamp {
			continue
		}
		s, err := formatValue(name, value)
		if err != nil {
			return types.Record{}, err
		}
		rec.Fields[name] = s
	}

	if err := rec.Validate(deviceID); err != nil {
		return types.Record{}, err
	}
	return rec, nil
}

// coerceTimestamp converts a decoded timestamp to whole seconds. Fractional
// values are truncated toward zero.
func coerceTimestamp(v any) (int64, error) {
	switch t := v.(type) {
	case json.Number:
		return parseTimestamp(t.String())
	case string:
		return parseTimestamp(strings.TrimSpace(t))
	case float64:
		return truncate(t)
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	default:
		return 0, errors.NewInvalidValue(constants.FieldTimestamp, v, "not a number")
	}
}

func parseTimestamp(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.NewInvalidValue(constants.FieldTimestamp, s, "not a number")
	}
	return truncate(f)
}

func truncate(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f <= math.MinInt64 {
		return 0, errors.NewInvalidValue(constants.FieldTimestamp, f, "out of range")
	}
	return int64(f), nil
}

// formatValue returns the stored form of a scalar field value.
func formatValue(name string, v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case int:
		return strconv.Itoa(t), nil
	case nil:
		return "", errors.NewInvalidValue(name, "null", "null value")
	default:
		return "", errors.NewInvalidValue(name, fmt.Sprintf("%T", v), "nested values are not supported")
	}
}
