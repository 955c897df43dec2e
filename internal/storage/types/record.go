package types

import (
	"strconv"

	"github.com/xtxerr/edgeflow/internal/constants"
	"github.com/xtxerr/edgeflow/internal/errors"
)

// Record is a single reading from a device.
// Fields hold scalar values in their string form, exactly as the store keeps
// them; the timestamp is not repeated inside Fields.
type Record struct {
	DeviceID  string
	Timestamp int64 // Unix seconds
	Fields    map[string]string
}

// Validate checks that the record can be stored for deviceID. Any int64
// timestamp is accepted, including zero and negative values; a payload
// without a timestamp is rejected when it is parsed.
func (r *Record) Validate(deviceID string) error {
	if deviceID == "" {
		return errors.NewMissingField("device_id")
	}
	if r.DeviceID != "" && r.DeviceID != deviceID {
		return errors.NewInvalidValue("device_id", r.DeviceID, "does not match "+deviceID)
	}
	for name := range r.Fields {
		if name == "" {
			return errors.NewInvalidValue("field", name, "empty field name")
		}
	}
	return nil
}

// Value returns the stored form of field. The timestamp field is always
// present.
func (r *Record) Value(field string) (string, bool) {
	if field == constants.FieldTimestamp {
		return strconv.FormatInt(r.Timestamp, 10), true
	}
	v, ok := r.Fields[field]
	return v, ok
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() Record {
	fields := make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Record{
		DeviceID:  r.DeviceID,
		Timestamp: r.Timestamp,
		Fields:    fields,
	}
}

// Row is one entry of a range read: a retained timestamp and the requested
// fields that were present on its record.
type Row struct {
	Timestamp int64
	Values    map[string]string
}
