package types

// Window is a trailing time window of one device, materialized as columns.
// Every column has exactly len(Timestamps) elements; a nil element marks a
// field that was missing or not numeric in that row.
type Window struct {
	DeviceID   string
	Start      int64
	End        int64
	Fields     []string
	Timestamps []int64
	Columns    map[string][]*float64
}

// NewWindow creates an empty window over [start, end] for the given fields.
func NewWindow(deviceID string, start, end int64, fields []string) *Window {
	cols := make(map[string][]*float64, len(fields))
	for _, f := range fields {
		cols[f] = []*float64{}
	}
	return &Window{
		DeviceID:   deviceID,
		Start:      start,
		End:        end,
		Fields:     append([]string(nil), fields...),
		Timestamps: []int64{},
		Columns:    cols,
	}
}

// Append adds one row. Fields without a value in values get a nil element.
func (w *Window) Append(ts int64, values map[string]float64) {
	w.Timestamps = append(w.Timestamps, ts)
	for _, f := range w.Fields {
		v, ok := values[f]
		if !ok {
			w.Columns[f] = append(w.Columns[f], nil)
			continue
		}
		w.Columns[f] = append(w.Columns[f], &v)
	}
}

// Len returns the number of rows.
func (w *Window) Len() int {
	return len(w.Timestamps)
}

// Empty reports whether the window holds no rows. An empty window is a
// valid result, not an error.
func (w *Window) Empty() bool {
	return len(w.Timestamps) == 0
}
