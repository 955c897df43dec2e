// Package archive writes materialized windows to Parquet files, one file per
// window under {dir}/{device}/{end}.parquet, and reads them back.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	defaults "github.com/xtxerr/edgeflow/config"
	"github.com/xtxerr/edgeflow/internal/errors"
	"github.com/xtxerr/edgeflow/internal/logging"
	"github.com/xtxerr/edgeflow/internal/storage/types"
	"github.com/xtxerr/edgeflow/internal/validation"
)

// Row is one cell of a window in long form. Missing cells are kept with
// Valid=false so the window shape survives a round trip.
type Row struct {
	DeviceID  string  `parquet:"device_id,zstd"`
	Timestamp int64   `parquet:"timestamp"`
	Field     string  `parquet:"field,zstd"`
	Value     float64 `parquet:"value"`
	Valid     bool    `parquet:"valid"`
}

// Options configures the archive.
type Options struct {
	// Dir is the archive root.
	Dir string

	// Compression is one of none, snappy, zstd, lz4, gzip.
	Compression string
}

// Archive is a window sink backed by Parquet files.
type Archive struct {
	dir   string
	codec compress.Codec
	log   *slog.Logger

	windows atomic.Int64
	rows    atomic.Int64
}

// New creates an archive rooted at opts.Dir.
func New(opts Options) (*Archive, error) {
	if opts.Dir == "" {
		opts.Dir = defaults.DefaultArchiveDir
	}
	if opts.Compression == "" {
		opts.Compression = defaults.DefaultArchiveCompression
	}
	codec, err := ParseCompression(opts.Compression)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}

	return &Archive{
		dir:   opts.Dir,
		codec: codec,
		log:   logging.Component("archive"),
	}, nil
}

// ParseCompression maps a codec name to its parquet-go codec.
func ParseCompression(name string) (compress.Codec, error) {
	switch name {
	case "none":
		return &parquet.Uncompressed, nil
	case "snappy":
		return &parquet.Snappy, nil
	case "zstd":
		return &parquet.Zstd, nil
	case "lz4":
		return &parquet.Lz4Raw, nil
	case "gzip":
		return &parquet.Gzip, nil
	default:
		return nil, errors.NewInvalidConfig("archive.compression", fmt.Sprintf("unknown codec %q", name))
	}
}

// Path returns the file a window of deviceID ending at end is written to.
func (a *Archive) Path(deviceID string, end int64) string {
	return filepath.Join(a.dir, deviceID, strconv.FormatInt(end, 10)+".parquet")
}

// WriteWindow writes w to its file. An existing file for the same device and
// end is replaced.
func (a *Archive) WriteWindow(ctx context.Context, w *types.Window) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validation.ValidatePathSegment(w.DeviceID); err != nil {
		return errors.NewInvalidValue("device_id", w.DeviceID, err.Error())
	}

	path := a.Path(w.DeviceID, w.End)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".window-*")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	rows := ToRows(w)
	writer := parquet.NewGenericWriter[Row](tmp, parquet.Compression(a.codec))
	if _, err := writer.Write(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	a.windows.Add(1)
	a.rows.Add(int64(len(rows)))
	logging.WithContext(ctx, a.log).Debug("window archived", "path", path, "rows", len(rows))
	return nil
}

// ToRows flattens w into long form, row-major in timestamp order.
func ToRows(w *types.Window) []Row {
	rows := make([]Row, 0, w.Len()*len(w.Fields))
	for i, ts := range w.Timestamps {
		for _, f := range w.Fields {
			row := Row{DeviceID: w.DeviceID, Timestamp: ts, Field: f}
			if col := w.Columns[f]; i < len(col) && col[i] != nil {
				row.Value = *col[i]
				row.Valid = true
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// ReadWindow loads an archived window. Start is not stored in the file and is
// left zero; End is taken from the file name.
func ReadWindow(path string) (*types.Window, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[Row](f)
	defer reader.Close()

	rows := make([]Row, reader.NumRows())
	if len(rows) > 0 {
		n, err := reader.Read(rows)
		if err != nil && n < len(rows) {
			return nil, fmt.Errorf("read rows: %w", err)
		}
	}

	end, err := strconv.ParseInt(trimExt(filepath.Base(path)), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse window end from %s: %w", path, err)
	}

	return FromRows(filepath.Base(filepath.Dir(path)), end, rows), nil
}

// FromRows rebuilds a window from long-form rows. Field order follows first
// appearance.
func FromRows(deviceID string, end int64, rows []Row) *types.Window {
	var fields []string
	seen := make(map[string]bool)
	for _, r := range rows {
		if !seen[r.Field] {
			seen[r.Field] = true
			fields = append(fields, r.Field)
		}
	}

	w := types.NewWindow(deviceID, 0, end, fields)
	for i := 0; i < len(rows); {
		ts := rows[i].Timestamp
		values := make(map[string]float64)
		for ; i < len(rows) && rows[i].Timestamp == ts; i++ {
			if rows[i].Valid {
				values[rows[i].Field] = rows[i].Value
			}
		}
		w.Append(ts, values)
	}
	return w
}

// Stats returns the number of windows and rows written.
func (a *Archive) Stats() (windows, rows int64) {
	return a.windows.Load(), a.rows.Load()
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
