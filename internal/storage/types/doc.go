// Package types defines the core data types shared by the store backends,
// the ingest writer and the window reader.
//
// Key types:
//   - Record: one reading for one device at a whole-second timestamp
//   - Row: one range-read result, values still in stored string form
//   - Window: a trailing window materialized as timestamp-aligned columns
package types
