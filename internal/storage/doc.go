// Package storage implements the bounded time-series store shared by the
// receiver and the analyzer.
//
// Architecture:
//
//	┌─────────────┐   Put    ┌───────────────────────────────┐
//	│   Ingest    │─────────▶│             Store             │
//	│   Writer    │          │  idx:{device}  sorted set     │
//	└─────────────┘          │  rec:{device}:{ts} + TTL      │
//	┌─────────────┐ RangeRead│                               │
//	│   Window    │─────────▶│  eviction inline on every     │
//	│   Reader    │          │  write and every read         │
//	└─────────────┘          └───────────────────────────────┘
//
// Every operation is one self-contained request/response. The redis backend
// runs each operation as a single atomic batch (MULTI/EXEC or a Lua script);
// the memory backend serializes operations behind one mutex.
package storage
