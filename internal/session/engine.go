package session

import (
	"context"
	"time"

	"glint/internal/capture"
)

// ScanConfig tunes the decode engine for one session.
type ScanConfig struct {
	// Formats restricts which symbologies the engine reports. Empty
	// means engine defaults.
	Formats []string
	// FrameInterval throttles how often frames are decoded.
	FrameInterval time.Duration
}

// Engine is the external decode collaborator. It opens the capture
// device named by the constraints, pulls frames, and invokes onDecode
// for every code it reads. Per-frame failures (no code in this frame)
// go to onFrameError and are never session errors.
//
// Implementations must tolerate Stop being called from a different
// goroutine than Start. Callers check IsScanning before Stop so an
// already-stopped engine is not stopped again.
type Engine interface {
	Start(ctx context.Context, constraints capture.Constraints, cfg ScanConfig, onDecode func(text, format string), onFrameError func(error)) error
	Stop(ctx context.Context) error
	IsScanning() bool
}

// EngineFactory builds a fresh engine per start. A failed or stopped
// engine instance is discarded, never reused, so a stop failure cannot
// poison the next session.
type EngineFactory func() Engine

// Result is one decoded scan. Immutable once created; produced exactly
// once per physical code presentation.
type Result struct {
	Text      string    `json:"text"`
	Format    string    `json:"format"`
	Timestamp time.Time `json:"timestamp"`
}

// TimestampMillis returns the result timestamp as epoch milliseconds.
func (r Result) TimestampMillis() int64 {
	return r.Timestamp.UnixMilli()
}

// Metadata describes the capture context a result was produced under.
type Metadata struct {
	SessionID string
	DeviceID  string
	Facing    capture.Facing
}

// Sink receives accepted decode results. The controller invokes it at
// most once per physical scan, from exactly one call site.
type Sink interface {
	AddScan(ctx context.Context, result Result, meta Metadata)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, result Result, meta Metadata)

// AddScan implements Sink.
func (f SinkFunc) AddScan(ctx context.Context, result Result, meta Metadata) {
	f(ctx, result, meta)
}
