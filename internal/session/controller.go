package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"glint/internal/capture"
	"glint/internal/device"
	"glint/internal/logging"
	"glint/internal/scanerr"
)

// Registry resolves which capture device a session should open.
type Registry interface {
	Resolve(ctx context.Context) (device.Descriptor, bool)
	Select(sel device.Selection) error
}

// PreviewReleaser drops the permission gate's pre-session preview
// stream. The camera lock is exclusive, so the preview must be gone
// before the engine binds its own stream.
type PreviewReleaser interface {
	ReleasePreview()
}

// Options configure a controller. Factory and Registry are required.
type Options struct {
	Factory  EngineFactory
	Registry Registry
	Preview  PreviewReleaser
	Sink     Sink
	Scan     ScanConfig
	Logger   *slog.Logger
}

// Controller drives the scan session state machine. It owns at most
// one decode engine instance at a time and serializes Start, Stop, and
// SwitchCamera through a single operation slot.
type Controller struct {
	factory  EngineFactory
	registry Registry
	preview  PreviewReleaser
	sink     Sink
	scan     ScanConfig
	logger   *slog.Logger

	mu   sync.Mutex
	cond *sync.Cond
	// opInFlight marks a camera operation (start, stop, switch, or
	// post-decode teardown) in progress. Overlapping starts are
	// rejected; stops and switches wait for the slot.
	opInFlight bool
	status     Status
	engine     Engine
	// gen invalidates decode callbacks from a superseded engine
	// binding. Every bind and teardown bumps it.
	gen        uint64
	sessionID  string
	meta       Metadata
	lastResult *Result
	lastErr    *scanerr.Error
	lastTS     time.Time

	now func() time.Time
}

// NewController constructs an idle controller.
func NewController(opts Options) (*Controller, error) {
	if opts.Factory == nil {
		return nil, errors.New("session controller requires an engine factory")
	}
	if opts.Registry == nil {
		return nil, errors.New("session controller requires a device registry")
	}
	c := &Controller{
		factory:  opts.Factory,
		registry: opts.Registry,
		preview:  opts.Preview,
		sink:     opts.Sink,
		scan:     opts.Scan,
		logger:   logging.NewComponentLogger(opts.Logger, "scan-session"),
		status:   StatusIdle,
		now:      time.Now,
	}
	c.cond = sync.NewCond(&c.mu)
	return c, nil
}

// Start binds a fresh decode engine to the resolved capture device.
// It returns (false, nil) without side effects when a session is
// already active or initializing, preventing a second engine binding.
// On failure the controller transitions to StatusError and the
// returned error carries a scanerr kind.
func (c *Controller) Start(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.status == StatusActive || c.status == StatusInitializing || c.opInFlight {
		c.mu.Unlock()
		return false, nil
	}
	c.opInFlight = true
	c.status = StatusInitializing
	c.gen++
	gen := c.gen
	c.lastResult = nil
	c.lastErr = nil
	c.sessionID = uuid.NewString()
	sessionID := c.sessionID
	c.mu.Unlock()

	return c.bindEngine(ctx, gen, sessionID)
}

// Stop tears down the current engine, best effort. It waits for any
// in-flight start to settle first: there is no mid-start cancellation,
// and aborting would leave the hardware lock held. Idempotent; a stop
// failure is recorded as StopFailed but never blocks the next Start.
func (c *Controller) Stop(ctx context.Context) {
	c.mu.Lock()
	for c.opInFlight {
		c.cond.Wait()
	}
	engine := c.engine
	c.engine = nil
	c.gen++
	if engine == nil {
		// Nothing ever bound, or already torn down. Idle and error are
		// preserved; an active vocabulary value collapses to stopped.
		if c.status == StatusActive || c.status == StatusInitializing || c.status == StatusPaused {
			c.status = StatusStopped
		}
		c.mu.Unlock()
		return
	}
	c.opInFlight = true
	c.status = StatusStopped
	sessionID := c.sessionID
	c.mu.Unlock()

	c.teardown(ctx, engine, true)

	c.mu.Lock()
	c.opInFlight = false
	c.cond.Broadcast()
	c.mu.Unlock()

	c.logger.Info("scan session stopped",
		logging.String(logging.FieldEventType, "session_stopped"),
		logging.String(logging.FieldSessionID, sessionID),
	)
}

// SwitchCamera retargets the session to another device, fully
// releasing the old stream before the new one is requested. Concurrent
// switch requests queue behind the operation slot, so two engines are
// never bound at once. Stop errors during the switch are logged and
// swallowed; the switch's own start outcome is authoritative.
func (c *Controller) SwitchCamera(ctx context.Context, target device.Selection) (bool, error) {
	c.mu.Lock()
	for c.opInFlight {
		c.cond.Wait()
	}
	c.opInFlight = true
	engine := c.engine
	c.engine = nil
	c.gen++
	gen := c.gen
	c.status = StatusInitializing
	c.lastErr = nil
	if c.sessionID == "" {
		c.sessionID = uuid.NewString()
	}
	sessionID := c.sessionID
	c.mu.Unlock()

	// Old stream first. The camera lock is exclusive per device.
	if engine != nil {
		c.teardown(ctx, engine, false)
	}

	if !target.IsZero() {
		if err := c.registry.Select(target); err != nil {
			c.logger.Warn("failed to persist camera selection",
				logging.Error(err),
				logging.String(logging.FieldEventType, "selection_persist_failed"),
				logging.String(logging.FieldImpact, "switch proceeds; choice is lost on restart"),
			)
		}
	}

	return c.bindEngine(ctx, gen, sessionID)
}

// bindEngine is the shared start path for Start and SwitchCamera. The
// caller holds the operation slot; bindEngine releases it once the
// start settles.
func (c *Controller) bindEngine(ctx context.Context, gen uint64, sessionID string) (bool, error) {
	desc, ok := c.registry.Resolve(ctx)
	if !ok {
		scanErr := scanerr.New(scanerr.KindNoDevices, "no capture devices available")
		c.settleFailure(scanErr)
		return false, scanErr
	}

	if c.preview != nil {
		c.preview.ReleasePreview()
	}

	constraints := capture.Constraints{DeviceID: desc.ID, Facing: desc.Facing}
	engine := c.factory()
	if err := engine.Start(ctx, constraints, c.scan, c.decodeHandler(gen), c.frameErrorHandler(gen)); err != nil {
		scanErr := classifyStartError(err)
		c.settleFailure(scanErr)
		c.logger.Warn("scan session start failed",
			logging.Error(scanErr),
			logging.String(logging.FieldEventType, "session_start_failed"),
			logging.String(logging.FieldErrorKind, string(scanErr.Kind)),
			logging.String(logging.FieldSessionID, sessionID),
			logging.String(logging.FieldDevice, desc.ID),
			logging.String(logging.FieldErrorHint, "retry, or switch to another camera"),
			logging.String(logging.FieldImpact, "scanning unavailable"),
		)
		return false, scanErr
	}

	c.mu.Lock()
	c.engine = engine
	c.meta = Metadata{SessionID: sessionID, DeviceID: desc.ID, Facing: desc.Facing}
	c.status = StatusActive
	c.opInFlight = false
	c.cond.Broadcast()
	c.mu.Unlock()

	c.logger.Info("scan session active",
		logging.String(logging.FieldEventType, "session_active"),
		logging.String(logging.FieldSessionID, sessionID),
		logging.String(logging.FieldDevice, desc.ID),
		logging.String(logging.FieldFacing, string(desc.Facing)),
	)
	return true, nil
}

func (c *Controller) settleFailure(scanErr *scanerr.Error) {
	c.mu.Lock()
	c.status = StatusError
	c.lastErr = scanErr
	c.opInFlight = false
	c.cond.Broadcast()
	c.mu.Unlock()
}

// decodeHandler builds the engine decode callback for one binding.
// This is the only call site allowed to invoke the result sink; no
// other code path may re-derive and re-emit a stored result.
func (c *Controller) decodeHandler(gen uint64) func(text, format string) {
	return func(text, format string) {
		c.mu.Lock()
		if gen != c.gen || c.status != StatusActive {
			// Stale binding or a session already transitioning away:
			// the callback is discarded, not queued.
			c.mu.Unlock()
			return
		}
		ts := c.now()
		if ts.Before(c.lastTS) {
			ts = c.lastTS
		}
		c.lastTS = ts
		result := Result{Text: text, Format: format, Timestamp: ts}
		c.lastResult = &result
		meta := c.meta
		engine := c.engine
		c.engine = nil
		c.gen++
		c.status = StatusStopped
		c.opInFlight = true
		sink := c.sink
		c.mu.Unlock()

		c.logger.Info("scan decoded",
			logging.String(logging.FieldEventType, "scan_decoded"),
			logging.String(logging.FieldSessionID, meta.SessionID),
			logging.String(logging.FieldDevice, meta.DeviceID),
			logging.String("format", format),
		)

		if sink != nil {
			sink.AddScan(context.Background(), result, meta)
		}

		// Teardown runs off the engine's callback goroutine. The
		// operation slot stays held until the stream is released, so a
		// racing Start cannot bind over a still-live camera.
		go func() {
			c.teardown(context.Background(), engine, false)
			c.mu.Lock()
			c.opInFlight = false
			c.cond.Broadcast()
			c.mu.Unlock()
		}()
	}
}

// frameErrorHandler handles per-frame decode failures. A frame with no
// readable code is not an error: it never surfaces and never changes
// state.
func (c *Controller) frameErrorHandler(gen uint64) func(error) {
	return func(err error) {
		if err == nil {
			return
		}
		c.mu.Lock()
		stale := gen != c.gen
		c.mu.Unlock()
		if stale {
			return
		}
		c.logger.Debug("frame decode failed", logging.Error(err))
	}
}

// teardown stops an engine instance. The instance is discarded by the
// caller regardless of the outcome; when record is set a failure is
// kept as the controller's last error.
func (c *Controller) teardown(ctx context.Context, engine Engine, record bool) {
	if engine == nil {
		return
	}
	if !engine.IsScanning() {
		return
	}
	if err := engine.Stop(ctx); err != nil {
		scanErr := scanerr.Wrap(scanerr.KindStopFailed, "stop decode engine", err)
		if record {
			c.mu.Lock()
			c.lastErr = scanErr
			c.mu.Unlock()
		}
		c.logger.Warn("decode engine stop failed",
			logging.Error(scanErr),
			logging.String(logging.FieldEventType, "engine_stop_failed"),
			logging.String(logging.FieldErrorHint, "engine instance discarded; next start creates a fresh one"),
			logging.String(logging.FieldImpact, "none; session teardown continues"),
		)
	}
}

// Close unconditionally stops any live engine, even if the recorded
// state disagrees, so a disposed controller cannot orphan the camera
// lock.
func (c *Controller) Close() {
	c.mu.Lock()
	for c.opInFlight {
		c.cond.Wait()
	}
	engine := c.engine
	c.engine = nil
	c.gen++
	if c.status == StatusActive || c.status == StatusInitializing || c.status == StatusPaused {
		c.status = StatusStopped
	}
	c.mu.Unlock()

	c.teardown(context.Background(), engine, false)
}

// ClearResult drops the last surfaced result. Status is unchanged.
func (c *Controller) ClearResult() {
	c.mu.Lock()
	c.lastResult = nil
	c.mu.Unlock()
}

// Status returns the current session status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Result returns a copy of the last surfaced decode result, if any.
func (c *Controller) Result() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastResult == nil {
		return Result{}, false
	}
	return *c.lastResult, true
}

// LastError returns the last recorded session error, if any.
func (c *Controller) LastError() *scanerr.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Snapshot captures the controller state for status reporting.
type Snapshot struct {
	Status    Status
	SessionID string
	DeviceID  string
	Facing    capture.Facing
	Result    *Result
	Err       *scanerr.Error
}

// Snapshot returns a consistent view of the session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		Status:    c.status,
		SessionID: c.sessionID,
		DeviceID:  c.meta.DeviceID,
		Facing:    c.meta.Facing,
		Err:       c.lastErr,
	}
	if c.lastResult != nil {
		result := *c.lastResult
		snap.Result = &result
	}
	return snap
}

// classifyStartError maps an engine start failure onto the closed
// taxonomy. Engines surface their own specific kinds (device busy,
// unsupported format); everything else becomes StartFailed with the
// cause preserved.
func classifyStartError(err error) *scanerr.Error {
	var scanErr *scanerr.Error
	if errors.As(err, &scanErr) {
		return scanErr
	}
	return scanerr.Wrap(scanerr.KindStartFailed, "start decode engine", err)
}
