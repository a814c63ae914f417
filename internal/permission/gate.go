// Package permission negotiates camera access with the platform and
// tracks the resulting permission state.
package permission

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"glint/internal/capture"
	"glint/internal/logging"
	"glint/internal/scanerr"
)

// State is the platform permission state for camera access.
type State string

const (
	StatePrompt  State = "prompt"
	StateGranted State = "granted"
	StateDenied  State = "denied"
)

// ErrRequestInFlight rejects a concurrent Request call. Issuing a
// second platform prompt while one is pending is never correct.
var ErrRequestInFlight = errors.New("permission request already in flight")

// Status is a non-blocking snapshot of permission state.
type Status struct {
	State         State
	Supported     bool
	SecureContext bool
	Err           *scanerr.Error
}

// Source is the platform collaborator behind the gate.
type Source interface {
	// Query returns the current permission state. Implementations
	// lacking a query capability return an error; the gate degrades
	// that to StatePrompt.
	Query(ctx context.Context) (State, error)
	// Open triggers the platform permission prompt if needed and
	// returns a live stream on success.
	Open(ctx context.Context, constraints capture.Constraints) (*capture.Stream, error)
	// Subscribe registers for asynchronous permission changes made
	// outside any explicit request (e.g. via system settings).
	Subscribe(fn func(State)) (unsubscribe func(), err error)
}

// Gate owns permission negotiation and the pre-session preview stream.
// At most one Request is in flight at a time, and at most one preview
// stream is held; the session controller must release the preview
// before binding its own stream.
type Gate struct {
	source Source
	logger *slog.Logger

	mu         sync.Mutex
	requesting bool
	state      State
	lastErr    *scanerr.Error
	preview    *capture.Stream

	subMu sync.Mutex
	subs  map[int]func(Status)
	next  int

	unsubscribe func()
}

// NewGate constructs a gate around a platform source.
func NewGate(source Source, logger *slog.Logger) *Gate {
	g := &Gate{
		source: source,
		logger: logging.NewComponentLogger(logger, "permission-gate"),
		state:  StatePrompt,
		subs:   make(map[int]func(Status)),
	}
	if source != nil {
		if unsub, err := source.Subscribe(g.handleChange); err == nil {
			g.unsubscribe = unsub
		} else {
			g.logger.Debug("permission change subscription unavailable", logging.Error(err))
		}
	}
	return g
}

// Query returns the current permission snapshot. It never fails: a
// missing query capability degrades to the prompt state.
func (g *Gate) Query(ctx context.Context) Status {
	state := StatePrompt
	supported := g.source != nil
	if supported {
		if queried, err := g.source.Query(ctx); err == nil {
			// Only definitive answers override recorded state; an
			// empty or prompt response keeps what the gate knows.
			if queried == StateGranted || queried == StateDenied {
				state = queried
			}
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if state != StatePrompt {
		g.state = state
		// A grant observed out of band invalidates any recorded
		// denial; state and error move together.
		if state == StateGranted {
			g.lastErr = nil
		}
	}
	return Status{
		State:         g.state,
		Supported:     supported,
		SecureContext: true,
		Err:           g.lastErr,
	}
}

// Request triggers the platform permission prompt and opens a preview
// stream. A concurrent call while one is pending is rejected with
// ErrRequestInFlight rather than prompting twice. Platforms commonly
// require this to run as a direct consequence of user interaction;
// callers own that constraint.
func (g *Gate) Request(ctx context.Context, constraints capture.Constraints) (*capture.Stream, error) {
	if g.source == nil {
		err := scanerr.New(scanerr.KindNotSupported, "camera capture is not supported on this platform")
		g.recordFailure(err)
		return nil, err
	}

	g.mu.Lock()
	if g.requesting {
		g.mu.Unlock()
		return nil, ErrRequestInFlight
	}
	g.requesting = true
	previous := g.preview
	g.preview = nil
	g.mu.Unlock()

	// The hardware lock is exclusive: drop any prior preview before
	// opening a new stream.
	previous.Stop()

	stream, err := g.source.Open(ctx, constraints)

	g.mu.Lock()
	g.requesting = false
	if err != nil {
		scanErr := classifyOpenError(err)
		g.state = stateForKind(scanErr.Kind)
		g.lastErr = scanErr
		g.mu.Unlock()
		g.logger.Warn("camera access request failed",
			logging.Error(scanErr),
			logging.String(logging.FieldEventType, "permission_request_failed"),
			logging.String(logging.FieldErrorKind, string(scanErr.Kind)),
			logging.String(logging.FieldErrorHint, "check camera permissions and device availability"),
			logging.String(logging.FieldImpact, "scanning unavailable until access is granted"),
		)
		g.notify()
		return nil, scanErr
	}
	g.state = StateGranted
	g.lastErr = nil
	g.preview = stream
	g.mu.Unlock()

	g.logger.Info("camera access granted",
		logging.String(logging.FieldEventType, "permission_granted"),
		logging.String(logging.FieldDevice, stream.DeviceID),
	)
	g.notify()
	return stream, nil
}

// Release stops every track of the stream. Safe on nil and on streams
// that were already stopped.
func (g *Gate) Release(stream *capture.Stream) {
	if stream == nil {
		return
	}
	g.mu.Lock()
	if g.preview == stream {
		g.preview = nil
	}
	g.mu.Unlock()
	stream.Stop()
}

// ReleasePreview drops the held preview stream, if any. The session
// controller calls this before binding its own stream.
func (g *Gate) ReleasePreview() {
	g.mu.Lock()
	preview := g.preview
	g.preview = nil
	g.mu.Unlock()
	preview.Stop()
}

// Subscribe registers for permission snapshots delivered on every
// state change. The returned function unsubscribes.
func (g *Gate) Subscribe(fn func(Status)) func() {
	g.subMu.Lock()
	id := g.next
	g.next++
	g.subs[id] = fn
	g.subMu.Unlock()
	return func() {
		g.subMu.Lock()
		delete(g.subs, id)
		g.subMu.Unlock()
	}
}

// Close tears down the platform subscription and the preview stream.
func (g *Gate) Close() {
	if g.unsubscribe != nil {
		g.unsubscribe()
		g.unsubscribe = nil
	}
	g.ReleasePreview()
}

// handleChange processes asynchronous platform permission changes. On
// a transition to granted the recorded error is cleared in the same
// critical section, so observers never see granted paired with a stale
// denial.
func (g *Gate) handleChange(state State) {
	g.mu.Lock()
	g.state = state
	if state == StateGranted {
		g.lastErr = nil
	}
	g.mu.Unlock()

	g.logger.Info("permission state changed",
		logging.String(logging.FieldEventType, "permission_changed"),
		logging.String("state", string(state)),
	)
	g.notify()
}

func (g *Gate) notify() {
	status := g.snapshot()
	g.subMu.Lock()
	fns := make([]func(Status), 0, len(g.subs))
	for _, fn := range g.subs {
		fns = append(fns, fn)
	}
	g.subMu.Unlock()
	for _, fn := range fns {
		fn(status)
	}
}

func (g *Gate) snapshot() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		State:         g.state,
		Supported:     g.source != nil,
		SecureContext: true,
		Err:           g.lastErr,
	}
}

func (g *Gate) recordFailure(err *scanerr.Error) {
	g.mu.Lock()
	g.lastErr = err
	g.mu.Unlock()
	g.notify()
}

// classifyOpenError maps platform failures onto the closed taxonomy.
// Anything unmapped becomes Unknown with the cause preserved.
func classifyOpenError(err error) *scanerr.Error {
	var scanErr *scanerr.Error
	if errors.As(err, &scanErr) {
		return scanErr
	}
	switch {
	case errors.Is(err, context.Canceled):
		return scanerr.Wrap(scanerr.KindPermissionDismissed, "camera access prompt dismissed", err)
	default:
		return scanerr.Wrap(scanerr.KindUnknown, "camera access request failed", err)
	}
}

func stateForKind(kind scanerr.Kind) State {
	switch kind {
	case scanerr.KindPermissionDenied:
		return StateDenied
	case scanerr.KindPermissionDismissed:
		return StatePrompt
	default:
		return StatePrompt
	}
}
