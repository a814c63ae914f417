package permission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"glint/internal/capture"
	"glint/internal/scanerr"
)

type stubPlatform struct {
	mu        sync.Mutex
	state     State
	queryErr  error
	openErr   error
	openGate  chan struct{}
	opened    int
	changeFns []func(State)
}

func (p *stubPlatform) Query(ctx context.Context) (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queryErr != nil {
		return "", p.queryErr
	}
	return p.state, nil
}

func (p *stubPlatform) Open(ctx context.Context, constraints capture.Constraints) (*capture.Stream, error) {
	p.mu.Lock()
	gate := p.openGate
	p.opened++
	openErr := p.openErr
	p.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if openErr != nil {
		return nil, openErr
	}
	track := capture.NewTrack("t0", "video", nil)
	return capture.NewStream("s0", constraints.DeviceID, constraints.Facing, track), nil
}

func (p *stubPlatform) Subscribe(fn func(State)) (func(), error) {
	p.mu.Lock()
	p.changeFns = append(p.changeFns, fn)
	p.mu.Unlock()
	return func() {}, nil
}

func (p *stubPlatform) emit(state State) {
	p.mu.Lock()
	fns := append(make([]func(State), 0, len(p.changeFns)), p.changeFns...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}

func (p *stubPlatform) setState(state State) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

func (p *stubPlatform) openCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened
}

func TestQueryDegradesToPrompt(t *testing.T) {
	platform := &stubPlatform{queryErr: errors.New("no query capability")}
	gate := NewGate(platform, nil)

	status := gate.Query(context.Background())
	if status.State != StatePrompt {
		t.Fatalf("state = %q, want prompt", status.State)
	}
	if !status.Supported {
		t.Fatal("platform source present; must report supported")
	}
}

func TestQueryWithoutSource(t *testing.T) {
	gate := NewGate(nil, nil)
	status := gate.Query(context.Background())
	if status.State != StatePrompt || status.Supported {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestRequestGrantsAndHoldsPreview(t *testing.T) {
	platform := &stubPlatform{state: StatePrompt}
	gate := NewGate(platform, nil)
	t.Cleanup(gate.Close)

	stream, err := gate.Request(context.Background(), capture.Constraints{DeviceID: "/dev/video0"})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !stream.Live() {
		t.Fatal("granted stream must be live")
	}
	if status := gate.Query(context.Background()); status.State != StateGranted {
		t.Fatalf("state = %q, want granted", status.State)
	}

	gate.ReleasePreview()
	if stream.Live() {
		t.Fatal("released preview must stop all tracks")
	}
}

func TestConcurrentRequestIsRejected(t *testing.T) {
	openGate := make(chan struct{})
	platform := &stubPlatform{openGate: openGate}
	gate := NewGate(platform, nil)
	t.Cleanup(gate.Close)

	firstDone := make(chan error, 1)
	go func() {
		_, err := gate.Request(context.Background(), capture.Constraints{})
		firstDone <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for platform.openCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first request never reached the platform")
		}
		time.Sleep(time.Millisecond)
	}

	// A second prompt while one is pending is never issued.
	_, err := gate.Request(context.Background(), capture.Constraints{})
	if !errors.Is(err, ErrRequestInFlight) {
		t.Fatalf("err = %v, want ErrRequestInFlight", err)
	}
	if platform.openCount() != 1 {
		t.Fatalf("platform prompted %d times, want 1", platform.openCount())
	}

	close(openGate)
	if err := <-firstDone; err != nil {
		t.Fatalf("first request failed: %v", err)
	}
}

func TestDenialRecordsErrorAndGrantClearsIt(t *testing.T) {
	denied := scanerr.New(scanerr.KindPermissionDenied, "camera access denied")
	platform := &stubPlatform{openErr: denied}
	gate := NewGate(platform, nil)
	t.Cleanup(gate.Close)

	if _, err := gate.Request(context.Background(), capture.Constraints{}); err == nil {
		t.Fatal("expected denial error")
	}
	status := gate.Query(context.Background())
	if status.State != StateDenied {
		t.Fatalf("state = %q, want denied", status.State)
	}
	if status.Err == nil || status.Err.Kind != scanerr.KindPermissionDenied {
		t.Fatalf("recorded error = %+v", status.Err)
	}

	// User grants access later through system settings: the observable
	// snapshot flips to granted with the stale denial cleared, in one
	// notification.
	var got []Status
	var mu sync.Mutex
	unsubscribe := gate.Subscribe(func(s Status) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})
	t.Cleanup(unsubscribe)

	platform.emit(StateGranted)

	mu.Lock()
	defer mu.Unlock()
	if len(got) == 0 {
		t.Fatal("expected a permission change notification")
	}
	last := got[len(got)-1]
	if last.State != StateGranted {
		t.Fatalf("state = %q, want granted", last.State)
	}
	if last.Err != nil {
		t.Fatalf("stale denial survived the grant: %+v", last.Err)
	}
}

func TestQueryObservedGrantClearsDenial(t *testing.T) {
	denied := scanerr.New(scanerr.KindPermissionDenied, "camera access denied")
	platform := &stubPlatform{state: StateDenied, openErr: denied}
	gate := NewGate(platform, nil)
	t.Cleanup(gate.Close)

	if _, err := gate.Request(context.Background(), capture.Constraints{}); err == nil {
		t.Fatal("expected denial error")
	}
	if status := gate.Query(context.Background()); status.Err == nil {
		t.Fatal("denial must be recorded")
	}

	// Access granted out of band (e.g. the user joins the video group)
	// with no platform change event: the next Query must not report the
	// new state alongside the old denial.
	platform.setState(StateGranted)

	status := gate.Query(context.Background())
	if status.State != StateGranted {
		t.Fatalf("state = %q, want granted", status.State)
	}
	if status.Err != nil {
		t.Fatalf("stale denial survived the grant: %+v", status.Err)
	}
}

func TestUnmappedFailureBecomesUnknownWithCause(t *testing.T) {
	cause := errors.New("v4l2: exotic failure")
	platform := &stubPlatform{openErr: cause}
	gate := NewGate(platform, nil)
	t.Cleanup(gate.Close)

	_, err := gate.Request(context.Background(), capture.Constraints{})
	if scanerr.KindOf(err) != scanerr.KindUnknown {
		t.Fatalf("kind = %q, want unknown", scanerr.KindOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatal("original platform error must be preserved")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	platform := &stubPlatform{}
	gate := NewGate(platform, nil)
	t.Cleanup(gate.Close)

	gate.Release(nil)

	stream, err := gate.Request(context.Background(), capture.Constraints{})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	gate.Release(stream)
	gate.Release(stream)
	if stream.Live() {
		t.Fatal("stream must be stopped")
	}
}
