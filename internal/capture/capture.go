// Package capture holds the shared media types exchanged between the
// permission gate, device registry, and scan session controller.
package capture

import (
	"strings"
	"sync"
)

// Facing classifies camera orientation.
type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
	FacingUnknown     Facing = "unknown"
)

// ParseFacing converts a wire value into a known Facing.
func ParseFacing(value string) Facing {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "user", "front":
		return FacingUser
	case "environment", "rear", "back":
		return FacingEnvironment
	default:
		return FacingUnknown
	}
}

// Opposite flips user/environment. Unknown stays unknown.
func (f Facing) Opposite() Facing {
	switch f {
	case FacingUser:
		return FacingEnvironment
	case FacingEnvironment:
		return FacingUser
	default:
		return FacingUnknown
	}
}

// Constraints select which device a stream should open.
type Constraints struct {
	DeviceID string
	Facing   Facing
}

// TrackState reflects whether a track still holds the hardware.
type TrackState string

const (
	TrackLive  TrackState = "live"
	TrackEnded TrackState = "ended"
)

// Track is one media track of a stream. Stopping it releases the
// underlying hardware share; Stop is idempotent.
type Track struct {
	ID   string
	Kind string

	mu     sync.Mutex
	state  TrackState
	onStop func()
}

// NewTrack creates a live track. onStop, if set, fires exactly once on
// the first Stop call.
func NewTrack(id, kind string, onStop func()) *Track {
	return &Track{ID: id, Kind: kind, state: TrackLive, onStop: onStop}
}

func (t *Track) State() TrackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Track) Stop() {
	t.mu.Lock()
	if t.state == TrackEnded {
		t.mu.Unlock()
		return
	}
	t.state = TrackEnded
	onStop := t.onStop
	t.onStop = nil
	t.mu.Unlock()

	if onStop != nil {
		onStop()
	}
}

// Stream is a set of tracks bound to one capture device. At most one
// live stream may hold a given device; callers release it via Stop.
type Stream struct {
	ID       string
	DeviceID string
	Facing   Facing
	tracks   []*Track
}

// NewStream bundles tracks into a stream handle.
func NewStream(id, deviceID string, facing Facing, tracks ...*Track) *Stream {
	return &Stream{ID: id, DeviceID: deviceID, Facing: facing, tracks: tracks}
}

// Tracks returns the stream's tracks.
func (s *Stream) Tracks() []*Track {
	if s == nil {
		return nil
	}
	return s.tracks
}

// Stop ends every track. Safe on nil and already-stopped streams.
func (s *Stream) Stop() {
	if s == nil {
		return
	}
	for _, track := range s.tracks {
		track.Stop()
	}
}

// Live reports whether any track still holds the hardware.
func (s *Stream) Live() bool {
	if s == nil {
		return false
	}
	for _, track := range s.tracks {
		if track.State() == TrackLive {
			return true
		}
	}
	return false
}
