package device

import (
	"context"

	"glint/internal/capture"
)

// Descriptor describes one enumerated capture device. Descriptors are
// snapshots: a devicechange event invalidates them and callers must
// re-enumerate rather than mutate in place.
type Descriptor struct {
	// ID is an opaque device identifier (the device node on Linux).
	ID string `json:"id"`
	// Label is a human-readable name. May be empty before the platform
	// grants permission to read device metadata.
	Label string `json:"label"`
	// Facing classifies the camera orientation when known.
	Facing capture.Facing `json:"facing"`
}

// Selection is the persisted user camera choice. It survives process
// restarts; absence means "no prior selection", not an error.
type Selection struct {
	DeviceID string         `json:"deviceId"`
	Facing   capture.Facing `json:"facingMode"`
}

// IsZero reports whether the selection carries no information.
func (s Selection) IsZero() bool {
	return s.DeviceID == "" && (s.Facing == "" || s.Facing == capture.FacingUnknown)
}

// Source lists the capture devices currently attached to the host.
type Source interface {
	Devices(ctx context.Context) ([]Descriptor, error)
}

// ResolveDefault picks the device a new session should open. The
// fallback chain is a contract: exact device-id match, then facing
// match, then first available, then none.
func ResolveDefault(pref Selection, available []Descriptor) (Descriptor, bool) {
	if len(available) == 0 {
		return Descriptor{}, false
	}
	if pref.DeviceID != "" {
		for _, d := range available {
			if d.ID == pref.DeviceID {
				return d, true
			}
		}
	}
	if pref.Facing != "" && pref.Facing != capture.FacingUnknown {
		for _, d := range available {
			if d.Facing == pref.Facing {
				return d, true
			}
		}
	}
	return available[0], true
}

// Toggle switches a selection to the opposite facing mode. The facing
// flag always flips. Device choice for the flipped facing: a device
// advertising that facing, else any device other than the current one,
// else the current device unchanged.
func Toggle(current Selection, available []Descriptor) Selection {
	facing := current.Facing
	if facing == "" || facing == capture.FacingUnknown {
		facing = capture.FacingEnvironment
	}
	next := Selection{Facing: facing.Opposite()}

	for _, d := range available {
		if d.Facing == next.Facing {
			next.DeviceID = d.ID
			return next
		}
	}
	for _, d := range available {
		if d.ID != current.DeviceID {
			next.DeviceID = d.ID
			return next
		}
	}
	next.DeviceID = current.DeviceID
	return next
}
