package session

import "strings"

// Status represents the scan session lifecycle. It is the single
// vocabulary for session state; every collaborator, the HTTP API, and
// the CLI consume this enumeration rather than maintaining their own.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusInitializing Status = "initializing"
	StatusActive       Status = "active"
	// StatusPaused is accepted on the wire for compatibility with
	// pause-on-success deployments but is never entered by this
	// controller, which tears the pipeline down after one decode.
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
	StatusError   Status = "error"
)

var allStatuses = []Status{
	StatusIdle,
	StatusInitializing,
	StatusActive,
	StatusPaused,
	StatusStopped,
	StatusError,
}

// ParseStatus converts a wire value into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// Terminal reports whether a fresh Start is required to scan again.
func (s Status) Terminal() bool {
	return s == StatusIdle || s == StatusStopped || s == StatusError
}
