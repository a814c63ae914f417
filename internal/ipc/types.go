package ipc

import (
	"time"

	"glint/internal/deps"
	"glint/internal/history"
	"glint/internal/scanerr"
	"glint/internal/session"
)

// SessionError is the wire form of a scanerr.Error, carrying the kind,
// a human-readable message, and the matching recovery actions.
type SessionError struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Actions []string `json:"actions"`
}

// ScanResult is the wire form of a decode result.
type ScanResult struct {
	Text            string `json:"text"`
	Format          string `json:"format"`
	TimestampMillis int64  `json:"timestamp"`
}

// SessionState mirrors the controller snapshot.
type SessionState struct {
	Status    string        `json:"status"`
	SessionID string        `json:"session_id,omitempty"`
	DeviceID  string        `json:"device_id,omitempty"`
	Facing    string        `json:"facing,omitempty"`
	Result    *ScanResult   `json:"result,omitempty"`
	Error     *SessionError `json:"error,omitempty"`
}

// DependencyStatus describes availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// StatusResponse represents combined daemon/session status information.
type StatusResponse struct {
	Running       bool               `json:"running"`
	PID           int                `json:"pid"`
	Session       SessionState       `json:"session"`
	Permission    string             `json:"permission"`
	DeviceCount   int                `json:"device_count"`
	HistoryDBPath string             `json:"history_db_path"`
	LockPath      string             `json:"lock_path"`
	Dependencies  []DependencyStatus `json:"dependencies,omitempty"`
}

// Device is the wire form of an enumerated capture device.
type Device struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Facing   string `json:"facing"`
	Selected bool   `json:"selected"`
}

// DevicesResponse lists attached capture devices.
type DevicesResponse struct {
	Devices []Device `json:"devices"`
}

// ToggleResponse reports the selection after a facing toggle.
type ToggleResponse struct {
	DeviceID string `json:"device_id"`
	Facing   string `json:"facing"`
}

// StartResponse reports a session start outcome. Started is false both
// for rejected overlapping starts and for failures; Session.Error
// distinguishes them.
type StartResponse struct {
	Started bool         `json:"started"`
	Session SessionState `json:"session"`
}

// StopResponse reports a session stop outcome.
type StopResponse struct {
	Session SessionState `json:"session"`
}

// SwitchRequest retargets the session to another camera.
type SwitchRequest struct {
	DeviceID string `json:"device_id,omitempty"`
	Facing   string `json:"facing,omitempty"`
}

// SwitchResponse reports a camera switch outcome.
type SwitchResponse struct {
	Switched bool         `json:"switched"`
	Session  SessionState `json:"session"`
}

// HistoryEntry is the wire form of a persisted scan.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	ScanID    string    `json:"scan_id"`
	Text      string    `json:"text"`
	Format    string    `json:"format"`
	Category  string    `json:"category"`
	DeviceID  string    `json:"device_id,omitempty"`
	Facing    string    `json:"facing,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryResponse lists stored scans, newest first.
type HistoryResponse struct {
	Scans []HistoryEntry `json:"scans"`
}

// ClearHistoryResponse reports the number of removed scans.
type ClearHistoryResponse struct {
	Removed int64 `json:"removed"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FromScanError converts a scanerr.Error for the wire. Nil in, nil out.
func FromScanError(err *scanerr.Error) *SessionError {
	if err == nil {
		return nil
	}
	actions := scanerr.ActionsFor(err.Kind)
	wire := &SessionError{
		Kind:    string(err.Kind),
		Message: err.Error(),
		Actions: make([]string, 0, len(actions)),
	}
	for _, action := range actions {
		wire.Actions = append(wire.Actions, string(action))
	}
	return wire
}

// FromSnapshot converts a controller snapshot for the wire.
func FromSnapshot(snap session.Snapshot) SessionState {
	state := SessionState{
		Status:    string(snap.Status),
		SessionID: snap.SessionID,
		DeviceID:  snap.DeviceID,
		Facing:    string(snap.Facing),
		Error:     FromScanError(snap.Err),
	}
	if snap.Result != nil {
		state.Result = &ScanResult{
			Text:            snap.Result.Text,
			Format:          snap.Result.Format,
			TimestampMillis: snap.Result.TimestampMillis(),
		}
	}
	return state
}

// FromRecord converts a history record for the wire.
func FromRecord(rec *history.Record) HistoryEntry {
	if rec == nil {
		return HistoryEntry{}
	}
	return HistoryEntry{
		ID:        rec.ID,
		ScanID:    rec.ScanID,
		Text:      rec.Text,
		Format:    rec.Format,
		Category:  string(rec.Category),
		DeviceID:  rec.DeviceID,
		Facing:    rec.Facing,
		SessionID: rec.SessionID,
		CreatedAt: rec.CreatedAt,
	}
}

// FromDependencyStatus converts a deps check result for the wire.
func FromDependencyStatus(status deps.Status) DependencyStatus {
	return DependencyStatus{
		Name:        status.Name,
		Command:     status.Command,
		Description: status.Description,
		Optional:    status.Optional,
		Available:   status.Available,
		Detail:      status.Detail,
	}
}
