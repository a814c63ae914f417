// Package scanerr defines the closed error taxonomy surfaced by the
// capture pipeline, plus the recovery actions a UI may offer per kind.
package scanerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a capture pipeline failure. The set is closed:
// unmapped platform failures become KindUnknown with the original
// error preserved as the cause.
type Kind string

const (
	KindNotSupported        Kind = "not_supported"
	KindInsecureContext     Kind = "insecure_context"
	KindPermissionDenied    Kind = "permission_denied"
	KindPermissionDismissed Kind = "permission_dismissed"
	KindNoDevices           Kind = "no_devices"
	KindDeviceInUse         Kind = "device_in_use"
	KindOverconstrained     Kind = "overconstrained"
	KindStartFailed         Kind = "start_failed"
	KindStopFailed          Kind = "stop_failed"
	KindUnsupportedFormat   Kind = "unsupported_format"
	KindProcessingError     Kind = "processing_error"
	KindUnknown             Kind = "unknown"
)

// RecoveryAction names a user-facing remedy for a failure kind.
type RecoveryAction string

const (
	ActionRetry             RecoveryAction = "retry"
	ActionRequestPermission RecoveryAction = "request-permission"
	ActionOpenSettings      RecoveryAction = "open-settings"
	ActionRefresh           RecoveryAction = "refresh"
	ActionSwitchCamera      RecoveryAction = "switch-camera"
	ActionNone              RecoveryAction = "none"
)

// Error carries a failure kind, a human-readable explanation, and the
// underlying platform error for diagnostics.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports kind equality so errors.Is(err, &Error{Kind: k}) matches.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == "" || other.Kind == e.Kind
}

// New builds an Error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags err with a kind and message. A nil err yields nil so call
// sites can wrap unconditionally.
func Wrap(kind Kind, message string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) && kind == KindUnknown {
		// Preserve a more specific classification already attached.
		kind = existing.Kind
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// KindOf extracts the kind from err, falling back to KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var scanErr *Error
	if errors.As(err, &scanErr) {
		return scanErr.Kind
	}
	return KindUnknown
}

// ActionsFor returns the recovery actions a UI should offer for a kind.
func ActionsFor(kind Kind) []RecoveryAction {
	switch kind {
	case KindNotSupported, KindInsecureContext:
		return []RecoveryAction{ActionNone}
	case KindPermissionDenied:
		return []RecoveryAction{ActionOpenSettings, ActionRequestPermission}
	case KindPermissionDismissed:
		return []RecoveryAction{ActionRequestPermission}
	case KindNoDevices:
		return []RecoveryAction{ActionRefresh}
	case KindDeviceInUse:
		return []RecoveryAction{ActionRetry, ActionSwitchCamera}
	case KindOverconstrained:
		return []RecoveryAction{ActionSwitchCamera, ActionRetry}
	case KindStartFailed, KindStopFailed, KindProcessingError, KindUnknown:
		return []RecoveryAction{ActionRetry}
	case KindUnsupportedFormat:
		return []RecoveryAction{ActionNone}
	default:
		return []RecoveryAction{ActionNone}
	}
}

// ParseKind converts a wire value into a known Kind.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case KindNotSupported, KindInsecureContext, KindPermissionDenied,
		KindPermissionDismissed, KindNoDevices, KindDeviceInUse,
		KindOverconstrained, KindStartFailed, KindStopFailed,
		KindUnsupportedFormat, KindProcessingError, KindUnknown:
		return normalized, true
	default:
		return "", false
	}
}
