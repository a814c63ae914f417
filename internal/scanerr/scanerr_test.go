package scanerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("EBUSY")
	err := Wrap(KindDeviceInUse, "open capture device", cause)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause not reachable via errors.Is")
	}
	if KindOf(err) != KindDeviceInUse {
		t.Fatalf("unexpected kind %q", KindOf(err))
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	if err := Wrap(KindStartFailed, "start", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestWrapUnknownKeepsSpecificKind(t *testing.T) {
	inner := New(KindPermissionDenied, "camera access denied")
	outer := Wrap(KindUnknown, "start session", fmt.Errorf("controller: %w", inner))
	if outer.Kind != KindPermissionDenied {
		t.Fatalf("expected inner classification to survive, got %q", outer.Kind)
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if kind := KindOf(errors.New("boom")); kind != KindUnknown {
		t.Fatalf("expected unknown, got %q", kind)
	}
	if kind := KindOf(nil); kind != "" {
		t.Fatalf("expected empty kind for nil, got %q", kind)
	}
}

func TestActionsForClosedSet(t *testing.T) {
	kinds := []Kind{
		KindNotSupported, KindInsecureContext, KindPermissionDenied,
		KindPermissionDismissed, KindNoDevices, KindDeviceInUse,
		KindOverconstrained, KindStartFailed, KindStopFailed,
		KindUnsupportedFormat, KindProcessingError, KindUnknown,
	}
	valid := map[RecoveryAction]struct{}{
		ActionRetry: {}, ActionRequestPermission: {}, ActionOpenSettings: {},
		ActionRefresh: {}, ActionSwitchCamera: {}, ActionNone: {},
	}
	for _, kind := range kinds {
		actions := ActionsFor(kind)
		if len(actions) == 0 {
			t.Fatalf("kind %q has no recovery actions", kind)
		}
		for _, action := range actions {
			if _, ok := valid[action]; !ok {
				t.Fatalf("kind %q maps to unknown action %q", kind, action)
			}
		}
	}
}

func TestParseKind(t *testing.T) {
	if kind, ok := ParseKind(" Device_In_Use "); !ok || kind != KindDeviceInUse {
		t.Fatalf("ParseKind failed: %q %v", kind, ok)
	}
	if _, ok := ParseKind("nonsense"); ok {
		t.Fatal("expected parse failure")
	}
}
