package permission

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/sys/unix"

	"glint/internal/capture"
	"glint/internal/scanerr"
)

func TestClassifyNodeError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want scanerr.Kind
	}{
		{"denied", unix.EACCES, scanerr.KindPermissionDenied},
		{"not permitted", unix.EPERM, scanerr.KindPermissionDenied},
		{"busy", unix.EBUSY, scanerr.KindDeviceInUse},
		{"gone", unix.ENOENT, scanerr.KindNoDevices},
		{"unplugged", unix.ENODEV, scanerr.KindNoDevices},
		{"other", unix.EIO, scanerr.KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scanErr := classifyNodeError("/dev/video0", tc.err)
			if scanErr.Kind != tc.want {
				t.Fatalf("expected kind %q, got %q", tc.want, scanErr.Kind)
			}
			if !errors.Is(scanErr, tc.err) {
				t.Fatal("expected cause to be preserved")
			}
		})
	}
}

func TestV4L2SourceOpenClosesOnTrackStop(t *testing.T) {
	src := &V4L2Source{}
	opened := false
	closed := 0
	src.open = func(path string, mode int, perm uint32) (int, error) {
		opened = true
		if path != "/dev/video9" {
			t.Fatalf("unexpected node %q", path)
		}
		return 42, nil
	}
	src.close = func(fd int) error {
		if fd != 42 {
			t.Fatalf("unexpected fd %d", fd)
		}
		closed++
		return nil
	}

	stream, err := src.Open(context.Background(), capture.Constraints{
		DeviceID: "/dev/video9",
		Facing:   capture.FacingUser,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !opened {
		t.Fatal("expected device node open")
	}
	if stream.DeviceID != "/dev/video9" || stream.Facing != capture.FacingUser {
		t.Fatalf("unexpected stream %+v", stream)
	}

	// Idempotent stop must not double-close the descriptor.
	stream.Stop()
	stream.Stop()
	if closed != 1 {
		t.Fatalf("expected exactly one close, got %d", closed)
	}
}

func TestV4L2SourceOpenMapsFailure(t *testing.T) {
	src := &V4L2Source{}
	src.open = func(string, int, uint32) (int, error) {
		return -1, unix.EBUSY
	}

	_, err := src.Open(context.Background(), capture.Constraints{DeviceID: "/dev/video0"})
	if scanerr.KindOf(err) != scanerr.KindDeviceInUse {
		t.Fatalf("expected device_in_use, got %v", err)
	}
}

func TestV4L2SourceSubscribeNoop(t *testing.T) {
	src := &V4L2Source{}
	unsub, err := src.Subscribe(func(State) {})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	unsub()
}
