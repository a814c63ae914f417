package permission

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/google/uuid"

	"glint/internal/capture"
	"glint/internal/device"
	"glint/internal/scanerr"
)

// V4L2Source answers permission questions by probing the video device
// node itself. On Linux there is no separate consent dialog: access is
// whatever the node's unix permissions grant the process, so Query is
// an access(2) check and Open holds a non-blocking file descriptor as
// the preview stream.
type V4L2Source struct {
	registry *device.Registry

	open  func(path string, mode int, perm uint32) (int, error)
	close func(fd int) error
}

// NewV4L2Source builds a source that probes whichever device the
// registry would resolve for a new session.
func NewV4L2Source(registry *device.Registry) *V4L2Source {
	return &V4L2Source{registry: registry, open: unix.Open, close: unix.Close}
}

// Query probes the resolved capture device with access(2). No device
// to probe is reported as an error so the gate stays at prompt.
func (s *V4L2Source) Query(ctx context.Context) (State, error) {
	desc, ok := s.registry.Resolve(ctx)
	if !ok {
		return "", errors.New("no capture device to probe")
	}
	switch err := unix.Access(desc.ID, unix.R_OK|unix.W_OK); {
	case err == nil:
		return StateGranted, nil
	case errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM):
		return StateDenied, nil
	default:
		return "", fmt.Errorf("probe %s: %w", desc.ID, err)
	}
}

// Open acquires the device node non-blocking and wraps the descriptor
// in a stream whose track stop closes it.
func (s *V4L2Source) Open(ctx context.Context, constraints capture.Constraints) (*capture.Stream, error) {
	node := constraints.DeviceID
	facing := constraints.Facing
	if node == "" {
		desc, ok := s.registry.Resolve(ctx)
		if !ok {
			return nil, scanerr.New(scanerr.KindNoDevices, "no capture devices attached")
		}
		node = desc.ID
		facing = desc.Facing
	}

	fd, err := s.open(node, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, classifyNodeError(node, err)
	}

	var closeOnce sync.Once
	track := capture.NewTrack(node, "video", func() {
		closeOnce.Do(func() { _ = s.close(fd) })
	})
	return capture.NewStream(uuid.NewString(), node, facing, track), nil
}

// Subscribe is a no-op: unix file permissions do not change behind a
// notification mechanism this source can watch.
func (s *V4L2Source) Subscribe(fn func(State)) (func(), error) {
	return func() {}, nil
}

func classifyNodeError(node string, err error) *scanerr.Error {
	switch {
	case errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM):
		return scanerr.Wrap(scanerr.KindPermissionDenied,
			fmt.Sprintf("access to %s denied; add the user to the video group", node), err)
	case errors.Is(err, unix.EBUSY):
		return scanerr.Wrap(scanerr.KindDeviceInUse,
			fmt.Sprintf("%s is held by another process", node), err)
	case errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENODEV) || errors.Is(err, unix.ENXIO):
		return scanerr.Wrap(scanerr.KindNoDevices,
			fmt.Sprintf("%s is gone; the camera may have been unplugged", node), err)
	default:
		return scanerr.Wrap(scanerr.KindUnknown,
			fmt.Sprintf("open %s failed", node), err)
	}
}
