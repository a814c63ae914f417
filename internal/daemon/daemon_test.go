package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"glint/internal/capture"
	"glint/internal/classify"
	"glint/internal/device"
	"glint/internal/ipc"
	"glint/internal/logging"
	"glint/internal/session"
	"glint/internal/testsupport"
)

type stubSource struct {
	mu      sync.Mutex
	devices []device.Descriptor
}

func (s *stubSource) Devices(ctx context.Context) ([]device.Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]device.Descriptor(nil), s.devices...), nil
}

type stubEngine struct {
	mu       sync.Mutex
	scanning bool
	onDecode func(text, format string)
}

func (e *stubEngine) Start(ctx context.Context, constraints capture.Constraints, cfg session.ScanConfig, onDecode func(text, format string), onFrameError func(error)) error {
	e.mu.Lock()
	e.scanning = true
	e.onDecode = onDecode
	e.mu.Unlock()
	return nil
}

func (e *stubEngine) Stop(ctx context.Context) error {
	e.mu.Lock()
	e.scanning = false
	e.mu.Unlock()
	return nil
}

func (e *stubEngine) IsScanning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scanning
}

func (e *stubEngine) decode(text, format string) {
	e.mu.Lock()
	fn := e.onDecode
	e.mu.Unlock()
	if fn != nil {
		fn(text, format)
	}
}

type engineTracker struct {
	mu      sync.Mutex
	engines []*stubEngine
}

func (t *engineTracker) factory() session.Engine {
	eng := &stubEngine{}
	t.mu.Lock()
	t.engines = append(t.engines, eng)
	t.mu.Unlock()
	return eng
}

func (t *engineTracker) latest() *stubEngine {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.engines) == 0 {
		return nil
	}
	return t.engines[len(t.engines)-1]
}

func newTestDaemon(t *testing.T, source *stubSource) (*Daemon, *ipc.Client, *engineTracker) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	registry := device.NewRegistry(cfg, source, logging.NewNop())
	tracker := &engineTracker{}

	d, err := New(Options{
		Config:        cfg,
		Logger:        logging.NewNop(),
		Store:         store,
		Registry:      registry,
		EngineFactory: tracker.factory,
		Classifier:    classify.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	return d, ipc.NewClient(d.APIAddr()), tracker
}

func twoCameraSource() *stubSource {
	return &stubSource{devices: []device.Descriptor{
		{ID: "/dev/video0", Label: "Front Camera", Facing: capture.FacingUser},
		{ID: "/dev/video2", Label: "Back Camera", Facing: capture.FacingEnvironment},
	}}
}

func waitForStatus(t *testing.T, client *ipc.Client, want string) ipc.StatusResponse {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var last ipc.StatusResponse
	for time.Now().Before(deadline) {
		status, err := client.Status(context.Background())
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		last = *status
		if status.Session.Status == want {
			return last
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session never reached %q, last status %q", want, last.Session.Status)
	return last
}

func TestDaemonStatusEndpoint(t *testing.T) {
	_, client, _ := newTestDaemon(t, twoCameraSource())

	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected running daemon")
	}
	if status.DeviceCount != 2 {
		t.Fatalf("expected 2 devices, got %d", status.DeviceCount)
	}
	if status.Session.Status != "idle" {
		t.Fatalf("expected idle session, got %q", status.Session.Status)
	}
	if status.HistoryDBPath == "" || status.LockPath == "" {
		t.Fatal("expected populated paths in status")
	}
}

func TestDaemonRejectsSecondInstance(t *testing.T) {
	d, _, _ := newTestDaemon(t, twoCameraSource())

	registry := device.NewRegistry(d.cfg, twoCameraSource(), logging.NewNop())
	tracker := &engineTracker{}
	second, err := New(Options{
		Config:        d.cfg,
		Logger:        logging.NewNop(),
		Store:         d.store,
		Registry:      registry,
		EngineFactory: tracker.factory,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance start to fail")
	}
}

func TestDaemonDevicesEndpoint(t *testing.T) {
	_, client, _ := newTestDaemon(t, twoCameraSource())

	resp, err := client.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(resp.Devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(resp.Devices))
	}
	selected := 0
	for _, dev := range resp.Devices {
		if dev.Selected {
			selected++
		}
	}
	if selected != 1 {
		t.Fatalf("expected exactly one selected device, got %d", selected)
	}
}

func TestDaemonToggleEndpoint(t *testing.T) {
	_, client, _ := newTestDaemon(t, twoCameraSource())

	first, err := client.ToggleCamera(context.Background())
	if err != nil {
		t.Fatalf("ToggleCamera: %v", err)
	}
	second, err := client.ToggleCamera(context.Background())
	if err != nil {
		t.Fatalf("ToggleCamera: %v", err)
	}
	if first.DeviceID == second.DeviceID {
		t.Fatalf("expected toggle to change device, stayed on %q", first.DeviceID)
	}
}

func TestDaemonScanFlowRecordsHistory(t *testing.T) {
	_, client, tracker := newTestDaemon(t, twoCameraSource())

	start, err := client.StartSession(context.Background())
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if !start.Started {
		t.Fatalf("expected session start, got %+v", start.Session)
	}
	if start.Session.Status != "active" {
		t.Fatalf("expected active session, got %q", start.Session.Status)
	}

	tracker.latest().decode("https://example.com", "QR-Code")
	status := waitForStatus(t, client, "stopped")
	if status.Session.Result == nil {
		t.Fatal("expected surfaced result after decode")
	}
	if status.Session.Result.Text != "https://example.com" {
		t.Fatalf("unexpected result text %q", status.Session.Result.Text)
	}

	history, err := client.History(context.Background(), 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history.Scans) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history.Scans))
	}
	entry := history.Scans[0]
	if entry.Text != "https://example.com" || entry.Format != "QR-Code" {
		t.Fatalf("unexpected history entry %+v", entry)
	}
	if entry.SessionID != status.Session.SessionID {
		t.Fatalf("history session %q does not match session %q", entry.SessionID, status.Session.SessionID)
	}

	if err := client.ClearResult(context.Background()); err != nil {
		t.Fatalf("ClearResult: %v", err)
	}
	after, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if after.Session.Result != nil {
		t.Fatal("expected cleared result")
	}
}

func TestDaemonStartWithoutDevices(t *testing.T) {
	_, client, _ := newTestDaemon(t, &stubSource{})

	start, err := client.StartSession(context.Background())
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if start.Started {
		t.Fatal("expected start to fail with no devices")
	}
	if start.Session.Error == nil || start.Session.Error.Kind != "no_devices" {
		t.Fatalf("expected no_devices error, got %+v", start.Session.Error)
	}
	if len(start.Session.Error.Actions) == 0 {
		t.Fatal("expected recovery actions on error")
	}
}

func TestDaemonSwitchEndpoint(t *testing.T) {
	_, client, tracker := newTestDaemon(t, twoCameraSource())

	start, err := client.StartSession(context.Background())
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if !start.Started {
		t.Fatalf("expected session start, got %+v", start.Session)
	}
	firstDevice := start.Session.DeviceID

	switched, err := client.SwitchCamera(context.Background(), ipc.SwitchRequest{Facing: "environment"})
	if err != nil {
		t.Fatalf("SwitchCamera: %v", err)
	}
	if !switched.Switched {
		t.Fatalf("expected switch, got %+v", switched.Session)
	}
	if switched.Session.DeviceID == firstDevice {
		t.Fatalf("expected device change, stayed on %q", firstDevice)
	}
	if eng := tracker.latest(); eng == nil || !eng.IsScanning() {
		t.Fatal("expected replacement engine to be scanning")
	}

	stop, err := client.StopSession(context.Background())
	if err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	if stop.Session.Status != "stopped" {
		t.Fatalf("expected stopped session, got %q", stop.Session.Status)
	}
}

func TestDaemonClearHistoryEndpoint(t *testing.T) {
	d, client, _ := newTestDaemon(t, twoCameraSource())
	testsupport.SeedScans(t, d.store, 3)

	cleared, err := client.ClearHistory(context.Background())
	if err != nil {
		t.Fatalf("ClearHistory: %v", err)
	}
	if cleared.Removed != 3 {
		t.Fatalf("expected 3 removed, got %d", cleared.Removed)
	}
	history, err := client.History(context.Background(), 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history.Scans) != 0 {
		t.Fatalf("expected empty history, got %d entries", len(history.Scans))
	}
}
