package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"glint/internal/capture"
	"glint/internal/classify"
	"glint/internal/config"
	"glint/internal/daemon"
	"glint/internal/device"
	"glint/internal/history"
	"glint/internal/logging"
	"glint/internal/session"
	"glint/internal/testsupport"
)

type stubSource struct {
	devices []device.Descriptor
}

func (s *stubSource) Devices(ctx context.Context) ([]device.Descriptor, error) {
	return append([]device.Descriptor(nil), s.devices...), nil
}

type stubEngine struct {
	mu       sync.Mutex
	scanning bool
	onDecode func(text, format string)
	// autoDecode, when set, fires asynchronously after Start returns.
	autoDecode *session.Result
}

func (e *stubEngine) Start(ctx context.Context, constraints capture.Constraints, cfg session.ScanConfig, onDecode func(text, format string), onFrameError func(error)) error {
	e.mu.Lock()
	e.scanning = true
	e.onDecode = onDecode
	auto := e.autoDecode
	e.mu.Unlock()
	if auto != nil {
		// Deliveries while the session is still initializing are
		// discarded, so keep firing until one lands or the engine is
		// stopped.
		go func() {
			ticker := time.NewTicker(5 * time.Millisecond)
			defer ticker.Stop()
			for range ticker.C {
				if !e.IsScanning() {
					return
				}
				onDecode(auto.Text, auto.Format)
			}
		}()
	}
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
	mu         sync.Mutex
	engines    []*stubEngine
	autoDecode *session.Result
}

func (t *engineTracker) factory() session.Engine {
	t.mu.Lock()
	defer t.mu.Unlock()
	eng := &stubEngine{autoDecode: t.autoDecode}
	t.engines = append(t.engines, eng)
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

type cliTestEnv struct {
	cfg        *config.Config
	store      *history.Store
	daemon     *daemon.Daemon
	tracker    *engineTracker
	apiAddr    string
	configPath string
}

func testDevices() []device.Descriptor {
	return []device.Descriptor{
		{ID: "/dev/video0", Label: "Front Camera", Facing: capture.FacingUser},
		{ID: "/dev/video2", Label: "Back Camera", Facing: capture.FacingEnvironment},
	}
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(t.TempDir(), "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	registry := device.NewRegistry(cfg, &stubSource{devices: testDevices()}, logging.NewNop())
	tracker := &engineTracker{}

	d, err := daemon.New(daemon.Options{
		Config:        cfg,
		Logger:        logging.NewNop(),
		Store:         store,
		Registry:      registry,
		EngineFactory: tracker.factory,
		Classifier:    classify.Nop(),
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		tracker:    tracker,
		apiAddr:    d.APIAddr(),
		configPath: configPath,
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	rendered, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, rendered, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, api, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if api != "" {
		flags = append(flags, "--api", api)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, output)
	}
}
