package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"glint/internal/classify"
	"glint/internal/config"
	"glint/internal/deps"
	"glint/internal/device"
	"glint/internal/history"
	"glint/internal/ipc"
	"glint/internal/logging"
	"glint/internal/permission"
	"glint/internal/session"
)

// Options collect the daemon's collaborators. Config, Store, Registry,
// and EngineFactory are required; Classifier defaults to plain text.
type Options struct {
	Config        *config.Config
	Logger        *slog.Logger
	Store         *history.Store
	Registry      *device.Registry
	Gate          *permission.Gate
	EngineFactory session.EngineFactory
	Classifier    classify.Classifier
}

// Daemon coordinates the scanning services and enforces
// single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *history.Store
	registry   *device.Registry
	gate       *permission.Gate
	controller *session.Controller
	monitor    *device.Monitor
	classifier classify.Classifier

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Store == nil || opts.Registry == nil || opts.EngineFactory == nil {
		return nil, errors.New("daemon requires config, store, registry, and engine factory")
	}
	classifier := opts.Classifier
	if classifier == nil {
		classifier = classify.Nop()
	}

	lockPath := filepath.Join(opts.Config.Paths.StateDir, "glintd.lock")
	d := &Daemon{
		cfg:        opts.Config,
		logger:     logging.NewComponentLogger(opts.Logger, "daemon"),
		store:      opts.Store,
		registry:   opts.Registry,
		gate:       opts.Gate,
		classifier: classifier,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}

	controller, err := session.NewController(session.Options{
		Factory:  opts.EngineFactory,
		Registry: opts.Registry,
		Preview:  previewReleaser(opts.Gate),
		Sink:     session.SinkFunc(d.persistScan),
		Scan:     scanConfig(opts.Config),
		Logger:   opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	d.controller = controller

	d.monitor = device.NewMonitor(opts.Config, opts.Logger, func(action, node string) {
		opts.Registry.Invalidate()
	})
	return d, nil
}

// previewReleaser adapts an optional gate; a nil gate means no preview
// stream can exist.
func previewReleaser(gate *permission.Gate) session.PreviewReleaser {
	if gate == nil {
		return nil
	}
	return gate
}

func scanConfig(cfg *config.Config) session.ScanConfig {
	return session.ScanConfig{
		Formats:       cfg.Decode.Formats,
		FrameInterval: time.Duration(cfg.Decode.FrameIntervalMillis) * time.Millisecond,
	}
}

// persistScan is the session controller's result sink: it classifies
// the payload and appends it to the bounded history. Persistence
// failures are logged; the result stays surfaced on the session.
func (d *Daemon) persistScan(ctx context.Context, result session.Result, meta session.Metadata) {
	category := d.classifier.Classify(result.Text)
	_, err := d.store.AddScan(ctx, history.Record{
		Text:      result.Text,
		Format:    result.Format,
		Category:  category,
		DeviceID:  meta.DeviceID,
		Facing:    string(meta.Facing),
		SessionID: meta.SessionID,
		CreatedAt: result.Timestamp,
	})
	if err != nil {
		d.logger.Warn("failed to persist scan",
			logging.Error(err),
			logging.String(logging.FieldEventType, "scan_persist_failed"),
			logging.String(logging.FieldSessionID, meta.SessionID),
			logging.String(logging.FieldErrorHint, "check state directory and database health"),
			logging.String(logging.FieldImpact, "scan missing from history"),
		)
		return
	}
	d.logger.Info("scan recorded",
		logging.String(logging.FieldEventType, "scan_recorded"),
		logging.String(logging.FieldSessionID, meta.SessionID),
		logging.String("category", string(category)),
	)
}

// Start acquires the single-instance lock and brings up the hot-plug
// monitor and HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another glint daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.monitor.Start(runCtx); err != nil {
		// Non-fatal by contract, but keep the log trail.
		d.logger.Warn("device monitor failed to start", logging.Error(err))
	}

	api, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		d.releaseLock()
		cancel()
		d.cancel = nil
		return err
	}
	d.api = api
	if err := d.api.start(runCtx); err != nil {
		d.monitor.Stop()
		d.releaseLock()
		cancel()
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("glint daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.addr()),
	)
	return nil
}

// Stop stops the session, API, and monitor, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.controller.Stop(context.Background())
	if d.api != nil {
		d.api.stop()
	}
	d.monitor.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.releaseLock()
	d.running.Store(false)
	d.logger.Info("glint daemon stopped")
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Close releases all resources held by the daemon, including any live
// camera engine.
func (d *Daemon) Close() error {
	d.Stop()
	d.controller.Close()
	if d.gate != nil {
		d.gate.Close()
	}
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddr returns the bound API address, empty before Start.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// StartSession begins a scan session.
func (d *Daemon) StartSession(ctx context.Context) (bool, error) {
	return d.controller.Start(ctx)
}

// StopSession stops the scan session, best effort.
func (d *Daemon) StopSession(ctx context.Context) {
	d.controller.Stop(ctx)
}

// SwitchCamera retargets the session to another device.
func (d *Daemon) SwitchCamera(ctx context.Context, target device.Selection) (bool, error) {
	return d.controller.SwitchCamera(ctx, target)
}

// ClearResult drops the last surfaced scan result.
func (d *Daemon) ClearResult() {
	d.controller.ClearResult()
}

// Session returns the controller snapshot.
func (d *Daemon) Session() session.Snapshot {
	return d.controller.Snapshot()
}

// Devices enumerates the attached capture devices.
func (d *Daemon) Devices(ctx context.Context) ([]device.Descriptor, device.Selection) {
	return d.registry.Enumerate(ctx), d.registry.Selection()
}

// ToggleCamera flips the persisted camera selection.
func (d *Daemon) ToggleCamera(ctx context.Context) (device.Selection, error) {
	return d.registry.ToggleFacing(ctx)
}

// History returns up to limit stored scans, newest first.
func (d *Daemon) History(ctx context.Context, limit int) ([]*history.Record, error) {
	return d.store.Recent(ctx, limit)
}

// ClearHistory removes all stored scans.
func (d *Daemon) ClearHistory(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// Status assembles the combined daemon status.
func (d *Daemon) Status(ctx context.Context) ipc.StatusResponse {
	devices := d.registry.Enumerate(ctx)
	permissionState := permission.StatePrompt
	if d.gate != nil {
		permissionState = d.gate.Query(ctx).State
	}

	checks := deps.CheckBinaries(deps.Requirements())
	wireDeps := make([]ipc.DependencyStatus, 0, len(checks))
	for _, check := range checks {
		wireDeps = append(wireDeps, ipc.FromDependencyStatus(check))
	}

	return ipc.StatusResponse{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		Session:       ipc.FromSnapshot(d.controller.Snapshot()),
		Permission:    string(permissionState),
		DeviceCount:   len(devices),
		HistoryDBPath: d.store.Path(),
		LockPath:      d.lockPath,
		Dependencies:  wireDeps,
	}
}
