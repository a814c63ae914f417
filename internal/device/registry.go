package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"glint/internal/capture"
	"glint/internal/config"
	"glint/internal/logging"
)

// Registry enumerates capture devices and owns the persisted camera
// selection. Enumeration results are cached until Invalidate is called
// (typically from the hot-plug monitor).
type Registry struct {
	source        Source
	selectionPath string
	preferred     Selection
	logger        *slog.Logger

	mu      sync.Mutex
	devices []Descriptor
	fresh   bool
}

// NewRegistry constructs a registry. A nil source falls back to the
// sysfs lister.
func NewRegistry(cfg *config.Config, source Source, logger *slog.Logger) *Registry {
	if source == nil {
		source = NewSysfsSource()
	}
	preferred := Selection{}
	selectionPath := ""
	if cfg != nil {
		selectionPath = cfg.SelectionPath()
		preferred = Selection{
			DeviceID: cfg.Camera.PreferredDevice,
			Facing:   capture.ParseFacing(cfg.Camera.PreferredFacing),
		}
	}
	return &Registry{
		source:        source,
		selectionPath: selectionPath,
		preferred:     preferred,
		logger:        logging.NewComponentLogger(logger, "device-registry"),
	}
}

// Enumerate returns the currently attached capture devices. Failures
// yield an empty list, never an error; sessions surface the absence of
// devices through their own start path.
func (r *Registry) Enumerate(ctx context.Context) []Descriptor {
	r.mu.Lock()
	if r.fresh {
		cached := append([]Descriptor(nil), r.devices...)
		r.mu.Unlock()
		return cached
	}
	r.mu.Unlock()

	devices, err := r.source.Devices(ctx)
	if err != nil {
		r.logger.Warn("device enumeration failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "device_enumerate_failed"),
			logging.String(logging.FieldErrorHint, "check /dev/video* permissions"),
			logging.String(logging.FieldImpact, "no cameras available until refresh"),
		)
		return nil
	}

	r.mu.Lock()
	r.devices = devices
	r.fresh = true
	r.mu.Unlock()
	return append([]Descriptor(nil), devices...)
}

// Invalidate drops the cached device list. The next Enumerate call
// re-reads the platform. Called on devicechange events.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.fresh = false
	r.devices = nil
	r.mu.Unlock()
	r.logger.Debug("device cache invalidated")
}

// Selection returns the persisted camera selection, falling back to
// the configured preference when nothing was persisted yet.
func (r *Registry) Selection() Selection {
	sel, ok := r.loadSelection()
	if ok && !sel.IsZero() {
		return sel
	}
	return r.preferred
}

// Resolve picks the device a new session should open, applying the
// persisted selection through the contract fallback chain. The second
// return is false when no device is attached.
func (r *Registry) Resolve(ctx context.Context) (Descriptor, bool) {
	return ResolveDefault(r.Selection(), r.Enumerate(ctx))
}

// Select persists an explicit device choice.
func (r *Registry) Select(sel Selection) error {
	return r.saveSelection(sel)
}

// ToggleFacing flips the persisted selection to the opposite facing
// mode and returns the new selection.
func (r *Registry) ToggleFacing(ctx context.Context) (Selection, error) {
	next := Toggle(r.Selection(), r.Enumerate(ctx))
	if err := r.saveSelection(next); err != nil {
		return Selection{}, err
	}
	r.logger.Info("camera selection toggled",
		logging.String(logging.FieldDevice, next.DeviceID),
		logging.String(logging.FieldFacing, string(next.Facing)),
	)
	return next, nil
}

func (r *Registry) loadSelection() (Selection, bool) {
	if r.selectionPath == "" {
		return Selection{}, false
	}
	data, err := os.ReadFile(r.selectionPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("failed to read camera selection; using preference",
				logging.Error(err),
				logging.String(logging.FieldEventType, "selection_read_failed"),
				logging.String(logging.FieldErrorHint, "check state directory permissions"),
				logging.String(logging.FieldImpact, "previous camera choice ignored"),
			)
		}
		return Selection{}, false
	}
	var sel Selection
	if err := json.Unmarshal(data, &sel); err != nil {
		r.logger.Warn("camera selection file is corrupt; ignoring",
			logging.Error(err),
			logging.String(logging.FieldEventType, "selection_parse_failed"),
			logging.String(logging.FieldErrorHint, "delete "+r.selectionPath+" to reset"),
			logging.String(logging.FieldImpact, "previous camera choice ignored"),
		)
		return Selection{}, false
	}
	return sel, true
}

func (r *Registry) saveSelection(sel Selection) error {
	if r.selectionPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.selectionPath), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	data, err := json.MarshalIndent(sel, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal selection: %w", err)
	}
	if err := os.WriteFile(r.selectionPath, data, 0o644); err != nil {
		return fmt.Errorf("write selection: %w", err)
	}
	return nil
}
