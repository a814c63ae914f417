package device

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"glint/internal/config"
	"glint/internal/logging"
)

// Monitor listens for udev netlink events on the video4linux subsystem
// and reports device plug/unplug so the registry can re-enumerate.
type Monitor struct {
	logger   *slog.Logger
	onChange func(action, device string)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewMonitor creates a hot-plug monitor. onChange fires for every
// matched add/remove event with the affected device node.
func NewMonitor(cfg *config.Config, logger *slog.Logger, onChange func(action, device string)) *Monitor {
	if cfg != nil && !cfg.Camera.HotplugEvents {
		return nil
	}
	return &Monitor{
		logger:   logging.NewComponentLogger(logger, "device-monitor"),
		onChange: onChange,
	}
}

// Start begins listening for udev netlink events. A connect failure is
// non-fatal: enumeration still works, it just will not refresh itself.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; device changes will not be detected",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the process may access netlink sockets"),
			logging.String(logging.FieldImpact, "camera hot-plug requires manual refresh"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("device monitor started",
		logging.String(logging.FieldEventType, "device_monitor_started"),
	)
	return nil
}

// Stop shuts down the monitor.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("device monitor stopped",
		logging.String(logging.FieldEventType, "device_monitor_stopped"),
	)
}

// Running reports whether the monitor is active.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	events := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(events, errs, videoMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-events:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("device monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "device_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "camera hot-plug detection may be affected"),
			)
		}
	}
}

// videoMatcher matches SUBSYSTEM=video4linux, ACTION=add|remove.
func videoMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "video4linux",
		},
	})
	return rules
}

func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	devname := extractDeviceName(uevent)
	if devname == "" {
		m.logger.Debug("ignoring event without device name",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return
	}

	m.logger.Info("capture device change detected",
		logging.String(logging.FieldEventType, "device_changed"),
		logging.String(logging.FieldDevice, devname),
		logging.String("action", string(uevent.Action)),
	)

	if m.onChange != nil {
		m.onChange(string(uevent.Action), devname)
	}
}

func extractDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if strings.HasPrefix(devname, "/") {
			return devname
		}
		return "/dev/" + devname
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	if len(parts) == 0 {
		return ""
	}
	return "/dev/" + parts[len(parts)-1]
}
