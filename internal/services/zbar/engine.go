package zbar

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"glint/internal/capture"
	"glint/internal/logging"
	"glint/internal/scanerr"
	"glint/internal/session"
)

// Binary is the decoder executable the engine shells out to.
const Binary = "zbarcam"

// startupWindow is how long a freshly spawned process is watched for
// an immediate failure (busy device, missing node) before the start is
// considered successful.
const startupWindow = 400 * time.Millisecond

const stopTimeout = 3 * time.Second

// Engine runs one zbarcam process. Instances are single-use: a stopped
// or failed engine is discarded and a fresh one is built per session.
type Engine struct {
	logger *slog.Logger
	binary string

	mu       sync.Mutex
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	scanning bool
	// done is closed once cmd.Wait returns; both Stop and the reaper
	// wait on it, so process exit is a broadcast, not a single value.
	done chan struct{}
}

// NewEngine constructs an engine around the zbarcam binary.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{
		logger: logging.NewComponentLogger(logger, "zbar-engine"),
		binary: Binary,
	}
}

// Factory returns a session.EngineFactory producing fresh engines.
func Factory(logger *slog.Logger) session.EngineFactory {
	return func() session.Engine {
		return NewEngine(logger)
	}
}

// Start spawns zbarcam against the constrained device and begins
// streaming decodes. The call settles once the process survives the
// startup window; an immediate exit is classified onto the error
// taxonomy (busy device, missing binary, bad symbology).
func (e *Engine) Start(ctx context.Context, constraints capture.Constraints, cfg session.ScanConfig, onDecode func(text, format string), onFrameError func(error)) error {
	args, err := buildArgs(constraints, cfg)
	if err != nil {
		return err
	}

	// The process outlives the start call's context; Stop owns its end.
	runCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(runCtx, e.binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return scanerr.Wrap(scanerr.KindStartFailed, "attach decoder stdout", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return scanerr.Wrap(scanerr.KindStartFailed, "attach decoder stderr", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		if errors.Is(err, exec.ErrNotFound) {
			return scanerr.Wrap(scanerr.KindNotSupported, Binary+" is not installed", err)
		}
		return scanerr.Wrap(scanerr.KindStartFailed, "spawn decoder", err)
	}

	var stderrTail tailBuffer
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			stderrTail.add(line)
			if onFrameError != nil {
				onFrameError(errors.New(line))
			}
		}
	}()

	var waitErr error
	done := make(chan struct{})
	go func() {
		waitErr = cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		return classifyExit(constraints.DeviceID, waitErr, stderrTail.lines())
	case <-ctx.Done():
		cancel()
		<-done
		return scanerr.Wrap(scanerr.KindStartFailed, "decoder start canceled", ctx.Err())
	case <-time.After(startupWindow):
	}

	e.mu.Lock()
	e.cmd = cmd
	e.cancel = cancel
	e.scanning = true
	e.done = done
	e.mu.Unlock()

	go e.decodeLoop(stdout, onDecode)
	go e.reapProcess(done, &waitErr, onFrameError)

	e.logger.Debug("decoder process started",
		logging.String(logging.FieldDevice, constraints.DeviceID),
		logging.Int("pid", cmd.Process.Pid),
	)
	return nil
}

// Stop terminates the decoder process, escalating from SIGTERM to a
// hard kill when it does not exit in time.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	cmd := e.cmd
	cancel := e.cancel
	done := e.done
	e.cmd = nil
	e.cancel = nil
	e.scanning = false
	e.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already gone.
		cancel()
		return nil
	}

	timer := time.NewTimer(stopTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-ctx.Done():
		cancel()
		return scanerr.Wrap(scanerr.KindStopFailed, "decoder stop canceled", ctx.Err())
	case <-timer.C:
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			return scanerr.New(scanerr.KindStopFailed, "decoder process did not exit")
		}
	}
	cancel()
	return nil
}

// IsScanning reports whether the decoder process is live.
func (e *Engine) IsScanning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scanning
}

func (e *Engine) decodeLoop(stdout io.Reader, onDecode func(text, format string)) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		format, text, ok := parseSymbol(scanner.Text())
		if !ok {
			continue
		}
		if onDecode != nil {
			onDecode(text, format)
		}
	}
}

// reapProcess observes an unexpected decoder death mid-session. It is
// reported through the frame-error path; the controller decides what,
// if anything, to surface.
func (e *Engine) reapProcess(done <-chan struct{}, waitErr *error, onFrameError func(error)) {
	<-done
	exitErr := *waitErr

	e.mu.Lock()
	wasScanning := e.scanning
	e.scanning = false
	e.mu.Unlock()

	if !wasScanning || exitErr == nil {
		return
	}
	e.logger.Warn("decoder process exited unexpectedly",
		logging.Error(exitErr),
		logging.String(logging.FieldEventType, "decoder_exited"),
		logging.String(logging.FieldErrorHint, "start a new session to resume scanning"),
		logging.String(logging.FieldImpact, "current scan session produces no further results"),
	)
	if onFrameError != nil {
		onFrameError(scanerr.Wrap(scanerr.KindProcessingError, "decoder exited", exitErr))
	}
}

// parseSymbol splits zbarcam's "SYMBOLOGY:payload" output lines.
func parseSymbol(line string) (format, text string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", "", false
	}
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", false
	}
	return normalizeFormat(parts[0]), parts[1], true
}

// normalizeFormat maps zbar symbology names onto the stable format
// identifiers stored in history (QR-Code -> QR_CODE).
func normalizeFormat(symbology string) string {
	upper := strings.ToUpper(strings.TrimSpace(symbology))
	upper = strings.ReplaceAll(upper, "-", "_")
	switch upper {
	case "I2/5":
		return "ITF"
	default:
		return upper
	}
}

// symbologyTokens maps format identifiers from the decode config onto
// zbarcam -S symbology switches.
var symbologyTokens = map[string]string{
	"QR_CODE":  "qrcode",
	"EAN_13":   "ean13",
	"EAN_8":    "ean8",
	"UPC_A":    "upca",
	"UPC_E":    "upce",
	"CODE_39":  "code39",
	"CODE_93":  "code93",
	"CODE_128": "code128",
	"ITF":      "i25",
	"CODABAR":  "codabar",
	"DATABAR":  "databar",
	"PDF417":   "pdf417",
}

// buildArgs translates the scan config into zbarcam flags. The frame
// interval hint has no zbarcam equivalent; the process paces its own
// capture loop.
func buildArgs(constraints capture.Constraints, cfg session.ScanConfig) ([]string, error) {
	args := []string{"--nodisplay"}
	if len(cfg.Formats) > 0 {
		args = append(args, "-Sdisable")
		for _, format := range cfg.Formats {
			token, ok := symbologyTokens[strings.ToUpper(strings.TrimSpace(format))]
			if !ok {
				return nil, scanerr.New(scanerr.KindUnsupportedFormat,
					fmt.Sprintf("format %q is not supported by the decoder", format))
			}
			args = append(args, "-S"+token+".enable")
		}
	}
	if constraints.DeviceID != "" {
		args = append(args, constraints.DeviceID)
	}
	return args, nil
}

// classifyExit maps an immediate decoder exit onto the error taxonomy
// using the process's stderr tail.
func classifyExit(deviceID string, waitErr error, stderrLines []string) error {
	detail := strings.Join(stderrLines, "; ")
	cause := waitErr
	if cause == nil {
		cause = errors.New("decoder exited during startup")
	}
	if detail != "" {
		cause = fmt.Errorf("%w: %s", cause, detail)
	}

	lowered := strings.ToLower(detail)
	switch {
	case strings.Contains(lowered, "busy"):
		return scanerr.Wrap(scanerr.KindDeviceInUse,
			fmt.Sprintf("capture device %s is in use", deviceID), cause)
	case strings.Contains(lowered, "no such file"), strings.Contains(lowered, "no such device"):
		return scanerr.Wrap(scanerr.KindNoDevices,
			fmt.Sprintf("capture device %s is gone", deviceID), cause)
	case strings.Contains(lowered, "permission denied"):
		return scanerr.Wrap(scanerr.KindPermissionDenied,
			fmt.Sprintf("access to capture device %s was denied", deviceID), cause)
	default:
		return scanerr.Wrap(scanerr.KindStartFailed, "decoder failed to start", cause)
	}
}

// tailBuffer keeps the last few stderr lines for exit classification.
type tailBuffer struct {
	mu    sync.Mutex
	tail  []string
	limit int
}

func (b *tailBuffer) add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit == 0 {
		b.limit = 8
	}
	b.tail = append(b.tail, line)
	if len(b.tail) > b.limit {
		b.tail = b.tail[len(b.tail)-b.limit:]
	}
}

func (b *tailBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.tail...)
}
