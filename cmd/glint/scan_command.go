package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"glint/internal/capture"
	"glint/internal/classify"
	"glint/internal/device"
	"glint/internal/history"
	"glint/internal/logging"
	"glint/internal/permission"
	"glint/internal/services/zbar"
	"glint/internal/session"
)

// scanOverrides replace the real camera and decoder collaborators.
// Production passes nil and gets sysfs enumeration plus the zbarcam
// engine.
type scanOverrides struct {
	factory session.EngineFactory
	source  device.Source
}

// newScanCommand runs a one-shot in-process scan session: start, wait
// for the first decode, print it, and exit.
func newScanCommand(ctx *commandContext, overrides *scanOverrides) *cobra.Command {
	var timeoutSeconds int
	var deviceID string
	var facing string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a single code with the attached camera",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := logging.New(logging.Options{
				Level:  "warn",
				Format: "console",
				Output: cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}

			store, err := history.Open(cfg)
			if err != nil {
				return fmt.Errorf("open history store: %w", err)
			}
			defer store.Close()

			var source device.Source = device.NewSysfsSource()
			if overrides != nil && overrides.source != nil {
				source = overrides.source
			}
			registry := device.NewRegistry(cfg, source, logger)
			if deviceID != "" || facing != "" {
				sel := device.Selection{DeviceID: deviceID, Facing: capture.ParseFacing(facing)}
				if err := registry.Select(sel); err != nil {
					return fmt.Errorf("select camera: %w", err)
				}
			}

			gate := permission.NewGate(permission.NewV4L2Source(registry), logger)
			defer gate.Close()

			engineFactory := zbar.Factory(logger)
			if overrides != nil && overrides.factory != nil {
				engineFactory = overrides.factory
			}

			results := make(chan session.Result, 1)
			classifier := classify.Nop()
			sink := session.SinkFunc(func(sinkCtx context.Context, result session.Result, meta session.Metadata) {
				_, err := store.AddScan(sinkCtx, history.Record{
					Text:      result.Text,
					Format:    result.Format,
					Category:  classifier.Classify(result.Text),
					DeviceID:  meta.DeviceID,
					Facing:    string(meta.Facing),
					SessionID: meta.SessionID,
					CreatedAt: result.Timestamp,
				})
				if err != nil {
					logger.Warn("failed to persist scan", logging.Error(err))
				}
				select {
				case results <- result:
				default:
				}
			})

			controller, err := session.NewController(session.Options{
				Factory:  engineFactory,
				Registry: registry,
				Preview:  gate,
				Sink:     sink,
				Scan: session.ScanConfig{
					Formats:       cfg.Decode.Formats,
					FrameInterval: time.Duration(cfg.Decode.FrameIntervalMillis) * time.Millisecond,
				},
				Logger: logger,
			})
			if err != nil {
				return err
			}
			defer controller.Close()

			timeout := timeoutSeconds
			if !cmd.Flags().Changed("timeout") {
				timeout = cfg.Decode.StartTimeout
			}
			runCtx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(runCtx, time.Duration(timeout)*time.Second)
				defer cancel()
			}

			started, err := controller.Start(runCtx)
			if err != nil {
				return err
			}
			if !started {
				return errors.New("a scan session is already running")
			}

			select {
			case result := <-results:
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, result.Text)
				fmt.Fprintf(cmd.ErrOrStderr(), "Decoded %s at %s\n", result.Format,
					result.Timestamp.Local().Format(time.RFC3339))
				return nil
			case <-runCtx.Done():
				controller.Stop(context.Background())
				if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
					return fmt.Errorf("no code detected within %ds", timeout)
				}
				return runCtx.Err()
			}
		},
	}

	cmd.Flags().IntVarP(&timeoutSeconds, "timeout", "t", 0, "Give up after this many seconds (0 waits forever)")
	cmd.Flags().StringVarP(&deviceID, "device", "d", "", "Capture device to use")
	cmd.Flags().StringVar(&facing, "facing", "", "Preferred camera facing (user|environment)")
	return cmd
}
