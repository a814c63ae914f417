package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"glint/internal/classify"
	"glint/internal/daemon"
	"glint/internal/device"
	"glint/internal/history"
	"glint/internal/logging"
	"glint/internal/permission"
	"glint/internal/services/zbar"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Daemon lifecycle",
	}

	runCmd := &cobra.Command{
		Use:          "run",
		Short:        "Run the glint daemon in the foreground",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonProcess(cmd.Context(), ctx)
		},
	}
	daemonCmd.AddCommand(runCmd)
	return daemonCmd
}

func runDaemonProcess(runCtx context.Context, ctx *commandContext) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "glint.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := history.Open(cfg)
	if err != nil {
		logger.Error("open history store", logging.Error(err))
		return err
	}
	defer store.Close()

	registry := device.NewRegistry(cfg, device.NewSysfsSource(), logger)
	gate := permission.NewGate(permission.NewV4L2Source(registry), logger)

	d, err := daemon.New(daemon.Options{
		Config:        cfg,
		Logger:        logger,
		Store:         store,
		Registry:      registry,
		Gate:          gate,
		EngineFactory: zbar.Factory(logger),
		Classifier:    classify.Nop(),
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(runCtx); err != nil {
		return err
	}

	<-runCtx.Done()
	logger.Info("glint daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
