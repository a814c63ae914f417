package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"glint/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.client().Status(cmd.Context())
			if err != nil {
				return err
			}
			renderStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

func renderStatus(out io.Writer, status *ipc.StatusResponse) {
	colorize := shouldColorize(out)
	var lines []string

	lines = append(lines, renderSectionHeader("Daemon", colorize)...)
	runKind := statusOK
	if !status.Running {
		runKind = statusError
	}
	lines = append(lines,
		renderStatusLine("Running", runKind, fmt.Sprintf("pid %d", status.PID), colorize),
		renderStatusLine("Devices", deviceCountKind(status.DeviceCount), fmt.Sprintf("%d attached", status.DeviceCount), colorize),
		renderStatusLine("Permission", permissionKind(status.Permission), status.Permission, colorize),
		renderStatusLine("History DB", statusInfo, status.HistoryDBPath, colorize),
	)
	for _, dep := range status.Dependencies {
		kind := statusOK
		message := "available"
		if !dep.Available {
			kind = statusError
			message = dep.Detail
			if message == "" {
				message = "missing"
			}
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, message, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Session", colorize)...)
	lines = append(lines, renderStatusLine("State", sessionKind(status.Session), status.Session.Status, colorize))
	if status.Session.SessionID != "" {
		lines = append(lines, renderStatusLine("Session ID", statusInfo, status.Session.SessionID, colorize))
	}
	if status.Session.DeviceID != "" {
		device := status.Session.DeviceID
		if status.Session.Facing != "" {
			device += " (" + status.Session.Facing + ")"
		}
		lines = append(lines, renderStatusLine("Device", statusInfo, device, colorize))
	}
	if result := status.Session.Result; result != nil {
		when := time.UnixMilli(result.TimestampMillis).Local().Format(time.RFC3339)
		lines = append(lines,
			renderStatusLine("Last scan", statusOK, fmt.Sprintf("%s (%s, %s)", result.Text, result.Format, when), colorize),
		)
	}
	if sessErr := status.Session.Error; sessErr != nil {
		lines = append(lines,
			renderStatusLine("Error", statusError, fmt.Sprintf("%s: %s", sessErr.Kind, sessErr.Message), colorize),
		)
		if len(sessErr.Actions) > 0 {
			lines = append(lines,
				renderStatusLine("Recovery", statusWarn, strings.Join(sessErr.Actions, ", "), colorize),
			)
		}
	}

	fmt.Fprintln(out, strings.Join(lines, "\n"))
}

func deviceCountKind(count int) statusKind {
	if count == 0 {
		return statusWarn
	}
	return statusOK
}

func permissionKind(state string) statusKind {
	switch state {
	case "granted":
		return statusOK
	case "denied":
		return statusError
	default:
		return statusWarn
	}
}

func sessionKind(session ipc.SessionState) statusKind {
	switch session.Status {
	case "active", "initializing":
		return statusOK
	case "error":
		return statusError
	default:
		return statusInfo
	}
}
