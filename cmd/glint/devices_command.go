package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "Capture device management",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List attached capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().Devices(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(resp.Devices) == 0 {
				fmt.Fprintln(out, "No capture devices attached")
				return nil
			}
			rows := make([][]string, 0, len(resp.Devices))
			for _, dev := range resp.Devices {
				rows = append(rows, []string{
					dev.ID, dev.Label, dev.Facing, yesNo(dev.Selected),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]column{
					{header: "Device"},
					{header: "Label"},
					{header: "Facing"},
					{header: "Selected"},
				},
				rows,
			))
			return nil
		},
	}

	toggleCmd := &cobra.Command{
		Use:   "toggle",
		Short: "Flip the preferred camera facing",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().ToggleCamera(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Camera preference now %s (%s)\n", resp.DeviceID, resp.Facing)
			return nil
		},
	}

	devicesCmd.AddCommand(listCmd)
	devicesCmd.AddCommand(toggleCmd)
	return devicesCmd
}
