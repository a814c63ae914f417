package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const historyTextWidth = 48

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Scan history",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent scans, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(resp.Scans) == 0 {
				fmt.Fprintln(out, "No scans recorded")
				return nil
			}
			rows := make([][]string, 0, len(resp.Scans))
			for _, scan := range resp.Scans {
				rows = append(rows, []string{
					fmt.Sprintf("%d", scan.ID),
					scan.Text,
					scan.Format,
					scan.Category,
					scan.CreatedAt.Local().Format(time.RFC3339),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]column{
					{header: "ID", rightAlign: true},
					{header: "Text", maxWidth: historyTextWidth},
					{header: "Format"},
					{header: "Category"},
					{header: "Scanned"},
				},
				rows,
			))
			return nil
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of scans to show")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().ClearHistory(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d scans\n", resp.Removed)
			return nil
		},
	}

	historyCmd.AddCommand(listCmd)
	historyCmd.AddCommand(clearCmd)
	return historyCmd
}
