package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"glint/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lineCount int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon log output",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := logs.File(cfg)
			out := cmd.OutOrStdout()

			result, err := logs.Tail(cmd.Context(), path, logs.Options{
				Offset: -1,
				Limit:  lineCount,
			})
			if err != nil {
				return err
			}
			for _, line := range result.Lines {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}

			offset := result.Offset
			for {
				result, err = logs.Tail(cmd.Context(), path, logs.Options{
					Offset: offset,
					Follow: true,
					Wait:   time.Second,
				})
				if err != nil {
					if cmd.Context().Err() != nil {
						return context.Canceled
					}
					return err
				}
				for _, line := range result.Lines {
					fmt.Fprintln(out, line)
				}
				offset = result.Offset
			}
		},
	}

	cmd.Flags().IntVarP(&lineCount, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new log lines")
	return cmd
}
