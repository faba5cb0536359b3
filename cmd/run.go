package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Amir-4m/music-crawler/internal/jobs"
)

func jobNames() []string {
	out := make([]string, 0, len(jobs.Names))
	for _, n := range jobs.Names {
		out = append(out, string(n))
	}
	return out
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "run <job>",
		Short:     "Run one job now, in this process",
		Long:      "Runs a job synchronously under its single-flight lock. A crawl job runs its download job afterwards.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := jobs.Parse(args[0])
			if err != nil {
				return err
			}
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			outcome, err := app.RunJob(ctx, name)
			if err != nil {
				return fmt.Errorf("run %s: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, outcome)
			return nil
		},
	}
}
