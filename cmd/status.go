package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which jobs are running and their schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := app.Status()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "JOB\tRUNNING\tSCHEDULE")
			for _, r := range rows {
				schedule := r.Schedule
				if schedule == "" {
					schedule = "-"
				}
				fmt.Fprintf(tw, "%s\t%t\t%s\n", r.Name, r.Running, schedule)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.AddCommand(newStatusSetCmd())
	return cmd
}

func newStatusSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <track|album> <id> <void|junk|editable|approved>",
		Short: "Change the lifecycle status of a track or album",
		Long: `Marks a crawled record for publishing (editable), drops it (junk),
returns it to review (void) or treats it as handled (approved). Records
already posted to WordPress cannot be changed.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid %s id %q", args[0], args[1])
			}
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			change, err := app.SetStatus(cmd.Context(), args[0], id, args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d: %s -> %s\n", change.Kind, change.ID, change.From, change.To)
			return nil
		},
	}
}
