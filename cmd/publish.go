package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Amir-4m/music-crawler/internal/publish"
)

func newPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish catalog records to WordPress",
	}
	cmd.AddCommand(
		newPublishOneCmd("track", func(app App) func(context.Context, int64) (publish.Result, error) {
			return app.PublishTrack
		}),
		newPublishOneCmd("album", func(app App) func(context.Context, int64) (publish.Result, error) {
			return app.PublishAlbum
		}),
		newPublishPendingCmd(),
	)
	return cmd
}

func newPublishOneCmd(kind string, pick func(App) func(context.Context, int64) (publish.Result, error)) *cobra.Command {
	return &cobra.Command{
		Use:   kind + " <id>",
		Short: "Publish one " + kind,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid %s id %q", kind, args[0])
			}
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res, err := pick(app)(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("publish %s %d: %w", kind, id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d published as post %d\n", kind, id, res.WPPostID)
			return nil
		},
	}
}

func newPublishPendingCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Publish editable albums and singles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be > 0")
			}
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			batch, err := app.PublishPending(cmd.Context(), limit)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(batch); encErr != nil {
				return encErr
			}
			if err != nil {
				return err
			}
			if batch.Failed > 0 {
				return fmt.Errorf("%d of %d records failed", batch.Failed, batch.Failed+batch.Published)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records per kind")
	return cmd
}
