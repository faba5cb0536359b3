// Package cmd defines the music-crawler CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Amir-4m/music-crawler/internal/config"
	"github.com/Amir-4m/music-crawler/internal/curate"
	"github.com/Amir-4m/music-crawler/internal/jobs"
	"github.com/Amir-4m/music-crawler/internal/lock"
	"github.com/Amir-4m/music-crawler/internal/logging"
	"github.com/Amir-4m/music-crawler/internal/publish"
	"github.com/Amir-4m/music-crawler/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the service surface the commands use. Tests inject a fake.
type App interface {
	Run(ctx context.Context) error
	RunJob(ctx context.Context, name jobs.Name) (lock.Outcome, error)
	Status() ([]server.JobStatus, error)
	PublishTrack(ctx context.Context, id int64) (publish.Result, error)
	PublishAlbum(ctx context.Context, id int64) (publish.Result, error)
	PublishPending(ctx context.Context, limit int) (publish.Batch, error)
	SetStatus(ctx context.Context, kind string, id int64, status string) (curate.Change, error)
	Migrate(ctx context.Context) error
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.Build(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return server.Build(ctx, cfg, logger)
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "music-crawler",
		Short: "Crawls Persian music sites into a catalog and publishes it to WordPress.",
		Long: `music-crawler scrapes NicMusic and Ganja2Music, normalizes and
deduplicates their posts into a canonical catalog of artists, albums and
tracks, downloads the media and publishes approved records to WordPress.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				return appInstance.Close(cmd.Context())
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); MUSICCRAWLER_* variables override it")

	cmd.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newStatusCmd(),
		newPublishCmd(),
		newMigrateCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
