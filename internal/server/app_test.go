package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Amir-4m/music-crawler/internal/config"
	"github.com/Amir-4m/music-crawler/internal/curate"
	"github.com/Amir-4m/music-crawler/internal/jobs"
	"github.com/Amir-4m/music-crawler/internal/lock"
	"github.com/Amir-4m/music-crawler/internal/music"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Server:   config.ServerConfig{Port: 8080},
		Crawler:  config.CrawlerConfig{TimeoutSeconds: 5, DuplicateThreshold: 30},
		DB:       config.DBConfig{Driver: "memory"},
		Storage:  config.StorageConfig{Backend: "local", MediaRoot: filepath.Join(dir, "media")},
		Locks:    config.LocksConfig{Dir: filepath.Join(dir, "locks")},
		Queue:    config.QueueConfig{Depth: 4, Workers: 1},
		Schedule: map[string]string{"collect_musics_nic": "0 */6 * * *", "collect_files_ganja": ""},
		Events:   config.EventsConfig{Backend: "memory"},
	}
}

func TestBuildWiresJobsAndSchedule(t *testing.T) {
	t.Parallel()

	app, err := Build(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	assert.ElementsMatch(t, jobs.Names, app.Jobs().Registered())
	entries := app.Schedule().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, jobs.CollectMusicsNic, entries[0].Job)
	assert.Nil(t, app.Publisher())
	require.NoError(t, app.Migrate(context.Background()))
}

func TestRunJobOnEmptyCatalog(t *testing.T) {
	t.Parallel()

	app, err := Build(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	outcome, err := app.RunJob(context.Background(), jobs.CleanupCatalog)
	require.NoError(t, err)
	assert.Equal(t, lock.Ran, outcome)

	outcome, err = app.RunJob(context.Background(), jobs.CollectFilesNic)
	require.NoError(t, err)
	assert.Equal(t, lock.Ran, outcome)
}

func TestBuildWithWordPressEnablesPublishRoutes(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.WordPress = config.WordPressConfig{BaseURL: "https://cms.example", Username: "bot", Password: "pw"}
	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	require.NotNil(t, app.Publisher())

	rec := httptest.NewRecorder()
	app.apiServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/tracks/1/publish", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "record not found")
}

func TestBuildFailsOnBadLockDir(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Locks.Dir = ""
	_, err := Build(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestStatusAndDisabledPublishing(t *testing.T) {
	t.Parallel()

	app, err := Build(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	rows, err := app.Status()
	require.NoError(t, err)
	require.Len(t, rows, len(jobs.Names))
	for _, row := range rows {
		assert.False(t, row.Running)
		if row.Name == jobs.CollectMusicsNic {
			assert.Equal(t, "0 */6 * * *", row.Schedule)
		}
	}

	_, err = app.PublishTrack(context.Background(), 1)
	require.ErrorIs(t, err, ErrPublishingDisabled)
	_, err = app.PublishPending(context.Background(), 10)
	require.ErrorIs(t, err, ErrPublishingDisabled)
}

func TestSetStatusMakesTrackEditable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app, err := Build(ctx, testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(ctx) })

	artist, err := app.catalog.CreateArtist(ctx, music.Artist{NameEN: "Ebi", CorrectNames: []string{"Ebi"}})
	require.NoError(t, err)
	track, _, err := app.catalog.GetOrCreateTrack(ctx, music.Track{SiteID: "nicmusic-1", ArtistID: artist.ID})
	require.NoError(t, err)

	change, err := app.SetStatus(ctx, "track", track.ID, "editable")
	require.NoError(t, err)
	assert.Equal(t, music.StatusEditable, change.To)

	editable, err := app.catalog.ListTracksByStatus(ctx, music.StatusEditable, 10)
	require.NoError(t, err)
	require.Len(t, editable, 1)

	_, err = app.SetStatus(ctx, "track", track.ID, "published")
	require.ErrorIs(t, err, curate.ErrInvalidStatus)
	_, err = app.SetStatus(ctx, "artist", track.ID, "junk")
	require.Error(t, err)
}
