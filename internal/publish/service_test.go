package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Amir-4m/music-crawler/internal/events"
	eventsmemory "github.com/Amir-4m/music-crawler/internal/events/memory"
	"github.com/Amir-4m/music-crawler/internal/music"
	"github.com/Amir-4m/music-crawler/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// fakeCMS marks records published the way the WordPress publisher does.
type fakeCMS struct {
	store  *memory.CatalogStore
	fail   map[int64]error
	calls  int
	nextID int64
}

func (f *fakeCMS) PublishTrack(ctx context.Context, t music.Track) (int64, error) {
	f.calls++
	if err := f.fail[t.ID]; err != nil {
		return 0, err
	}
	f.nextID++
	return f.nextID, f.store.MarkTrackPublished(ctx, t.ID, f.nextID)
}

func (f *fakeCMS) PublishAlbum(ctx context.Context, a music.Album) (int64, error) {
	f.calls++
	if err := f.fail[a.ID]; err != nil {
		return 0, err
	}
	f.nextID++
	return f.nextID, f.store.MarkAlbumPublished(ctx, a.ID, f.nextID)
}

type fixture struct {
	store  *memory.CatalogStore
	cms    *fakeCMS
	events *eventsmemory.Publisher
	svc    *Service
	artist music.Artist
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewCatalogStore()
	cms := &fakeCMS{store: store, fail: map[int64]error{}, nextID: 9000}
	ev := eventsmemory.New(0)
	svc := New(store, cms, ev, fixedClock{now: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}, zap.NewNop())
	artist, err := store.CreateArtist(context.Background(), music.Artist{NameEN: "Googoosh", CorrectNames: []string{"Googoosh"}})
	require.NoError(t, err)
	return &fixture{store: store, cms: cms, events: ev, svc: svc, artist: artist}
}

func (f *fixture) track(t *testing.T, siteID string, status music.Status, postType music.PostType, albumID *int64) music.Track {
	t.Helper()
	track, _, err := f.store.GetOrCreateTrack(context.Background(), music.Track{
		SiteID:   siteID,
		Site:     music.SiteNicMusic,
		Title:    siteID,
		ArtistID: f.artist.ID,
		Status:   status,
		PostType: postType,
		AlbumID:  albumID,
	})
	require.NoError(t, err)
	return track
}

func TestTrackPublishesOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	track := f.track(t, "nicmusic-1", music.StatusEditable, music.PostTypeSingle, nil)
	ctx := context.Background()

	res, err := f.svc.Track(ctx, track.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9001), res.WPPostID)

	stored, err := f.store.GetTrack(ctx, track.ID)
	require.NoError(t, err)
	assert.Equal(t, music.StatusApproved, stored.Status)

	_, err = f.svc.Track(ctx, track.ID)
	require.ErrorIs(t, err, ErrAlreadyPublished)
	assert.Equal(t, 1, f.cms.calls)

	published := f.events.Published()
	require.Len(t, published, 1)
	assert.Equal(t, events.Published{
		Kind:        KindTrack,
		ID:          track.ID,
		Site:        "nicmusic",
		SiteID:      "nicmusic-1",
		Title:       "nicmusic-1",
		WPPostID:    9001,
		PublishedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}, published[0])
}

func TestTrackRefusesApprovedWithoutPostID(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	track := f.track(t, "nicmusic-2", music.StatusApproved, music.PostTypeSingle, nil)
	_, err := f.svc.Track(context.Background(), track.ID)
	require.ErrorIs(t, err, ErrAlreadyPublished)
	assert.Zero(t, f.cms.calls)
}

func TestTrackFailureLeavesStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	track := f.track(t, "nicmusic-3", music.StatusEditable, music.PostTypeSingle, nil)
	f.cms.fail[track.ID] = errors.New("cms down")

	res, err := f.svc.Track(context.Background(), track.ID)
	require.Error(t, err)
	assert.Equal(t, "cms down", res.Error)
	stored, err := f.store.GetTrack(context.Background(), track.ID)
	require.NoError(t, err)
	assert.Equal(t, music.StatusEditable, stored.Status)
	assert.Empty(t, f.events.Messages())
}

func TestMissingRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.Album(context.Background(), 404)
	require.ErrorIs(t, err, music.ErrNotFound)
}

func TestPendingReportsPerRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	album, _, err := f.store.GetOrCreateAlbum(ctx, music.Album{
		SiteID:   "nicmusic-50",
		Site:     music.SiteNicMusic,
		ArtistID: f.artist.ID,
		Status:   music.StatusEditable,
	})
	require.NoError(t, err)
	f.track(t, "nicmusic-50-1", music.StatusEditable, music.PostTypeAlbumTrack, &album.ID)
	ok := f.track(t, "nicmusic-51", music.StatusEditable, music.PostTypeSingle, nil)
	bad := f.track(t, "nicmusic-52", music.StatusEditable, music.PostTypeSingle, nil)
	f.track(t, "nicmusic-53", music.StatusVoid, music.PostTypeSingle, nil)
	f.cms.fail[bad.ID] = errors.New("rest_invalid_param")

	batch, err := f.svc.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Published)
	assert.Equal(t, 1, batch.Failed)
	require.Len(t, batch.Results, 3)
	assert.Equal(t, Result{Kind: KindAlbum, ID: album.ID, WPPostID: 9001}, batch.Results[0])
	assert.Equal(t, ok.ID, batch.Results[1].ID)
	assert.Equal(t, "rest_invalid_param", batch.Results[2].Error)
	assert.Len(t, f.events.Published(), 2)
}

func TestPendingStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.track(t, "nicmusic-60", music.StatusEditable, music.PostTypeSingle, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Pending(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.cms.calls)
}
