package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Amir-4m/music-crawler/internal/music"
	"github.com/Amir-4m/music-crawler/internal/storage/memory"
)

func newResolver(t *testing.T) (*Resolver, *memory.CatalogStore) {
	t.Helper()
	store := memory.NewCatalogStore()
	return New(store, zap.NewNop()), store
}

func TestResolveArtistIsStable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, _ := newResolver(t)

	first, err := r.ResolveArtist(ctx, "Reza Bahram", "رضا بهرام")
	require.NoError(t, err)
	second, err := r.ResolveArtist(ctx, "Reza Bahram", "رضا بهرام")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.ElementsMatch(t, []string{"Reza Bahram", "رضا بهرام"}, second.CorrectNames)
}

func TestResolveArtistMatchesAliasesAndCreatesStrangers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, store := newResolver(t)

	azar, err := store.CreateArtist(ctx, music.Artist{NameEN: "Ali Azar", CorrectNames: []string{"Ali Azar", "A. Azar"}})
	require.NoError(t, err)

	got, err := r.ResolveArtist(ctx, "Ali Azar", "")
	require.NoError(t, err)
	assert.Equal(t, azar.ID, got.ID)

	sara, err := r.ResolveArtist(ctx, "Sara Jahan", "")
	require.NoError(t, err)
	assert.NotEqual(t, azar.ID, sara.ID)
	assert.Equal(t, "Sara Jahan", sara.NameEN)
}

func TestResolveArtistDoesNotMatchInsideWords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, store := newResolver(t)

	alireza, err := store.CreateArtist(ctx, music.Artist{NameEN: "Alireza Talischi", CorrectNames: []string{"Alireza Talischi"}})
	require.NoError(t, err)

	ali, err := r.ResolveArtist(ctx, "Ali", "")
	require.NoError(t, err)
	assert.NotEqual(t, alireza.ID, ali.ID)
}

func TestResolveArtistWordMatchMergesAlias(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, store := newResolver(t)

	band, err := store.CreateArtist(ctx, music.Artist{NameEN: "Macan Band", CorrectNames: []string{"Macan Band"}})
	require.NoError(t, err)

	got, err := r.ResolveArtist(ctx, "Macan", "ماکان بند")
	require.NoError(t, err)
	assert.Equal(t, band.ID, got.ID)

	stored, err := store.GetArtist(ctx, band.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Macan Band", "Macan", "ماکان بند"}, stored.CorrectNames)
}

func TestResolveArtistPrefersBothSignals(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, store := newResolver(t)

	wordOnly, err := store.CreateArtist(ctx, music.Artist{CorrectNames: []string{"Mohsen Yeganeh Band"}})
	require.NoError(t, err)
	exact, err := store.CreateArtist(ctx, music.Artist{CorrectNames: []string{"Mohsen Yeganeh"}})
	require.NoError(t, err)
	require.Less(t, wordOnly.ID, exact.ID)

	got, err := r.ResolveArtist(ctx, "Mohsen Yeganeh", "")
	require.NoError(t, err)
	assert.Equal(t, exact.ID, got.ID)
}

func TestPickFallbackOrder(t *testing.T) {
	t.Parallel()

	a := music.Artist{ID: 5}
	b := music.Artist{ID: 2}
	c := music.Artist{ID: 9}

	got, ok := pick([]music.Artist{a, c}, []music.Artist{b, c})
	require.True(t, ok)
	assert.Equal(t, int64(9), got.ID, "intersection wins over lower ids")

	got, ok = pick([]music.Artist{a}, []music.Artist{b})
	require.True(t, ok)
	assert.Equal(t, int64(5), got.ID, "alias match wins when there is no intersection")

	got, ok = pick(nil, []music.Artist{c, b})
	require.True(t, ok)
	assert.Equal(t, int64(2), got.ID)

	_, ok = pick(nil, nil)
	assert.False(t, ok)
}

func TestResolveArtistRequiresName(t *testing.T) {
	t.Parallel()
	r, _ := newResolver(t)
	_, err := r.ResolveArtist(context.Background(), " ", "")
	require.ErrorIs(t, err, ErrNoArtistName)
}

func TestIngestSingleIsFirstWriteWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, store := newResolver(t)

	rec := music.Record{
		Site:          music.SiteNicMusic,
		SiteID:        "nicmusic-1201",
		PageURL:       "https://nicmusic.net/1201/",
		Title:         "دانلود آهنگ رضا بهرام به نام نگران",
		SongNameEN:    "Negaran",
		SongNameFA:    "نگران",
		ArtistNameEN:  "Reza Bahram",
		ArtistNameFA:  "رضا بهرام",
		Lyrics:        "نگران توام",
		PostType:      music.PostTypeSingle,
		Links:         music.MediaLinks{MP3128: "https://dl.nicmusic.net/nicmusic/024/093/a-128.mp3"},
		PublishedDate: time.Date(2021, 6, 5, 0, 0, 0, 0, time.UTC),
	}
	res, err := r.Ingest(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	require.Len(t, res.TrackIDs, 1)

	rec.SongNameEN = "Changed"
	rec.Lyrics = ""
	again, err := r.Ingest(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 1, again.AlreadyStored)
	assert.Equal(t, res.TrackIDs, again.TrackIDs)
	assert.Equal(t, res.ArtistID, again.ArtistID)

	track, err := store.GetTrack(ctx, res.TrackIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "Negaran", track.SongNameEN)
	assert.Equal(t, "نگران توام", track.Lyrics)
	assert.Equal(t, music.StatusVoid, track.Status)
	assert.Nil(t, track.AlbumID)
}

func TestIngestAlbumStoresTracks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, store := newResolver(t)

	rec := music.Record{
		Site:         music.SiteGanja2Music,
		SiteID:       "ganja2music-9000",
		PageURL:      "https://ganja2music.com/Archive/Album/x/",
		Title:        "دانلود آلبوم محسن یگانه",
		SongNameEN:   "Nadidanet",
		ArtistNameFA: "محسن یگانه",
		PostType:     music.PostTypeAlbumTrack,
		Tracks: []music.RecordTrack{
			{SiteID: "ganja2music-9000-1", SongNameEN: "Behet Ghol Midam"},
			{SiteID: "ganja2music-9000-2", SongNameFA: "ندیدنت"},
		},
	}
	res, err := r.Ingest(ctx, rec)
	require.NoError(t, err)
	require.NotNil(t, res.AlbumID)
	assert.Equal(t, 3, res.Created)

	album, err := store.GetAlbum(ctx, *res.AlbumID)
	require.NoError(t, err)
	assert.Equal(t, "Nadidanet", album.NameEN)

	tracks, err := store.ListAlbumTracks(ctx, album.ID)
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	for _, tr := range tracks {
		assert.Equal(t, music.PostTypeAlbumTrack, tr.PostType)
		assert.Equal(t, album.ArtistID, tr.ArtistID)
	}

	again, err := r.Ingest(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 3, again.AlreadyStored)
}

func TestIngestRejectsRecordsWithoutIdentity(t *testing.T) {
	t.Parallel()
	r, _ := newResolver(t)

	_, err := r.Ingest(context.Background(), music.Record{SongNameEN: "x", ArtistNameEN: "y"})
	require.Error(t, err)

	_, err = r.Ingest(context.Background(), music.Record{SiteID: "nicmusic-1"})
	require.ErrorIs(t, err, ErrNoArtistName)
}
