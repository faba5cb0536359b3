package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amir-4m/music-crawler/internal/music"
)

var (
	artistCols = []string{"id", "name_en", "name_fa", "correct_names", "is_approved", "wp_id", "bio", "thumbnail", "created_at", "updated_at"}
	trackCols  = []string{
		"id", "site_id", "site", "title", "song_name_en", "song_name_fa", "lyrics", "post_type", "album_id", "artist_id", "page_url",
		"link_128", "link_320", "link_thumbnail", "file_128", "file_320", "file_thumbnail",
		"published_date", "status", "wp_post_id", "is_downloaded", "created_at", "updated_at",
	}
	albumCols = []string{
		"id", "site_id", "site", "title", "name_en", "name_fa", "artist_id", "page_url",
		"link_128", "link_320", "link_thumbnail", "file_128", "file_320", "file_thumbnail",
		"published_date", "status", "wp_post_id", "is_downloaded", "created_at", "updated_at",
	}
)

func newMockStore(t *testing.T) (*CatalogStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func trackRow(id int64, siteID, songEN string, status music.Status, now time.Time) *pgxmock.Rows {
	return pgxmock.NewRows(trackCols).AddRow(
		id, siteID, music.SiteNicMusic, "title", songEN, "", "", music.PostTypeSingle, nil, int64(7), "https://nicmusic.net/x",
		"https://cdn/128.mp3", "", "https://cdn/cover.jpg", "", "", "",
		now, status, nil, false, now, now,
	)
}

func TestNewWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil)
	require.Error(t, err)
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.EqualError(t, err, "db.dsn is required")
}

func TestMigrateAppliesSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS artists").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrCreateTrackInsertsNewRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	track := music.Track{
		SiteID:        "nicmusic-101",
		Site:          music.SiteNicMusic,
		Title:         "title",
		SongNameEN:    "Gol",
		ArtistID:      7,
		PageURL:       "https://nicmusic.net/x",
		Links:         music.MediaLinks{MP3128: "https://cdn/128.mp3", Thumbnail: "https://cdn/cover.jpg"},
		PublishedDate: now,
	}

	mock.ExpectQuery("INSERT INTO tracks").
		WithArgs(
			"nicmusic-101", music.SiteNicMusic, "title", "Gol", "", "", music.PostTypeSingle, (*int64)(nil),
			int64(7), "https://nicmusic.net/x", "https://cdn/128.mp3", "", "https://cdn/cover.jpg", "", "", "",
			now, music.StatusVoid, false,
		).
		WillReturnRows(trackRow(1, "nicmusic-101", "Gol", music.StatusVoid, now))

	got, created, err := store.GetOrCreateTrack(context.Background(), track)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, "Gol", got.SongNameEN)
	assert.Nil(t, got.WPPostID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrCreateTrackKeepsFirstWrite(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("INSERT INTO tracks").
		WithArgs(anyArgs(19)...).
		WillReturnRows(pgxmock.NewRows(trackCols))
	mock.ExpectQuery("SELECT .* FROM tracks WHERE site_id = \\$1").
		WithArgs("nicmusic-101").
		WillReturnRows(trackRow(1, "nicmusic-101", "First", music.StatusEditable, now))

	got, created, err := store.GetOrCreateTrack(context.Background(), music.Track{
		SiteID:     "nicmusic-101",
		Site:       music.SiteNicMusic,
		SongNameEN: "Second",
		ArtistID:   7,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "First", got.SongNameEN)
	assert.Equal(t, music.StatusEditable, got.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrCreateTrackRequiresSiteID(t *testing.T) {
	t.Parallel()

	store, _ := newMockStore(t)
	_, _, err := store.GetOrCreateTrack(context.Background(), music.Track{})
	require.Error(t, err)
}

func TestGetOrCreateAlbumInsertsNewRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("INSERT INTO albums").
		WithArgs(anyArgs(16)...).
		WillReturnRows(pgxmock.NewRows(albumCols).AddRow(
			int64(3), "ganja2music-55", music.SiteGanja2Music, "Album", "Album", "آلبوم", int64(7), "https://ganja2music.com/a",
			"", "", "", "", "", "",
			now, music.StatusVoid, nil, false, now, now,
		))

	got, created, err := store.GetOrCreateAlbum(context.Background(), music.Album{
		SiteID:   "ganja2music-55",
		Site:     music.SiteGanja2Music,
		ArtistID: 7,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(3), got.ID)
	assert.Equal(t, "آلبوم", got.NameFA)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindArtistsByAlias(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("correct_names && \\$1::text\\[\\]").
		WithArgs([]string{"Ali Azar", "علی آذر"}).
		WillReturnRows(pgxmock.NewRows(artistCols).AddRow(
			int64(7), "Ali Azar", "علی آذر", []string{"Ali Azar", "A. Azar"}, false, nil, "", "", now, now,
		))

	got, err := store.FindArtistsByAlias(context.Background(), []string{" Ali Azar ", "علی آذر", "Ali Azar", ""})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].ID)
	assert.Equal(t, []string{"Ali Azar", "A. Azar"}, got[0].CorrectNames)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindArtistsSkipsQueryWithoutNames(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	got, err := store.FindArtistsByAlias(context.Background(), []string{" "})
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = store.FindArtistsByWord(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindArtistsByWordUsesPattern(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("alias ~ \\$1").
		WithArgs(`(^|[^[:alnum:]_])(A\. Azar)($|[^[:alnum:]_])`).
		WillReturnRows(pgxmock.NewRows(artistCols))

	got, err := store.FindArtistsByWord(context.Background(), []string{"A. Azar"})
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWordPatternMatchesWholeWords(t *testing.T) {
	t.Parallel()

	// Go's RE2 accepts the POSIX class syntax used by Postgres.
	re := regexp.MustCompile(wordPattern([]string{"Ali"}))
	assert.True(t, re.MatchString("Ali"))
	assert.True(t, re.MatchString("Ali Azar"))
	assert.True(t, re.MatchString("Singer Ali"))
	assert.False(t, re.MatchString("Alireza"))
	assert.False(t, re.MatchString("ali"))
}

func TestAddArtistAliasesMissingArtist(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE artists").
		WithArgs(int64(99), []string{"Sara"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.AddArtistAliases(context.Background(), 99, []string{"Sara"})
	require.ErrorIs(t, err, music.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkTrackPublished(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE tracks SET status").
		WithArgs(int64(1), music.StatusApproved, int64(501)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.MarkTrackPublished(context.Background(), 1, 501))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkTrackPublishedTwiceIsRejected(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("UPDATE tracks SET status").
		WithArgs(int64(1), music.StatusApproved, int64(502)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT .* FROM tracks WHERE id = \\$1").
		WithArgs(int64(1)).
		WillReturnRows(trackRow(1, "nicmusic-101", "Gol", music.StatusApproved, now))

	err := store.MarkTrackPublished(context.Background(), 1, 502)
	require.ErrorIs(t, err, music.ErrAlreadyPublished)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTrackNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .* FROM tracks WHERE id = \\$1").
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows(trackCols))

	_, err := store.GetTrack(context.Background(), 42)
	require.ErrorIs(t, err, music.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExistingSiteIDs(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	ids := []string{"nicmusic-1", "nicmusic-2", "nicmusic-3"}
	mock.ExpectQuery("SELECT site_id FROM tracks").
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows([]string{"site_id"}).AddRow("nicmusic-1").AddRow("nicmusic-3"))

	got, err := store.ExistingSiteIDs(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "nicmusic-1")
	assert.Contains(t, got, "nicmusic-3")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOrphanArtists(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM artists").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := store.DeleteOrphanArtists(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetTrackStatus(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE tracks SET status").
		WithArgs(int64(5), music.StatusEditable).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE albums SET status").
		WithArgs(int64(6), music.StatusJunk).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.SetTrackStatus(context.Background(), 5, music.StatusEditable))
	require.ErrorIs(t, store.SetAlbumStatus(context.Background(), 6, music.StatusJunk), music.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
