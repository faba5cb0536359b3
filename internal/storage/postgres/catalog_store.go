// Package postgres provides the Postgres-backed canonical catalog store.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Amir-4m/music-crawler/internal/music"
)

//go:embed schema.sql
var schemaSQL string

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// CatalogStore implements music.CatalogStore on Postgres.
type CatalogStore struct {
	pool pool
}

var _ music.CatalogStore = (*CatalogStore)(nil)

// New creates a pooled CatalogStore using the provided config.
func New(ctx context.Context, cfg Config) (*CatalogStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &CatalogStore{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*CatalogStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CatalogStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *CatalogStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *CatalogStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const artistColumns = `id, name_en, name_fa, correct_names, is_approved, wp_id, bio, thumbnail, created_at, updated_at`

const albumColumns = `id, site_id, site, title, name_en, name_fa, artist_id, page_url,
	link_128, link_320, link_thumbnail, file_128, file_320, file_thumbnail,
	published_date, status, wp_post_id, is_downloaded, created_at, updated_at`

const trackColumns = `id, site_id, site, title, song_name_en, song_name_fa, lyrics, post_type, album_id, artist_id, page_url,
	link_128, link_320, link_thumbnail, file_128, file_320, file_thumbnail,
	published_date, status, wp_post_id, is_downloaded, created_at, updated_at`

func scanArtist(row pgx.Row) (music.Artist, error) {
	var a music.Artist
	err := row.Scan(
		&a.ID,
		&a.NameEN,
		&a.NameFA,
		&a.CorrectNames,
		&a.IsApproved,
		&a.WPID,
		&a.Bio,
		&a.Thumbnail,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func scanAlbum(row pgx.Row) (music.Album, error) {
	var a music.Album
	err := row.Scan(
		&a.ID,
		&a.SiteID,
		&a.Site,
		&a.Title,
		&a.NameEN,
		&a.NameFA,
		&a.ArtistID,
		&a.PageURL,
		&a.Links.MP3128,
		&a.Links.MP3320,
		&a.Links.Thumbnail,
		&a.Files.MP3128,
		&a.Files.MP3320,
		&a.Files.Thumbnail,
		&a.PublishedDate,
		&a.Status,
		&a.WPPostID,
		&a.IsDownloaded,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func scanTrack(row pgx.Row) (music.Track, error) {
	var t music.Track
	err := row.Scan(
		&t.ID,
		&t.SiteID,
		&t.Site,
		&t.Title,
		&t.SongNameEN,
		&t.SongNameFA,
		&t.Lyrics,
		&t.PostType,
		&t.AlbumID,
		&t.ArtistID,
		&t.PageURL,
		&t.Links.MP3128,
		&t.Links.MP3320,
		&t.Links.Thumbnail,
		&t.Files.MP3128,
		&t.Files.MP3320,
		&t.Files.Thumbnail,
		&t.PublishedDate,
		&t.Status,
		&t.WPPostID,
		&t.IsDownloaded,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return t, err
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// wordPattern builds a POSIX ARE matching any name as a whole word.
func wordPattern(names []string) string {
	quoted := make([]string, 0, len(names))
	for _, n := range names {
		quoted = append(quoted, regexp.QuoteMeta(n))
	}
	return `(^|[^[:alnum:]_])(` + strings.Join(quoted, "|") + `)($|[^[:alnum:]_])`
}

// FindArtistsByAlias returns artists whose correct names contain any of names.
func (s *CatalogStore) FindArtistsByAlias(ctx context.Context, names []string) ([]music.Artist, error) {
	names = music.UniqueNames(names...)
	if len(names) == 0 {
		return nil, nil
	}
	query := `SELECT ` + artistColumns + ` FROM artists WHERE correct_names && $1::text[] ORDER BY id`
	rows, err := s.pool.Query(ctx, query, names)
	if err != nil {
		return nil, fmt.Errorf("find artists by alias: %w", err)
	}
	return collect(rows, scanArtist)
}

// FindArtistsByWord returns artists with a correct name matching any of
// names as a whole word.
func (s *CatalogStore) FindArtistsByWord(ctx context.Context, names []string) ([]music.Artist, error) {
	names = music.UniqueNames(names...)
	if len(names) == 0 {
		return nil, nil
	}
	query := `SELECT ` + artistColumns + ` FROM artists
		WHERE EXISTS (SELECT 1 FROM unnest(correct_names) AS alias WHERE alias ~ $1)
		ORDER BY id`
	rows, err := s.pool.Query(ctx, query, wordPattern(names))
	if err != nil {
		return nil, fmt.Errorf("find artists by word: %w", err)
	}
	return collect(rows, scanArtist)
}

// CreateArtist inserts a new artist.
func (s *CatalogStore) CreateArtist(ctx context.Context, artist music.Artist) (music.Artist, error) {
	query := `INSERT INTO artists (name_en, name_fa, correct_names, is_approved, bio, thumbnail)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + artistColumns
	names := artist.CorrectNames
	if names == nil {
		names = []string{}
	}
	created, err := scanArtist(s.pool.QueryRow(ctx, query,
		artist.NameEN,
		artist.NameFA,
		names,
		artist.IsApproved,
		artist.Bio,
		artist.Thumbnail,
	))
	if err != nil {
		return music.Artist{}, fmt.Errorf("insert artist: %w", err)
	}
	return created, nil
}

// AddArtistAliases appends names missing from the artist's correct names.
func (s *CatalogStore) AddArtistAliases(ctx context.Context, artistID int64, names []string) error {
	names = music.UniqueNames(names...)
	if len(names) == 0 {
		return nil
	}
	query := `UPDATE artists
		SET correct_names = correct_names || ARRAY(
			SELECT n FROM unnest($2::text[]) AS n WHERE NOT (n = ANY(correct_names))
		), updated_at = now()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, artistID, names)
	if err != nil {
		return fmt.Errorf("add artist aliases: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return music.ErrNotFound
	}
	return nil
}

// GetArtist fetches an artist by id.
func (s *CatalogStore) GetArtist(ctx context.Context, id int64) (music.Artist, error) {
	query := `SELECT ` + artistColumns + ` FROM artists WHERE id = $1`
	a, err := scanArtist(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return music.Artist{}, music.ErrNotFound
		}
		return music.Artist{}, fmt.Errorf("get artist: %w", err)
	}
	return a, nil
}

// DeleteOrphanArtists removes unpublished artists no album or track references.
func (s *CatalogStore) DeleteOrphanArtists(ctx context.Context) (int64, error) {
	query := `DELETE FROM artists a
		WHERE a.wp_id IS NULL
		  AND NOT EXISTS (SELECT 1 FROM tracks t WHERE t.artist_id = a.id)
		  AND NOT EXISTS (SELECT 1 FROM albums al WHERE al.artist_id = a.id)`
	tag, err := s.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete orphan artists: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetOrCreateAlbum inserts album keyed by site id. An existing row is
// returned untouched, which also covers a concurrent insert by another job.
func (s *CatalogStore) GetOrCreateAlbum(ctx context.Context, album music.Album) (music.Album, bool, error) {
	if album.SiteID == "" {
		return music.Album{}, false, fmt.Errorf("album site id is required")
	}
	if album.Status == "" {
		album.Status = music.StatusVoid
	}
	query := `INSERT INTO albums (site_id, site, title, name_en, name_fa, artist_id, page_url,
			link_128, link_320, link_thumbnail, file_128, file_320, file_thumbnail,
			published_date, status, is_downloaded)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (site_id) DO NOTHING
		RETURNING ` + albumColumns
	created, err := scanAlbum(s.pool.QueryRow(ctx, query,
		album.SiteID,
		album.Site,
		album.Title,
		album.NameEN,
		album.NameFA,
		album.ArtistID,
		album.PageURL,
		album.Links.MP3128,
		album.Links.MP3320,
		album.Links.Thumbnail,
		album.Files.MP3128,
		album.Files.MP3320,
		album.Files.Thumbnail,
		album.PublishedDate,
		album.Status,
		album.IsDownloaded,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return music.Album{}, false, fmt.Errorf("insert album: %w", err)
	}
	existing, err := scanAlbum(s.pool.QueryRow(ctx, `SELECT `+albumColumns+` FROM albums WHERE site_id = $1`, album.SiteID))
	if err != nil {
		return music.Album{}, false, fmt.Errorf("select album %s: %w", album.SiteID, err)
	}
	return existing, false, nil
}

// GetAlbum fetches an album by id.
func (s *CatalogStore) GetAlbum(ctx context.Context, id int64) (music.Album, error) {
	a, err := scanAlbum(s.pool.QueryRow(ctx, `SELECT `+albumColumns+` FROM albums WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return music.Album{}, music.ErrNotFound
		}
		return music.Album{}, fmt.Errorf("get album: %w", err)
	}
	return a, nil
}

// ListAlbumsPendingDownload returns albums of site still missing media files.
func (s *CatalogStore) ListAlbumsPendingDownload(ctx context.Context, site music.Site, limit int) ([]music.Album, error) {
	query := `SELECT ` + albumColumns + ` FROM albums WHERE site = $1 AND NOT is_downloaded ORDER BY id LIMIT $2`
	rows, err := s.pool.Query(ctx, query, site, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending albums: %w", err)
	}
	return collect(rows, scanAlbum)
}

// ListAlbumsByStatus returns albums in the given lifecycle status.
func (s *CatalogStore) ListAlbumsByStatus(ctx context.Context, status music.Status, limit int) ([]music.Album, error) {
	query := `SELECT ` + albumColumns + ` FROM albums WHERE status = $1 ORDER BY id LIMIT $2`
	rows, err := s.pool.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list albums by status: %w", err)
	}
	return collect(rows, scanAlbum)
}

// UpdateAlbumFiles stores downloaded media paths.
func (s *CatalogStore) UpdateAlbumFiles(ctx context.Context, id int64, files music.MediaFiles, downloaded bool) error {
	query := `UPDATE albums
		SET file_128 = $2, file_320 = $3, file_thumbnail = $4, is_downloaded = $5, updated_at = now()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, files.MP3128, files.MP3320, files.Thumbnail, downloaded)
	if err != nil {
		return fmt.Errorf("update album files: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return music.ErrNotFound
	}
	return nil
}

// MarkAlbumPublished records the CMS post id and approves the album.
func (s *CatalogStore) MarkAlbumPublished(ctx context.Context, id int64, wpPostID int64) error {
	query := `UPDATE albums SET status = $2, wp_post_id = $3, updated_at = now()
		WHERE id = $1 AND wp_post_id IS NULL`
	tag, err := s.pool.Exec(ctx, query, id, music.StatusApproved, wpPostID)
	if err != nil {
		return fmt.Errorf("mark album published: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetAlbum(ctx, id); err != nil {
			return err
		}
		return music.ErrAlreadyPublished
	}
	return nil
}

// DeleteEmptyAlbums removes albums that ended up with no tracks.
func (s *CatalogStore) DeleteEmptyAlbums(ctx context.Context) (int64, error) {
	query := `DELETE FROM albums al
		WHERE al.wp_post_id IS NULL
		  AND NOT EXISTS (SELECT 1 FROM tracks t WHERE t.album_id = al.id)`
	tag, err := s.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete empty albums: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetOrCreateTrack inserts track keyed by site id. An existing row is
// returned untouched.
func (s *CatalogStore) GetOrCreateTrack(ctx context.Context, track music.Track) (music.Track, bool, error) {
	if track.SiteID == "" {
		return music.Track{}, false, fmt.Errorf("track site id is required")
	}
	if track.Status == "" {
		track.Status = music.StatusVoid
	}
	if track.PostType == "" {
		track.PostType = music.PostTypeSingle
	}
	query := `INSERT INTO tracks (site_id, site, title, song_name_en, song_name_fa, lyrics, post_type, album_id,
			artist_id, page_url, link_128, link_320, link_thumbnail, file_128, file_320, file_thumbnail,
			published_date, status, is_downloaded)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (site_id) DO NOTHING
		RETURNING ` + trackColumns
	created, err := scanTrack(s.pool.QueryRow(ctx, query,
		track.SiteID,
		track.Site,
		track.Title,
		track.SongNameEN,
		track.SongNameFA,
		track.Lyrics,
		track.PostType,
		track.AlbumID,
		track.ArtistID,
		track.PageURL,
		track.Links.MP3128,
		track.Links.MP3320,
		track.Links.Thumbnail,
		track.Files.MP3128,
		track.Files.MP3320,
		track.Files.Thumbnail,
		track.PublishedDate,
		track.Status,
		track.IsDownloaded,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return music.Track{}, false, fmt.Errorf("insert track: %w", err)
	}
	existing, err := scanTrack(s.pool.QueryRow(ctx, `SELECT `+trackColumns+` FROM tracks WHERE site_id = $1`, track.SiteID))
	if err != nil {
		return music.Track{}, false, fmt.Errorf("select track %s: %w", track.SiteID, err)
	}
	return existing, false, nil
}

// GetTrack fetches a track by id.
func (s *CatalogStore) GetTrack(ctx context.Context, id int64) (music.Track, error) {
	t, err := scanTrack(s.pool.QueryRow(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return music.Track{}, music.ErrNotFound
		}
		return music.Track{}, fmt.Errorf("get track: %w", err)
	}
	return t, nil
}

// ListTracks returns every track ordered by id.
func (s *CatalogStore) ListTracks(ctx context.Context) ([]music.Track, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+trackColumns+` FROM tracks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	return collect(rows, scanTrack)
}

// ListAlbumTracks returns the tracks of an album ordered by id.
func (s *CatalogStore) ListAlbumTracks(ctx context.Context, albumID int64) ([]music.Track, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+trackColumns+` FROM tracks WHERE album_id = $1 ORDER BY id`, albumID)
	if err != nil {
		return nil, fmt.Errorf("list album tracks: %w", err)
	}
	return collect(rows, scanTrack)
}

// ListTracksPendingDownload returns tracks of site still missing media files.
func (s *CatalogStore) ListTracksPendingDownload(ctx context.Context, site music.Site, limit int) ([]music.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE site = $1 AND NOT is_downloaded ORDER BY id LIMIT $2`
	rows, err := s.pool.Query(ctx, query, site, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending tracks: %w", err)
	}
	return collect(rows, scanTrack)
}

// ListTracksByStatus returns tracks in the given lifecycle status.
func (s *CatalogStore) ListTracksByStatus(ctx context.Context, status music.Status, limit int) ([]music.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE status = $1 ORDER BY id LIMIT $2`
	rows, err := s.pool.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list tracks by status: %w", err)
	}
	return collect(rows, scanTrack)
}

// UpdateTrackFiles stores downloaded media paths.
func (s *CatalogStore) UpdateTrackFiles(ctx context.Context, id int64, files music.MediaFiles, downloaded bool) error {
	query := `UPDATE tracks
		SET file_128 = $2, file_320 = $3, file_thumbnail = $4, is_downloaded = $5, updated_at = now()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, files.MP3128, files.MP3320, files.Thumbnail, downloaded)
	if err != nil {
		return fmt.Errorf("update track files: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return music.ErrNotFound
	}
	return nil
}

// SetTrackStatus changes a track's lifecycle status.
func (s *CatalogStore) SetTrackStatus(ctx context.Context, id int64, status music.Status) error {
	tag, err := s.pool.Exec(ctx, `UPDATE tracks SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set track status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return music.ErrNotFound
	}
	return nil
}

// SetAlbumStatus changes an album's lifecycle status.
func (s *CatalogStore) SetAlbumStatus(ctx context.Context, id int64, status music.Status) error {
	tag, err := s.pool.Exec(ctx, `UPDATE albums SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set album status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return music.ErrNotFound
	}
	return nil
}

// MarkTrackPublished records the CMS post id and approves the track.
func (s *CatalogStore) MarkTrackPublished(ctx context.Context, id int64, wpPostID int64) error {
	query := `UPDATE tracks SET status = $2, wp_post_id = $3, updated_at = now()
		WHERE id = $1 AND wp_post_id IS NULL`
	tag, err := s.pool.Exec(ctx, query, id, music.StatusApproved, wpPostID)
	if err != nil {
		return fmt.Errorf("mark track published: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetTrack(ctx, id); err != nil {
			return err
		}
		return music.ErrAlreadyPublished
	}
	return nil
}

// ExistingSiteIDs returns which of ids are already stored as a track or album.
func (s *CatalogStore) ExistingSiteIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT site_id FROM tracks WHERE site_id = ANY($1::text[])
		UNION
		SELECT site_id FROM albums WHERE site_id = ANY($1::text[])`
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("existing site ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan site id: %w", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate site ids: %w", err)
	}
	return out, nil
}
