// Package resolver maps normalized records onto canonical artists, albums
// and tracks.
//
// Artist matching uses two signals. An alias lookup finds artists whose
// correct names contain a candidate verbatim; a word lookup finds artists
// with a correct name containing a candidate as a whole, case-sensitive
// word. Artists found by both win; otherwise the alias match is used, then
// the word match, and only when neither matches is a new artist created.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/Amir-4m/music-crawler/internal/music"
)

// ErrNoArtistName is returned when a record carries no usable artist name.
var ErrNoArtistName = errors.New("record has no artist name")

// Resolver performs create-or-reuse against a CatalogStore.
type Resolver struct {
	store  music.CatalogStore
	logger *zap.Logger
}

// New constructs a Resolver.
func New(store music.CatalogStore, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, logger: logger}
}

// Result summarises what Ingest did with one record.
type Result struct {
	ArtistID      int64
	AlbumID       *int64
	TrackIDs      []int64
	Created       int
	AlreadyStored int
}

// ResolveArtist returns the artist matching nameEN or nameFA, creating it
// when no stored artist matches. Matched artists gain any missing candidate
// as a correct name.
func (r *Resolver) ResolveArtist(ctx context.Context, nameEN, nameFA string) (music.Artist, error) {
	names := music.UniqueNames(nameEN, nameFA)
	if len(names) == 0 {
		return music.Artist{}, ErrNoArtistName
	}

	byAlias, err := r.store.FindArtistsByAlias(ctx, names)
	if err != nil {
		return music.Artist{}, fmt.Errorf("find artists by alias: %w", err)
	}
	byWord, err := r.store.FindArtistsByWord(ctx, names)
	if err != nil {
		return music.Artist{}, fmt.Errorf("find artists by word: %w", err)
	}

	if artist, ok := pick(byAlias, byWord); ok {
		if missing := missingAliases(artist, names); len(missing) > 0 {
			if err := r.store.AddArtistAliases(ctx, artist.ID, missing); err != nil {
				return music.Artist{}, fmt.Errorf("add aliases to artist %d: %w", artist.ID, err)
			}
			artist.CorrectNames = append(artist.CorrectNames, missing...)
			r.logger.Debug("artist aliases merged",
				zap.Int64("artist_id", artist.ID),
				zap.Strings("aliases", missing),
			)
		}
		return artist, nil
	}

	artist, err := r.store.CreateArtist(ctx, music.Artist{
		NameEN:       nameEN,
		NameFA:       nameFA,
		CorrectNames: names,
	})
	if err != nil {
		return music.Artist{}, fmt.Errorf("create artist: %w", err)
	}
	r.logger.Info("artist created",
		zap.Int64("artist_id", artist.ID),
		zap.Strings("names", names),
	)
	return artist, nil
}

// pick applies the intersection-then-fallback policy. Ties go to the oldest
// artist so repeated resolution is stable.
func pick(byAlias, byWord []music.Artist) (music.Artist, bool) {
	wordIDs := make(map[int64]struct{}, len(byWord))
	for _, a := range byWord {
		wordIDs[a.ID] = struct{}{}
	}
	var both []music.Artist
	for _, a := range byAlias {
		if _, ok := wordIDs[a.ID]; ok {
			both = append(both, a)
		}
	}
	for _, set := range [][]music.Artist{both, byAlias, byWord} {
		if a, ok := oldest(set); ok {
			return a, true
		}
	}
	return music.Artist{}, false
}

func oldest(artists []music.Artist) (music.Artist, bool) {
	if len(artists) == 0 {
		return music.Artist{}, false
	}
	sorted := append([]music.Artist(nil), artists...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted[0], true
}

func missingAliases(artist music.Artist, names []string) []string {
	var out []string
	for _, name := range names {
		if !artist.HasAlias(name) {
			out = append(out, name)
		}
	}
	return out
}

// UpsertAlbum stores album unless its site id is already known. Existing
// albums are returned untouched.
func (r *Resolver) UpsertAlbum(ctx context.Context, album music.Album) (music.Album, bool, error) {
	stored, created, err := r.store.GetOrCreateAlbum(ctx, album)
	if err != nil {
		return music.Album{}, false, fmt.Errorf("upsert album %s: %w", album.SiteID, err)
	}
	return stored, created, nil
}

// UpsertTrack stores track unless its site id is already known. Existing
// tracks are returned untouched.
func (r *Resolver) UpsertTrack(ctx context.Context, track music.Track) (music.Track, bool, error) {
	stored, created, err := r.store.GetOrCreateTrack(ctx, track)
	if err != nil {
		return music.Track{}, false, fmt.Errorf("upsert track %s: %w", track.SiteID, err)
	}
	return stored, created, nil
}

// Ingest resolves the record's artist and upserts the album and tracks it
// describes.
func (r *Resolver) Ingest(ctx context.Context, rec music.Record) (Result, error) {
	if rec.SiteID == "" {
		return Result{}, fmt.Errorf("ingest %s: site id is required", rec.PageURL)
	}
	artist, err := r.ResolveArtist(ctx, rec.ArtistNameEN, rec.ArtistNameFA)
	if err != nil {
		return Result{}, fmt.Errorf("ingest %s: %w", rec.SiteID, err)
	}
	res := Result{ArtistID: artist.ID}

	if !rec.IsAlbum() {
		track, created, err := r.UpsertTrack(ctx, trackFromRecord(rec, artist.ID))
		if err != nil {
			return res, err
		}
		res.count(track.ID, created)
		return res, nil
	}

	album, created, err := r.UpsertAlbum(ctx, music.Album{
		SiteID:        rec.SiteID,
		Site:          rec.Site,
		Title:         rec.Title,
		NameEN:        rec.SongNameEN,
		NameFA:        rec.SongNameFA,
		ArtistID:      artist.ID,
		PageURL:       rec.PageURL,
		Links:         rec.Links,
		PublishedDate: rec.PublishedDate,
	})
	if err != nil {
		return res, err
	}
	res.AlbumID = &album.ID
	if created {
		res.Created++
	} else {
		res.AlreadyStored++
	}

	for _, rt := range rec.Tracks {
		track := music.Track{
			SiteID:        rt.SiteID,
			Site:          rec.Site,
			Title:         rec.Title,
			SongNameEN:    rt.SongNameEN,
			SongNameFA:    rt.SongNameFA,
			PostType:      music.PostTypeAlbumTrack,
			AlbumID:       &album.ID,
			ArtistID:      artist.ID,
			PageURL:       rec.PageURL,
			Links:         rt.Links,
			PublishedDate: rec.PublishedDate,
		}
		stored, created, err := r.UpsertTrack(ctx, track)
		if err != nil {
			r.logger.Warn("album track skipped",
				zap.String("site_id", rt.SiteID),
				zap.String("album_site_id", rec.SiteID),
				zap.Error(err),
			)
			continue
		}
		res.count(stored.ID, created)
	}
	return res, nil
}

func (r *Result) count(trackID int64, created bool) {
	r.TrackIDs = append(r.TrackIDs, trackID)
	if created {
		r.Created++
	} else {
		r.AlreadyStored++
	}
}

func trackFromRecord(rec music.Record, artistID int64) music.Track {
	postType := rec.PostType
	if postType == "" {
		postType = music.PostTypeSingle
	}
	return music.Track{
		SiteID:        rec.SiteID,
		Site:          rec.Site,
		Title:         rec.Title,
		SongNameEN:    rec.SongNameEN,
		SongNameFA:    rec.SongNameFA,
		Lyrics:        rec.Lyrics,
		PostType:      postType,
		ArtistID:      artistID,
		PageURL:       rec.PageURL,
		Links:         rec.Links,
		PublishedDate: rec.PublishedDate,
	}
}
