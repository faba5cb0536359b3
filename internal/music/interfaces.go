package music

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound signals that the requested catalog row does not exist.
	ErrNotFound = errors.New("catalog record not found")
	// ErrAlreadyPublished signals that a record already carries a CMS post id.
	ErrAlreadyPublished = errors.New("record already published")
)

// ArtistStore persists artists and answers the two alias lookups used by the resolver.
type ArtistStore interface {
	// FindArtistsByAlias returns artists whose correct names contain any candidate verbatim.
	FindArtistsByAlias(ctx context.Context, names []string) ([]Artist, error)
	// FindArtistsByWord returns artists with a correct name containing any
	// candidate as a whole word, compared case-sensitively.
	FindArtistsByWord(ctx context.Context, names []string) ([]Artist, error)
	CreateArtist(ctx context.Context, artist Artist) (Artist, error)
	AddArtistAliases(ctx context.Context, artistID int64, names []string) error
	GetArtist(ctx context.Context, id int64) (Artist, error)
	DeleteOrphanArtists(ctx context.Context) (int64, error)
}

// AlbumStore persists albums keyed by site id.
type AlbumStore interface {
	// GetOrCreateAlbum inserts album unless its SiteID exists; it never overwrites.
	GetOrCreateAlbum(ctx context.Context, album Album) (Album, bool, error)
	GetAlbum(ctx context.Context, id int64) (Album, error)
	ListAlbumsPendingDownload(ctx context.Context, site Site, limit int) ([]Album, error)
	ListAlbumsByStatus(ctx context.Context, status Status, limit int) ([]Album, error)
	UpdateAlbumFiles(ctx context.Context, id int64, files MediaFiles, downloaded bool) error
	SetAlbumStatus(ctx context.Context, id int64, status Status) error
	// MarkAlbumPublished sets the CMS post id and flips status to approved.
	// It returns ErrAlreadyPublished when a post id is already stored.
	MarkAlbumPublished(ctx context.Context, id int64, wpPostID int64) error
	DeleteEmptyAlbums(ctx context.Context) (int64, error)
}

// TrackStore persists tracks keyed by site id.
type TrackStore interface {
	// GetOrCreateTrack inserts track unless its SiteID exists; it never overwrites.
	GetOrCreateTrack(ctx context.Context, track Track) (Track, bool, error)
	GetTrack(ctx context.Context, id int64) (Track, error)
	ListTracks(ctx context.Context) ([]Track, error)
	ListAlbumTracks(ctx context.Context, albumID int64) ([]Track, error)
	ListTracksPendingDownload(ctx context.Context, site Site, limit int) ([]Track, error)
	ListTracksByStatus(ctx context.Context, status Status, limit int) ([]Track, error)
	UpdateTrackFiles(ctx context.Context, id int64, files MediaFiles, downloaded bool) error
	SetTrackStatus(ctx context.Context, id int64, status Status) error
	MarkTrackPublished(ctx context.Context, id int64, wpPostID int64) error
}

// CatalogStore is the canonical entity store.
type CatalogStore interface {
	ArtistStore
	AlbumStore
	TrackStore
	// ExistingSiteIDs returns the subset of ids already stored as albums or tracks.
	ExistingSiteIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
