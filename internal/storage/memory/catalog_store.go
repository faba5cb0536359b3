package memory

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Amir-4m/music-crawler/internal/music"
)

// CatalogStore is an in-memory music.CatalogStore for development and tests.
type CatalogStore struct {
	mu      sync.RWMutex
	now     func() time.Time
	nextID  int64
	artists map[int64]music.Artist
	albums  map[int64]music.Album
	tracks  map[int64]music.Track
	bySite  map[string]int64
	albumBy map[string]int64
}

var _ music.CatalogStore = (*CatalogStore)(nil)

// NewCatalogStore constructs an empty CatalogStore.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		now:     func() time.Time { return time.Now().UTC() },
		artists: make(map[int64]music.Artist),
		albums:  make(map[int64]music.Album),
		tracks:  make(map[int64]music.Track),
		bySite:  make(map[string]int64),
		albumBy: make(map[string]int64),
	}
}

func (s *CatalogStore) id() int64 {
	s.nextID++
	return s.nextID
}

func cloneArtist(a music.Artist) music.Artist {
	a.CorrectNames = append([]string(nil), a.CorrectNames...)
	return a
}

// wordRegexp matches name as a whole word; letters, digits and underscore of
// any script count as word characters.
func wordRegexp(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(name) + `(?:$|[^\p{L}\p{N}_])`)
}

func (s *CatalogStore) findArtists(names []string, match func(alias string, names []string) bool) []music.Artist {
	names = music.UniqueNames(names...)
	if len(names) == 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []music.Artist
	for _, a := range s.artists {
		for _, alias := range a.CorrectNames {
			if match(alias, names) {
				out = append(out, cloneArtist(a))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindArtistsByAlias returns artists whose correct names contain any of names.
func (s *CatalogStore) FindArtistsByAlias(_ context.Context, names []string) ([]music.Artist, error) {
	return s.findArtists(names, func(alias string, names []string) bool {
		for _, n := range names {
			if alias == n {
				return true
			}
		}
		return false
	}), nil
}

// FindArtistsByWord returns artists with a correct name matching any of
// names as a whole word.
func (s *CatalogStore) FindArtistsByWord(_ context.Context, names []string) ([]music.Artist, error) {
	patterns := make([]*regexp.Regexp, 0, len(names))
	for _, n := range music.UniqueNames(names...) {
		patterns = append(patterns, wordRegexp(n))
	}
	return s.findArtists(names, func(alias string, _ []string) bool {
		for _, re := range patterns {
			if re.MatchString(alias) {
				return true
			}
		}
		return false
	}), nil
}

// CreateArtist stores a new artist.
func (s *CatalogStore) CreateArtist(_ context.Context, artist music.Artist) (music.Artist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	artist.ID = s.id()
	artist.CorrectNames = music.UniqueNames(artist.CorrectNames...)
	artist.CreatedAt = s.now()
	artist.UpdatedAt = artist.CreatedAt
	s.artists[artist.ID] = cloneArtist(artist)
	return cloneArtist(artist), nil
}

// AddArtistAliases appends names missing from the artist's correct names.
func (s *CatalogStore) AddArtistAliases(_ context.Context, artistID int64, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artists[artistID]
	if !ok {
		return music.ErrNotFound
	}
	a.CorrectNames = music.UniqueNames(append(a.CorrectNames, names...)...)
	a.UpdatedAt = s.now()
	s.artists[artistID] = a
	return nil
}

// GetArtist fetches an artist by id.
func (s *CatalogStore) GetArtist(_ context.Context, id int64) (music.Artist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artists[id]
	if !ok {
		return music.Artist{}, music.ErrNotFound
	}
	return cloneArtist(a), nil
}

// DeleteOrphanArtists removes unpublished artists no album or track references.
func (s *CatalogStore) DeleteOrphanArtists(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	used := make(map[int64]struct{})
	for _, t := range s.tracks {
		used[t.ArtistID] = struct{}{}
	}
	for _, a := range s.albums {
		used[a.ArtistID] = struct{}{}
	}
	var removed int64
	for id, a := range s.artists {
		if _, ok := used[id]; ok || a.WPID != nil {
			continue
		}
		delete(s.artists, id)
		removed++
	}
	return removed, nil
}

// GetOrCreateAlbum inserts album unless its site id exists.
func (s *CatalogStore) GetOrCreateAlbum(_ context.Context, album music.Album) (music.Album, bool, error) {
	if album.SiteID == "" {
		return music.Album{}, false, fmt.Errorf("album site id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.albumBy[album.SiteID]; ok {
		return s.albums[id], false, nil
	}
	if _, ok := s.artists[album.ArtistID]; !ok {
		return music.Album{}, false, fmt.Errorf("album %s: artist %d: %w", album.SiteID, album.ArtistID, music.ErrNotFound)
	}
	if album.Status == "" {
		album.Status = music.StatusVoid
	}
	album.ID = s.id()
	album.WPPostID = nil
	album.CreatedAt = s.now()
	album.UpdatedAt = album.CreatedAt
	s.albums[album.ID] = album
	s.albumBy[album.SiteID] = album.ID
	return album, true, nil
}

// GetAlbum fetches an album by id.
func (s *CatalogStore) GetAlbum(_ context.Context, id int64) (music.Album, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.albums[id]
	if !ok {
		return music.Album{}, music.ErrNotFound
	}
	return a, nil
}

func (s *CatalogStore) filterAlbums(keep func(music.Album) bool, limit int) []music.Album {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]music.Album, 0)
	for _, a := range s.albums {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ListAlbumsPendingDownload returns albums of site still missing media files.
func (s *CatalogStore) ListAlbumsPendingDownload(_ context.Context, site music.Site, limit int) ([]music.Album, error) {
	return s.filterAlbums(func(a music.Album) bool { return a.Site == site && !a.IsDownloaded }, limit), nil
}

// ListAlbumsByStatus returns albums in the given lifecycle status.
func (s *CatalogStore) ListAlbumsByStatus(_ context.Context, status music.Status, limit int) ([]music.Album, error) {
	return s.filterAlbums(func(a music.Album) bool { return a.Status == status }, limit), nil
}

// UpdateAlbumFiles stores downloaded media paths.
func (s *CatalogStore) UpdateAlbumFiles(_ context.Context, id int64, files music.MediaFiles, downloaded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.albums[id]
	if !ok {
		return music.ErrNotFound
	}
	a.Files = files
	a.IsDownloaded = downloaded
	a.UpdatedAt = s.now()
	s.albums[id] = a
	return nil
}

// MarkAlbumPublished records the CMS post id and approves the album.
func (s *CatalogStore) MarkAlbumPublished(_ context.Context, id int64, wpPostID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.albums[id]
	if !ok {
		return music.ErrNotFound
	}
	if a.WPPostID != nil {
		return music.ErrAlreadyPublished
	}
	a.WPPostID = &wpPostID
	a.Status = music.StatusApproved
	a.UpdatedAt = s.now()
	s.albums[id] = a
	return nil
}

// DeleteEmptyAlbums removes unpublished albums that ended up with no tracks.
func (s *CatalogStore) DeleteEmptyAlbums(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	used := make(map[int64]struct{})
	for _, t := range s.tracks {
		if t.AlbumID != nil {
			used[*t.AlbumID] = struct{}{}
		}
	}
	var removed int64
	for id, a := range s.albums {
		if _, ok := used[id]; ok || a.WPPostID != nil {
			continue
		}
		delete(s.albums, id)
		delete(s.albumBy, a.SiteID)
		removed++
	}
	return removed, nil
}

// GetOrCreateTrack inserts track unless its site id exists.
func (s *CatalogStore) GetOrCreateTrack(_ context.Context, track music.Track) (music.Track, bool, error) {
	if track.SiteID == "" {
		return music.Track{}, false, fmt.Errorf("track site id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.bySite[track.SiteID]; ok {
		return s.tracks[id], false, nil
	}
	if _, ok := s.artists[track.ArtistID]; !ok {
		return music.Track{}, false, fmt.Errorf("track %s: artist %d: %w", track.SiteID, track.ArtistID, music.ErrNotFound)
	}
	if track.AlbumID != nil {
		if _, ok := s.albums[*track.AlbumID]; !ok {
			return music.Track{}, false, fmt.Errorf("track %s: album %d: %w", track.SiteID, *track.AlbumID, music.ErrNotFound)
		}
	}
	if track.Status == "" {
		track.Status = music.StatusVoid
	}
	if track.PostType == "" {
		track.PostType = music.PostTypeSingle
	}
	track.ID = s.id()
	track.WPPostID = nil
	track.CreatedAt = s.now()
	track.UpdatedAt = track.CreatedAt
	s.tracks[track.ID] = track
	s.bySite[track.SiteID] = track.ID
	return track, true, nil
}

// GetTrack fetches a track by id.
func (s *CatalogStore) GetTrack(_ context.Context, id int64) (music.Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tracks[id]
	if !ok {
		return music.Track{}, music.ErrNotFound
	}
	return t, nil
}

func (s *CatalogStore) filterTracks(keep func(music.Track) bool, limit int) []music.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]music.Track, 0)
	for _, t := range s.tracks {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ListTracks returns every track ordered by id.
func (s *CatalogStore) ListTracks(_ context.Context) ([]music.Track, error) {
	return s.filterTracks(func(music.Track) bool { return true }, 0), nil
}

// ListAlbumTracks returns the tracks of an album ordered by id.
func (s *CatalogStore) ListAlbumTracks(_ context.Context, albumID int64) ([]music.Track, error) {
	return s.filterTracks(func(t music.Track) bool { return t.AlbumID != nil && *t.AlbumID == albumID }, 0), nil
}

// ListTracksPendingDownload returns tracks of site still missing media files.
func (s *CatalogStore) ListTracksPendingDownload(_ context.Context, site music.Site, limit int) ([]music.Track, error) {
	return s.filterTracks(func(t music.Track) bool { return t.Site == site && !t.IsDownloaded }, limit), nil
}

// ListTracksByStatus returns tracks in the given lifecycle status.
func (s *CatalogStore) ListTracksByStatus(_ context.Context, status music.Status, limit int) ([]music.Track, error) {
	return s.filterTracks(func(t music.Track) bool { return t.Status == status }, limit), nil
}

// UpdateTrackFiles stores downloaded media paths.
func (s *CatalogStore) UpdateTrackFiles(_ context.Context, id int64, files music.MediaFiles, downloaded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return music.ErrNotFound
	}
	t.Files = files
	t.IsDownloaded = downloaded
	t.UpdatedAt = s.now()
	s.tracks[id] = t
	return nil
}

// MarkTrackPublished records the CMS post id and approves the track.
func (s *CatalogStore) MarkTrackPublished(_ context.Context, id int64, wpPostID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return music.ErrNotFound
	}
	if t.WPPostID != nil {
		return music.ErrAlreadyPublished
	}
	t.WPPostID = &wpPostID
	t.Status = music.StatusApproved
	t.UpdatedAt = s.now()
	s.tracks[id] = t
	return nil
}

// ExistingSiteIDs returns which of ids are already stored as a track or album.
func (s *CatalogStore) ExistingSiteIDs(_ context.Context, ids []string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, ok := s.bySite[id]; ok {
			out[id] = struct{}{}
			continue
		}
		if _, ok := s.albumBy[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// SetTrackStatus changes a track's lifecycle status.
func (s *CatalogStore) SetTrackStatus(_ context.Context, id int64, status music.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return music.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = s.now()
	s.tracks[id] = t
	return nil
}

// SetAlbumStatus changes an album's lifecycle status.
func (s *CatalogStore) SetAlbumStatus(_ context.Context, id int64, status music.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.albums[id]
	if !ok {
		return music.ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = s.now()
	s.albums[id] = a
	return nil
}
