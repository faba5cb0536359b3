package music

import (
	"strings"
	"time"
)

// Site identifies a source website.
type Site string

// Supported source sites.
const (
	SiteNicMusic    Site = "nicmusic"
	SiteGanja2Music Site = "ganja2music"
)

// Status is the publish lifecycle of an album or track.
type Status string

// Lifecycle values persisted in the status column.
const (
	StatusVoid     Status = "void"
	StatusJunk     Status = "junk"
	StatusEditable Status = "editable"
	StatusApproved Status = "approved"
)

// PostType distinguishes single tracks from tracks that belong to an album.
type PostType string

// Post types persisted in tracks.post_type.
const (
	PostTypeSingle     PostType = "single"
	PostTypeAlbumTrack PostType = "album-music"
)

// MediaField names one of the three media slots carried by albums and tracks.
type MediaField string

// Media slots.
const (
	FieldMP3128    MediaField = "mp3_128"
	FieldMP3320    MediaField = "mp3_320"
	FieldThumbnail MediaField = "thumbnail"
)

// MediaFields lists every slot in download order.
var MediaFields = []MediaField{FieldThumbnail, FieldMP3128, FieldMP3320}

// MediaLinks holds the raw remote URLs scraped from the source page.
type MediaLinks struct {
	MP3128    string `json:"mp3_128"`
	MP3320    string `json:"mp3_320"`
	Thumbnail string `json:"thumbnail"`
}

// Get returns the link stored in field.
func (l MediaLinks) Get(field MediaField) string {
	switch field {
	case FieldMP3128:
		return l.MP3128
	case FieldMP3320:
		return l.MP3320
	case FieldThumbnail:
		return l.Thumbnail
	default:
		return ""
	}
}

// MediaFiles holds blob-store paths of locally downloaded copies.
type MediaFiles struct {
	MP3128    string `json:"mp3_128"`
	MP3320    string `json:"mp3_320"`
	Thumbnail string `json:"thumbnail"`
}

// Get returns the stored path for field.
func (f MediaFiles) Get(field MediaField) string {
	switch field {
	case FieldMP3128:
		return f.MP3128
	case FieldMP3320:
		return f.MP3320
	case FieldThumbnail:
		return f.Thumbnail
	default:
		return ""
	}
}

// Set stores path in field.
func (f *MediaFiles) Set(field MediaField, path string) {
	switch field {
	case FieldMP3128:
		f.MP3128 = path
	case FieldMP3320:
		f.MP3320 = path
	case FieldThumbnail:
		f.Thumbnail = path
	}
}

// Complete reports whether every non-empty link has a downloaded file.
func (f MediaFiles) Complete(links MediaLinks) bool {
	for _, field := range MediaFields {
		if links.Get(field) != "" && f.Get(field) == "" {
			return false
		}
	}
	return true
}

// Artist is a shared identity referenced by albums and tracks.
type Artist struct {
	ID           int64     `json:"id"`
	NameEN       string    `json:"name_en"`
	NameFA       string    `json:"name_fa"`
	CorrectNames []string  `json:"correct_names"`
	IsApproved   bool      `json:"is_approved"`
	WPID         *int64    `json:"wp_id,omitempty"`
	Bio          string    `json:"bio"`
	Thumbnail    string    `json:"thumbnail"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DisplayName prefers the English name and falls back to the Persian one.
func (a Artist) DisplayName() string {
	if a.NameEN != "" {
		return a.NameEN
	}
	return a.NameFA
}

// HasAlias reports whether name is one of the artist's correct names.
func (a Artist) HasAlias(name string) bool {
	for _, alias := range a.CorrectNames {
		if alias == name {
			return true
		}
	}
	return false
}

// Album is a released collection of tracks, keyed by SiteID.
type Album struct {
	ID            int64      `json:"id"`
	SiteID        string     `json:"site_id"`
	Site          Site       `json:"site"`
	Title         string     `json:"title"`
	NameEN        string     `json:"name_en"`
	NameFA        string     `json:"name_fa"`
	ArtistID      int64      `json:"artist_id"`
	PageURL       string     `json:"page_url"`
	Links         MediaLinks `json:"links"`
	Files         MediaFiles `json:"files"`
	PublishedDate time.Time  `json:"published_date"`
	Status        Status     `json:"status"`
	WPPostID      *int64     `json:"wp_post_id,omitempty"`
	IsDownloaded  bool       `json:"is_downloaded"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Track is a single or an album track, keyed by SiteID.
type Track struct {
	ID            int64      `json:"id"`
	SiteID        string     `json:"site_id"`
	Site          Site       `json:"site"`
	Title         string     `json:"title"`
	SongNameEN    string     `json:"song_name_en"`
	SongNameFA    string     `json:"song_name_fa"`
	Lyrics        string     `json:"lyrics"`
	PostType      PostType   `json:"post_type"`
	AlbumID       *int64     `json:"album_id,omitempty"`
	ArtistID      int64      `json:"artist_id"`
	PageURL       string     `json:"page_url"`
	Links         MediaLinks `json:"links"`
	Files         MediaFiles `json:"files"`
	PublishedDate time.Time  `json:"published_date"`
	Status        Status     `json:"status"`
	WPPostID      *int64     `json:"wp_post_id,omitempty"`
	IsDownloaded  bool       `json:"is_downloaded"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// DisplayName prefers the Persian song name, as the CMS audience reads Persian.
func (t Track) DisplayName() string {
	if t.SongNameFA != "" {
		return t.SongNameFA
	}
	return t.SongNameEN
}

// Published reports whether the track already carries a CMS post.
func (t Track) Published() bool {
	return t.Status == StatusApproved || t.WPPostID != nil
}

// Published reports whether the album already carries a CMS post.
func (a Album) Published() bool {
	return a.Status == StatusApproved || a.WPPostID != nil
}

// RecordTrack is one entry of an album track list.
type RecordTrack struct {
	SiteID     string
	SongNameEN string
	SongNameFA string
	Links      MediaLinks
}

// Record is the normalized but unvalidated output of a site adapter.
type Record struct {
	Site          Site
	SiteID        string
	PageURL       string
	Title         string
	SongNameEN    string
	SongNameFA    string
	ArtistNameEN  string
	ArtistNameFA  string
	Lyrics        string
	PostType      PostType
	Links         MediaLinks
	PublishedDate time.Time
	// Tracks is only populated for album pages.
	Tracks []RecordTrack
}

// IsAlbum reports whether the record describes an album page.
func (r Record) IsAlbum() bool {
	return r.PostType == PostTypeAlbumTrack
}

// ArtistNames returns the distinct non-empty artist names of the record.
func (r Record) ArtistNames() []string {
	return UniqueNames(r.ArtistNameEN, r.ArtistNameFA)
}

// UniqueNames trims names and drops blanks and duplicates, preserving order.
func UniqueNames(names ...string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// SiteID builds the globally unique site identifier stored for an entity.
func SiteID(site Site, localID string) string {
	return string(site) + "-" + localID
}
