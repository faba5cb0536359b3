package wordpress

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/h2non/filetype"
	"go.uber.org/zap"

	"github.com/Amir-4m/music-crawler/internal/media"
	"github.com/Amir-4m/music-crawler/internal/music"
)

// DefaultAuthorID is the CMS user that owns crawled posts.
const DefaultAuthorID = 9

// ErrThumbnailUnavailable is returned when no thumbnail can be uploaded
// after one download attempt.
var ErrThumbnailUnavailable = errors.New("thumbnail unavailable")

// Stage names a step of a publish call.
type Stage string

// Publish steps in order.
const (
	StageAuthenticate Stage = "authenticate"
	StageCreateMedia  Stage = "create_media"
	StageCreatePost   Stage = "create_post"
	StageUpdateFields Stage = "update_custom_fields"
)

// StageError reports the step at which a publish call stopped.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// API is the subset of Client used by the Publisher.
type API interface {
	Token(ctx context.Context) (string, error)
	UploadMedia(ctx context.Context, name, contentType string, data []byte) (int64, error)
	CreatePost(ctx context.Context, kind PostKind, post Post) (int64, error)
	UpdateFields(ctx context.Context, kind PostKind, postID int64, meta map[string]string) error
}

// MediaSource downloads missing files and persists their paths.
type MediaSource interface {
	EnsureTrackFile(ctx context.Context, t *music.Track, field music.MediaField) (string, error)
	EnsureAlbumFile(ctx context.Context, a *music.Album, field music.MediaField) (string, error)
}

// BlobReader opens stored media.
type BlobReader interface {
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
}

// Store is the catalog access used while publishing.
type Store interface {
	GetArtist(ctx context.Context, id int64) (music.Artist, error)
	ListAlbumTracks(ctx context.Context, albumID int64) ([]music.Track, error)
	MarkTrackPublished(ctx context.Context, id int64, wpPostID int64) error
	MarkAlbumPublished(ctx context.Context, id int64, wpPostID int64) error
}

// PublisherConfig controls post payloads.
type PublisherConfig struct {
	AuthorID      int64
	Categories    map[music.Site]int64
	PublicBaseURL string
}

// Publisher turns catalog records into CMS posts: thumbnail media, then the
// post, then its custom fields.
type Publisher struct {
	api    API
	media  MediaSource
	blobs  BlobReader
	store  Store
	cfg    PublisherConfig
	logger *zap.Logger
}

// NewPublisher builds a Publisher.
func NewPublisher(api API, source MediaSource, blobs BlobReader, store Store, cfg PublisherConfig, logger *zap.Logger) *Publisher {
	if cfg.AuthorID == 0 {
		cfg.AuthorID = DefaultAuthorID
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{api: api, media: source, blobs: blobs, store: store, cfg: cfg, logger: logger}
}

// entry adapts tracks and albums to the shared publish steps.
type entry struct {
	kind     PostKind
	id       int64
	site     music.Site
	title    string
	nameEN   string
	nameFA   string
	artistID int64
	files    func() music.MediaFiles
	ensure   func(ctx context.Context, field music.MediaField) (string, error)
	content  func(ctx context.Context, artist music.Artist) (string, error)
	mark     func(ctx context.Context, postID int64) error
}

// PublishTrack publishes t and returns the new post id. Callers must not
// pass a track that is already published.
func (p *Publisher) PublishTrack(ctx context.Context, t music.Track) (int64, error) {
	track := t
	e := entry{
		kind:     KindMusic,
		id:       track.ID,
		site:     track.Site,
		title:    track.Title,
		nameEN:   track.SongNameEN,
		nameFA:   track.SongNameFA,
		artistID: track.ArtistID,
		files:    func() music.MediaFiles { return track.Files },
		ensure: func(ctx context.Context, field music.MediaField) (string, error) {
			return p.media.EnsureTrackFile(ctx, &track, field)
		},
		content: func(_ context.Context, artist music.Artist) (string, error) {
			return joinContent(artistInfo(artist), html.EscapeString(track.Lyrics)), nil
		},
		mark: func(ctx context.Context, postID int64) error {
			return p.store.MarkTrackPublished(ctx, track.ID, postID)
		},
	}
	return p.publish(ctx, e)
}

// PublishAlbum publishes a and returns the new post id. The content lists
// the album tracks with their 320kbps links.
func (p *Publisher) PublishAlbum(ctx context.Context, a music.Album) (int64, error) {
	album := a
	e := entry{
		kind:     KindAlbum,
		id:       album.ID,
		site:     album.Site,
		title:    album.Title,
		nameEN:   album.NameEN,
		nameFA:   album.NameFA,
		artistID: album.ArtistID,
		files:    func() music.MediaFiles { return album.Files },
		ensure: func(ctx context.Context, field music.MediaField) (string, error) {
			return p.media.EnsureAlbumFile(ctx, &album, field)
		},
		content: func(ctx context.Context, artist music.Artist) (string, error) {
			tracks, err := p.store.ListAlbumTracks(ctx, album.ID)
			if err != nil {
				return "", fmt.Errorf("list album %d tracks: %w", album.ID, err)
			}
			return joinContent(artistInfo(artist), p.trackLinks(ctx, tracks)), nil
		},
		mark: func(ctx context.Context, postID int64) error {
			return p.store.MarkAlbumPublished(ctx, album.ID, postID)
		},
	}
	return p.publish(ctx, e)
}

func (p *Publisher) publish(ctx context.Context, e entry) (int64, error) {
	log := p.logger.With(zap.String("kind", string(e.kind)), zap.Int64("id", e.id))

	if _, err := p.api.Token(ctx); err != nil {
		return 0, &StageError{Stage: StageAuthenticate, Err: err}
	}

	mediaID, err := p.createMedia(ctx, e, false)
	if err != nil {
		return 0, &StageError{Stage: StageCreateMedia, Err: err}
	}

	artist, err := p.store.GetArtist(ctx, e.artistID)
	if err != nil {
		return 0, &StageError{Stage: StageCreatePost, Err: fmt.Errorf("load artist %d: %w", e.artistID, err)}
	}
	content, err := e.content(ctx, artist)
	if err != nil {
		return 0, &StageError{Stage: StageCreatePost, Err: err}
	}
	post := Post{
		Title:         e.title,
		Content:       content,
		Slug:          Slug(e.site, e.nameEN, e.nameFA, artist),
		Status:        "publish",
		Excerpt:       firstNonEmpty(e.nameEN, e.nameFA),
		Author:        p.cfg.AuthorID,
		Format:        "standard",
		FeaturedMedia: mediaID,
	}
	if cat, ok := p.cfg.Categories[e.site]; ok && cat != 0 {
		post.Categories = []int64{cat}
	}
	postID, err := p.api.CreatePost(ctx, e.kind, post)
	if err != nil {
		return 0, &StageError{Stage: StageCreatePost, Err: err}
	}
	if err := e.mark(ctx, postID); err != nil {
		log.Error("post created but not recorded", zap.Int64("wp_post_id", postID), zap.Error(err))
		return postID, &StageError{Stage: StageCreatePost, Err: err}
	}
	log.Info("post created", zap.Int64("wp_post_id", postID))

	meta, err := p.customFields(ctx, e, artist)
	if err != nil {
		return postID, &StageError{Stage: StageUpdateFields, Err: err}
	}
	if err := p.api.UpdateFields(ctx, e.kind, postID, meta); err != nil {
		return postID, &StageError{Stage: StageUpdateFields, Err: err}
	}
	return postID, nil
}

// createMedia uploads the stored thumbnail. When it is missing the file is
// downloaded once and the upload retried; a second miss is final.
func (p *Publisher) createMedia(ctx context.Context, e entry, retried bool) (int64, error) {
	path := e.files().Thumbnail
	if path != "" {
		data, err := p.readBlob(ctx, path)
		if err == nil {
			name := media.FileName(path)
			return p.api.UploadMedia(ctx, name, contentType(data), data)
		}
		p.logger.Warn("stored thumbnail unreadable", zap.String("path", path), zap.Error(err))
	}
	if retried {
		return 0, ErrThumbnailUnavailable
	}
	if _, err := e.ensure(ctx, music.FieldThumbnail); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrThumbnailUnavailable, err)
	}
	return p.createMedia(ctx, e, true)
}

func (p *Publisher) readBlob(ctx context.Context, path string) ([]byte, error) {
	rc, err := p.blobs.GetObject(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return data, nil
}

var linkFields = []struct {
	field music.MediaField
	key   string
}{
	{field: music.FieldMP3128, key: "link_128"},
	{field: music.FieldMP3320, key: "link_320"},
}

// customFields composes the meta payload. Audio files that were never
// stored, or whose blob has gone missing, are downloaded first so links
// point at hosted copies.
func (p *Publisher) customFields(ctx context.Context, e entry, artist music.Artist) (map[string]string, error) {
	meta := map[string]string{
		"artist_name_persian": artist.NameFA,
		"artist_name_english": artist.NameEN,
		"music_name_persian":  e.nameFA,
		"music_name_english":  e.nameEN,
	}
	for _, f := range linkFields {
		field, key := f.field, f.key
		path, err := e.ensure(ctx, field)
		if errors.Is(err, media.ErrUnavailable) {
			p.logger.Warn("custom field link unavailable", zap.String("field", string(field)), zap.Int64("id", e.id), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		meta[key] = media.JoinURL(p.cfg.PublicBaseURL, path)
	}
	return meta, nil
}

func (p *Publisher) trackLinks(ctx context.Context, tracks []music.Track) string {
	var b strings.Builder
	for i := range tracks {
		t := tracks[i]
		if t.Files.MP3320 == "" && t.Links.MP3320 == "" {
			continue
		}
		path, err := p.media.EnsureTrackFile(ctx, &t, music.FieldMP3320)
		if err != nil {
			p.logger.Warn("album track link unavailable", zap.Int64("track_id", t.ID), zap.Error(err))
			continue
		}
		fmt.Fprintf(&b, `<a href="%s">%s</a> `, html.EscapeString(media.JoinURL(p.cfg.PublicBaseURL, path)), html.EscapeString(t.DisplayName()))
	}
	return strings.TrimSpace(b.String())
}

func artistInfo(a music.Artist) string {
	names := music.UniqueNames(a.NameFA, a.NameEN)
	if len(names) == 0 {
		return ""
	}
	return "<p>" + html.EscapeString(strings.Join(names, " / ")) + "</p>"
}

func joinContent(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}

func contentType(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return "application/octet-stream"
	}
	return kind.MIME.Value
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Slug builds the post slug. NicMusic slugs carry the artist name because
// many of its tracks share a song name.
func Slug(site music.Site, nameEN, nameFA string, artist music.Artist) string {
	base := firstNonEmpty(nameEN, nameFA)
	if site == music.SiteNicMusic {
		if name := artist.DisplayName(); name != "" {
			base = base + " " + name
		}
	}
	return slugify(base)
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r == ' ' || r == '-' || r == '_' || r == '\u200c':
			if b.Len() > 0 && !dash {
				b.WriteByte('-')
				dash = true
			}
		case strings.ContainsRune(`!"#$%&'()*+,./:;<=>?@[\]^{|}~`+"`", r):
		default:
			b.WriteRune(r)
			dash = false
		}
	}
	return strings.TrimRight(b.String(), "-")
}
