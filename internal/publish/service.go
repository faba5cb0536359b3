// Package publish guards CMS publishing at the call site: records that are
// already approved or carry a post id are refused, and batch runs report
// failures per record.
package publish

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Amir-4m/music-crawler/internal/events"
	"github.com/Amir-4m/music-crawler/internal/metrics"
	"github.com/Amir-4m/music-crawler/internal/music"
)

// ErrAlreadyPublished is returned for records that already have a CMS post.
var ErrAlreadyPublished = music.ErrAlreadyPublished

// Record kinds.
const (
	KindTrack = "track"
	KindAlbum = "album"
)

// Publish outcomes reported to metrics.
const (
	outcomePublished = "published"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

// Publisher creates the CMS post for one record.
type Publisher interface {
	PublishTrack(ctx context.Context, t music.Track) (int64, error)
	PublishAlbum(ctx context.Context, a music.Album) (int64, error)
}

// Store reads the records to publish.
type Store interface {
	GetTrack(ctx context.Context, id int64) (music.Track, error)
	GetAlbum(ctx context.Context, id int64) (music.Album, error)
	ListTracksByStatus(ctx context.Context, status music.Status, limit int) ([]music.Track, error)
	ListAlbumsByStatus(ctx context.Context, status music.Status, limit int) ([]music.Album, error)
}

// Result reports one publish attempt.
type Result struct {
	Kind     string `json:"kind"`
	ID       int64  `json:"id"`
	WPPostID int64  `json:"wp_post_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Batch summarises a run over pending records.
type Batch struct {
	Published int      `json:"published"`
	Failed    int      `json:"failed"`
	Results   []Result `json:"results"`
}

// Service publishes catalog records.
type Service struct {
	store     Store
	publisher Publisher
	events    events.Publisher
	clock     music.Clock
	logger    *zap.Logger
}

// New constructs a Service. ev may be nil.
func New(store Store, publisher Publisher, ev events.Publisher, clock music.Clock, logger *zap.Logger) *Service {
	if ev == nil {
		ev = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, publisher: publisher, events: ev, clock: clock, logger: logger}
}

// Track publishes the track with id.
func (s *Service) Track(ctx context.Context, id int64) (Result, error) {
	t, err := s.store.GetTrack(ctx, id)
	if err != nil {
		return Result{Kind: KindTrack, ID: id}, fmt.Errorf("load track %d: %w", id, err)
	}
	return s.publishTrack(ctx, t)
}

// Album publishes the album with id.
func (s *Service) Album(ctx context.Context, id int64) (Result, error) {
	a, err := s.store.GetAlbum(ctx, id)
	if err != nil {
		return Result{Kind: KindAlbum, ID: id}, fmt.Errorf("load album %d: %w", id, err)
	}
	return s.publishAlbum(ctx, a)
}

func (s *Service) publishTrack(ctx context.Context, t music.Track) (Result, error) {
	res := Result{Kind: KindTrack, ID: t.ID}
	if t.Published() {
		metrics.ObservePublish(KindTrack, outcomeSkipped)
		return res, fmt.Errorf("track %d: %w", t.ID, ErrAlreadyPublished)
	}
	postID, err := s.publisher.PublishTrack(ctx, t)
	res.WPPostID = postID
	if err != nil {
		return s.failed(res, err)
	}
	metrics.ObservePublish(KindTrack, outcomePublished)
	s.emit(ctx, events.Published{
		Kind:     KindTrack,
		ID:       t.ID,
		Site:     string(t.Site),
		SiteID:   t.SiteID,
		Title:    t.Title,
		WPPostID: postID,
	})
	return res, nil
}

func (s *Service) publishAlbum(ctx context.Context, a music.Album) (Result, error) {
	res := Result{Kind: KindAlbum, ID: a.ID}
	if a.Published() {
		metrics.ObservePublish(KindAlbum, outcomeSkipped)
		return res, fmt.Errorf("album %d: %w", a.ID, ErrAlreadyPublished)
	}
	postID, err := s.publisher.PublishAlbum(ctx, a)
	res.WPPostID = postID
	if err != nil {
		return s.failed(res, err)
	}
	metrics.ObservePublish(KindAlbum, outcomePublished)
	s.emit(ctx, events.Published{
		Kind:     KindAlbum,
		ID:       a.ID,
		Site:     string(a.Site),
		SiteID:   a.SiteID,
		Title:    a.Title,
		WPPostID: postID,
	})
	return res, nil
}

func (s *Service) failed(res Result, err error) (Result, error) {
	metrics.ObservePublish(res.Kind, outcomeFailed)
	res.Error = err.Error()
	s.logger.Error("publish failed",
		zap.String("kind", res.Kind),
		zap.Int64("id", res.ID),
		zap.Int64("wp_post_id", res.WPPostID),
		zap.Error(err),
	)
	return res, fmt.Errorf("publish %s %d: %w", res.Kind, res.ID, err)
}

func (s *Service) emit(ctx context.Context, ev events.Published) {
	ev.PublishedAt = s.clock.Now()
	if _, err := s.events.Publish(ctx, events.TopicPublished, ev); err != nil {
		s.logger.Warn("publish event not sent", zap.String("kind", ev.Kind), zap.Int64("id", ev.ID), zap.Error(err))
	}
}

// Pending publishes editable albums and then editable singles, up to limit
// of each. Album tracks are published through their album. A failing
// record never stops the batch.
func (s *Service) Pending(ctx context.Context, limit int) (Batch, error) {
	var batch Batch
	albums, err := s.store.ListAlbumsByStatus(ctx, music.StatusEditable, limit)
	if err != nil {
		return batch, fmt.Errorf("list editable albums: %w", err)
	}
	for _, a := range albums {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		res, err := s.publishAlbum(ctx, a)
		batch.add(res, err)
	}
	tracks, err := s.store.ListTracksByStatus(ctx, music.StatusEditable, limit)
	if err != nil {
		return batch, fmt.Errorf("list editable tracks: %w", err)
	}
	for _, t := range tracks {
		if t.PostType != music.PostTypeSingle {
			continue
		}
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		res, err := s.publishTrack(ctx, t)
		batch.add(res, err)
	}
	s.logger.Info("pending publish finished", zap.Int("published", batch.Published), zap.Int("failed", batch.Failed))
	return batch, nil
}

func (b *Batch) add(res Result, err error) {
	switch {
	case err == nil:
		b.Published++
	case errors.Is(err, ErrAlreadyPublished):
	default:
		b.Failed++
	}
	if res.Error == "" && err != nil {
		res.Error = err.Error()
	}
	b.Results = append(b.Results, res)
}
