// Package curate applies manual lifecycle changes to catalog records.
//
// Crawled records start as void. An editor marks them editable to queue
// them for batch publishing, junk to drop them, or approved to treat them
// as handled without posting. Records that already carry a CMS post id are
// immutable: their status only ever changes through a publish.
package curate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Amir-4m/music-crawler/internal/music"
)

// ErrInvalidStatus is returned for a status outside the lifecycle.
var ErrInvalidStatus = errors.New("invalid status")

// Kind names the record type being changed.
type Kind string

// Record kinds.
const (
	KindTrack Kind = "track"
	KindAlbum Kind = "album"
)

// ParseKind validates a record kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindTrack, KindAlbum:
		return k, nil
	default:
		return "", fmt.Errorf("unknown record kind %q", s)
	}
}

// ParseStatus validates a lifecycle status.
func ParseStatus(s string) (music.Status, error) {
	switch st := music.Status(strings.ToLower(strings.TrimSpace(s))); st {
	case music.StatusVoid, music.StatusJunk, music.StatusEditable, music.StatusApproved:
		return st, nil
	default:
		return "", fmt.Errorf("%q: %w", s, ErrInvalidStatus)
	}
}

// Store is the catalog access needed for status changes.
type Store interface {
	GetTrack(ctx context.Context, id int64) (music.Track, error)
	GetAlbum(ctx context.Context, id int64) (music.Album, error)
	SetTrackStatus(ctx context.Context, id int64, status music.Status) error
	SetAlbumStatus(ctx context.Context, id int64, status music.Status) error
}

// Change reports one applied status change.
type Change struct {
	Kind Kind         `json:"kind"`
	ID   int64        `json:"id"`
	From music.Status `json:"from"`
	To   music.Status `json:"to"`
}

// Service changes record statuses.
type Service struct {
	store  Store
	logger *zap.Logger
}

// New constructs a Service.
func New(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// Set dispatches to SetTrackStatus or SetAlbumStatus.
func (s *Service) Set(ctx context.Context, kind Kind, id int64, status music.Status) (Change, error) {
	if kind == KindAlbum {
		return s.SetAlbumStatus(ctx, id, status)
	}
	return s.SetTrackStatus(ctx, id, status)
}

// SetTrackStatus moves a track to status.
func (s *Service) SetTrackStatus(ctx context.Context, id int64, status music.Status) (Change, error) {
	change := Change{Kind: KindTrack, ID: id, To: status}
	if _, err := ParseStatus(string(status)); err != nil {
		return change, err
	}
	t, err := s.store.GetTrack(ctx, id)
	if err != nil {
		return change, fmt.Errorf("load track %d: %w", id, err)
	}
	change.From = t.Status
	if t.WPPostID != nil {
		return change, fmt.Errorf("track %d has post %d: %w", id, *t.WPPostID, music.ErrAlreadyPublished)
	}
	if t.Status == status {
		return change, nil
	}
	if err := s.store.SetTrackStatus(ctx, id, status); err != nil {
		return change, fmt.Errorf("set track %d status: %w", id, err)
	}
	s.logger.Info("track status changed", zap.Int64("id", id), zap.String("from", string(change.From)), zap.String("to", string(status)))
	return change, nil
}

// SetAlbumStatus moves an album to status. Its tracks keep their own
// status; they are published through the album.
func (s *Service) SetAlbumStatus(ctx context.Context, id int64, status music.Status) (Change, error) {
	change := Change{Kind: KindAlbum, ID: id, To: status}
	if _, err := ParseStatus(string(status)); err != nil {
		return change, err
	}
	a, err := s.store.GetAlbum(ctx, id)
	if err != nil {
		return change, fmt.Errorf("load album %d: %w", id, err)
	}
	change.From = a.Status
	if a.WPPostID != nil {
		return change, fmt.Errorf("album %d has post %d: %w", id, *a.WPPostID, music.ErrAlreadyPublished)
	}
	if a.Status == status {
		return change, nil
	}
	if err := s.store.SetAlbumStatus(ctx, id, status); err != nil {
		return change, fmt.Errorf("set album %d status: %w", id, err)
	}
	s.logger.Info("album status changed", zap.Int64("id", id), zap.String("from", string(change.From)), zap.String("to", string(status)))
	return change, nil
}
