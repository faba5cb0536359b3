// Package events defines the notifications emitted after catalog records
// reach the CMS.
package events

import (
	"context"
	"time"
)

// TopicPublished carries a Published payload.
const TopicPublished = "music.published"

// Published records that an album or track now has a CMS post.
type Published struct {
	Kind        string    `json:"kind"`
	ID          int64     `json:"id"`
	Site        string    `json:"site"`
	SiteID      string    `json:"site_id"`
	Title       string    `json:"title"`
	WPPostID    int64     `json:"wp_post_id"`
	PublishedAt time.Time `json:"published_at"`
}

// Publisher sends an event payload to a topic and returns the message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Nop discards every event.
type Nop struct{}

// Publish returns an empty id.
func (Nop) Publish(context.Context, string, any) (string, error) { return "", nil }
