// Package memory keeps published events in process, for tests and for
// deployments without a broker.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Amir-4m/music-crawler/internal/events"
)

// Message captures one publish call.
type Message struct {
	ID      string
	Topic   string
	Payload any
}

// Publisher stores published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
	limit    int
}

var _ events.Publisher = (*Publisher)(nil)

// New returns a Publisher that keeps at most limit messages (0 keeps all).
func New(limit int) *Publisher {
	return &Publisher{limit: limit}
}

// Publish records the message and returns a sequential id.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Payload: payload})
	if p.limit > 0 && len(p.messages) > p.limit {
		p.messages = append([]Message(nil), p.messages[len(p.messages)-p.limit:]...)
	}
	return id, nil
}

// Messages returns a copy of the recorded publishes.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Published returns the recorded events.Published payloads in order.
func (p *Publisher) Published() []events.Published {
	var out []events.Published
	for _, m := range p.Messages() {
		if ev, ok := m.Payload.(events.Published); ok {
			out = append(out, ev)
		}
	}
	return out
}
