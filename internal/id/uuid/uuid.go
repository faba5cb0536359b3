// Package uuid generates time-ordered ids for job requests.
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator creates UUIDv7 strings, optionally prefixed with a kind such as
// "run" so ids in logs say what they identify.
type Generator struct {
	prefix string
}

// New returns a Generator. An empty prefix yields bare UUIDs.
func New(prefix string) *Generator {
	return &Generator{prefix: strings.TrimSuffix(prefix, "-")}
}

// NewID returns a new id.
func (g *Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	if g.prefix == "" {
		return id.String(), nil
	}
	return g.prefix + "-" + id.String(), nil
}

// Parse strips the generator prefix from id and validates the remainder.
func (g *Generator) Parse(id string) (uuid.UUID, error) {
	raw := id
	if g.prefix != "" {
		var ok bool
		raw, ok = strings.CutPrefix(id, g.prefix+"-")
		if !ok {
			return uuid.Nil, fmt.Errorf("id %q lacks prefix %q", id, g.prefix)
		}
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse id %q: %w", id, err)
	}
	return parsed, nil
}
