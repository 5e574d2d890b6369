// Package ledger defines the publication ledger: an append-only history of
// the dataset versions the publisher has written.
package ledger

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// Stats summarizes the contact coverage of a published dataset.
type Stats struct {
	Total       int `json:"total"`
	WithWebsite int `json:"with_website"`
	WithPhone   int `json:"with_phone"`
	WithEmail   int `json:"with_email"`
	WithHours   int `json:"with_hours"`
}

// Publication is one dataset version written to the blob store.
type Publication struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Key     string `json:"key"`
	Version string `json:"version"`
	// Duplicates counts input records merged into another by fingerprint.
	Duplicates  int       `json:"duplicates"`
	Stats       Stats     `json:"stats"`
	Size        int64     `json:"size_bytes"`
	ETag        string    `json:"etag,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Filter narrows List. Zero values mean no restriction.
type Filter struct {
	State string
	Limit int
}

// Store persists publications. Implementations must be safe for concurrent use.
type Store interface {
	// Record appends p. Recording an ID twice fails with ErrDuplicate.
	Record(ctx context.Context, p Publication) error
	// List returns matching publications, newest first.
	List(ctx context.Context, f Filter) ([]Publication, error)
	Close() error
}

// ErrDuplicate is returned by Record for an ID that is already stored.
var ErrDuplicate = errors.New("ledger: publication already recorded")

// Validate reports whether p carries the fields every store requires.
func Validate(p Publication) error {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return errors.New("ledger: publication id required")
	case strings.TrimSpace(p.State) == "":
		return errors.New("ledger: publication state required")
	case strings.TrimSpace(p.Key) == "":
		return errors.New("ledger: publication key required")
	case p.PublishedAt.IsZero():
		return errors.New("ledger: publication time required")
	}
	return nil
}

// Sort orders publications newest first, breaking ties by ID.
func Sort(ps []Publication) {
	sort.SliceStable(ps, func(i, j int) bool {
		if !ps[i].PublishedAt.Equal(ps[j].PublishedAt) {
			return ps[i].PublishedAt.After(ps[j].PublishedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}

// NormalizeFilter upper-cases the state and clamps a negative limit.
func NormalizeFilter(f Filter) Filter {
	f.State = strings.ToUpper(strings.TrimSpace(f.State))
	if f.Limit < 0 {
		f.Limit = 0
	}
	return f
}
