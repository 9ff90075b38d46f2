package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Store is the local persistence used by the miner: a content cache for
// extracted document bodies and a snapshot of the taxonomy table.
type Store interface {
	Close() error
	BodyCache
	TaxonomyCache
}

// BodyCache holds extracted text keyed by the arguments that produced it.
// Entries never expire.
type BodyCache interface {
	GetBody(ctx context.Context, key string) (text string, found bool, err error)
	PutBody(ctx context.Context, key string, text string) error
}

// TaxonomyCache persists the last fetched term table.
type TaxonomyCache interface {
	LoadTaxonomy(ctx context.Context) (TaxonomySnapshot, bool, error)
	SaveTaxonomy(ctx context.Context, snap TaxonomySnapshot) error
}

// TaxonomySnapshot is a term table together with its fetch time
type TaxonomySnapshot struct {
	FetchedAt time.Time
	Terms     map[string]string // lower-cased label → identifier
}

// Fresh reports whether the snapshot is younger than ttl at now.
func (s TaxonomySnapshot) Fresh(now time.Time, ttl time.Duration) bool {
	if s.FetchedAt.IsZero() || len(s.Terms) == 0 {
		return false
	}
	return now.Sub(s.FetchedAt) < ttl
}

// BodyKey derives a content-addressed cache key from call arguments.
func BodyKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}
