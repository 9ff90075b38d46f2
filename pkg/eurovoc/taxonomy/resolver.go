// Package taxonomy resolves thesaurus labels to stable concept identifiers.
package taxonomy

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cognicore/eurovoc/pkg/eurovoc/internalerr"
	"github.com/cognicore/eurovoc/pkg/eurovoc/store"
)

// Defaults for the published thesaurus.
const (
	DefaultURL = "http://publications.europa.eu/resource/dataset/eurovoc"
	DefaultTTL = 120 * time.Minute
)

// Fetcher retrieves a document body and its final status.
type Fetcher interface {
	Fetch(ctx context.Context, url string, header http.Header) (int, []byte, error)
}

// Options configures a Resolver
type Options struct {
	URL    string
	TTL    time.Duration
	Cache  store.TaxonomyCache // optional snapshot persisted across runs
	Logger *slog.Logger
	Now    func() time.Time
}

// Table is an immutable term table.
type Table struct {
	terms    map[string]string
	loadedAt time.Time
}

// Lookup returns the identifier for an already normalized term.
func (t *Table) Lookup(term string) (string, bool) {
	id, ok := t.terms[term]
	return id, ok
}

// Len returns the number of terms.
func (t *Table) Len() int { return len(t.terms) }

// LoadedAt returns when the table was fetched.
func (t *Table) LoadedAt() time.Time { return t.loadedAt }

// Resolver owns the process-wide term table. The table is loaded lazily on
// first use and replaced, never mutated, once the TTL has elapsed. Callers
// arriving during a reload wait for the single in-flight load.
type Resolver struct {
	client Fetcher
	url    string
	ttl    time.Duration
	cache  store.TaxonomyCache
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	table *Table
	group singleflight.Group
}

// NewResolver creates a resolver that fetches through client
func NewResolver(client Fetcher, opts Options) *Resolver {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Resolver{
		client: client,
		url:    opts.URL,
		ttl:    opts.TTL,
		cache:  opts.Cache,
		logger: opts.Logger,
		now:    opts.Now,
	}
}

// Resolve maps terms to identifiers. Terms are trimmed and case-folded;
// each identifier is returned once, in first-seen order. Unknown terms are
// logged and skipped. An error means the table itself is unavailable.
func (r *Resolver) Resolve(ctx context.Context, terms []string) ([]string, error) {
	table, err := r.Table(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		id, ok := table.Lookup(strings.ToLower(strings.TrimSpace(term)))
		if !ok {
			r.logger.Warn("taxonomy term not found", "term", term)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// Table returns the current table, loading it when absent or expired.
func (r *Resolver) Table(ctx context.Context) (*Table, error) {
	if t := r.current(); t != nil {
		return t, nil
	}

	v, err, _ := r.group.Do("taxonomy", func() (any, error) {
		if t := r.current(); t != nil {
			return t, nil
		}
		t, err := r.load(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.table = t
		r.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Table), nil
}

func (r *Resolver) current() *Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.table == nil || r.now().Sub(r.table.loadedAt) >= r.ttl {
		return nil
	}
	return r.table
}

func (r *Resolver) load(ctx context.Context) (*Table, error) {
	now := r.now()

	if r.cache != nil {
		snap, found, err := r.cache.LoadTaxonomy(ctx)
		if err != nil {
			r.logger.Warn("taxonomy snapshot unreadable", "error", err)
		} else if found && snap.Fresh(now, r.ttl) {
			r.logger.Debug("taxonomy loaded from snapshot", "terms", len(snap.Terms))
			return &Table{terms: snap.Terms, loadedAt: snap.FetchedAt}, nil
		}
	}

	terms, err := r.fetch(ctx)
	if err != nil {
		r.logger.Error("taxonomy unavailable", "url", r.url, "error", err)
		return nil, fmt.Errorf("%w: %w", internalerr.ErrTaxonomyUnavailable, err)
	}
	r.logger.Info("taxonomy loaded", "terms", len(terms))

	if r.cache != nil {
		snap := store.TaxonomySnapshot{FetchedAt: now, Terms: terms}
		if err := r.cache.SaveTaxonomy(ctx, snap); err != nil {
			r.logger.Warn("taxonomy snapshot not saved", "error", err)
		}
	}

	return &Table{terms: terms, loadedAt: now}, nil
}

func (r *Resolver) fetch(ctx context.Context) (map[string]string, error) {
	h := http.Header{}
	h.Set("Accept", "application/xml")
	h.Set("Accept-Language", "en")

	status, body, err := r.client.Fetch(ctx, r.url, h)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("vocabulary request returned HTTP %d", status)
	}
	return ParseVocabulary(body)
}
