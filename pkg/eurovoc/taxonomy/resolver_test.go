package taxonomy

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cognicore/eurovoc/pkg/eurovoc/internalerr"
	"github.com/cognicore/eurovoc/pkg/eurovoc/store"
	"github.com/cognicore/eurovoc/pkg/eurovoc/store/memstore"
)

const sampleVocabulary = `<?xml version="1.0" encoding="UTF-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:simpleType name="eurovoc">
    <xs:restriction base="xs:string">
      <xs:enumeration value="eurovoc:100">
        <xs:annotation><xs:documentation>Agriculture</xs:documentation></xs:annotation>
      </xs:enumeration>
      <xs:enumeration value="eurovoc:200">
        <xs:annotation><xs:documentation>Fisheries / fishing policy</xs:documentation></xs:annotation>
      </xs:enumeration>
      <xs:enumeration value="no-prefix">
        <xs:annotation><xs:documentation>Broken entry</xs:documentation></xs:annotation>
      </xs:enumeration>
      <xs:enumeration value="eurovoc:300"/>
    </xs:restriction>
  </xs:simpleType>
</xs:schema>`

type fakeFetcher struct {
	calls  atomic.Int32
	status int
	body   []byte
	err    error
	delay  time.Duration
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, header http.Header) (int, []byte, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return 0, nil, f.err
	}
	return f.status, f.body, nil
}

func okFetcher() *fakeFetcher {
	return &fakeFetcher{status: http.StatusOK, body: []byte(sampleVocabulary)}
}

func TestParseVocabulary(t *testing.T) {
	terms, err := ParseVocabulary([]byte(sampleVocabulary))
	if err != nil {
		t.Fatalf("ParseVocabulary: %v", err)
	}

	want := map[string]string{"agriculture": "100", "fisheries": "200"}
	if !reflect.DeepEqual(terms, want) {
		t.Errorf("Got %v, want %v", terms, want)
	}
}

func TestParseVocabularyRejectsUnexpectedStructure(t *testing.T) {
	tests := map[string]string{
		"not xml":        "this is not xml",
		"wrong root":     `<html><body>maintenance</body></html>`,
		"no enumeration": `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"><xs:simpleType/></xs:schema>`,
	}
	for name, doc := range tests {
		if _, err := ParseVocabulary([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestResolveNormalizesAndDedupes(t *testing.T) {
	r := NewResolver(okFetcher(), Options{})

	ids, err := r.Resolve(context.Background(), []string{"  AGRICULTURE ", "agriculture", "Unknown Term", "Fisheries"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	want := []string{"100", "200"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("Got %v, want %v", ids, want)
	}
}

func TestResolveUnknownTermsOnly(t *testing.T) {
	r := NewResolver(okFetcher(), Options{})

	ids, err := r.Resolve(context.Background(), []string{"nothing", "here"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("Expected no identifiers, got %v", ids)
	}
}

func TestTableCachedWithinTTL(t *testing.T) {
	f := okFetcher()
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	r := NewResolver(f, Options{Now: func() time.Time { return now }})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(ctx, []string{"agriculture"}); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		now = now.Add(30 * time.Minute)
	}
	if f.calls.Load() != 1 {
		t.Errorf("Expected 1 fetch within TTL, got %d", f.calls.Load())
	}

	// 90 minutes elapsed; crossing 120 triggers a rebuild.
	now = now.Add(31 * time.Minute)
	if _, err := r.Resolve(ctx, []string{"agriculture"}); err != nil {
		t.Fatalf("Resolve after expiry: %v", err)
	}
	if f.calls.Load() != 2 {
		t.Errorf("Expected rebuild after TTL, got %d fetches", f.calls.Load())
	}
}

func TestConcurrentResolveLoadsOnce(t *testing.T) {
	f := okFetcher()
	f.delay = 20 * time.Millisecond
	r := NewResolver(f, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids, err := r.Resolve(context.Background(), []string{"fisheries"})
			if err != nil || len(ids) != 1 {
				t.Errorf("Resolve: ids=%v err=%v", ids, err)
			}
		}()
	}
	wg.Wait()

	if f.calls.Load() != 1 {
		t.Errorf("Expected a single load, got %d", f.calls.Load())
	}
}

func TestFetchFailureIsFatal(t *testing.T) {
	tests := map[string]*fakeFetcher{
		"transport": {err: errors.New("connection refused")},
		"status":    {status: http.StatusNotFound},
		"garbage":   {status: http.StatusOK, body: []byte("<html/>")},
	}
	for name, f := range tests {
		r := NewResolver(f, Options{})
		_, err := r.Resolve(context.Background(), []string{"agriculture"})
		if !errors.Is(err, internalerr.ErrTaxonomyUnavailable) {
			t.Errorf("%s: expected ErrTaxonomyUnavailable, got %v", name, err)
		}
	}
}

func TestSnapshotReusedWhenFresh(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	cache := memstore.New()
	cache.SaveTaxonomy(ctx, store.TaxonomySnapshot{
		FetchedAt: now.Add(-time.Hour),
		Terms:     map[string]string{"agriculture": "100"},
	})

	f := okFetcher()
	r := NewResolver(f, Options{Cache: cache, Now: func() time.Time { return now }})

	ids, err := r.Resolve(ctx, []string{"Agriculture"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ids) != 1 || ids[0] != "100" {
		t.Errorf("Got %v", ids)
	}
	if f.calls.Load() != 0 {
		t.Errorf("Fresh snapshot should avoid network, got %d fetches", f.calls.Load())
	}
}

func TestStaleSnapshotRefetchedAndSaved(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	cache := memstore.New()
	cache.SaveTaxonomy(ctx, store.TaxonomySnapshot{
		FetchedAt: now.Add(-3 * time.Hour),
		Terms:     map[string]string{"agriculture": "old"},
	})

	f := okFetcher()
	r := NewResolver(f, Options{Cache: cache, Now: func() time.Time { return now }})

	ids, err := r.Resolve(ctx, []string{"agriculture"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ids[0] != "100" {
		t.Errorf("Expected refreshed identifier, got %v", ids)
	}
	if f.calls.Load() != 1 {
		t.Errorf("Expected 1 fetch, got %d", f.calls.Load())
	}

	snap, found, _ := cache.LoadTaxonomy(ctx)
	if !found || !snap.FetchedAt.Equal(now) || snap.Terms["fisheries"] != "200" {
		t.Errorf("Snapshot not replaced: %+v", snap)
	}
}
