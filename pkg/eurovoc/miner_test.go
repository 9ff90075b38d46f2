package eurovoc

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cognicore/eurovoc/pkg/eurovoc/body"
	"github.com/cognicore/eurovoc/pkg/eurovoc/httpx"
	"github.com/cognicore/eurovoc/pkg/eurovoc/ingest"
	"github.com/cognicore/eurovoc/pkg/eurovoc/internalerr"
	"github.com/cognicore/eurovoc/pkg/eurovoc/metrics"
	"github.com/cognicore/eurovoc/pkg/eurovoc/normalize"
	"github.com/cognicore/eurovoc/pkg/eurovoc/pipeline"
	"github.com/cognicore/eurovoc/pkg/eurovoc/sparql"
	"github.com/cognicore/eurovoc/pkg/eurovoc/store/memstore"
	"github.com/cognicore/eurovoc/pkg/eurovoc/taxonomy"
)

const vocabulary = `<?xml version="1.0" encoding="UTF-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:simpleType name="eurovoc">
    <xs:restriction base="xs:string">
      <xs:enumeration value="eurovoc:100">
        <xs:annotation><xs:documentation>Agriculture</xs:documentation></xs:annotation>
      </xs:enumeration>
      <xs:enumeration value="eurovoc:200">
        <xs:annotation><xs:documentation>Fisheries</xs:documentation></xs:annotation>
      </xs:enumeration>
    </xs:restriction>
  </xs:simpleType>
</xs:schema>`

// cellar fakes the query endpoint, the vocabulary and the document store.
type cellar struct {
	*httptest.Server
	subjects      string
	vocabStatus   int
	failDate      string // queries for this window start fail with 400
	queries       atomic.Int32
	vocabRequests atomic.Int32
}

func newCellar(t *testing.T, subjects string) *cellar {
	t.Helper()
	c := &cellar{subjects: subjects, vocabStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/eurovoc", func(w http.ResponseWriter, r *http.Request) {
		c.vocabRequests.Add(1)
		if c.vocabStatus != http.StatusOK {
			w.WriteHeader(c.vocabStatus)
			return
		}
		w.Write([]byte(vocabulary))
	})
	mux.HandleFunc("/sparql", func(w http.ResponseWriter, r *http.Request) {
		c.queries.Add(1)
		if c.failDate != "" && strings.Contains(r.URL.Query().Get("query"), `?date >= "`+c.failDate+`"`) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		row := map[string]map[string]string{
			"cellarURIs":     {"type": "literal", "value": c.URL + "/doc/1"},
			"celexIds":       {"type": "literal", "value": "32026R0001"},
			"title":          {"type": "literal", "value": "Regulation fixing fishing opportunities"},
			"date":           {"type": "literal", "value": "2026-03-02"},
			"langIdentifier": {"type": "literal", "value": "ENG"},
			"mtypes":         {"type": "literal", "value": "html"},
			"subjects":       {"type": "literal", "value": c.subjects},
			"authors":        {"type": "literal", "value": "Council of the European Union"},
		}
		resp := map[string]any{
			"head":    map[string]any{"vars": []string{"cellarURIs", "subjects"}},
			"results": map[string]any{"bindings": []any{row}},
		}
		w.Header().Set("Content-Type", sparql.ResultFormat)
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/doc/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><h1>Fishing opportunities</h1><p>The Quota for cod is set.</p></body></html>"))
	})
	c.Server = httptest.NewServer(mux)
	t.Cleanup(c.Close)
	return c
}

func newTestMiner(t *testing.T, c *cellar, outDir string, m *metrics.Metrics, opts normalize.Options) *Miner {
	t.Helper()
	client := httpx.New(httpx.Options{
		Retry: httpx.RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	})
	st := memstore.New()
	resolver := taxonomy.NewResolver(client, taxonomy.Options{URL: c.URL + "/eurovoc", Cache: st})
	orch := pipeline.New(
		sparql.NewEngine(client, c.URL+"/sparql", nil),
		ingest.NewAssembler(resolver, nil),
		body.NewFetcher(client, st, body.Options{Metrics: m}),
		pipeline.Options{Workers: 2},
	)
	return New(Options{
		Runner:    orch,
		OutputDir: outDir,
		Prefix:    "eurlex_",
		Normalize: opts,
		Metrics:   m,
	})
}

func readArtifact(t *testing.T, path string) []map[string]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) == 0 {
		t.Fatal("Artifact has no header")
	}
	var out []map[string]string
	for _, r := range rows[1:] {
		rec := make(map[string]string)
		for i, col := range rows[0] {
			rec[col] = r[i]
		}
		out = append(out, rec)
	}
	return out
}

func header(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	h, err := csv.NewReader(f).Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return h
}

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func TestMineWindowTagsAndWrites(t *testing.T) {
	c := newCellar(t, "Agriculture|||Fisheries")
	out := t.TempDir()
	reg := prometheus.NewRegistry()
	m := newTestMiner(t, c, out, metrics.New(reg), normalize.Options{Keywords: []string{"quota"}})

	res := m.MineWindow(context.Background(), ingest.NewWindow(day, 1, "ENG"))
	if res.Err != nil {
		t.Fatalf("MineWindow: %v", res.Err)
	}
	if want := filepath.Join(out, "eurlex_2026-03-02_eng.csv"); res.Path != want {
		t.Errorf("Path = %s, want %s", res.Path, want)
	}

	rows := readArtifact(t, res.Path)
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row["eurovoc_concepts_ids"] != `["100","200"]` {
		t.Errorf("eurovoc_concepts_ids = %s", row["eurovoc_concepts_ids"])
	}
	if row["formats"] != `["html"]` {
		t.Errorf("formats = %s", row["formats"])
	}
	if row["match_quota"] != "true" {
		t.Errorf("match_quota = %s", row["match_quota"])
	}
	if row["lang"] != "eng" || row["celex"] != "32026R0001" {
		t.Errorf("lang=%s celex=%s", row["lang"], row["celex"])
	}
	if !strings.Contains(row["text"], "Quota for cod") {
		t.Errorf("text = %q", row["text"])
	}
}

func TestMineWindowNoResolvedTerms(t *testing.T) {
	c := newCellar(t, "Space exploration")
	out := t.TempDir()
	reg := prometheus.NewRegistry()
	m := newTestMiner(t, c, out, metrics.New(reg), normalize.Options{Keywords: []string{"quota"}})

	res := m.MineWindow(context.Background(), ingest.NewWindow(day, 1, ""))
	if res.Err != nil {
		t.Fatalf("MineWindow: %v", res.Err)
	}
	if res.Rows != 0 {
		t.Errorf("Expected zero rows, got %d", res.Rows)
	}

	want := append(append([]string{}, normalize.SchemaColumns...), "match_quota")
	if got := header(t, res.Path); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Header = %v", got)
	}
	if rows := readArtifact(t, res.Path); len(rows) != 0 {
		t.Errorf("Expected header-only artifact, got %d rows", len(rows))
	}
}

func TestMineDaysContinuesPastFailedWindow(t *testing.T) {
	c := newCellar(t, "Fisheries")
	c.failDate = "2026-03-01"
	out := t.TempDir()
	reg := prometheus.NewRegistry()
	m := newTestMiner(t, c, out, metrics.New(reg), normalize.Options{})

	results, err := m.MineDays(context.Background(), day, 3, 1, "")
	if err != nil {
		t.Fatalf("MineDays: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 window results, got %d", len(results))
	}

	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Window.String())
			continue
		}
		if _, err := os.Stat(r.Path); err != nil {
			t.Errorf("Missing artifact for %s: %v", r.Window, err)
		}
	}
	if strings.Join(failed, ",") != "2026-03-01" {
		t.Errorf("Failed windows = %v", failed)
	}
	if c.vocabRequests.Load() != 1 {
		t.Errorf("Taxonomy should load once per run, got %d requests", c.vocabRequests.Load())
	}

	var fe *sparql.FetchError
	if !errors.As(results[1].Err, &fe) || fe.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected FetchError with status 400, got %v", results[1].Err)
	}
	if got, err := testutil.GatherAndCount(reg, "eurovoc_windows_total"); err != nil || got != 2 {
		t.Errorf("Expected ok and failed window series, got %d (%v)", got, err)
	}
}

func TestMineDaysAbortsWithoutTaxonomy(t *testing.T) {
	c := newCellar(t, "Fisheries")
	c.vocabStatus = http.StatusNotFound
	out := t.TempDir()
	m := newTestMiner(t, c, out, nil, normalize.Options{})

	results, err := m.MineDays(context.Background(), day, 5, 1, "")
	if !errors.Is(err, internalerr.ErrTaxonomyUnavailable) {
		t.Fatalf("Expected ErrTaxonomyUnavailable, got %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Expected the run to stop after the first window, got %d results", len(results))
	}
	entries, _ := os.ReadDir(out)
	if len(entries) != 0 {
		t.Errorf("No artifact expected for an aborted window, found %d", len(entries))
	}
}

func TestWindows(t *testing.T) {
	tests := []struct {
		days, windowDays int
		want             []string
	}{
		{1, 1, []string{"2026-03-02"}},
		{3, 1, []string{"2026-03-02", "2026-03-01", "2026-02-28"}},
		{7, 3, []string{"2026-02-28_2026-03-02", "2026-02-25_2026-02-27", "2026-02-24"}},
		{2, 5, []string{"2026-03-01_2026-03-02"}},
		{0, 1, nil},
	}

	for _, tt := range tests {
		var got []string
		for _, w := range Windows(day, tt.days, tt.windowDays, "") {
			got = append(got, w.String())
		}
		if strings.Join(got, " ") != strings.Join(tt.want, " ") {
			t.Errorf("Windows(days=%d, window=%d) = %v, want %v", tt.days, tt.windowDays, got, tt.want)
		}
	}
}
