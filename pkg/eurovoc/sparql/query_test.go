package sparql

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cognicore/eurovoc/pkg/eurovoc/httpx"
	"github.com/cognicore/eurovoc/pkg/eurovoc/ingest"
	"github.com/cognicore/eurovoc/pkg/eurovoc/internalerr"
)

const sampleResults = `{
  "head": {"vars": ["cellarURIs", "title", "date", "langIdentifier", "mtypes", "subjects"]},
  "results": {"bindings": [
    {
      "cellarURIs": {"type": "literal", "value": "http://publications.europa.eu/resource/cellar/abc|||http://publications.europa.eu/resource/cellar/def"},
      "title": {"type": "literal", "value": "Council Regulation on fishing quotas"},
      "date": {"type": "literal", "value": "2026-03-02"},
      "langIdentifier": {"type": "literal", "value": "ENG"},
      "mtypes": {"type": "literal", "value": "html|||pdf"},
      "subjects": {"type": "literal", "value": "Agriculture|||Fisheries"}
    }
  ]}
}`

func testClient() *httpx.Client {
	return httpx.New(httpx.Options{
		Retry: httpx.RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond},
	})
}

func testWindow(lang string) ingest.Window {
	return ingest.NewWindow(time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC), 1, lang)
}

func TestRenderQueryBounds(t *testing.T) {
	q, err := RenderQuery(ingest.NewWindow(time.Date(2026, 3, 30, 0, 0, 0, 0, time.UTC), 3, ""))
	if err != nil {
		t.Fatalf("RenderQuery: %v", err)
	}
	if !strings.Contains(q, `"2026-03-30"^^xsd:date`) || !strings.Contains(q, `"2026-04-02"^^xsd:date`) {
		t.Errorf("Query missing window bounds:\n%s", q)
	}
	if strings.Contains(q, "str(?langIdentifier)") {
		t.Error("Language filter rendered without a language")
	}
}

func TestRenderQueryLanguage(t *testing.T) {
	q, err := RenderQuery(testWindow("ENG"))
	if err != nil {
		t.Fatalf("RenderQuery: %v", err)
	}
	if !strings.Contains(q, `str(?langIdentifier) = "ENG"`) {
		t.Errorf("Query missing language filter:\n%s", q)
	}
}

func TestRenderQueryRejectsUnsafeLanguage(t *testing.T) {
	for _, lang := range []string{`EN") } #`, "ENGLISH", "e1"} {
		_, err := RenderQuery(testWindow(lang))
		if !errors.Is(err, internalerr.ErrInvalidInput) {
			t.Errorf("Lang %q: expected ErrInvalidInput, got %v", lang, err)
		}
	}
}

func TestQueryWindow(t *testing.T) {
	var got http.Header
	var params map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		params = r.URL.Query()
		w.Header().Set("Content-Type", ResultFormat)
		w.Write([]byte(sampleResults))
	}))
	defer srv.Close()

	e := NewEngine(testClient(), srv.URL, nil)
	rows, err := e.QueryWindow(context.Background(), testWindow(""))
	if err != nil {
		t.Fatalf("QueryWindow: %v", err)
	}

	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	if v, _ := rows[0].Value("subjects"); v != "Agriculture|||Fisheries" {
		t.Errorf("subjects = %q", v)
	}

	if got.Get("User-Agent") == "" {
		t.Error("User-Agent header not sent")
	}
	for key, want := range map[string]string{
		"format": ResultFormat,
		"debug":  "on",
		"run":    "Run Query",
	} {
		if params[key][0] != want {
			t.Errorf("Param %s = %q, want %q", key, params[key][0], want)
		}
	}
	if !strings.Contains(params["query"][0], "2026-03-02") {
		t.Error("Query param does not carry the window start")
	}
}

func TestQueryWindowStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	e := NewEngine(testClient(), srv.URL, nil)
	_, err := e.QueryWindow(context.Background(), testWindow(""))

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Expected *FetchError, got %v", err)
	}
	if fe.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", fe.StatusCode)
	}
	if fe.Window.String() != "2026-03-02" {
		t.Errorf("Window = %s", fe.Window)
	}
}

func TestQueryWindowExhaustedRetries(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewEngine(testClient(), srv.URL, nil)
	_, err := e.QueryWindow(context.Background(), testWindow(""))

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Expected *FetchError, got %v", err)
	}
	if fe.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", fe.StatusCode)
	}
	if hits != 2 {
		t.Errorf("Expected 2 attempts, got %d", hits)
	}
}

func TestQueryWindowMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	e := NewEngine(testClient(), srv.URL, nil)
	_, err := e.QueryWindow(context.Background(), testWindow(""))

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Expected *FetchError, got %v", err)
	}
}
