// Package sparql queries the publications catalog for the documents
// published in a date window.
package sparql

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"text/template"

	"github.com/cognicore/eurovoc/pkg/eurovoc/httpx"
	"github.com/cognicore/eurovoc/pkg/eurovoc/ingest"
	"github.com/cognicore/eurovoc/pkg/eurovoc/internalerr"
)

// DefaultEndpoint is the public catalog endpoint.
const DefaultEndpoint = "https://publications.europa.eu/webapi/rdf/sparql"

// ResultFormat is the result format selector sent with every query.
const ResultFormat = "application/sparql-results+json"

//go:embed query.tmpl
var queryText string

var (
	queryTemplate = template.Must(template.New("query").Parse(queryText))
	langPattern   = regexp.MustCompile(`^[A-Za-z]{2,3}$`)
)

// Fetcher retrieves a document body and its final status.
type Fetcher interface {
	Fetch(ctx context.Context, url string, header http.Header) (int, []byte, error)
}

// Response is the JSON result document.
type Response struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []ingest.RawRow `json:"bindings"`
	} `json:"results"`
}

// FetchError reports a window whose query could not be answered.
type FetchError struct {
	Window     ingest.Window
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("query window %s: HTTP %d", e.Window, e.StatusCode)
	}
	return fmt.Sprintf("query window %s: %v", e.Window, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Engine renders and executes window queries
type Engine struct {
	client   Fetcher
	endpoint string
	logger   *slog.Logger
}

// NewEngine creates an engine against endpoint ("" means DefaultEndpoint)
func NewEngine(client Fetcher, endpoint string, logger *slog.Logger) *Engine {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{client: client, endpoint: endpoint, logger: logger}
}

// RenderQuery renders the query text for a window.
func RenderQuery(w ingest.Window) (string, error) {
	if w.Lang != "" && !langPattern.MatchString(w.Lang) {
		return "", fmt.Errorf("%w: language filter %q", internalerr.ErrInvalidInput, w.Lang)
	}

	var buf bytes.Buffer
	err := queryTemplate.Execute(&buf, struct {
		Start, End, Lang string
	}{
		Start: w.Start.Format(ingest.DateLayout),
		End:   w.End().Format(ingest.DateLayout),
		Lang:  w.Lang,
	})
	if err != nil {
		return "", fmt.Errorf("render query: %w", err)
	}
	return buf.String(), nil
}

// QueryURL builds the GET URL carrying the query and its run markers.
func (e *Engine) QueryURL(query string) string {
	params := url.Values{}
	params.Set("default-graph-uri", "")
	params.Set("query", query)
	params.Set("format", ResultFormat)
	params.Set("timeout", "0")
	params.Set("debug", "on")
	params.Set("run", "Run Query")
	return e.endpoint + "?" + params.Encode()
}

// QueryWindow issues one request for the window and returns its raw rows.
func (e *Engine) QueryWindow(ctx context.Context, w ingest.Window) ([]ingest.RawRow, error) {
	query, err := RenderQuery(w)
	if err != nil {
		return nil, err
	}

	h := http.Header{}
	h.Set("Accept", ResultFormat)

	status, body, err := e.client.Fetch(ctx, e.QueryURL(query), h)
	if err != nil {
		fe := &FetchError{Window: w, Err: err}
		var se *httpx.StatusError
		if errors.As(err, &se) {
			fe.StatusCode = se.StatusCode
		}
		return nil, fe
	}
	if status != http.StatusOK {
		return nil, &FetchError{Window: w, StatusCode: status}
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &FetchError{Window: w, Err: fmt.Errorf("decode results: %w", err)}
	}

	e.logger.Debug("window queried", "window", w.String(), "rows", len(resp.Results.Bindings))
	return resp.Results.Bindings, nil
}
