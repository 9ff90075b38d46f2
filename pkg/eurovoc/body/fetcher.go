package body

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/cognicore/eurovoc/pkg/eurovoc/ingest"
	"github.com/cognicore/eurovoc/pkg/eurovoc/internalerr"
	"github.com/cognicore/eurovoc/pkg/eurovoc/metrics"
	"github.com/cognicore/eurovoc/pkg/eurovoc/store"
)

// Getter performs a retrying GET. A non-200 final status is returned
// without an error and with a nil body.
type Getter interface {
	Fetch(ctx context.Context, url string, header http.Header) (int, []byte, error)
}

// Extractor turns a fetched body into plain text.
type Extractor func(content []byte) (string, error)

// Options configures a Fetcher.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Extractors overrides the extractor used for a kind.
	Extractors map[Kind]Extractor
}

// Fetcher retrieves and extracts document bodies. It is safe for concurrent
// use by many workers.
type Fetcher struct {
	client     Getter
	cache      store.BodyCache
	logger     *slog.Logger
	metrics    *metrics.Metrics
	extractors map[Kind]Extractor
	group      singleflight.Group
}

// NewFetcher creates a fetcher. A nil cache disables caching.
func NewFetcher(client Getter, cache store.BodyCache, opts Options) *Fetcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	extractors := map[Kind]Extractor{
		KindPDF:    ExtractPDF,
		KindHTML:   ExtractHTML,
		KindWordML: ExtractWordML,
	}
	for k, e := range opts.Extractors {
		extractors[k] = e
	}
	return &Fetcher{
		client:     client,
		cache:      cache,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		extractors: extractors,
	}
}

// FetchBody returns the record with its extracted text. The second result
// is false when the record has no usable body: no supported format, an
// empty extraction, or a fetch or parse failure. Failures are logged with
// the record URL and never returned.
func (f *Fetcher) FetchBody(ctx context.Context, rec ingest.CandidateRecord) (ingest.EnrichedRecord, bool) {
	route, ok := SelectRoute(rec)
	if !ok {
		f.metrics.Document(metrics.OutcomeUnsupported)
		return ingest.EnrichedRecord{}, false
	}

	text, err := f.Text(ctx, route, rec.URL, rec.Lang)
	if err != nil {
		f.metrics.Document(metrics.OutcomeFailed)
		f.logger.Error("dropping document", "url", rec.URL, "format", route.Format, "error", err)
		return ingest.EnrichedRecord{}, false
	}
	if strings.TrimSpace(text) == "" {
		f.metrics.Document(metrics.OutcomeEmpty)
		f.logger.Info("dropping document with empty body", "url", rec.URL, "format", route.Format)
		return ingest.EnrichedRecord{}, false
	}

	f.metrics.Document(metrics.OutcomeEnriched)
	return ingest.EnrichedRecord{CandidateRecord: rec, Text: text}, true
}

// Text fetches and extracts one body through the cache. Results, including
// empty text from a non-200 response, are cached under the call arguments.
// Errors are not cached.
func (f *Fetcher) Text(ctx context.Context, route Route, url, lang string) (string, error) {
	key := store.BodyKey(string(route.Kind), url, route.Accept, lang)

	if f.cache != nil {
		text, found, err := f.cache.GetBody(ctx, key)
		if err != nil {
			f.logger.Warn("body cache read failed", "url", url, "error", err)
		} else {
			f.metrics.CacheLookup(found)
			if found {
				return text, nil
			}
		}
	}

	v, err, _ := f.group.Do(key, func() (interface{}, error) {
		text, err := f.retrieve(ctx, route, url, lang)
		if err != nil {
			return "", err
		}
		if f.cache != nil {
			if err := f.cache.PutBody(ctx, key, text); err != nil {
				f.logger.Warn("body cache write failed", "url", url, "error", err)
			}
		}
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (f *Fetcher) retrieve(ctx context.Context, route Route, url, lang string) (text string, err error) {
	extract, ok := f.extractors[route.Kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", internalerr.ErrUnsupportedFormat, route.Kind)
	}

	header := http.Header{}
	header.Set("Accept", route.Accept)
	if lang != "" {
		header.Set("Accept-Language", lang)
	}

	status, content, err := f.client.Fetch(ctx, url, header)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		f.logger.Debug("non-200 body response", "url", url, "status", status)
		return "", nil
	}

	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%s extractor panicked: %v", route.Kind, r)
		}
	}()
	return extract(content)
}
