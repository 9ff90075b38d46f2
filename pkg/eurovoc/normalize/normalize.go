// Package normalize projects enriched records onto the fixed output schema,
// tags keyword matches and deduplicates rows.
package normalize

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/cognicore/eurovoc/pkg/eurovoc/ingest"
)

// Output columns, in order. Keyword match columns follow them.
const (
	ColURL            = "url"
	ColCelex          = "celex"
	ColELI            = "eli"
	ColTitle          = "title"
	ColDate           = "date"
	ColLang           = "lang"
	ColInstitutions   = "institutions"
	ColWorkTypes      = "work_types"
	ColProcedureIDs   = "procedure_ids"
	ColDirectoryCodes = "directory_codes"
	ColFormats        = "formats"
	ColConcepts       = "eurovoc_concepts"
	ColConceptIDs     = "eurovoc_concepts_ids"
	ColText           = "text"
)

// SchemaColumns is the fixed column set every batch carries.
var SchemaColumns = []string{
	ColURL, ColCelex, ColELI, ColTitle, ColDate, ColLang,
	ColInstitutions, ColWorkTypes, ColProcedureIDs, ColDirectoryCodes,
	ColFormats, ColConcepts, ColConceptIDs, ColText,
}

// MatchPrefix starts every keyword column name.
const MatchPrefix = "match_"

var columnReplacer = strings.NewReplacer(" ", "_", "-", "_")

// ColumnName derives the match column for a keyword.
func ColumnName(keyword string) string {
	return MatchPrefix + columnReplacer.Replace(strings.ToLower(keyword))
}

// Options controls keyword tagging, deduplication and filtering.
type Options struct {
	Keywords    []string
	UniqueOn    string
	OnlyMatches bool
	Logger      *slog.Logger
}

// Row is one output row: a record plus one flag per keyword column.
type Row struct {
	Record  ingest.EnrichedRecord
	Matches []bool
}

// Table is a normalized batch.
type Table struct {
	Columns []string
	Rows    []Row
}

// Normalize projects records onto the schema. The column set depends only
// on the keywords, never on the records, so an empty batch has the same
// columns as a full one.
func Normalize(records []ingest.EnrichedRecord, opts Options) Table {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	matchers := compileKeywords(opts.Keywords)
	t := Table{Columns: slices.Clone(SchemaColumns)}
	for _, m := range matchers {
		t.Columns = append(t.Columns, m.column)
	}

	t.Rows = make([]Row, 0, len(records))
	for _, rec := range records {
		row := Row{Record: rec, Matches: make([]bool, len(matchers))}
		for i, m := range matchers {
			row.Matches[i] = m.re.MatchString(rec.Text)
		}
		t.Rows = append(t.Rows, row)
	}

	if opts.UniqueOn != "" {
		if slices.Contains(t.Columns, opts.UniqueOn) {
			t.Rows = t.dedupeLast(opts.UniqueOn)
		} else {
			logger.Warn("unique column not in schema, rows left unchanged", "column", opts.UniqueOn)
		}
	}

	if opts.OnlyMatches && len(matchers) > 0 {
		t.Rows = slices.DeleteFunc(t.Rows, func(r Row) bool {
			return !slices.Contains(r.Matches, true)
		})
	}

	return t
}

type matcher struct {
	column string
	re     *regexp.Regexp
}

// compileKeywords skips blank keywords and keywords whose column name was
// already taken by an earlier keyword.
func compileKeywords(keywords []string) []matcher {
	var out []matcher
	seen := make(map[string]bool)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		col := ColumnName(kw)
		if seen[col] {
			continue
		}
		seen[col] = true
		out = append(out, matcher{
			column: col,
			re:     regexp.MustCompile("(?i)" + regexp.QuoteMeta(kw)),
		})
	}
	return out
}

// dedupeLast keeps, for each value of col, only the last row carrying it.
// Survivors keep their relative order.
func (t Table) dedupeLast(col string) []Row {
	last := make(map[string]int, len(t.Rows))
	for i, r := range t.Rows {
		v, _ := t.Cell(r, col)
		last[v] = i
	}
	out := make([]Row, 0, len(last))
	for i, r := range t.Rows {
		v, _ := t.Cell(r, col)
		if last[v] == i {
			out = append(out, r)
		}
	}
	return out
}

// Cell renders one column of a row. List columns are JSON arrays and match
// columns are "true" or "false". The second result is false for an unknown
// column.
func (t Table) Cell(r Row, col string) (string, bool) {
	rec := r.Record
	switch col {
	case ColURL:
		return rec.URL, true
	case ColCelex:
		return rec.Celex, true
	case ColELI:
		return rec.ELI, true
	case ColTitle:
		return rec.Title, true
	case ColDate:
		return rec.Date, true
	case ColLang:
		return rec.Lang, true
	case ColInstitutions:
		return jsonList(rec.Institutions), true
	case ColWorkTypes:
		return jsonList(rec.WorkTypes), true
	case ColProcedureIDs:
		return jsonList(rec.ProcedureIDs), true
	case ColDirectoryCodes:
		return jsonList(rec.DirectoryCodes), true
	case ColFormats:
		return jsonList(rec.Formats), true
	case ColConcepts:
		return jsonList(rec.Concepts), true
	case ColConceptIDs:
		return jsonList(rec.ConceptIDs), true
	case ColText:
		return rec.Text, true
	}

	if len(t.Columns) <= len(SchemaColumns) {
		return "", false
	}
	if i := slices.Index(t.Columns[len(SchemaColumns):], col); i >= 0 && i < len(r.Matches) {
		return strconv.FormatBool(r.Matches[i]), true
	}
	return "", false
}

// Record renders a row in column order.
func (t Table) Record(r Row) []string {
	out := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		out[i], _ = t.Cell(r, col)
	}
	return out
}

// Match reports the value of a keyword column for a row.
func (t Table) Match(r Row, col string) bool {
	v, _ := t.Cell(r, col)
	return v == "true"
}

func jsonList(values []string) string {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return string(b)
}
