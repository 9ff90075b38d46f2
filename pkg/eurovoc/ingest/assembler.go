package ingest

import (
	"context"
	"log/slog"
	"strings"
)

// Result fields read from each query row.
const (
	FieldCellarURIs     = "cellarURIs"
	FieldCelexIDs       = "celexIds"
	FieldELIIDs         = "eliIds"
	FieldTitle          = "title"
	FieldDate           = "date"
	FieldLang           = "langIdentifier"
	FieldMTypes         = "mtypes"
	FieldSubjects       = "subjects"
	FieldAuthors        = "authors"
	FieldWorkTypes      = "workTypes"
	FieldProcedureIDs   = "procedureIds"
	FieldDirectoryCodes = "directoryCodes"
)

// TermResolver maps taxonomy labels to concept identifiers
type TermResolver interface {
	Resolve(ctx context.Context, terms []string) ([]string, error)
}

// Assembler flattens query rows into candidate records
type Assembler struct {
	resolver TermResolver
	logger   *slog.Logger
}

// NewAssembler creates an assembler backed by the given resolver
func NewAssembler(resolver TermResolver, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{resolver: resolver, logger: logger}
}

// Assemble converts rows into candidates in row order. Rows without
// resolvable subjects or missing a required field are skipped. The only
// error returned is a resolver failure, which the caller treats as fatal.
func (a *Assembler) Assemble(ctx context.Context, rows []RawRow) ([]CandidateRecord, error) {
	records := make([]CandidateRecord, 0, len(rows))

	for i, row := range rows {
		terms := SubjectTerms(row)
		if len(terms) == 0 {
			continue
		}

		ids, err := a.resolver.Resolve(ctx, terms)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			continue
		}

		rec, err := buildRecord(row)
		if err != nil {
			a.logger.Warn("skipping malformed row", "row", i, "error", err)
			continue
		}
		rec.Concepts = terms
		rec.ConceptIDs = ids

		if err := rec.Validate(); err != nil {
			a.logger.Warn("skipping invalid record", "row", i, "error", err)
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// SubjectTerms extracts taxonomy labels from the subjects field. Non-breaking
// spaces are folded to plain spaces before splitting.
func SubjectTerms(row RawRow) []string {
	v, _ := row.Value(FieldSubjects)
	return splitValues(strings.ReplaceAll(v, "\u00a0", " "))
}

func buildRecord(row RawRow) (CandidateRecord, error) {
	var rec CandidateRecord

	uris, err := row.Required(FieldCellarURIs)
	if err != nil {
		return rec, err
	}
	title, err := row.Required(FieldTitle)
	if err != nil {
		return rec, err
	}
	date, err := row.Required(FieldDate)
	if err != nil {
		return rec, err
	}
	lang, err := row.Required(FieldLang)
	if err != nil {
		return rec, err
	}
	mtypes, err := row.Required(FieldMTypes)
	if err != nil {
		return rec, err
	}

	rec = CandidateRecord{
		URL:            strings.TrimSpace(firstValue(uris)),
		Celex:          row.First(FieldCelexIDs),
		ELI:            row.First(FieldELIIDs),
		Title:          firstValue(title),
		Date:           date,
		Lang:           strings.ToLower(lang),
		Institutions:   row.List(FieldAuthors),
		WorkTypes:      row.List(FieldWorkTypes),
		ProcedureIDs:   row.List(FieldProcedureIDs),
		DirectoryCodes: row.List(FieldDirectoryCodes),
		Formats:        splitValues(mtypes),
	}
	return rec, nil
}
