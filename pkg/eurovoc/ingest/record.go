// Package ingest turns raw catalog rows into candidate records and carries
// the record types that flow through the pipeline.
package ingest

import (
	"errors"
	"strings"
)

// CandidateRecord is one document's metadata before body retrieval
type CandidateRecord struct {
	URL   string
	Celex string
	ELI   string
	Title string
	Date  string
	Lang  string

	Institutions   []string
	WorkTypes      []string
	ProcedureIDs   []string
	DirectoryCodes []string
	Formats        []string

	Concepts   []string // taxonomy labels as published in the row
	ConceptIDs []string // resolved identifiers, deduplicated
}

// EnrichedRecord is a candidate whose body text was extracted.
type EnrichedRecord struct {
	CandidateRecord
	Text string
}

// Validate checks if the record may enter the body-fetch stage
func (r *CandidateRecord) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return errors.New("record URL is required")
	}

	if len(r.ConceptIDs) == 0 {
		return errors.New("record needs at least one resolved concept")
	}

	return nil
}

// HasFormat reports whether the record declares the given format.
// Comparison is case-insensitive and exact.
func (r *CandidateRecord) HasFormat(format string) bool {
	for _, f := range r.Formats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}
