package ingest

import (
	"fmt"
	"strings"

	"github.com/cognicore/eurovoc/pkg/eurovoc/internalerr"
)

// MultiValueSep separates the values of an aggregated result field.
const MultiValueSep = "|||"

// Binding is a single bound variable in a query result.
type Binding struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// RawRow maps a result variable name to its binding.
type RawRow map[string]Binding

// Value returns the raw value of a field and whether it was bound.
func (r RawRow) Value(field string) (string, bool) {
	b, ok := r[field]
	if !ok {
		return "", false
	}
	return b.Value, true
}

// Required returns the value of a field that every usable row must carry.
func (r RawRow) Required(field string) (string, error) {
	v, ok := r.Value(field)
	if !ok {
		return "", fmt.Errorf("%w: %s", internalerr.ErrMissingField, field)
	}
	return v, nil
}

// First returns the first alternative of a multi-valued field, or "" when
// the field is unbound.
func (r RawRow) First(field string) string {
	v, _ := r.Value(field)
	return firstValue(v)
}

// List splits a multi-valued field, trimming values and dropping blanks.
func (r RawRow) List(field string) []string {
	v, _ := r.Value(field)
	return splitValues(v)
}

func firstValue(v string) string {
	first, _, _ := strings.Cut(v, MultiValueSep)
	return first
}

func splitValues(v string) []string {
	if v == "" {
		return []string{}
	}
	parts := strings.Split(v, MultiValueSep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
