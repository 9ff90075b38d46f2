// Package body retrieves document bodies and extracts their text.
package body

import (
	"github.com/cognicore/eurovoc/pkg/eurovoc/ingest"
)

// Kind names a text extractor.
type Kind string

const (
	KindPDF    Kind = "pdf"
	KindHTML   Kind = "html"
	KindWordML Kind = "wordml"
)

// Route is the request shape and extractor chosen for a record.
type Route struct {
	Kind   Kind
	Format string // declared format that selected the route
	Accept string
}

// Accept header values per declared format.
const (
	AcceptPDF   = "application/pdf"
	AcceptXHTML = "application/xhtml+xml"
	AcceptHTML  = "text/html"
	AcceptDOCX  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	AcceptDOC   = "application/msword"
)

// routes are evaluated in order; the first declared format wins.
var routes = []Route{
	{Kind: KindPDF, Format: "pdf", Accept: AcceptPDF},
	{Kind: KindHTML, Format: "xhtml", Accept: AcceptXHTML},
	{Kind: KindHTML, Format: "html", Accept: AcceptHTML},
	{Kind: KindWordML, Format: "docx", Accept: AcceptDOCX},
	{Kind: KindWordML, Format: "doc", Accept: AcceptDOC},
}

// SelectRoute picks the route for a record's declared formats.
func SelectRoute(rec ingest.CandidateRecord) (Route, bool) {
	for _, r := range routes {
		if rec.HasFormat(r.Format) {
			return r, true
		}
	}
	return Route{}, false
}
