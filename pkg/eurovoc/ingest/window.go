package ingest

import (
	"fmt"
	"time"
)

// DateLayout is the ISO calendar date format used in queries and filenames.
const DateLayout = "2006-01-02"

// Window is a contiguous span of calendar days queried in one request.
type Window struct {
	Start time.Time
	Days  int
	Lang  string // optional language filter, empty for all languages
}

// NewWindow truncates start to a calendar day. Days below one become one.
func NewWindow(start time.Time, days int, lang string) Window {
	if days < 1 {
		days = 1
	}
	y, m, d := start.Date()
	return Window{
		Start: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Days:  days,
		Lang:  lang,
	}
}

// End is the exclusive upper bound of the window.
func (w Window) End() time.Time {
	return w.Start.AddDate(0, 0, w.Days)
}

// Last is the final calendar day included in the window.
func (w Window) Last() time.Time {
	return w.End().AddDate(0, 0, -1)
}

// String renders the window as a single date or a start_last range.
func (w Window) String() string {
	if w.Days <= 1 {
		return w.Start.Format(DateLayout)
	}
	return fmt.Sprintf("%s_%s", w.Start.Format(DateLayout), w.Last().Format(DateLayout))
}
