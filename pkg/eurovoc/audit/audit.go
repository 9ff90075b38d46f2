// Package audit checks an output directory for calendar days without an
// artifact.
package audit

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/cognicore/eurovoc/pkg/eurovoc/ingest"
	"github.com/cognicore/eurovoc/pkg/eurovoc/internalerr"
)

// Report summarizes coverage between the first and last covered day.
type Report struct {
	First   time.Time
	Last    time.Time
	Files   int
	Days    int         // distinct covered days
	Missing []time.Time // uncovered days in [First, Last], ascending
}

// Scan reads dir for artifacts named <prefix>DATE or <prefix>START_LAST and
// reports the days they cover. It returns ErrNotFound when nothing matches.
func Scan(dir, prefix string) (Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Report{}, fmt.Errorf("read output directory: %w", err)
	}

	pattern := regexp.MustCompile("^" + regexp.QuoteMeta(prefix) +
		`(\d{4}-\d{2}-\d{2})(?:_(\d{4}-\d{2}-\d{2}))?`)

	var covered []time.Time
	files := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := pattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		start, err := time.Parse(ingest.DateLayout, m[1])
		if err != nil {
			continue
		}
		last := start
		if m[2] != "" {
			if last, err = time.Parse(ingest.DateLayout, m[2]); err != nil || last.Before(start) {
				continue
			}
		}
		files++
		for d := start; !d.After(last); d = d.AddDate(0, 0, 1) {
			covered = append(covered, d)
		}
	}

	if len(covered) == 0 {
		return Report{}, fmt.Errorf("%w: no artifacts with prefix %q in %s", internalerr.ErrNotFound, prefix, dir)
	}
	r := Check(covered)
	r.Files = files
	return r, nil
}

// Check computes coverage for a set of days. Duplicates are ignored.
func Check(days []time.Time) Report {
	if len(days) == 0 {
		return Report{}
	}

	seen := make(map[time.Time]bool, len(days))
	for _, d := range days {
		y, m, dd := d.Date()
		seen[time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)] = true
	}
	sorted := make([]time.Time, 0, len(seen))
	for d := range seen {
		sorted = append(sorted, d)
	}
	slices.SortFunc(sorted, func(a, b time.Time) int { return a.Compare(b) })

	r := Report{First: sorted[0], Last: sorted[len(sorted)-1], Days: len(sorted)}
	for d := r.First; !d.After(r.Last); d = d.AddDate(0, 0, 1) {
		if !seen[d] {
			r.Missing = append(r.Missing, d)
		}
	}
	return r
}

// Complete reports whether no day is missing.
func (r Report) Complete() bool {
	return len(r.Missing) == 0
}

// Render writes the report as an aligned two-column table followed by at
// most limit missing days. A limit of zero lists them all.
func (r Report) Render(w io.Writer, limit int) error {
	rows := [][2]string{
		{"Range analyzed", r.First.Format(ingest.DateLayout) + " to " + r.Last.Format(ingest.DateLayout)},
		{"Artifacts", strconv.Itoa(r.Files)},
		{"Days with data", strconv.Itoa(r.Days)},
		{"Missing days", strconv.Itoa(len(r.Missing))},
	}

	width := 0
	for _, row := range rows {
		width = max(width, runewidth.StringWidth(row[0]))
	}

	var sb strings.Builder
	for _, row := range rows {
		sb.WriteString(row[0])
		sb.WriteString(strings.Repeat(" ", width-runewidth.StringWidth(row[0])))
		sb.WriteString("  ")
		sb.WriteString(row[1])
		sb.WriteByte('\n')
	}

	if r.Complete() {
		sb.WriteString("\nNo missing days in range.\n")
	} else {
		shown := r.Missing
		if limit > 0 && len(shown) > limit {
			shown = shown[:limit]
		}
		sb.WriteString("\nMissing:\n")
		for _, d := range shown {
			sb.WriteString("  ")
			sb.WriteString(d.Format(ingest.DateLayout))
			sb.WriteByte('\n')
		}
		if rest := len(r.Missing) - len(shown); rest > 0 {
			fmt.Fprintf(&sb, "  ... and %d more\n", rest)
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
