// Package output writes normalized batches to per-window CSV files.
package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cognicore/eurovoc/pkg/eurovoc/ingest"
	"github.com/cognicore/eurovoc/pkg/eurovoc/normalize"
)

// Extension of every artifact.
const Extension = ".csv"

// Filename builds <dir>/<prefix><window>[_<lang>].csv. The language suffix
// is lower-cased.
func Filename(dir, prefix string, w ingest.Window) string {
	name := prefix + w.String()
	if w.Lang != "" {
		name += "_" + strings.ToLower(w.Lang)
	}
	return filepath.Join(dir, name+Extension)
}

// WriteCSV writes the table with a header row. The file is written to a
// temporary sibling and renamed into place.
func WriteCSV(path string, t normalize.Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := writeTable(tmp, t); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename output file: %w", err)
	}
	return nil
}

func writeTable(f *os.File, t normalize.Table) error {
	w := csv.NewWriter(f)
	if err := w.Write(t.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range t.Rows {
		if err := w.Write(t.Record(row)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush CSV: %w", err)
	}
	return nil
}
