// Package export persists star records as a CSV file.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/harupy/fetch-stars/internal/stars"
)

const starredAtColumn = "starred_at"

// WriteCSV writes records to path: one starred_at header row, then one
// RFC3339 timestamp row per record, in the order given.
func WriteCSV(path string, records []stars.Star) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{starredAtColumn}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, record := range records {
		if err := w.Write([]string{record.StarredAt.UTC().Format(time.RFC3339)}); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}
