// Package stars fetches the complete stargazer history of a repository.
//
// A probe request for the first page discovers the total page count from the
// link response header, the remaining pages are fetched in fixed-size batches
// (concurrent within a batch, sequential across batches) and every entry is
// projected down to its starred_at timestamp.
package stars

import (
	"time"

	ggh "github.com/google/go-github/v70/github"
)

// Star is one stargazer event: when somebody starred the repository.
type Star struct {
	StarredAt time.Time
}

// Extract flattens per-page stargazer responses into a single sequence of
// Star records, preserving page order and in-page order. All fields other
// than the starred_at timestamp are discarded.
func Extract(pages [][]*ggh.Stargazer) []Star {
	var records []Star
	for _, page := range pages {
		for _, gazer := range page {
			records = append(records, Star{StarredAt: gazer.GetStarredAt().Time})
		}
	}
	return records
}
