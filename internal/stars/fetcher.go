package stars

import (
	"context"
	"fmt"
	"log/slog"

	ggh "github.com/google/go-github/v70/github"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBatchSize is the maximum number of page requests in flight at
	// once. Batches run strictly in sequence, which bounds the pressure on
	// the API rate limit.
	DefaultBatchSize = 30

	recordsPerPage = 100
)

type Activity interface {
	ListStargazers(ctx context.Context, owner string, repo string, opts *ggh.ListOptions) ([]*ggh.Stargazer, *ggh.Response, error)
}

// Fetcher retrieves all stargazer pages of one repository.
type Fetcher struct {
	Activity  Activity
	BatchSize int
	Retry     RetryConfig
	Limiter   *Limiter
	Logger    *slog.Logger
}

// FetchAll fetches every stargazer of owner/repo and returns them in page
// order. Page 1 doubles as the pagination probe: its link header advertises
// the last page number (0 if there is only one page) and its body is the
// first page of records. Pages 2..lastPage are then fetched in batches of at
// most BatchSize; within a batch requests run concurrently, and a batch only
// starts once the previous one has fully resolved. Any failed request aborts
// the whole fetch.
func (f *Fetcher) FetchAll(ctx context.Context, owner, repo string) ([]Star, error) {
	logger := f.logger()

	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	firstPage, resp, err := f.page(ctx, owner, repo, 1)
	if err != nil {
		return nil, fmt.Errorf("probe page 1: %w", err)
	}
	if f.Limiter != nil {
		f.Limiter.Update(resp)
	}

	// 0 when the link header is absent or has no rel="last" entry: only one
	// page exists and nothing further needs to be fetched.
	lastPage := resp.LastPage
	logger.Debug("pagination discovered", "owner", owner, "repo", repo, "last_page", lastPage)

	records := Extract([][]*ggh.Stargazer{firstPage})

	batchSize := f.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	for start := 2; start <= lastPage; start += batchSize {
		end := min(start+batchSize-1, lastPage)

		if f.Limiter != nil {
			if err := f.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		// Indexed by page offset so extraction keeps page order no matter
		// in which order the requests complete.
		pages := make([][]*ggh.Stargazer, end-start+1)
		g, gctx := errgroup.WithContext(ctx)
		for page := start; page <= end; page++ {
			g.Go(func() error {
				gazers, resp, err := f.page(gctx, owner, repo, page)
				if err != nil {
					return fmt.Errorf("page %d: %w", page, err)
				}
				pages[page-start] = gazers
				if f.Limiter != nil {
					f.Limiter.Update(resp)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		records = append(records, Extract(pages)...)
		logger.Info("batch fetched", "pages", fmt.Sprintf("%d-%d", start, end), "last_page", lastPage, "stars", len(records))
	}

	return records, nil
}

func (f *Fetcher) page(ctx context.Context, owner, repo string, page int) ([]*ggh.Stargazer, *ggh.Response, error) {
	opts := &ggh.ListOptions{Page: page, PerPage: recordsPerPage}

	var gazers []*ggh.Stargazer
	var resp *ggh.Response
	err := withRetry(ctx, f.Retry, f.logger(), func() error {
		var err error
		gazers, resp, err = f.Activity.ListStargazers(ctx, owner, repo, opts)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return gazers, resp, nil
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}
