package stars

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	ggh "github.com/google/go-github/v70/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetcher_FetchAll_SinglePage(t *testing.T) {
	activity := &fakeActivity{
		lastPage: 0,
		pages:    map[int][]*ggh.Stargazer{1: gazersAt(baseTime, 2)},
	}
	f := Fetcher{Activity: activity, Logger: discardLogger()}

	records, err := f.FetchAll(context.Background(), "foo", "bar")
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, []int{1}, activity.pagesCalled())
}

func TestFetcher_FetchAll(t *testing.T) {
	// page p carries p entries, timestamps strictly increasing across the
	// whole sequence.
	pages := make(map[int][]*ggh.Stargazer)
	var want []Star
	ts := baseTime
	for p := 1; p <= 5; p++ {
		for i := 0; i < p; i++ {
			pages[p] = append(pages[p], &ggh.Stargazer{StarredAt: &ggh.Timestamp{Time: ts}})
			want = append(want, Star{StarredAt: ts})
			ts = ts.Add(time.Minute)
		}
	}
	activity := &fakeActivity{lastPage: 5, pages: pages}
	f := Fetcher{Activity: activity, Logger: discardLogger()}

	records, err := f.FetchAll(context.Background(), "foo", "bar")
	require.NoError(t, err)
	// no drops, no duplicates, page order then in-page order
	assert.Equal(t, want, records)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, activity.pagesCalled())
}

func TestFetcher_BatchesRunInSequence(t *testing.T) {
	pages := make(map[int][]*ggh.Stargazer)
	for p := 1; p <= 5; p++ {
		pages[p] = gazersAt(baseTime, 1)
	}
	activity := &fakeActivity{
		lastPage: 5,
		pages:    pages,
		delay:    map[int]time.Duration{2: 100 * time.Millisecond},
	}
	f := Fetcher{Activity: activity, BatchSize: 2, Logger: discardLogger()}

	_, err := f.FetchAll(context.Background(), "foo", "bar")
	require.NoError(t, err)

	// batches are {2,3} and {4,5}: even with page 2 delayed, no page of the
	// second batch may start before the first batch fully resolved.
	firstBatchDone := activity.ends[2]
	if activity.ends[3].After(firstBatchDone) {
		firstBatchDone = activity.ends[3]
	}
	assert.False(t, activity.starts[4].Before(firstBatchDone), "page 4 started before batch 1 completed")
	assert.False(t, activity.starts[5].Before(firstBatchDone), "page 5 started before batch 1 completed")
}

func TestFetcher_FailedBatchAbortsRun(t *testing.T) {
	pages := make(map[int][]*ggh.Stargazer)
	for p := 1; p <= 7; p++ {
		pages[p] = gazersAt(baseTime, 1)
	}
	activity := &fakeActivity{lastPage: 7, pages: pages, failPage: 4}
	f := Fetcher{Activity: activity, BatchSize: 2, Logger: discardLogger()}

	records, err := f.FetchAll(context.Background(), "foo", "bar")
	require.Error(t, err)
	assert.ErrorContains(t, err, "page 4")
	assert.Nil(t, records)

	// batches are {2,3}, {4,5}, {6,7}: the failure in the second batch must
	// prevent the third batch from being issued at all.
	called := activity.pagesCalled()
	assert.NotContains(t, called, 6)
	assert.NotContains(t, called, 7)
}

func TestFetcher_ProbeFailure(t *testing.T) {
	activity := &fakeActivity{failPage: 1}
	f := Fetcher{Activity: activity, Logger: discardLogger()}

	_, err := f.FetchAll(context.Background(), "foo", "bar")
	require.Error(t, err)
	assert.ErrorContains(t, err, "probe page 1")
}

func TestFetcher_EndToEnd(t *testing.T) {
	tests := []struct {
		name      string
		linkPages int // pages advertised by the probe's link header; 0 disables the header
		malformed bool
		wantStars int
	}{
		{name: "multiple pages", linkPages: 3, wantStars: 3},
		{name: "no link header", wantStars: 1},
		{name: "malformed link header", malformed: true, wantStars: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var baseURL string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Contains(t, r.Header.Get("Accept"), "star+json")

				page := 1
				if p := r.URL.Query().Get("page"); p != "" {
					page, _ = strconv.Atoi(p)
				}
				if page == 1 {
					if tt.malformed {
						w.Header().Set("Link", `rel="last" without a url`)
					} else if tt.linkPages > 0 {
						w.Header().Set("Link", fmt.Sprintf(
							`<%[1]s/repos/foo/bar/stargazers?page=2>; rel="next", <%[1]s/repos/foo/bar/stargazers?page=%[2]d>; rel="last"`,
							baseURL, tt.linkPages,
						))
					}
				}
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprintf(w, `[{"starred_at":"2024-06-0%dT12:00:00Z","user":{"login":"user%d"}}]`, page, page)
			}))
			defer srv.Close()
			baseURL = srv.URL

			client := ggh.NewClient(nil)
			var err error
			client.BaseURL, err = url.Parse(srv.URL + "/")
			require.NoError(t, err)

			f := Fetcher{Activity: client.Activity, Logger: discardLogger()}
			records, err := f.FetchAll(context.Background(), "foo", "bar")
			require.NoError(t, err)
			require.Len(t, records, tt.wantStars)
			for i, record := range records {
				assert.Equal(t, time.Date(2024, time.June, i+1, 12, 0, 0, 0, time.UTC), record.StarredAt)
			}
		})
	}
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var baseTime = time.Date(2024, time.November, 19, 21, 30, 0, 0, time.UTC)

func gazersAt(ts time.Time, count int) []*ggh.Stargazer {
	gazers := make([]*ggh.Stargazer, count)
	for i := range gazers {
		gazers[i] = &ggh.Stargazer{StarredAt: &ggh.Timestamp{Time: ts.Add(time.Duration(i) * time.Second)}}
	}
	return gazers
}

var _ Activity = &fakeActivity{}

type fakeActivity struct {
	lastPage int
	pages    map[int][]*ggh.Stargazer
	failPage int
	delay    map[int]time.Duration

	mu     sync.Mutex
	calls  []int
	starts map[int]time.Time
	ends   map[int]time.Time
}

func (f *fakeActivity) ListStargazers(_ context.Context, _ string, _ string, opts *ggh.ListOptions) ([]*ggh.Stargazer, *ggh.Response, error) {
	f.mu.Lock()
	if f.starts == nil {
		f.starts = make(map[int]time.Time)
		f.ends = make(map[int]time.Time)
	}
	f.calls = append(f.calls, opts.Page)
	f.starts[opts.Page] = time.Now()
	delay := f.delay[opts.Page]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.ends[opts.Page] = time.Now()
	f.mu.Unlock()

	if opts.Page == f.failPage {
		return nil, nil, errors.New("fetch failed")
	}
	page, ok := f.pages[opts.Page]
	if !ok {
		return nil, nil, fmt.Errorf("page %d not found", opts.Page)
	}
	return page, &ggh.Response{LastPage: f.lastPage}, nil
}

func (f *fakeActivity) pagesCalled() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	called := slices.Clone(f.calls)
	slices.Sort(called)
	return called
}
