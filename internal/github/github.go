// Package github wraps the parts of the GitHub API the fetcher needs:
// listing stargazers (with the star+json media type, so each entry carries
// its starred_at timestamp) and the rate-limit endpoint.
package github

import (
	"context"
	"net/http"
	"time"

	"github.com/google/go-github/v70/github"
)

// requestTimeout bounds every API call so a stalled request cannot hang
// the whole run.
const requestTimeout = 30 * time.Second

type Client struct {
	Activity
	RateLimits
}

type Activity interface {
	ListStargazers(ctx context.Context, owner string, repo string, opts *github.ListOptions) ([]*github.Stargazer, *github.Response, error)
}

type RateLimits interface {
	Get(ctx context.Context) (*github.RateLimits, *github.Response, error)
}

// NewGitHubClient returns a client for the GitHub API. The token is attached
// as an Authorization header only when non-empty; callers are expected not
// to fetch without one.
func NewGitHubClient(token string) *Client {
	client := github.NewClient(&http.Client{Timeout: requestTimeout})
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &Client{
		Activity:   client.Activity,
		RateLimits: client.RateLimit,
	}
}

// Quota returns the core rate limit quota (limit, remaining, reset time).
func (c Client) Quota(ctx context.Context) (*github.Rate, error) {
	limits, _, err := c.RateLimits.Get(ctx)
	if err != nil {
		return nil, err
	}
	return limits.Core, nil
}
