package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/harupy/fetch-stars/internal/export"
	gh "github.com/harupy/fetch-stars/internal/github"
	"github.com/harupy/fetch-stars/internal/stars"
)

var version = "change-me"

var (
	owner     string
	repo      string
	csvPath   string
	batchSize int
	retries   int
	debug     bool
)

var rootCmd = &cobra.Command{
	Use:     "fetch-stars",
	Short:   "Fetch a repository's stargazer history into a CSV file",
	Long: `fetch-stars retrieves every stargazer event (who starred a repository and
when) from the GitHub API and writes the starred_at timestamps to a CSV file
for offline analysis.

The GitHub token is read from the GITHUB_TOKEN environment variable (a .env
file is honored).`,
	Version:       version,
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Flags().StringVarP(&owner, "owner", "o", "", "A repository owner")
	rootCmd.Flags().StringVarP(&repo, "repo", "r", "", "A repository name")
	rootCmd.Flags().StringVarP(&csvPath, "csv_path", "c", "stars.csv", "An output CSV path")
	rootCmd.Flags().IntVar(&batchSize, "batch-size", stars.DefaultBatchSize, "Maximum concurrent page requests per batch")
	rootCmd.Flags().IntVar(&retries, "retries", 0, "Retries per page request on transient failures")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	_ = rootCmd.MarkFlagRequired("owner")
	_ = rootCmd.MarkFlagRequired("repo")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	var opts slog.HandlerOptions
	if debug {
		opts.Level = slog.LevelDebug
	}
	l := slog.New(slog.NewTextHandler(os.Stderr, &opts))

	_ = godotenv.Load()
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		l.Info("GITHUB_TOKEN is not set. set it to fetch stargazers")
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := gh.NewGitHubClient(token)

	retryCfg := stars.DefaultRetryConfig()
	retryCfg.MaxAttempts = 1 + retries

	fetcher := stars.Fetcher{
		Activity:  client,
		BatchSize: batchSize,
		Retry:     retryCfg,
		Limiter:   stars.NewLimiter(l),
		Logger:    l,
	}

	l.Info("fetching stargazers", "owner", owner, "repo", repo)
	records, err := fetcher.FetchAll(ctx, owner, repo)
	if err != nil {
		return fmt.Errorf("fetch stargazers: %w", err)
	}
	l.Info("fetch complete", "stars", len(records))

	if err := export.WriteCSV(csvPath, records); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	l.Info("csv written", "path", csvPath, "rows", len(records))

	reportRateLimit(ctx, client, l)
	return nil
}

// reportRateLimit prints the remaining API quota. Best effort: the CSV is
// already on disk, so a failure here only logs a warning.
func reportRateLimit(ctx context.Context, client *gh.Client, l *slog.Logger) {
	rate, err := client.Quota(ctx)
	if err != nil {
		l.Warn("rate limit check failed", "err", err)
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Limit", "Remaining", "Resets At"})
	table.Append([]string{
		strconv.Itoa(rate.Limit),
		strconv.Itoa(rate.Remaining),
		rate.Reset.Time.Format(time.RFC3339),
	})
	table.Render()
}
