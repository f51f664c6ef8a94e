// Package fetcher handles RSS feed downloading, parsing, and normalization.
package fetcher

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"jobfinder_bot/internal/model"
)

// Defaults applied to entries with missing fields.
const (
	DefaultTitle = "No Title"
	DefaultLink  = "#"
	// PublishedLen is the number of characters kept from a published date.
	PublishedLen = 16
)

const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result holds the normalized outcome of fetching one feed.
type Result struct {
	Title   string
	Entries []model.JobEntry
}

// Fetcher downloads and parses RSS feeds.
type Fetcher struct {
	client HTTPClient
	policy *bluemonday.Policy
	log    *slog.Logger
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient, log *slog.Logger) *Fetcher {
	return &Fetcher{
		client: client,
		policy: bluemonday.StrictPolicy(),
		log:    log,
	}
}

// Fetch downloads and parses an RSS feed from the given URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "JobfinderBot/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// Entries fetches a feed and returns at most limit normalized entries.
// Failures are logged and produce an empty result; Entries never fails.
func (f *Fetcher) Entries(ctx context.Context, url string, limit int) Result {
	feed, err := f.Fetch(ctx, url)
	if err != nil {
		f.log.Error("fetch feed", "url", url, "error", err)
		return Result{}
	}

	items := feed.Items
	if limit >= 0 && len(items) > limit {
		items = items[:limit]
	}

	entries := make([]model.JobEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, f.normalize(item))
	}

	return Result{
		Title:   f.clean(feed.Title),
		Entries: entries,
	}
}

func (f *Fetcher) normalize(item *gofeed.Item) model.JobEntry {
	title := f.clean(item.Title)
	if title == "" {
		title = DefaultTitle
	}

	link := strings.TrimSpace(item.Link)
	if link == "" {
		link = DefaultLink
	}

	published := strings.TrimSpace(item.Published)
	if published == "" {
		published = strings.TrimSpace(item.Updated)
	}

	return model.JobEntry{
		Title:     title,
		Link:      link,
		Published: prefix(published, PublishedLen),
	}
}

// clean strips markup and collapses whitespace.
func (f *Fetcher) clean(s string) string {
	s = html.UnescapeString(f.policy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
