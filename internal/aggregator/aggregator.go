// Package aggregator fetches a set of feed sources and merges them into a digest.
package aggregator

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"jobfinder_bot/internal/fetcher"
	"jobfinder_bot/internal/model"
)

// EntryFetcher returns normalized entries for one feed URL. It must not fail;
// an unreachable feed yields an empty result.
type EntryFetcher interface {
	Entries(ctx context.Context, url string, limit int) fetcher.Result
}

// Options controls one aggregation run.
type Options struct {
	// MaxEntries caps the entries taken from each source.
	MaxEntries int
	// MaxSections caps the number of non-empty sections; zero means no cap.
	MaxSections int
}

// Aggregator fetches sources with bounded concurrency.
type Aggregator struct {
	fetcher     EntryFetcher
	concurrency int
	timeout     time.Duration
	log         *slog.Logger
	now         func() time.Time
}

// New creates an Aggregator fetching at most concurrency sources at a time,
// each bounded by timeout.
func New(f EntryFetcher, concurrency int, timeout time.Duration, log *slog.Logger) *Aggregator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Aggregator{
		fetcher:     f,
		concurrency: concurrency,
		timeout:     timeout,
		log:         log,
		now:         time.Now,
	}
}

// Aggregate fetches every source and returns the non-empty sections in
// source declaration order, regardless of completion order.
func (a *Aggregator) Aggregate(ctx context.Context, sources []model.FeedSource, opts Options) model.Digest {
	results := make([]fetcher.Result, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			fctx := gctx
			if a.timeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(gctx, a.timeout)
				defer cancel()
			}
			results[i] = a.fetcher.Entries(fctx, src.URL, opts.MaxEntries)
			return nil
		})
	}
	_ = g.Wait()

	d := model.Digest{GeneratedAt: a.now()}
	for i, src := range sources {
		res := results[i]
		if len(res.Entries) == 0 {
			a.log.Debug("source yielded no entries", "source", src.Key)
			continue
		}
		if opts.MaxSections > 0 && len(d.Sections) >= opts.MaxSections {
			break
		}
		d.Sections = append(d.Sections, model.Section{
			Source:  src,
			Title:   SectionTitle(res.Title, src),
			Entries: res.Entries,
		})
	}

	a.log.Info("aggregated feeds",
		"sources", len(sources),
		"sections", len(d.Sections),
		"entries", d.EntryCount(),
	)
	return d
}

// SectionTitle picks the feed's declared title, else the host of the source
// URL, else the configured source name.
func SectionTitle(feedTitle string, src model.FeedSource) string {
	if t := strings.TrimSpace(feedTitle); t != "" {
		return t
	}
	if u, err := url.Parse(src.URL); err == nil && u.Hostname() != "" {
		return strings.TrimPrefix(u.Hostname(), "www.")
	}
	if src.Name != "" {
		return src.Name
	}
	return src.Key
}
