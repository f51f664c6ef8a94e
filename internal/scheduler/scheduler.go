// Package scheduler runs the daily digest broadcast.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"jobfinder_bot/internal/aggregator"
	"jobfinder_bot/internal/config"
	"jobfinder_bot/internal/digest"
	"jobfinder_bot/internal/dispatcher"
	"jobfinder_bot/internal/model"
)

// DailyHeading titles the scheduled digest.
const DailyHeading = "📰 Daily Job Digest"

// Aggregator builds a digest from the configured sources.
type Aggregator interface {
	Aggregate(ctx context.Context, sources []model.FeedSource, opts aggregator.Options) model.Digest
}

// SubscriberLister returns the chats receiving the daily digest.
type SubscriberLister interface {
	List(ctx context.Context) ([]int64, error)
}

// Broadcaster delivers a message to a set of chats.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg digest.Message, subscribers []int64) dispatcher.Report
}

// Scheduler fires the aggregation and broadcast pipeline once a day.
type Scheduler struct {
	agg         Aggregator
	store       SubscriberLister
	broadcaster Broadcaster
	sources     []model.FeedSource
	limits      config.Limits
	at          config.DigestTime
	loc         *time.Location
	log         *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// New creates a Scheduler firing every day at cfg.DigestTime in cfg.Location.
func New(cfg *config.Config, agg Aggregator, store SubscriberLister, b Broadcaster, log *slog.Logger) *Scheduler {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		agg:         agg,
		store:       store,
		broadcaster: b,
		sources:     cfg.Sources,
		limits:      cfg.Limits,
		at:          cfg.DigestTime,
		loc:         loc,
		log:         log,
		now:         time.Now,
		after:       time.After,
	}
}

// NextRun returns the first occurrence of at strictly after now, in loc.
func NextRun(now time.Time, at config.DigestTime, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), at.Hour, at.Minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, at.Hour, at.Minute, 0, 0, loc)
	}
	return next
}

// Run blocks until ctx is cancelled, firing RunOnce at each daily slot.
// A slot missed while the process was down is not made up.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next := NextRun(s.now(), s.at, s.loc)
		s.log.Info("next daily digest scheduled", "at", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			return
		case <-s.after(next.Sub(s.now())):
			s.RunOnce(ctx)
		}
	}
}

// RunOnce aggregates the sources afresh and broadcasts the digest to every
// current subscriber. An empty digest is not broadcast.
func (s *Scheduler) RunOnce(ctx context.Context) {
	subscribers, err := s.store.List(ctx)
	if err != nil {
		s.log.Error("list subscribers", "error", err)
		return
	}
	if len(subscribers) == 0 {
		s.log.Info("no subscribers, skipping daily digest")
		return
	}

	d := s.agg.Aggregate(ctx, s.sources, aggregator.Options{
		MaxEntries:  s.limits.Daily.MaxEntries,
		MaxSections: s.limits.MaxSections,
	})
	if d.Empty() {
		s.log.Warn("daily digest has no entries, nothing sent", "sources", len(s.sources))
		return
	}

	msg := digest.Format(d, DailyHeading, digest.Options{
		MaxTitleLen:   s.limits.Daily.MaxTitleLen,
		MaxMessageLen: s.limits.MaxMessageLen,
	})

	report := s.broadcaster.Broadcast(ctx, msg, subscribers)
	s.log.Info("daily digest sent",
		"subscribers", len(subscribers),
		"entries", d.EntryCount(),
		"sent", report.Sent,
		"failed", report.Failed,
	)
}
