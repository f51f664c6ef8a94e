// Package dispatcher delivers a rendered digest to every subscriber.
package dispatcher

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"jobfinder_bot/internal/digest"
)

// Sender delivers one message to one chat.
type Sender interface {
	Deliver(ctx context.Context, chatID int64, msg digest.Message) error
}

// Report summarises one broadcast.
type Report struct {
	Sent      int
	Failed    int
	FailedIDs []int64
}

// Dispatcher sends messages sequentially, paced by a rate limiter.
type Dispatcher struct {
	sender  Sender
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates a Dispatcher sending at most perSecond messages per second.
// A non-positive rate disables pacing.
func New(sender Sender, perSecond float64, log *slog.Logger) *Dispatcher {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Dispatcher{
		sender:  sender,
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

// Broadcast delivers msg to every subscriber in order. A failed delivery is
// logged and skipped; it never stops delivery to the remaining subscribers.
// Cancelling ctx stops the broadcast before the next recipient.
func (d *Dispatcher) Broadcast(ctx context.Context, msg digest.Message, subscribers []int64) Report {
	var r Report
	for _, chatID := range subscribers {
		if err := d.limiter.Wait(ctx); err != nil {
			d.log.Warn("broadcast interrupted", "remaining", len(subscribers)-r.Sent-r.Failed, "error", err)
			break
		}

		if err := d.sender.Deliver(ctx, chatID, msg); err != nil {
			d.log.Error("deliver digest", "chat_id", chatID, "error", err)
			r.Failed++
			r.FailedIDs = append(r.FailedIDs, chatID)
			continue
		}
		r.Sent++
	}

	d.log.Info("broadcast finished", "sent", r.Sent, "failed", r.Failed)
	return r
}
