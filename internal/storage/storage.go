// Package storage defines the subscriber persistence interface and its implementations.
package storage

import "context"

// Storage is an append-only registry of chats receiving the daily digest.
type Storage interface {
	// Add appends chatID. It does not check for existing membership.
	Add(ctx context.Context, chatID int64) error
	// List returns every stored chat ID once, in first-subscribed order.
	List(ctx context.Context) ([]int64, error)

	Close() error
}

// unique drops repeated IDs, keeping the first occurrence.
func unique(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
