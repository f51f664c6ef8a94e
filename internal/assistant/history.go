package assistant

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// History keeps recent conversation turns per chat. The least recently
// active chats are evicted once maxChats is reached.
type History struct {
	mu       sync.Mutex
	chats    *lru.Cache[int64, []Turn]
	maxTurns int
}

// NewHistory creates a History bounded to maxChats chats of maxTurns turns each.
func NewHistory(maxChats, maxTurns int) (*History, error) {
	cache, err := lru.New[int64, []Turn](maxChats)
	if err != nil {
		return nil, err
	}
	return &History{chats: cache, maxTurns: maxTurns}, nil
}

// Get returns a copy of the stored turns for chatID.
func (h *History) Get(chatID int64) []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	turns, _ := h.chats.Get(chatID)
	return append([]Turn(nil), turns...)
}

// Append adds turns for chatID, keeping only the most recent maxTurns.
// A conversation always starts with a user turn.
func (h *History) Append(chatID int64, turns ...Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	existing, _ := h.chats.Get(chatID)
	all := append(append([]Turn(nil), existing...), turns...)
	if h.maxTurns > 0 && len(all) > h.maxTurns {
		all = all[len(all)-h.maxTurns:]
	}
	for len(all) > 0 && all[0].Role != RoleUser {
		all = all[1:]
	}
	h.chats.Add(chatID, all)
}

// Reset forgets the conversation of chatID.
func (h *History) Reset(chatID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chats.Remove(chatID)
}
