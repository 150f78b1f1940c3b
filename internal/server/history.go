package server

import "github.com/Tyrowin/tempest/internal/protocol"

// HistoryEntry is one stored chat message. Fields are already sanitized.
type HistoryEntry struct {
	Nickname string
	Avatar   string
	Text     string
}

// Line renders the entry as it was originally broadcast.
func (e HistoryEntry) Line() string {
	return protocol.Chat(e.Avatar, e.Nickname, e.Text)
}

// history is a fixed-capacity FIFO ring. The oldest entry is overwritten once
// the ring is full. Callers serialize access through the owning room's lock.
type history struct {
	entries []HistoryEntry
	start   int
	size    int
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = 1
	}
	return &history{entries: make([]HistoryEntry, capacity)}
}

func (h *history) append(e HistoryEntry) {
	capacity := len(h.entries)
	if h.size < capacity {
		h.entries[(h.start+h.size)%capacity] = e
		h.size++
		return
	}
	h.entries[h.start] = e
	h.start = (h.start + 1) % capacity
}

// last returns up to n of the newest entries, oldest first.
func (h *history) last(n int) []HistoryEntry {
	if n > h.size {
		n = h.size
	}
	if n <= 0 {
		return nil
	}

	out := make([]HistoryEntry, n)
	capacity := len(h.entries)
	first := h.start + h.size - n
	for i := range out {
		out[i] = h.entries[(first+i)%capacity]
	}
	return out
}

func (h *history) len() int {
	return h.size
}
