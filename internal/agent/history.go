package agent

import "ltl/internal/domain"

const defaultHistoryCapacity = 50

// History is a bounded, session-owned list of turns. When an append would
// exceed the capacity the two oldest turns are dropped together, so a user
// turn never loses its reply. Not safe for concurrent use; the owning
// Session serializes access.
type History struct {
	turns    []domain.Turn
	capacity int
}

// NewHistory returns an empty history. Zero means the default of 50; anything
// below 2 is raised to 2 so one exchange always fits.
func NewHistory(capacity int) *History {
	if capacity == 0 {
		capacity = defaultHistoryCapacity
	}
	if capacity < 2 {
		capacity = 2
	}
	return &History{capacity: capacity, turns: make([]domain.Turn, 0, capacity)}
}

func (h *History) Append(t domain.Turn) {
	for len(h.turns)+1 > h.capacity {
		h.evictPair()
	}
	h.turns = append(h.turns, t)
}

// AppendExchange records a user turn and its reply.
func (h *History) AppendExchange(user, assistant domain.Turn) {
	for len(h.turns)+2 > h.capacity {
		h.evictPair()
	}
	h.turns = append(h.turns, user, assistant)
}

func (h *History) evictPair() {
	n := min(2, len(h.turns))
	h.turns = append(h.turns[:0], h.turns[n:]...)
}

// Turns returns a copy, oldest first.
func (h *History) Turns() []domain.Turn {
	out := make([]domain.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *History) Len() int { return len(h.turns) }
func (h *History) Cap() int { return h.capacity }

func (h *History) Clear() { h.turns = h.turns[:0] }
