// Package domain contains core concepts of the lobby system.
// This file defines chat Message records and their bounded history.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is an ephemeral chat record as delivered by the host broadcast.
type Message struct {
	ID     uuid.UUID
	Text   string
	Sender ConnectionID
	System bool
	At     time.Time
}

// History keeps the last limit messages in arrival order, evicting the
// oldest first. It carries no invariants beyond display bookkeeping.
//
// History is NOT safe for concurrent use; wrap it (see sink.Timeline)
// when readers live on another goroutine.
type History struct {
	limit    int
	messages []Message
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 1
	}
	return &History{limit: limit}
}

func (h *History) Append(m Message) {
	h.messages = append(h.messages, m)
	if len(h.messages) > h.limit {
		h.messages = h.messages[len(h.messages)-h.limit:]
	}
}

// All returns the retained messages, oldest first.
func (h *History) All() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

func (h *History) Clear() {
	h.messages = nil
}

func (h *History) Len() int {
	return len(h.messages)
}
