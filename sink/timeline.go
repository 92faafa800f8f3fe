// Package sink contains EventSink implementations fed by the fanout
// worker. Sinks are the read side of the lobby: they project session
// events into state the presentation can poll safely.
package sink

import (
	"context"
	"sync"

	"lobby-lab/contract"
	"lobby-lab/domain"
	"lobby-lab/domain/event"
)

// Timeline projects chat and roster events into a poll-friendly view.
// Unlike the manager-owned history it is safe for concurrent use, so the
// terminal UI can redraw from any goroutine.
type Timeline struct {
	mu       sync.RWMutex
	history  *domain.History
	roster   []domain.Participant
	allReady bool
}

var _ contract.EventSink = (*Timeline)(nil)

func NewTimeline(historyLimit int) *Timeline {
	return &Timeline{history: domain.NewHistory(historyLimit)}
}

func (t *Timeline) Consume(_ context.Context, e event.DomainEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch evt := e.(type) {
	case event.ChatReceived:
		t.history.Append(evt.Message)
	case event.SystemNotice:
		t.history.Append(domain.Message{Text: evt.Text, System: true, At: evt.At})
	case event.RosterChanged:
		t.roster = evt.Snapshot
		t.allReady = evt.AllReady
	case event.Disconnected:
		t.history.Clear()
		t.roster = nil
		t.allReady = false
	}
	return nil
}

// Messages returns the retained chat lines, oldest first.
func (t *Timeline) Messages() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.history.All()
}

// Roster returns the last projected roster snapshot.
func (t *Timeline) Roster() []domain.Participant {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Participant, len(t.roster))
	copy(out, t.roster)
	return out
}

// AllReady reflects the host's start-game gate as last broadcast.
func (t *Timeline) AllReady() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.allReady
}

// ParticipantCount feeds the stats worker.
func (t *Timeline) ParticipantCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.roster)
}
