// Package event defines the events the session manager emits towards the
// presentation boundary. Events are immutable snapshots; sinks must not
// retain references into live session state.
package event

import (
	"time"

	"lobby-lab/domain"
)

type DomainEvent interface {
	Name() string
}

// SessionReady fires once a session is established, on both roles.
type SessionReady struct {
	Role        domain.Role
	SessionName string
}

func (SessionReady) Name() string { return "SessionReady" }

// RosterChanged carries the full ordered roster after any membership or
// readiness change. AllReady is the host-side start-game gate; clients
// receive it too but only reflect it.
type RosterChanged struct {
	Snapshot []domain.Participant
	AllReady bool
}

func (RosterChanged) Name() string { return "RosterChanged" }

// ChatReceived is one line of the host's ordered chat stream.
// Language is a best-effort detection tag for display purposes.
type ChatReceived struct {
	Message  domain.Message
	Language string
}

func (ChatReceived) Name() string { return "ChatReceived" }

// SystemNotice is a join/leave style line rendered inline with chat.
type SystemNotice struct {
	Text string
	At   time.Time
}

func (SystemNotice) Name() string { return "SystemNotice" }

// ErrorReported surfaces a recovered failure (create/lookup/connect).
// The session is back in idle when this fires.
type ErrorReported struct {
	Reason string
}

func (ErrorReported) Name() string { return "ErrorReported" }

// Disconnected fires exactly once per teardown.
type Disconnected struct {
	Reason string
}

func (Disconnected) Name() string { return "Disconnected" }
