// Package protocol defines the kind-tagged wire payloads exchanged between
// host and clients, and their JSON codec. The envelope is deliberately
// flat: one optional payload field per kind, so a decoded envelope either
// carries exactly the payload its kind announces or is rejected.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/samber/lo"

	"lobby-lab/domain"
	liberrors "lobby-lab/errors"
)

type Kind string

const (
	KindJoinInfo       Kind = "join_info"
	KindRosterAdd      Kind = "roster_add"
	KindRosterRemove   Kind = "roster_remove"
	KindReadyState     Kind = "ready_state"
	KindRosterSnapshot Kind = "roster_snapshot"
	KindChat           Kind = "chat"
	KindSystemNotice   Kind = "system_notice"
)

// JoinInfo is the join handshake a newly connected client sends the host.
type JoinInfo struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name"`
}

// RosterAdd announces a new participant to every replica.
type RosterAdd struct {
	ConnectionID string `json:"connection_id"`
	Identity     string `json:"identity"`
	DisplayName  string `json:"display_name"`
}

// RosterRemove announces a departed participant.
type RosterRemove struct {
	ConnectionID string `json:"connection_id"`
}

// ReadyState is both the client intent (to the host) and the resulting
// broadcast (from the host). Only the host's broadcast mutates replicas.
type ReadyState struct {
	ConnectionID string `json:"connection_id"`
	Ready        bool   `json:"ready"`
}

// WireParticipant is the serialized form of domain.Participant.
type WireParticipant struct {
	ConnectionID string `json:"connection_id"`
	Identity     string `json:"identity"`
	DisplayName  string `json:"display_name"`
	Ready        bool   `json:"ready"`
}

// RosterSnapshot is the full-state resync payload. It is the state-based
// healing fallback: a lost Add/Remove is repaired by the next snapshot.
type RosterSnapshot struct {
	Participants []WireParticipant `json:"participants"`
}

// Chat is a relayed chat line, attributed to the original sender.
type Chat struct {
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

// SystemNotice is a host-issued informational line (joins, leaves).
type SystemNotice struct {
	Text string `json:"text"`
}

// Envelope is the single wire frame. Exactly one payload field matching
// Kind must be set.
type Envelope struct {
	Kind           Kind            `json:"kind"`
	JoinInfo       *JoinInfo       `json:"join_info,omitempty"`
	RosterAdd      *RosterAdd      `json:"roster_add,omitempty"`
	RosterRemove   *RosterRemove   `json:"roster_remove,omitempty"`
	ReadyState     *ReadyState     `json:"ready_state,omitempty"`
	RosterSnapshot *RosterSnapshot `json:"roster_snapshot,omitempty"`
	Chat           *Chat           `json:"chat,omitempty"`
	SystemNotice   *SystemNotice   `json:"system_notice,omitempty"`
}

func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Decode parses and validates a wire frame. An unknown kind or a kind
// whose payload is missing yields an ErrProtocolViolation-wrapped error;
// callers treat that as a no-op, never as a fatal condition.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", liberrors.ErrProtocolViolation, err)
	}

	var ok bool
	switch env.Kind {
	case KindJoinInfo:
		ok = env.JoinInfo != nil
	case KindRosterAdd:
		ok = env.RosterAdd != nil
	case KindRosterRemove:
		ok = env.RosterRemove != nil
	case KindReadyState:
		ok = env.ReadyState != nil
	case KindRosterSnapshot:
		ok = env.RosterSnapshot != nil
	case KindChat:
		ok = env.Chat != nil
	case KindSystemNotice:
		ok = env.SystemNotice != nil
	default:
		return Envelope{}, fmt.Errorf("%w: unknown kind %q", liberrors.ErrProtocolViolation, env.Kind)
	}
	if !ok {
		return Envelope{}, fmt.Errorf("%w: kind %q without payload", liberrors.ErrProtocolViolation, env.Kind)
	}
	return env, nil
}

func FromParticipants(participants []domain.Participant) []WireParticipant {
	return lo.Map(participants, func(p domain.Participant, _ int) WireParticipant {
		return WireParticipant{
			ConnectionID: string(p.ConnectionID),
			Identity:     string(p.Identity),
			DisplayName:  p.DisplayName,
			Ready:        p.Ready,
		}
	})
}

func ToParticipants(wire []WireParticipant) []domain.Participant {
	return lo.Map(wire, func(w WireParticipant, _ int) domain.Participant {
		return domain.Participant{
			ConnectionID: domain.ConnectionID(w.ConnectionID),
			Identity:     domain.Identity(w.Identity),
			DisplayName:  w.DisplayName,
			Ready:        w.Ready,
		}
	})
}
