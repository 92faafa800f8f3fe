// Package domain contains core concepts of the lobby system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

// ConnectionID is the transport-assigned identifier of one connection.
// It is unique among currently connected peers and stable for the
// connection's lifetime, but the transport may reuse it across sessions.
// Never treat it as globally unique over time.
type ConnectionID string

// Identity is the stable external identity of a person (platform account id).
// Unlike ConnectionID it survives reconnects.
type Identity string

// Role distinguishes the authoritative peer from its replicas.
type Role string

const (
	RoleHost   Role = "host"
	RoleClient Role = "client"
)

// Participant is one session member as replicated on every peer.
type Participant struct {
	ConnectionID ConnectionID
	Identity     Identity
	DisplayName  string
	Ready        bool
}
