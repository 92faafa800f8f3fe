//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"lobby-lab/domain"
	"lobby-lab/domain/event"
)

// SessionRef is an opaque handle to an addressable session as resolved by
// the discovery collaborator. Only the transport interprets its fields.
type SessionRef struct {
	ID   string
	Name string
	Addr string
}

type TransportEventKind int

const (
	// PeerConnected reports a new connection. On a client this is the
	// link to the host; on the host, one per joining client.
	PeerConnected TransportEventKind = iota
	// PeerDisconnected reports a lost connection, identified by the same
	// ConnectionID PeerConnected carried.
	PeerDisconnected
	// MessageReceived delivers one reliable, in-order payload.
	MessageReceived
	// LocalConnectionLost reports that our own link to the session died.
	LocalConnectionLost
)

// TransportEvent is one item of the discovery collaborator's event stream.
type TransportEvent struct {
	Kind    TransportEventKind
	Peer    domain.ConnectionID
	Payload []byte
}

// Discovery is the transport/discovery collaborator boundary.
//
// Implementations must provide reliable, ordered per-connection delivery
// and emit lifecycle events on the Events channel. All session and roster
// logic above this interface is transport-agnostic.
type Discovery interface {
	// CreateSession makes this peer the host of a named session.
	CreateSession(ctx context.Context, name string, capacity int) (SessionRef, error)
	// FindSession resolves a session by human-readable name or direct
	// address. Returns errors.ErrSessionNotFound on a lookup miss.
	FindSession(ctx context.Context, target string) (SessionRef, error)
	// JoinSession connects to a previously resolved session.
	JoinSession(ctx context.Context, ref SessionRef) error
	// LeaveSession releases the session resource. Safe to call twice.
	LeaveSession(ref SessionRef)

	// Send delivers a payload to one connected peer.
	Send(to domain.ConnectionID, payload []byte) error
	// Broadcast delivers a payload to every connected peer except self.
	// On a client the only connected peer is the host.
	Broadcast(payload []byte) error

	// SelfID is this peer's transport-assigned connection id.
	SelfID() domain.ConnectionID
	// Events is the ordered stream of transport events. The channel is
	// owned by the transport and closed when the transport shuts down.
	Events() <-chan TransportEvent
}

// EventSink consumes session events on the fanout goroutine.
// Consume must honor ctx; slow sinks are cut off, not waited for.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

type WorkerName string

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// lifecycle events, avoiding manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
