// Package memory provides an in-process implementation of the discovery
// collaborator. A Hub registers named sessions and delivers payloads over
// per-peer ordered channels. It backs the integration tests and supports
// running several peers inside one process.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"lobby-lab/contract"
	"lobby-lab/domain"
	liberrors "lobby-lab/errors"
)

const defaultEventBuffer = 256

type Hub struct {
	mu       sync.Mutex
	log      *slog.Logger
	sessions map[string]*hubSession // keyed by ref ID
	byName   map[string]*hubSession
}

type hubSession struct {
	ref      contract.SessionRef
	capacity int
	host     *Peer
	clients  map[domain.ConnectionID]*Peer
	order    []domain.ConnectionID
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:      log,
		sessions: make(map[string]*hubSession),
		byName:   make(map[string]*hubSession),
	}
}

// NewPeer creates an endpoint attached to the hub. Each peer gets a fresh
// transport-assigned connection id; ids are not reused while the hub lives.
func (h *Hub) NewPeer() *Peer {
	return &Peer{
		hub:    h,
		id:     domain.ConnectionID(uuid.NewString()),
		events: make(chan contract.TransportEvent, defaultEventBuffer),
	}
}

// Peer is one endpoint's view of the hub. It implements contract.Discovery.
//
// Delivery is reliable and ordered per peer: events land on a single
// buffered channel in send order. A send to a full channel blocks, which
// models transport backpressure; consumers must keep draining.
type Peer struct {
	hub    *Hub
	id     domain.ConnectionID
	events chan contract.TransportEvent

	mu   sync.Mutex
	sess *hubSession
	host bool
}

func (p *Peer) SelfID() domain.ConnectionID {
	return p.id
}

func (p *Peer) Events() <-chan contract.TransportEvent {
	return p.events
}

func (p *Peer) CreateSession(_ context.Context, name string, capacity int) (contract.SessionRef, error) {
	if capacity < 1 {
		return contract.SessionRef{}, fmt.Errorf("%w: capacity %d", liberrors.ErrSessionCreateFailed, capacity)
	}

	p.hub.mu.Lock()
	defer p.hub.mu.Unlock()
	if _, taken := p.hub.byName[name]; taken {
		return contract.SessionRef{}, fmt.Errorf("%w: name %q already registered", liberrors.ErrSessionCreateFailed, name)
	}

	sess := &hubSession{
		ref:      contract.SessionRef{ID: uuid.NewString(), Name: name},
		capacity: capacity,
		host:     p,
		clients:  make(map[domain.ConnectionID]*Peer),
	}
	p.hub.sessions[sess.ref.ID] = sess
	p.hub.byName[name] = sess

	p.mu.Lock()
	p.sess = sess
	p.host = true
	p.mu.Unlock()

	p.hub.log.Debug("Session registered", "name", name, "capacity", capacity)
	return sess.ref, nil
}

func (p *Peer) FindSession(_ context.Context, target string) (contract.SessionRef, error) {
	p.hub.mu.Lock()
	defer p.hub.mu.Unlock()
	sess, ok := p.hub.byName[target]
	if !ok {
		return contract.SessionRef{}, fmt.Errorf("%w: %q", liberrors.ErrSessionNotFound, target)
	}
	return sess.ref, nil
}

func (p *Peer) JoinSession(_ context.Context, ref contract.SessionRef) error {
	p.hub.mu.Lock()
	sess, ok := p.hub.sessions[ref.ID]
	if !ok {
		p.hub.mu.Unlock()
		return fmt.Errorf("%w: session gone", liberrors.ErrConnectFailed)
	}
	// Host counts towards capacity.
	if len(sess.clients)+1 >= sess.capacity {
		p.hub.mu.Unlock()
		return fmt.Errorf("%w: capacity %d", liberrors.ErrSessionFull, sess.capacity)
	}
	sess.clients[p.id] = p
	sess.order = append(sess.order, p.id)
	host := sess.host
	p.hub.mu.Unlock()

	p.mu.Lock()
	p.sess = sess
	p.host = false
	p.mu.Unlock()

	host.deliver(contract.TransportEvent{Kind: contract.PeerConnected, Peer: p.id})
	p.deliver(contract.TransportEvent{Kind: contract.PeerConnected, Peer: host.id})
	return nil
}

// LeaveSession detaches the peer. A departing host signals every client
// with PeerDisconnected(hostID), which forces their mandatory teardown.
// Safe to call twice; the second call finds no session.
func (p *Peer) LeaveSession(ref contract.SessionRef) {
	p.mu.Lock()
	sess := p.sess
	wasHost := p.host
	p.sess = nil
	p.host = false
	p.mu.Unlock()

	if sess == nil || sess.ref.ID != ref.ID {
		return
	}

	p.hub.mu.Lock()
	if wasHost {
		delete(p.hub.sessions, sess.ref.ID)
		delete(p.hub.byName, sess.ref.Name)
		clients := make([]*Peer, 0, len(sess.clients))
		for _, c := range sess.order {
			if peer, ok := sess.clients[c]; ok {
				clients = append(clients, peer)
			}
		}
		sess.clients = make(map[domain.ConnectionID]*Peer)
		sess.order = nil
		p.hub.mu.Unlock()

		for _, c := range clients {
			c.deliver(contract.TransportEvent{Kind: contract.PeerDisconnected, Peer: p.id})
		}
		return
	}

	delete(sess.clients, p.id)
	for i, id := range sess.order {
		if id == p.id {
			sess.order = append(sess.order[:i], sess.order[i+1:]...)
			break
		}
	}
	host := sess.host
	p.hub.mu.Unlock()

	host.deliver(contract.TransportEvent{Kind: contract.PeerDisconnected, Peer: p.id})
}

func (p *Peer) Send(to domain.ConnectionID, payload []byte) error {
	target, err := p.lookup(to)
	if err != nil {
		return err
	}
	target.deliver(contract.TransportEvent{
		Kind:    contract.MessageReceived,
		Peer:    p.id,
		Payload: clone(payload),
	})
	return nil
}

// Broadcast fans out to every connected peer except self. For a client
// the only link is the host, keeping the star topology explicit.
func (p *Peer) Broadcast(payload []byte) error {
	p.mu.Lock()
	sess := p.sess
	isHost := p.host
	p.mu.Unlock()
	if sess == nil {
		return liberrors.ErrNotConnected
	}

	if !isHost {
		return p.Send(sess.host.id, payload)
	}

	p.hub.mu.Lock()
	targets := make([]*Peer, 0, len(sess.order))
	for _, id := range sess.order {
		if peer, ok := sess.clients[id]; ok {
			targets = append(targets, peer)
		}
	}
	p.hub.mu.Unlock()

	for _, t := range targets {
		t.deliver(contract.TransportEvent{
			Kind:    contract.MessageReceived,
			Peer:    p.id,
			Payload: clone(payload),
		})
	}
	return nil
}

func (p *Peer) lookup(id domain.ConnectionID) (*Peer, error) {
	p.mu.Lock()
	sess := p.sess
	p.mu.Unlock()
	if sess == nil {
		return nil, liberrors.ErrNotConnected
	}

	p.hub.mu.Lock()
	defer p.hub.mu.Unlock()
	if sess.host != nil && sess.host.id == id {
		return sess.host, nil
	}
	if peer, ok := sess.clients[id]; ok {
		return peer, nil
	}
	return nil, fmt.Errorf("%w: peer %s not in session", liberrors.ErrConnectFailed, id)
}

func (p *Peer) deliver(te contract.TransportEvent) {
	p.events <- te
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
