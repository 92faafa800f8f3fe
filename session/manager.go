// Package session implements the session lifecycle state machine and the
// host-authoritative roster replication loop.
//
// One Manager goroutine owns all session and roster state: presentation
// commands, transport events and connect results are serialized through
// its Run loop, so there are never concurrent writers to the roster.
// The host relays every mutation; clients apply broadcasts idempotently
// and are periodically healed by full snapshots.
package session

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"lobby-lab/contract"
	"lobby-lab/domain"
	"lobby-lab/domain/event"
	liberrors "lobby-lab/errors"
	"lobby-lab/moderation"
	"lobby-lab/protocol"
)

// Config carries the manager's identity and tuning knobs.
type Config struct {
	Identity    domain.Identity
	DisplayName string
	// CommandBuffer and EventBuffer size the command intake and event
	// output channels. Full channels drop with a warning, matching the
	// best-effort presentation boundary.
	CommandBuffer int
	EventBuffer   int
	// HistoryLimit bounds the retained chat history (FIFO eviction).
	HistoryLimit int
	// ResyncInterval is how often a connected host rebroadcasts a full
	// roster snapshot so replicas heal from any lost update. Zero
	// disables periodic resync (tests drive it explicitly).
	ResyncInterval time.Duration
}

// pendingResult reports the outcome of an in-flight host/join attempt.
// The epoch lets the manager discard results of abandoned attempts.
type pendingResult struct {
	epoch uint64
	role  domain.Role
	ref   contract.SessionRef
	err   error
}

type Manager struct {
	log       *slog.Logger
	discovery contract.Discovery
	moderator *moderation.Moderator

	identity    domain.Identity
	displayName string

	roster  *domain.Roster
	history *domain.History

	commands chan domain.Command
	events   chan event.DomainEvent
	pending  chan pendingResult

	state          State
	ref            contract.SessionRef
	hostID         domain.ConnectionID
	epoch          uint64
	resyncInterval time.Duration
}

// NewManager wires a manager to its transport collaborator. The moderator
// may be nil; chat then relays unfiltered.
func NewManager(log *slog.Logger, discovery contract.Discovery, moderator *moderation.Moderator, cfg Config) *Manager {
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = 16
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}
	return &Manager{
		log:            log,
		discovery:      discovery,
		moderator:      moderator,
		identity:       cfg.Identity,
		displayName:    cfg.DisplayName,
		roster:         domain.NewRoster(),
		history:        domain.NewHistory(cfg.HistoryLimit),
		commands:       make(chan domain.Command, cfg.CommandBuffer),
		events:         make(chan event.DomainEvent, cfg.EventBuffer),
		pending:        make(chan pendingResult, 4),
		state:          StateIdle,
		resyncInterval: cfg.ResyncInterval,
	}
}

// Dispatch hands a presentation command to the manager goroutine.
// Non-blocking: a full intake drops the command with a warning.
func (m *Manager) Dispatch(cmd domain.Command) {
	select {
	case m.commands <- cmd:
	default:
		m.log.Warn("Command channel full, dropping command", "command", cmd.CommandName())
	}
}

// Events is the stream consumed by the fanout worker.
func (m *Manager) Events() <-chan event.DomainEvent {
	return m.events
}

// Run is the single thread of control for all session and roster state.
// It exits when ctx is canceled, tearing down any active session first.
func (m *Manager) Run(ctx context.Context) error {
	resync := make(<-chan time.Time)
	if m.resyncInterval > 0 {
		ticker := time.NewTicker(m.resyncInterval)
		defer ticker.Stop()
		resync = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			m.disconnect("shutdown")
			return ctx.Err()
		case cmd := <-m.commands:
			m.handleCommand(ctx, cmd)
		case res := <-m.pending:
			m.handlePendingResult(res)
		case te, ok := <-m.discovery.Events():
			if !ok {
				m.disconnect("transport closed")
				return nil
			}
			m.handleTransport(te)
		case <-resync:
			if m.state == StateConnectedHost {
				m.broadcastSnapshot()
			}
		}
	}
}

func (m *Manager) handleCommand(ctx context.Context, cmd domain.Command) {
	switch c := cmd.(type) {
	case domain.HostCommand:
		m.startHost(ctx, c)
	case domain.JoinCommand:
		m.startJoin(ctx, c)
	case domain.ReadyCommand:
		m.setReady(c.Ready)
	case domain.ChatCommand:
		m.sendChat(c.Text)
	case domain.DisconnectCommand:
		m.disconnect("requested")
	default:
		m.log.Warn("Unknown command", "command", cmd.CommandName())
	}
}

// startHost is valid only from idle; a second call while pending is
// rejected, not queued. The create runs off-loop so the manager keeps
// processing while the discovery call is in flight.
func (m *Manager) startHost(ctx context.Context, cmd domain.HostCommand) {
	if m.state != StateIdle {
		m.log.Warn("Host rejected, session not idle", "state", m.state.String())
		m.emit(event.ErrorReported{Reason: liberrors.ErrNotIdle.Error()})
		return
	}
	m.state = StateHostPending
	m.epoch++
	epoch := m.epoch

	go func() {
		ref, err := m.discovery.CreateSession(ctx, cmd.SessionName, cmd.Capacity)
		select {
		case m.pending <- pendingResult{epoch: epoch, role: domain.RoleHost, ref: ref, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (m *Manager) startJoin(ctx context.Context, cmd domain.JoinCommand) {
	if m.state != StateIdle {
		m.log.Warn("Join rejected, session not idle", "state", m.state.String())
		m.emit(event.ErrorReported{Reason: liberrors.ErrNotIdle.Error()})
		return
	}
	m.state = StateJoinPending
	m.epoch++
	epoch := m.epoch

	go func() {
		res := pendingResult{epoch: epoch, role: domain.RoleClient}
		res.ref, res.err = m.discovery.FindSession(ctx, cmd.Target)
		if res.err == nil {
			res.err = m.discovery.JoinSession(ctx, res.ref)
		}
		select {
		case m.pending <- res:
		case <-ctx.Done():
		}
	}()
}

func (m *Manager) handlePendingResult(res pendingResult) {
	if res.epoch != m.epoch {
		// A superseding Disconnect abandoned this attempt; a late
		// success still holds a session resource, release it.
		m.log.Debug("Ignoring stale connect result", "role", string(res.role))
		if res.err == nil {
			m.discovery.LeaveSession(res.ref)
		}
		return
	}

	switch res.role {
	case domain.RoleHost:
		if res.err != nil {
			m.log.Warn("Session create failed", "error", res.err)
			m.state = StateIdle
			m.emit(event.ErrorReported{Reason: liberrors.ErrSessionCreateFailed.Error()})
			return
		}
		m.state = StateConnectedHost
		m.ref = res.ref
		m.roster.Add(m.discovery.SelfID(), m.identity, m.displayName)
		m.emit(event.SessionReady{Role: domain.RoleHost, SessionName: res.ref.Name})
		m.emitRoster()

	case domain.RoleClient:
		if res.err != nil {
			reason := liberrors.ErrConnectFailed
			if goerrors.Is(res.err, liberrors.ErrSessionNotFound) {
				reason = liberrors.ErrSessionNotFound
			}
			m.log.Warn("Join failed", "error", res.err)
			m.state = StateIdle
			m.emit(event.ErrorReported{Reason: reason.Error()})
			return
		}
		m.state = StateConnectedClient
		m.ref = res.ref
		m.emit(event.SessionReady{Role: domain.RoleClient, SessionName: res.ref.Name})
		// The transport may have reported the host link before the join
		// result landed; complete the handshake either way.
		if m.hostID != "" {
			m.sendJoinInfo()
		}
	}
}

func (m *Manager) handleTransport(te contract.TransportEvent) {
	switch te.Kind {
	case contract.PeerConnected:
		m.peerConnected(te.Peer)
	case contract.PeerDisconnected:
		m.peerLost(te.Peer)
	case contract.MessageReceived:
		m.handlePayload(te.Peer, te.Payload)
	case contract.LocalConnectionLost:
		if m.state == StateIdle {
			return
		}
		reason := "connection lost"
		if m.state == StateConnectedClient || m.state == StateJoinPending {
			reason = liberrors.ErrHostLost.Error()
		}
		m.disconnect(reason)
	}
}

func (m *Manager) peerConnected(id domain.ConnectionID) {
	switch m.state {
	case StateJoinPending, StateConnectedClient:
		if m.hostID != "" {
			return
		}
		m.hostID = id
		if m.state == StateConnectedClient {
			m.sendJoinInfo()
		}
	default:
		// Host side: membership waits for the JoinInfo handshake.
		m.log.Debug("Peer connected", "peer", string(id))
	}
}

// peerLost implements the core asymmetry: losing the host ends the
// session for this peer entirely, losing a client only shrinks the
// host's roster.
func (m *Manager) peerLost(id domain.ConnectionID) {
	switch m.state {
	case StateConnectedHost:
		p, ok := m.roster.Get(id)
		if !ok || !m.roster.Remove(id) {
			return
		}
		m.broadcast(protocol.Envelope{
			Kind:         protocol.KindRosterRemove,
			RosterRemove: &protocol.RosterRemove{ConnectionID: string(id)},
		})
		m.notice(fmt.Sprintf("%s left the session", p.DisplayName))
		m.emitRoster()
	case StateJoinPending, StateConnectedClient:
		if id == m.hostID {
			m.disconnect(liberrors.ErrHostLost.Error())
		}
	}
}

func (m *Manager) handlePayload(from domain.ConnectionID, payload []byte) {
	env, err := protocol.Decode(payload)
	if err != nil {
		// Never fatal: malformed or unknown frames are absorbed.
		m.log.Warn("Dropping invalid payload", "from", string(from), "error", err)
		return
	}

	switch m.state {
	case StateConnectedHost:
		m.hostApply(from, env)
	case StateConnectedClient:
		m.clientApply(from, env)
	default:
		// Late delivery from an abandoned or torn-down session.
		m.log.Debug("Payload ignored outside a session", "kind", string(env.Kind))
	}
}

// hostApply handles client intents. The sender's connection id is the
// authoritative key; payload-carried ids are advisory only.
func (m *Manager) hostApply(from domain.ConnectionID, env protocol.Envelope) {
	switch env.Kind {
	case protocol.KindJoinInfo:
		added := m.roster.Add(from, domain.Identity(env.JoinInfo.Identity), env.JoinInfo.DisplayName)
		// The joiner starts from the host's current truth, not from an
		// empty replica. Resent on duplicate handshakes too, it heals.
		m.send(from, snapshotEnvelope(m.roster.Snapshot()))
		if !added {
			return
		}
		m.broadcast(protocol.Envelope{
			Kind: protocol.KindRosterAdd,
			RosterAdd: &protocol.RosterAdd{
				ConnectionID: string(from),
				Identity:     env.JoinInfo.Identity,
				DisplayName:  env.JoinInfo.DisplayName,
			},
		})
		m.notice(fmt.Sprintf("%s joined the session", env.JoinInfo.DisplayName))
		m.emitRoster()

	case protocol.KindReadyState:
		if !m.roster.SetReady(from, env.ReadyState.Ready) {
			return
		}
		m.broadcast(protocol.Envelope{
			Kind:       protocol.KindReadyState,
			ReadyState: &protocol.ReadyState{ConnectionID: string(from), Ready: env.ReadyState.Ready},
		})
		m.emitRoster()

	case protocol.KindChat:
		m.relayChat(from, env.Chat.Text)

	default:
		m.log.Warn("Unexpected payload for host", "kind", string(env.Kind), "from", string(from))
	}
}

// clientApply mutates the replica from host broadcasts. Every operation
// is idempotent, so duplicates and reordering across keys are absorbed.
func (m *Manager) clientApply(from domain.ConnectionID, env protocol.Envelope) {
	if from != m.hostID {
		m.log.Warn("Dropping payload from non-host peer", "from", string(from))
		return
	}

	switch env.Kind {
	case protocol.KindRosterAdd:
		if m.roster.Add(domain.ConnectionID(env.RosterAdd.ConnectionID),
			domain.Identity(env.RosterAdd.Identity), env.RosterAdd.DisplayName) {
			m.emitRoster()
		}
	case protocol.KindRosterRemove:
		if m.roster.Remove(domain.ConnectionID(env.RosterRemove.ConnectionID)) {
			m.emitRoster()
		}
	case protocol.KindReadyState:
		if m.roster.SetReady(domain.ConnectionID(env.ReadyState.ConnectionID), env.ReadyState.Ready) {
			m.emitRoster()
		}
	case protocol.KindRosterSnapshot:
		m.roster.Reset(protocol.ToParticipants(env.RosterSnapshot.Participants))
		m.emitRoster()
	case protocol.KindChat:
		m.deliverChat(domain.ConnectionID(env.Chat.Sender), env.Chat.Text)
	case protocol.KindSystemNotice:
		m.deliverSystem(env.SystemNotice.Text)
	default:
		m.log.Warn("Unexpected payload for client", "kind", string(env.Kind))
	}
}

// setReady routes the local readiness intent. The host is the single
// writer: a client never applies the change optimistically.
func (m *Manager) setReady(ready bool) {
	switch m.state {
	case StateConnectedHost:
		self := m.discovery.SelfID()
		if !m.roster.SetReady(self, ready) {
			return
		}
		m.broadcast(protocol.Envelope{
			Kind:       protocol.KindReadyState,
			ReadyState: &protocol.ReadyState{ConnectionID: string(self), Ready: ready},
		})
		m.emitRoster()
	case StateConnectedClient:
		m.send(m.hostID, protocol.Envelope{
			Kind:       protocol.KindReadyState,
			ReadyState: &protocol.ReadyState{ConnectionID: string(m.discovery.SelfID()), Ready: ready},
		})
	default:
		m.log.Debug("Ready ignored, no session")
	}
}

func (m *Manager) sendChat(text string) {
	if text == "" {
		return
	}
	switch m.state {
	case StateConnectedHost:
		m.relayChat(m.discovery.SelfID(), text)
	case StateConnectedClient:
		// Fire-and-forget: the sender sees its own line only through
		// the host broadcast, keeping one ordered stream everywhere.
		m.send(m.hostID, protocol.Envelope{
			Kind: protocol.KindChat,
			Chat: &protocol.Chat{Text: text, Sender: string(m.discovery.SelfID())},
		})
	default:
		m.log.Debug("Chat ignored, no session")
	}
}

// relayChat is the host-side chat path: censor once, broadcast verbatim
// to every peer, deliver locally. All peers render the same text in the
// same host-issued order.
func (m *Manager) relayChat(sender domain.ConnectionID, text string) {
	if m.moderator != nil {
		text = m.moderator.Censor(text)
	}
	m.broadcast(protocol.Envelope{
		Kind: protocol.KindChat,
		Chat: &protocol.Chat{Text: text, Sender: string(sender)},
	})
	m.deliverChat(sender, text)
}

func (m *Manager) deliverChat(sender domain.ConnectionID, text string) {
	msg := domain.Message{
		ID:     uuid.New(),
		Text:   text,
		Sender: sender,
		At:     time.Now().UTC(),
	}
	m.history.Append(msg)
	m.emit(event.ChatReceived{Message: msg, Language: moderation.DetectLanguage(text)})
}

// deliverSystem records a system line in the history and surfaces it.
func (m *Manager) deliverSystem(text string) {
	msg := domain.Message{
		ID:     uuid.New(),
		Text:   text,
		System: true,
		At:     time.Now().UTC(),
	}
	m.history.Append(msg)
	m.emit(event.SystemNotice{Text: text, At: msg.At})
}

// notice emits a system line locally and broadcasts it to all clients.
func (m *Manager) notice(text string) {
	m.broadcast(protocol.Envelope{
		Kind:         protocol.KindSystemNotice,
		SystemNotice: &protocol.SystemNotice{Text: text},
	})
	m.deliverSystem(text)
}

// disconnect collapses any non-idle state back to idle. Idempotent: a
// second call is a no-op and the Disconnected event fires exactly once.
func (m *Manager) disconnect(reason string) {
	if m.state == StateIdle {
		m.log.Debug("Disconnect ignored, already idle")
		return
	}
	m.log.Info("Disconnecting", "reason", reason, "state", m.state.String())
	m.state = StateDisconnecting
	m.epoch++ // abandon any in-flight host/join attempt

	if m.ref != (contract.SessionRef{}) {
		m.discovery.LeaveSession(m.ref)
	}
	m.ref = contract.SessionRef{}
	m.hostID = ""
	m.roster.Clear()
	m.history.Clear()
	m.state = StateIdle
	m.emit(event.Disconnected{Reason: reason})
}

func (m *Manager) sendJoinInfo() {
	m.send(m.hostID, protocol.Envelope{
		Kind: protocol.KindJoinInfo,
		JoinInfo: &protocol.JoinInfo{
			Identity:    string(m.identity),
			DisplayName: m.displayName,
		},
	})
}

func (m *Manager) broadcastSnapshot() {
	m.broadcast(snapshotEnvelope(m.roster.Snapshot()))
}

func snapshotEnvelope(participants []domain.Participant) protocol.Envelope {
	return protocol.Envelope{
		Kind:           protocol.KindRosterSnapshot,
		RosterSnapshot: &protocol.RosterSnapshot{Participants: protocol.FromParticipants(participants)},
	}
}

func (m *Manager) send(to domain.ConnectionID, env protocol.Envelope) {
	data, err := protocol.Encode(env)
	if err != nil {
		m.log.Error("Encode failed", "kind", string(env.Kind), "error", err)
		return
	}
	if err := m.discovery.Send(to, data); err != nil {
		m.log.Warn("Send failed", "to", string(to), "kind", string(env.Kind), "error", err)
	}
}

func (m *Manager) broadcast(env protocol.Envelope) {
	data, err := protocol.Encode(env)
	if err != nil {
		m.log.Error("Encode failed", "kind", string(env.Kind), "error", err)
		return
	}
	if err := m.discovery.Broadcast(data); err != nil {
		m.log.Warn("Broadcast failed", "kind", string(env.Kind), "error", err)
	}
}

func (m *Manager) emitRoster() {
	m.emit(event.RosterChanged{Snapshot: m.roster.Snapshot(), AllReady: m.roster.AllReady()})
}

func (m *Manager) emit(e event.DomainEvent) {
	select {
	case m.events <- e:
	default:
		m.log.Warn("Event channel full, dropping event", "event", e.Name())
	}
}
