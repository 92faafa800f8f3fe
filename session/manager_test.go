package session

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mama165/sdk-go/logs"

	"lobby-lab/contract"
	"lobby-lab/domain"
	"lobby-lab/domain/event"
	liberrors "lobby-lab/errors"
	"lobby-lab/mocks"
	"lobby-lab/moderation"
	"lobby-lab/protocol"
)

const selfConn = domain.ConnectionID("self-conn")

// capture collects every envelope the manager hands to the transport.
type capture struct {
	t          *testing.T
	broadcasts []protocol.Envelope
	sends      map[domain.ConnectionID][]protocol.Envelope
}

func expectTransport(t *testing.T, disc *mocks.MockDiscovery) *capture {
	c := &capture{t: t, sends: make(map[domain.ConnectionID][]protocol.Envelope)}
	disc.EXPECT().SelfID().Return(selfConn).AnyTimes()
	disc.EXPECT().Broadcast(gomock.Any()).DoAndReturn(func(p []byte) error {
		env, err := protocol.Decode(p)
		require.NoError(t, err)
		c.broadcasts = append(c.broadcasts, env)
		return nil
	}).AnyTimes()
	disc.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(to domain.ConnectionID, p []byte) error {
		env, err := protocol.Decode(p)
		require.NoError(t, err)
		c.sends[to] = append(c.sends[to], env)
		return nil
	}).AnyTimes()
	return c
}

func (c *capture) broadcastsOf(kind protocol.Kind) []protocol.Envelope {
	var out []protocol.Envelope
	for _, env := range c.broadcasts {
		if env.Kind == kind {
			out = append(out, env)
		}
	}
	return out
}

func newTestManager(disc contract.Discovery, moderator *moderation.Moderator) *Manager {
	return NewManager(logs.GetLoggerFromLevel(slog.LevelDebug), disc, moderator, Config{
		Identity:    "self-identity",
		DisplayName: "Self",
	})
}

func drainEvents(m *Manager) []event.DomainEvent {
	var out []event.DomainEvent
	for {
		select {
		case e := <-m.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

func eventsOf[E event.DomainEvent](events []event.DomainEvent) []E {
	var out []E
	for _, e := range events {
		if typed, ok := e.(E); ok {
			out = append(out, typed)
		}
	}
	return out
}

// becomeHost drives the manager to ConnectedHost synchronously.
func becomeHost(t *testing.T, m *Manager, disc *mocks.MockDiscovery) {
	disc.EXPECT().CreateSession(gomock.Any(), "game", 4).
		Return(contract.SessionRef{ID: "ref-1", Name: "game"}, nil).
		Times(1)

	m.startHost(context.Background(), domain.HostCommand{SessionName: "game", Capacity: 4})
	m.handlePendingResult(<-m.pending)
	require.Equal(t, StateConnectedHost, m.state)
}

// becomeClient drives the manager to ConnectedClient with a known host.
func becomeClient(t *testing.T, m *Manager, disc *mocks.MockDiscovery, hostID domain.ConnectionID) {
	ref := contract.SessionRef{ID: "ref-1", Name: "game"}
	disc.EXPECT().FindSession(gomock.Any(), "game").Return(ref, nil).Times(1)
	disc.EXPECT().JoinSession(gomock.Any(), ref).Return(nil).Times(1)

	m.startJoin(context.Background(), domain.JoinCommand{Target: "game"})
	m.handlePendingResult(<-m.pending)
	m.peerConnected(hostID)
	require.Equal(t, StateConnectedClient, m.state)
	require.Equal(t, hostID, m.hostID)
}

func TestManager_StartHost_Success(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	disc := mocks.NewMockDiscovery(ctrl)
	expectTransport(t, disc)
	m := newTestManager(disc, nil)

	// When hosting succeeds
	becomeHost(t, m, disc)

	// Then the host itself is the only roster entry, not yet ready
	snapshot := m.roster.Snapshot()
	req.Len(snapshot, 1)
	req.Equal(selfConn, snapshot[0].ConnectionID)
	req.False(snapshot[0].Ready)

	events := drainEvents(m)
	ready := eventsOf[event.SessionReady](events)
	req.Len(ready, 1)
	req.Equal(domain.RoleHost, ready[0].Role)
	req.NotEmpty(eventsOf[event.RosterChanged](events))
}

func TestManager_StartHost_Rejected_While_Pending(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	disc := mocks.NewMockDiscovery(ctrl)
	expectTransport(t, disc)
	disc.EXPECT().CreateSession(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(contract.SessionRef{ID: "ref-1", Name: "game"}, nil).
		Times(1)
	m := newTestManager(disc, nil)

	// Given a host attempt in flight
	m.startHost(context.Background(), domain.HostCommand{SessionName: "game", Capacity: 4})
	req.Equal(StateHostPending, m.state)

	// When a second host attempt is issued before the first resolves
	m.startHost(context.Background(), domain.HostCommand{SessionName: "other", Capacity: 2})

	// Then it is rejected, not queued
	errs := eventsOf[event.ErrorReported](drainEvents(m))
	req.Len(errs, 1)
	req.Equal(liberrors.ErrNotIdle.Error(), errs[0].Reason)

	// And the original attempt still completes
	m.handlePendingResult(<-m.pending)
	req.Equal(StateConnectedHost, m.state)
}

func TestManager_StartJoin_Lookup_Miss(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	disc := mocks.NewMockDiscovery(ctrl)
	expectTransport(t, disc)
	disc.EXPECT().FindSession(gomock.Any(), "ghost").
		Return(contract.SessionRef{}, liberrors.ErrSessionNotFound).
		Times(1)
	m := newTestManager(disc, nil)

	m.startJoin(context.Background(), domain.JoinCommand{Target: "ghost"})
	m.handlePendingResult(<-m.pending)

	req.Equal(StateIdle, m.state)
	errs := eventsOf[event.ErrorReported](drainEvents(m))
	req.Len(errs, 1)
	req.Equal(liberrors.ErrSessionNotFound.Error(), errs[0].Reason)
}

func TestManager_StartJoin_Connect_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	disc := mocks.NewMockDiscovery(ctrl)
	expectTransport(t, disc)
	ref := contract.SessionRef{ID: "ref-1", Name: "game"}
	disc.EXPECT().FindSession(gomock.Any(), "game").Return(ref, nil).Times(1)
	disc.EXPECT().JoinSession(gomock.Any(), ref).Return(liberrors.ErrSessionFull).Times(1)
	m := newTestManager(disc, nil)

	m.startJoin(context.Background(), domain.JoinCommand{Target: "game"})
	m.handlePendingResult(<-m.pending)

	req.Equal(StateIdle, m.state)
	errs := eventsOf[event.ErrorReported](drainEvents(m))
	req.Len(errs, 1)
	req.Equal(liberrors.ErrConnectFailed.Error(), errs[0].Reason)
}

func TestManager_Abandoned_Join_Result_Is_Released(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	disc := mocks.NewMockDiscovery(ctrl)
	expectTransport(t, disc)
	ref := contract.SessionRef{ID: "ref-1", Name: "game"}
	disc.EXPECT().FindSession(gomock.Any(), "game").Return(ref, nil).Times(1)
	disc.EXPECT().JoinSession(gomock.Any(), ref).Return(nil).Times(1)
	// The late success must release the session resource
	disc.EXPECT().LeaveSession(ref).Times(1)
	m := newTestManager(disc, nil)

	// Given an in-flight join superseded by a disconnect
	m.startJoin(context.Background(), domain.JoinCommand{Target: "game"})
	res := <-m.pending
	m.disconnect("requested")
	req.Equal(StateIdle, m.state)

	// When the abandoned attempt resolves late
	m.handlePendingResult(res)

	// Then it is a no-op
	req.Equal(StateIdle, m.state)
	req.Empty(eventsOf[event.SessionReady](drainEvents(m)))
}

func TestManager_Host_Loses_Client_Session_Continues(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	disc := mocks.NewMockDiscovery(ctrl)
	wire := expectTransport(t, disc)
	m := newTestManager(disc, nil)
	becomeHost(t, m, disc)

	// Given two joined clients
	m.hostApply("c1", protocol.Envelope{Kind: protocol.KindJoinInfo,
		JoinInfo: &protocol.JoinInfo{Identity: "alice-id", DisplayName: "Alice"}})
	m.hostApply("c2", protocol.Envelope{Kind: protocol.KindJoinInfo,
		JoinInfo: &protocol.JoinInfo{Identity: "bob-id", DisplayName: "Bob"}})
	req.Equal(3, m.roster.Len())

	// When one client's connection drops
	m.peerLost("c1")

	// Then exactly one participant is removed and the session continues
	req.Equal(StateConnectedHost, m.state)
	req.Equal(2, m.roster.Len())
	_, ok := m.roster.Get("c1")
	req.False(ok)

	removes := wire.broadcastsOf(protocol.KindRosterRemove)
	req.Len(removes, 1)
	req.Equal("c1", removes[0].RosterRemove.ConnectionID)
}

func TestManager_Client_Loses_Host_Full_Teardown(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	disc := mocks.NewMockDiscovery(ctrl)
	expectTransport(t, disc)
	disc.EXPECT().LeaveSession(gomock.Any()).Times(1)
	m := newTestManager(disc, nil)
	becomeClient(t, m, disc, "host-conn")

	// Given a populated replica
	m.clientApply("host-conn", protocol.Envelope{Kind: protocol.KindRosterSnapshot,
		RosterSnapshot: &protocol.RosterSnapshot{Participants: []protocol.WireParticipant{
			{ConnectionID: "host-conn", Identity: "h", DisplayName: "Host"},
			{ConnectionID: string(selfConn), Identity: "self-identity", DisplayName: "Self"},
		}}})
	req.Equal(2, m.roster.Len())

	// When the host connection is lost
	m.peerLost("host-conn")

	// Then this peer tears down completely
	req.Equal(StateIdle, m.state)
	req.Equal(0, m.roster.Len())
	disconnects := eventsOf[event.Disconnected](drainEvents(m))
	req.Len(disconnects, 1)
	req.Equal(liberrors.ErrHostLost.Error(), disconnects[0].Reason)
}

func TestManager_Client_Ignores_Other_Peer_Loss(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	disc := mocks.NewMockDiscovery(ctrl)
	expectTransport(t, disc)
	m := newTestManager(disc, nil)
	becomeClient(t, m, disc, "host-conn")

	m.peerLost("some-other-peer")

	req.Equal(StateConnectedClient, m.state)
	req.Empty(eventsOf[event.Disconnected](drainEvents(m)))
}

func TestManager_Disconnect_Twice_Single_Notification(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	disc := mocks.NewMockDiscovery(ctrl)
	expectTransport(t, disc)
	disc.EXPECT().LeaveSession(gomock.Any()).Times(1)
	m := newTestManager(disc, nil)
	becomeHost(t, m, disc)

	// When disconnect is requested twice in succession
	m.disconnect("requested")
	m.disconnect("requested")

	// Then exactly one teardown notification reaches the presentation
	disconnects := eventsOf[event.Disconnected](drainEvents(m))
	req.Len(disconnects, 1)
	req.Equal(StateIdle, m.state)
}

func TestManager_AllReady_Only_After_Last_Update(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	disc := mocks.NewMockDiscovery(ctrl)
	expectTransport(t, disc)
	m := newTestManager(disc, nil)
	becomeHost(t, m, disc)

	// Given a capacity-4 session with two joined clients
	m.hostApply("c1", protocol.Envelope{Kind: protocol.KindJoinInfo,
		JoinInfo: &protocol.JoinInfo{Identity: "alice-id", DisplayName: "Alice"}})
	m.hostApply("c2", protocol.Envelope{Kind: protocol.KindJoinInfo,
		JoinInfo: &protocol.JoinInfo{Identity: "bob-id", DisplayName: "Bob"}})
	req.Equal(3, m.roster.Len())
	drainEvents(m)

	// When both clients report ready
	m.hostApply("c1", protocol.Envelope{Kind: protocol.KindReadyState,
		ReadyState: &protocol.ReadyState{ConnectionID: "c1", Ready: true}})
	m.hostApply("c2", protocol.Envelope{Kind: protocol.KindReadyState,
		ReadyState: &protocol.ReadyState{ConnectionID: "c2", Ready: true}})

	// Then the gate stays closed until the host is ready too
	changes := eventsOf[event.RosterChanged](drainEvents(m))
	req.Len(changes, 2)
	req.False(changes[0].AllReady)
	req.False(changes[1].AllReady)

	m.setReady(true)

	changes = eventsOf[event.RosterChanged](drainEvents(m))
	req.Len(changes, 1)
	req.True(changes[0].AllReady)
}

func TestManager_Duplicate_ReadyState_Absorbed(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	disc := mocks.NewMockDiscovery(ctrl)
	wire := expectTransport(t, disc)
	m := newTestManager(disc, nil)
	becomeHost(t, m, disc)
	m.hostApply("c1", protocol.Envelope{Kind: protocol.KindJoinInfo,
		JoinInfo: &protocol.JoinInfo{Identity: "alice-id", DisplayName: "Alice"}})

	ready := protocol.Envelope{Kind: protocol.KindReadyState,
		ReadyState: &protocol.ReadyState{ConnectionID: "c1", Ready: true}}
	m.hostApply("c1", ready)
	m.hostApply("c1", ready)

	// A replayed intent produces no second broadcast
	req.Len(wire.broadcastsOf(protocol.KindReadyState), 1)
}

func TestManager_Ready_For_Unknown_Connection_Is_NoOp(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	disc := mocks.NewMockDiscovery(ctrl)
	wire := expectTransport(t, disc)
	m := newTestManager(disc, nil)
	becomeHost(t, m, disc)
	drainEvents(m)

	// A ready intent from a connection absent from the roster is
	// silently absorbed, never surfaced as an error.
	m.hostApply("ghost", protocol.Envelope{Kind: protocol.KindReadyState,
		ReadyState: &protocol.ReadyState{ConnectionID: "ghost", Ready: true}})

	req.Empty(wire.broadcastsOf(protocol.KindReadyState))
	req.Empty(eventsOf[event.RosterChanged](drainEvents(m)))
	req.Empty(eventsOf[event.ErrorReported](drainEvents(m)))
}

func TestManager_Duplicate_JoinInfo_Resends_Snapshot_Only(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	disc := mocks.NewMockDiscovery(ctrl)
	wire := expectTransport(t, disc)
	m := newTestManager(disc, nil)
	becomeHost(t, m, disc)

	join := protocol.Envelope{Kind: protocol.KindJoinInfo,
		JoinInfo: &protocol.JoinInfo{Identity: "alice-id", DisplayName: "Alice"}}
	m.hostApply("c1", join)
	m.hostApply("c1", join)

	// One roster entry, one add broadcast, but the snapshot is resent
	// so a replayed handshake still heals the joiner.
	req.Equal(2, m.roster.Len())
	req.Len(wire.broadcastsOf(protocol.KindRosterAdd), 1)
	req.Len(wire.sends["c1"], 2)
	for _, env := range wire.sends["c1"] {
		req.Equal(protocol.KindRosterSnapshot, env.Kind)
	}
}

func TestManager_Chat_Relay_Attributes_And_Censors(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	disc := mocks.NewMockDiscovery(ctrl)
	wire := expectTransport(t, disc)
	moderator, err := moderation.NewModeratorFromWords([]string{"noob"}, '*')
	req.NoError(err)
	m := newTestManager(disc, moderator)
	becomeHost(t, m, disc)
	drainEvents(m)

	// When a client chat line reaches the host
	m.hostApply("c1", protocol.Envelope{Kind: protocol.KindChat,
		Chat: &protocol.Chat{Text: "gg you noob", Sender: "c1"}})

	// Then the broadcast keeps the original sender and the censored text
	chats := wire.broadcastsOf(protocol.KindChat)
	req.Len(chats, 1)
	req.Equal("c1", chats[0].Chat.Sender)
	req.Equal("gg you ****", chats[0].Chat.Text)

	// And the host renders the same line locally
	received := eventsOf[event.ChatReceived](drainEvents(m))
	req.Len(received, 1)
	req.Equal(domain.ConnectionID("c1"), received[0].Message.Sender)
	req.Equal("gg you ****", received[0].Message.Text)
	req.Equal(1, m.history.Len())
}

func TestManager_Client_Drops_Payload_From_Non_Host(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	disc := mocks.NewMockDiscovery(ctrl)
	expectTransport(t, disc)
	m := newTestManager(disc, nil)
	becomeClient(t, m, disc, "host-conn")

	// Only the host may mutate a replica
	m.clientApply("intruder", protocol.Envelope{Kind: protocol.KindRosterAdd,
		RosterAdd: &protocol.RosterAdd{ConnectionID: "x", Identity: "x", DisplayName: "X"}})

	req.Equal(0, m.roster.Len())
}

func TestManager_Client_Replica_Converges_From_Broadcasts(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	disc := mocks.NewMockDiscovery(ctrl)
	expectTransport(t, disc)
	m := newTestManager(disc, nil)
	becomeClient(t, m, disc, "host-conn")

	add := protocol.Envelope{Kind: protocol.KindRosterAdd,
		RosterAdd: &protocol.RosterAdd{ConnectionID: "c1", Identity: "a", DisplayName: "A"}}
	readyOn := protocol.Envelope{Kind: protocol.KindReadyState,
		ReadyState: &protocol.ReadyState{ConnectionID: "c1", Ready: true}}

	// Duplicated and replayed host broadcasts are absorbed
	m.clientApply("host-conn", add)
	m.clientApply("host-conn", add)
	m.clientApply("host-conn", readyOn)
	m.clientApply("host-conn", readyOn)
	m.clientApply("host-conn", protocol.Envelope{Kind: protocol.KindRosterRemove,
		RosterRemove: &protocol.RosterRemove{ConnectionID: "ghost"}})

	req.Equal(1, m.roster.Len())
	p, ok := m.roster.Get("c1")
	req.True(ok)
	req.True(p.Ready)

	// A later full snapshot still heals the replica wholesale
	m.clientApply("host-conn", protocol.Envelope{Kind: protocol.KindRosterSnapshot,
		RosterSnapshot: &protocol.RosterSnapshot{Participants: []protocol.WireParticipant{
			{ConnectionID: "host-conn", Identity: "h", DisplayName: "Host", Ready: true},
			{ConnectionID: "c1", Identity: "a", DisplayName: "A", Ready: true},
		}}})
	req.Equal(2, m.roster.Len())
}

func TestManager_Invalid_Payload_Never_Fatal(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	disc := mocks.NewMockDiscovery(ctrl)
	expectTransport(t, disc)
	m := newTestManager(disc, nil)
	becomeHost(t, m, disc)
	drainEvents(m)

	m.handlePayload("c1", []byte(`{"kind":"warp-drive"}`))
	m.handlePayload("c1", []byte(`garbage`))

	req.Equal(StateConnectedHost, m.state)
	req.Empty(eventsOf[event.ErrorReported](drainEvents(m)))
}
