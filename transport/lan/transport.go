// Package lan implements the discovery collaborator for a local network.
//
// Hosting opens a TCP listener and announces the session with periodic
// UDP broadcast beacons ({name, addr} JSON datagrams). Joining listens
// for a matching beacon, or dials a "host:port" target directly, then
// speaks newline-delimited JSON frames over the TCP link. TCP provides
// the reliable, ordered per-connection delivery the replication protocol
// relies on; a per-connection write lock keeps frames whole.
package lan

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lobby-lab/contract"
	"lobby-lab/domain"
	liberrors "lobby-lab/errors"
)

const (
	defaultBeaconInterval = 1 * time.Second
	defaultLookupTimeout  = 5 * time.Second
	defaultEventBuffer    = 256
	// maxFrameSize bounds a single frame; chat lines are tiny, roster
	// snapshots grow with session capacity, 64KiB is generous headroom.
	maxFrameSize = 64 * 1024
)

// beacon is the discovery datagram a host broadcasts.
type beacon struct {
	Name string `json:"name"`
	Addr string `json:"addr"`
}

// frame is one TCP line. Hello frames carry the sender's connection id
// during link setup; data frames carry a protocol envelope.
type frame struct {
	Hello string          `json:"hello,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Config struct {
	// BeaconPort is the UDP port beacons are broadcast on and listened
	// for during lookup.
	BeaconPort int
	// BeaconInterval is the announce period while hosting.
	BeaconInterval time.Duration
	// LookupTimeout bounds FindSession when listening for beacons.
	LookupTimeout time.Duration
}

type conn struct {
	id     domain.ConnectionID
	nc     net.Conn
	mu     sync.Mutex // serializes writers so frames never interleave
	closed bool
}

// Transport is one endpoint. It implements contract.Discovery and may
// host or join one session at a time.
type Transport struct {
	log    *slog.Logger
	cfg    Config
	id     domain.ConnectionID
	events chan contract.TransportEvent

	mu       sync.Mutex
	listener net.Listener
	beaconWg sync.WaitGroup
	stopBeat chan struct{}
	conns    map[domain.ConnectionID]*conn
	hostConn *conn // set on clients only
	active   bool
}

func NewTransport(log *slog.Logger, cfg Config) *Transport {
	if cfg.BeaconInterval <= 0 {
		cfg.BeaconInterval = defaultBeaconInterval
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = defaultLookupTimeout
	}
	return &Transport{
		log:    log,
		cfg:    cfg,
		id:     domain.ConnectionID(uuid.NewString()),
		events: make(chan contract.TransportEvent, defaultEventBuffer),
		conns:  make(map[domain.ConnectionID]*conn),
	}
}

func (t *Transport) SelfID() domain.ConnectionID {
	return t.id
}

func (t *Transport) Events() <-chan contract.TransportEvent {
	return t.events
}

func (t *Transport) CreateSession(_ context.Context, name string, capacity int) (contract.SessionRef, error) {
	if capacity < 1 {
		return contract.SessionRef{}, fmt.Errorf("%w: capacity %d", liberrors.ErrSessionCreateFailed, capacity)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active {
		return contract.SessionRef{}, fmt.Errorf("%w: transport already in a session", liberrors.ErrSessionCreateFailed)
	}

	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		return contract.SessionRef{}, fmt.Errorf("%w: %v", liberrors.ErrSessionCreateFailed, err)
	}
	t.listener = listener
	t.stopBeat = make(chan struct{})
	t.active = true

	ref := contract.SessionRef{
		ID:   uuid.NewString(),
		Name: name,
		Addr: listener.Addr().String(),
	}

	go t.acceptLoop(listener, capacity)
	t.beaconWg.Add(1)
	go t.announce(ref, t.stopBeat)

	t.log.Info("Hosting session", "name", name, "addr", ref.Addr)
	return ref, nil
}

// FindSession resolves a target. A "host:port" target skips discovery
// entirely; anything else is matched against beacon names.
func (t *Transport) FindSession(ctx context.Context, target string) (contract.SessionRef, error) {
	if strings.Contains(target, ":") {
		return contract.SessionRef{ID: uuid.NewString(), Name: target, Addr: target}, nil
	}

	pc, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", t.cfg.BeaconPort))
	if err != nil {
		return contract.SessionRef{}, fmt.Errorf("%w: beacon listen: %v", liberrors.ErrSessionNotFound, err)
	}
	defer pc.Close()

	deadline := time.Now().Add(t.cfg.LookupTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = pc.SetReadDeadline(deadline)

	buf := make([]byte, 1024)
	for {
		if ctx.Err() != nil {
			return contract.SessionRef{}, fmt.Errorf("%w: %v", liberrors.ErrSessionNotFound, ctx.Err())
		}
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			return contract.SessionRef{}, fmt.Errorf("%w: %q", liberrors.ErrSessionNotFound, target)
		}
		var b beacon
		if err := json.Unmarshal(buf[:n], &b); err != nil {
			continue
		}
		if b.Name == target {
			return contract.SessionRef{ID: uuid.NewString(), Name: b.Name, Addr: b.Addr}, nil
		}
	}
}

func (t *Transport) JoinSession(ctx context.Context, ref contract.SessionRef) error {
	t.mu.Lock()
	if t.active {
		t.mu.Unlock()
		return fmt.Errorf("%w: transport already in a session", liberrors.ErrConnectFailed)
	}
	t.mu.Unlock()

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", ref.Addr)
	if err != nil {
		return fmt.Errorf("%w: %v", liberrors.ErrConnectFailed, err)
	}

	c := &conn{nc: nc}
	if err := c.writeFrame(frame{Hello: string(t.id)}); err != nil {
		nc.Close()
		return fmt.Errorf("%w: hello: %v", liberrors.ErrConnectFailed, err)
	}
	// The reader must survive the handshake: it may already hold
	// buffered frames sent right after the host's hello.
	reader := bufio.NewReaderSize(nc, maxFrameSize)
	hello, err := readFrame(reader)
	if err != nil || hello.Hello == "" {
		nc.Close()
		return fmt.Errorf("%w: handshake failed", liberrors.ErrConnectFailed)
	}
	c.id = domain.ConnectionID(hello.Hello)

	t.mu.Lock()
	t.active = true
	t.hostConn = c
	t.conns[c.id] = c
	t.mu.Unlock()

	t.deliver(contract.TransportEvent{Kind: contract.PeerConnected, Peer: c.id})
	go t.readLoopWith(c, reader)
	return nil
}

// LeaveSession shuts the link(s) down. On a host this also stops the
// beacon and the listener, so clients observe the disconnect through
// their read loops. Safe to call twice.
func (t *Transport) LeaveSession(contract.SessionRef) {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	listener := t.listener
	t.listener = nil
	if t.stopBeat != nil {
		close(t.stopBeat)
		t.stopBeat = nil
	}
	conns := t.conns
	t.conns = make(map[domain.ConnectionID]*conn)
	t.hostConn = nil
	t.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}
	for _, c := range conns {
		c.close()
	}
	t.beaconWg.Wait()
}

func (t *Transport) Send(to domain.ConnectionID, payload []byte) error {
	t.mu.Lock()
	c, ok := t.conns[to]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: peer %s not connected", liberrors.ErrNotConnected, to)
	}
	return c.writeFrame(frame{Data: payload})
}

func (t *Transport) Broadcast(payload []byte) error {
	t.mu.Lock()
	targets := make([]*conn, 0, len(t.conns))
	for _, c := range t.conns {
		targets = append(targets, c)
	}
	t.mu.Unlock()

	var firstErr error
	for _, c := range targets {
		if err := c.writeFrame(frame{Data: payload}); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// announce broadcasts the session beacon until stopped.
func (t *Transport) announce(ref contract.SessionRef, stop <-chan struct{}) {
	defer t.beaconWg.Done()

	_, port, err := net.SplitHostPort(ref.Addr)
	if err != nil {
		t.log.Error("Beacon disabled, bad listen address", "addr", ref.Addr, "error", err)
		return
	}
	payload, err := json.Marshal(beacon{Name: ref.Name, Addr: net.JoinHostPort(localIP(), port)})
	if err != nil {
		t.log.Error("Beacon disabled, marshal failed", "error", err)
		return
	}

	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: t.cfg.BeaconPort}
	pc, err := net.DialUDP("udp4", nil, dst)
	if err != nil {
		t.log.Error("Beacon disabled, UDP dial failed", "error", err)
		return
	}
	defer pc.Close()

	ticker := time.NewTicker(t.cfg.BeaconInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := pc.Write(payload); err != nil {
				t.log.Debug("Beacon send failed", "error", err)
			}
		}
	}
}

func (t *Transport) acceptLoop(listener net.Listener, capacity int) {
	for {
		nc, err := listener.Accept()
		if err != nil {
			// Listener closed: either LeaveSession or a local fault.
			t.mu.Lock()
			active := t.active
			t.mu.Unlock()
			if active {
				t.deliver(contract.TransportEvent{Kind: contract.LocalConnectionLost})
			}
			return
		}
		go t.acceptOne(nc, capacity)
	}
}

// acceptOne performs the hello exchange with a dialing client, enforcing
// capacity before the link is registered.
func (t *Transport) acceptOne(nc net.Conn, capacity int) {
	reader := bufio.NewReaderSize(nc, maxFrameSize)
	hello, err := readFrame(reader)
	if err != nil || hello.Hello == "" {
		t.log.Warn("Rejecting connection, handshake failed", "remote", nc.RemoteAddr().String())
		nc.Close()
		return
	}

	c := &conn{id: domain.ConnectionID(hello.Hello), nc: nc}

	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		nc.Close()
		return
	}
	if len(t.conns)+1 >= capacity {
		t.mu.Unlock()
		t.log.Warn("Rejecting connection, session full", "capacity", capacity)
		nc.Close()
		return
	}
	if _, dup := t.conns[c.id]; dup {
		t.mu.Unlock()
		t.log.Warn("Rejecting connection, duplicate id", "peer", hello.Hello)
		nc.Close()
		return
	}
	t.conns[c.id] = c
	t.mu.Unlock()

	if err := c.writeFrame(frame{Hello: string(t.id)}); err != nil {
		t.dropConn(c)
		return
	}

	t.deliver(contract.TransportEvent{Kind: contract.PeerConnected, Peer: c.id})
	t.readLoopWith(c, reader)
}

func (t *Transport) readLoopWith(c *conn, reader *bufio.Reader) {
	for {
		f, err := readFrame(reader)
		if err != nil {
			t.dropConn(c)
			return
		}
		if len(f.Data) == 0 {
			continue
		}
		t.deliver(contract.TransportEvent{
			Kind:    contract.MessageReceived,
			Peer:    c.id,
			Payload: f.Data,
		})
	}
}

// dropConn unregisters a dead link. The session layer decides what a
// PeerDisconnected means: host loss on a client, one roster removal on
// the host.
func (t *Transport) dropConn(c *conn) {
	c.close()

	t.mu.Lock()
	_, known := t.conns[c.id]
	delete(t.conns, c.id)
	active := t.active
	t.mu.Unlock()

	if !known || !active {
		return
	}
	t.deliver(contract.TransportEvent{Kind: contract.PeerDisconnected, Peer: c.id})
}

func (t *Transport) deliver(te contract.TransportEvent) {
	t.events <- te
}

func (c *conn) writeFrame(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	_, err = c.nc.Write(data)
	return err
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.nc.Close()
}

func readFrame(reader *bufio.Reader) (frame, error) {
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return frame{}, err
	}
	var f frame
	if err := json.Unmarshal(line, &f); err != nil {
		return frame{}, err
	}
	return f, nil
}

// localIP picks the primary outbound interface address for beacons, so
// joiners dial a reachable host rather than the wildcard listen address.
func localIP() string {
	conn, err := net.Dial("udp4", "255.255.255.255:9")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
