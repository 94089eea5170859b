// Package manager implements the central name-service and buffering
// process: connection and channel registries, buffered-send worker
// tasks, the accept loop, and the HTTP introspection endpoint.
package manager

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"time"
)

var errStopped = errors.New("manager: buffered worker stopped")

func portString(p uint32) string {
	return strconv.FormatUint(uint64(p), 10)
}

// Connection is the manager-side record of one control link.
type Connection struct {
	Sock    uint32 // the control link's stable key
	Conn    net.Conn
	ID      string
	Addr    string
	Created time.Time
}

// Channel is the manager-side record of one named receive endpoint.
type Channel struct {
	Key           uint32 // manager-allocated routing tag, handed out as OwnerControlSock
	Name          string
	Owner         *Connection
	OwnerPort     uint32
	OwnerAddr     string
	MaxBuffered   uint32
	NotifyOnDeath bool

	queue   []BufferedMessage
	clients map[uint32]struct{} // connection sockets that ChannelConnect'd

	worker *bufferedWorker
	cond   *sync.Cond // producers block here when queue is at MaxBuffered
}

// BufferedMessage is one enqueued buffered-send payload.
type BufferedMessage struct {
	SenderID string
	UserType uint32
	Payload  []byte
}

// Registry holds the manager's two maps under a single process-wide
// mutex, exactly as spec section 5 requires: every structural mutation
// acquires it, and no mutation happens without it.
type Registry struct {
	mu            sync.Mutex
	connections   map[uint32]*Connection
	channels      map[string]*Channel
	channelsByKey map[uint32]*Channel
	nextSock      uint32
	nextChanKey   uint32
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		connections:   make(map[uint32]*Connection),
		channels:      make(map[string]*Channel),
		channelsByKey: make(map[uint32]*Channel),
	}
}

// Connect registers a new Connection for conn/id and returns it. Its
// Sock field is a manager-allocated stable key for the control link.
func (r *Registry) Connect(conn net.Conn, id string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSock++
	c := &Connection{
		Sock:    r.nextSock,
		Conn:    conn,
		ID:      id,
		Addr:    conn.RemoteAddr().String(),
		Created: time.Now(),
	}
	r.connections[c.Sock] = c
	return c
}

// CreateChannel registers a new channel owned by owner. It fails
// (ok=false) if name is already taken.
func (r *Registry) CreateChannel(owner *Connection, name string, maxBuffered uint32, ownerPort uint32, ownerAddr string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.channels[name]; exists {
		return nil, false
	}
	r.nextChanKey++
	ch := &Channel{
		Key:         r.nextChanKey,
		Name:        name,
		Owner:       owner,
		OwnerPort:   ownerPort,
		OwnerAddr:   ownerAddr,
		MaxBuffered: maxBuffered,
		clients:     make(map[uint32]struct{}),
	}
	ch.cond = sync.NewCond(&r.mu)
	r.channels[name] = ch
	r.channelsByKey[ch.Key] = ch
	return ch, true
}

// BufferedSendByKey enqueues a message for delivery to the owner of
// the channel identified by key (the OwnerControlSock handed out by
// CHANNEL_CONNECT), blocking the caller when the queue already sits at
// capacity until the worker drains room for it. It starts the
// channel's delivery worker on first use. nb returns the queue depth
// observed ahead of this message (ascending 0, 1, 2, ... as spec
// section 8's scenario S3 describes).
func (r *Registry) BufferedSendByKey(key uint32, msg BufferedMessage) (nb int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, exists := r.channelsByKey[key]
	if !exists || ch.MaxBuffered == 0 {
		return 0, false
	}
	if ch.worker == nil {
		ch.worker = newBufferedWorker(r, ch)
	}
	for uint32(len(ch.queue)) >= ch.MaxBuffered {
		ch.cond.Wait()
		// The channel may have been destroyed while this producer was
		// parked; stop() broadcasts so the wait can observe that.
		if ch.worker.isStopped() {
			return 0, false
		}
	}
	ch.queue = append(ch.queue, msg)
	depth := len(ch.queue)
	ch.worker.cond.Signal()
	return depth - 1, true
}

// DeleteChannel removes name if requesterID owns it and it has no
// connected clients. It refuses with nClients = -1 when the channel
// doesn't exist or requesterID isn't its owner, with the live client
// count when clients are still connected, and reports success as
// (0, true).
func (r *Registry) DeleteChannel(name string, requesterID string) (nClients int, deleted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[name]
	if !ok || ch.Owner.ID != requesterID {
		return -1, false
	}
	n := len(ch.clients)
	if n > 0 {
		return n, false
	}
	if ch.worker != nil {
		ch.worker.stop()
	}
	delete(r.channels, name)
	delete(r.channelsByKey, ch.Key)
	return 0, true
}

// ConnectChannel appends client's socket to name's client set
// (idempotently) and returns the channel plus whether the client was
// already present.
func (r *Registry) ConnectChannel(name string, clientSock uint32) (*Channel, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[name]
	if !ok {
		return nil, false, false
	}
	_, already := ch.clients[clientSock]
	ch.clients[clientSock] = struct{}{}
	return ch, true, already
}

// DisconnectChannelsFor removes clientSock from the client set of
// every channel it had connected to.
func (r *Registry) DisconnectChannelsFor(clientSock uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ch := range r.channels {
		delete(ch.clients, clientSock)
	}
}

// RemoveConnection deletes the connection record for sock, if present.
func (r *Registry) RemoveConnection(sock uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connections, sock)
}

// DestroyChannelsOwnedBy force-removes every channel owned by sock
// (used on owner teardown, bypassing the live-client refusal that
// DeleteChannel enforces) and returns them so the caller can notify
// their clients.
func (r *Registry) DestroyChannelsOwnedBy(sock uint32) []*Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	var owned []*Channel
	for name, ch := range r.channels {
		if ch.Owner.Sock != sock {
			continue
		}
		if ch.worker != nil {
			ch.worker.stop()
		}
		delete(r.channels, name)
		delete(r.channelsByKey, ch.Key)
		owned = append(owned, ch)
	}
	return owned
}

// ChannelsWithClient returns every channel that has clientSock in its
// client set, for DISMISSED fan-out on that connection's teardown.
func (r *Registry) ChannelsWithClient(clientSock uint32) []*Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Channel
	for _, ch := range r.channels {
		if _, ok := ch.clients[clientSock]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// ChannelsWantingDeathNotify returns every channel with death
// notifications enabled whose owner is a connection other than exclude.
func (r *Registry) ChannelsWantingDeathNotify(exclude uint32) []*Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Channel
	for _, ch := range r.channels {
		if ch.NotifyOnDeath && ch.Owner.Sock != exclude {
			out = append(out, ch)
		}
	}
	return out
}

// SetDeathNotify marks every channel owned by the connection
// identified by ownerSock as wanting (or, with enable false, no longer
// wanting) death notifications. The spec keys this opcode off the
// caller's own control-link socket; a connection that owns no channel
// yet has nothing to mark, which is not an error.
func (r *Registry) SetDeathNotify(ownerSock uint32, enable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ch := range r.channels {
		if ch.Owner.Sock == ownerSock {
			ch.NotifyOnDeath = enable
		}
	}
}

// Lookup returns the channel registered under name, if any.
func (r *Registry) Lookup(name string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// Snapshot is a point-in-time, read-only copy of the registries for
// diagnostics (HTTP introspection, SIGUSR1 dump).
type Snapshot struct {
	Connections []Connection
	Channels    []ChannelSnapshot
}

// ChannelSnapshot is a read-only copy of one Channel's public fields.
type ChannelSnapshot struct {
	Name          string
	OwnerID       string
	OwnerSock     uint32
	MaxBuffered   uint32
	QueueDepth    int
	NClients      int
	NotifyOnDeath bool
}

// Snapshot takes a consistent, mutex-protected copy of both registries.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{}
	for _, c := range r.connections {
		s.Connections = append(s.Connections, *c)
	}
	for _, ch := range r.channels {
		s.Channels = append(s.Channels, ChannelSnapshot{
			Name:          ch.Name,
			OwnerID:       ch.Owner.ID,
			OwnerSock:     ch.Owner.Sock,
			MaxBuffered:   ch.MaxBuffered,
			QueueDepth:    len(ch.queue),
			NClients:      len(ch.clients),
			NotifyOnDeath: ch.NotifyOnDeath,
		})
	}
	return s
}
