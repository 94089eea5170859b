// Package messip is a QNX-style synchronous and asynchronous
// message-passing client library over TCP/IP. A process links with
// this package, opens one control link to the manager, then creates
// or connects to named channels through it. Synchronous send/receive
// traffic never touches the manager — it flows directly between peer
// sockets.
package messip

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/osingla/messip/internal/wire"
)

// Cnx is a control link to one manager process. Init is implicit:
// constructing one via Connect is enough to use the whole API; there
// is no separate per-process table to seed.
type Cnx struct {
	id   string
	conn net.Conn

	// traceID correlates this connection's log lines; it is never sent
	// on the wire.
	traceID uuid.UUID

	writeMu sync.Mutex // serializes opcode+request writes on the control link

	chMu    sync.Mutex
	owned   map[string]*Channel
	peers   map[string]*Channel // ChannelConnect'd channels, by name
}

// Connect resolves a host (explicit argument, else the config file,
// else "localhost") and the manager's control port, dials it, and
// completes the CONNECT handshake.
func Connect(ctx context.Context, host string, id string, timeout Timeout) (*Cnx, error) {
	host = ResolveHost(host)
	port := ResolvePort(0)
	return ConnectAddr(ctx, fmt.Sprintf("%s:%d", host, port), id, timeout)
}

// ConnectAddr dials the manager at the literal addr ("host:port",
// bypassing config-file/default resolution) and completes the CONNECT
// handshake. Useful for a manager running on a non-default port.
func ConnectAddr(ctx context.Context, addr string, id string, timeout Timeout) (*Cnx, error) {
	ctx, cancel := timeout.context(ctx)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, dialErr(err)
	}

	cnx := &Cnx{
		id:      id,
		conn:    conn,
		traceID: uuid.New(),
		owned:   make(map[string]*Channel),
		peers:   make(map[string]*Channel),
	}

	if err := cnx.connectHandshake(ctx, id); err != nil {
		_ = conn.Close()
		return nil, err
	}
	Debugf("cnx %s: connected to %s as %q", cnx.traceID, addr, id)
	return cnx, nil
}

func (c *Cnx) connectHandshake(ctx context.Context, id string) error {
	if err := applyDeadline(c.conn, ctx); err != nil {
		return err
	}
	if err := wire.WriteOpcode(c.conn, wire.OpConnect); err != nil {
		return newError(KindReset, "Connect", "", err)
	}
	if err := wire.WriteFull(c.conn, wire.ConnectRequest{ID: id}.Marshal()); err != nil {
		return newError(KindReset, "Connect", "", err)
	}
	rep, err := wire.ReadConnectReply(c.conn)
	if err != nil {
		return newError(KindReset, "Connect", "", err)
	}
	if !rep.OK {
		return newError(KindProtocol, "Connect", "", errors.New("manager refused CONNECT"))
	}
	return nil
}

// ID returns the identifier this connection registered with the manager.
func (c *Cnx) ID() string { return c.id }

// Close tears down the control link and every owned/connected channel.
func (c *Cnx) Close() error {
	c.chMu.Lock()
	owned := make([]*Channel, 0, len(c.owned))
	for _, ch := range c.owned {
		owned = append(owned, ch)
	}
	peers := make([]*Channel, 0, len(c.peers))
	for _, ch := range c.peers {
		peers = append(peers, ch)
	}
	c.chMu.Unlock()

	for _, ch := range owned {
		ch.closeOwned()
	}
	for _, ch := range peers {
		ch.closePeer()
	}
	return c.conn.Close()
}

// doRequest serializes a full manager request/reply exchange: write the
// opcode, write the fixed request body (and optional trailing
// payload), then read the reply. Only one goroutine may be mid-request
// on a Cnx at a time; writeMu enforces that.
func (c *Cnx) doRequest(ctx context.Context, op wire.Opcode, body []byte, payload []byte, readReply func() error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := applyDeadline(c.conn, ctx); err != nil {
		return err
	}
	if err := wire.WriteOpcode(c.conn, op); err != nil {
		return newError(KindReset, "request", "", err)
	}
	if err := wire.WriteFull(c.conn, body); err != nil {
		return newError(KindReset, "request", "", err)
	}
	if len(payload) > 0 {
		if err := wire.WriteFull(c.conn, payload); err != nil {
			return newError(KindReset, "request", "", err)
		}
	}
	if err := applyDeadline(c.conn, ctx); err != nil {
		return err
	}
	return readReply()
}

func applyDeadline(conn net.Conn, ctx context.Context) error {
	if dl, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(dl); err != nil {
			return newError(KindReset, "set-deadline", "", err)
		}
		return nil
	}
	return conn.SetDeadline(time.Time{})
}

// applyWriteDeadline bounds only the write direction. Reply uses it
// because the owner's read loop is concurrently blocked reading the
// same peer socket, and a full deadline would cut that read short.
func applyWriteDeadline(conn net.Conn, ctx context.Context) error {
	if dl, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(dl); err != nil {
			return newError(KindReset, "set-deadline", "", err)
		}
		return nil
	}
	return conn.SetWriteDeadline(time.Time{})
}

func dialErr(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return newError(KindHostUnknown, "Connect", "", err)
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return newError(KindTimeout, "Connect", "", err)
	}
	return newError(KindRefused, "Connect", "", err)
}
