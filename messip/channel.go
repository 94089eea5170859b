package messip

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/osingla/messip/internal/wire"
)

// event is one item the channel's multiplexer hands to Receive. conn
// is set only for buffered deliveries, whose acknowledgement back to
// the manager is deferred until Receive actually consumes the message.
type event struct {
	kind     EventKind
	index    int
	userType uint32
	overflow []byte
	peerID   string
	conn     net.Conn
}

// Channel is a process's local handle onto a named channel — either
// one it owns (a listener plus the accepted peer sockets and pending
// reply slots) or one it has connected to (an outbound socket to the
// owner plus the manager-allocated routing key for buffered sends).
type Channel struct {
	cnx     *Cnx
	name    string
	timeout Timeout

	// owned-side state
	owned    bool
	listener net.Listener
	events   chan event
	done     chan struct{}

	mu       sync.Mutex
	slots    slotTable
	peers    map[net.Conn]struct{}
	timers   []*Timer

	// connected-side state
	connected        bool
	ownerID          string
	peerConn         net.Conn
	peerWriteMu      sync.Mutex
	ownerControlSock uint32
}

// Name returns the channel's logical name.
func (ch *Channel) Name() string { return ch.name }

// ChannelCreate binds a fresh listening socket and registers name as a
// unique channel owned by this connection.
func ChannelCreate(ctx context.Context, cnx *Cnx, name string, timeout Timeout, maxBuffered uint32) (*Channel, error) {
	dctx, cancel := timeout.context(ctx)
	defer cancel()

	lc := net.ListenConfig{}
	listener, err := lc.Listen(dctx, "tcp", ":0")
	if err != nil {
		return nil, newError(KindRefused, "ChannelCreate", name, err)
	}

	_, portStr, err := net.SplitHostPort(listener.Addr().String())
	if err != nil {
		_ = listener.Close()
		return nil, newError(KindRefused, "ChannelCreate", name, err)
	}
	port, _ := strconv.Atoi(portStr)

	localAddr := localAdvertiseAddr(cnx.conn)

	req := wire.ChannelCreateRequest{
		ID:           cnx.id,
		MaxBuffered:  maxBuffered,
		Name:         name,
		OwnerPort:    uint32(port),
		OwnerAddrStr: localAddr,
	}

	var reply wire.ChannelCreateReply
	doErr := cnx.doRequest(dctx, wire.OpChannelCreate, req.Marshal(), nil, func() error {
		r, err := wire.ReadChannelCreateReply(cnx.conn)
		reply = r
		return err
	})
	if doErr != nil {
		_ = listener.Close()
		return nil, doErr
	}
	if !reply.OK {
		_ = listener.Close()
		return nil, newError(KindNameTaken, "ChannelCreate", name, errors.New("name already registered with manager"))
	}

	ch := &Channel{
		cnx:      cnx,
		name:     name,
		timeout:  timeout,
		owned:    true,
		listener: listener,
		events:   make(chan event, 16),
		done:     make(chan struct{}),
		peers:    make(map[net.Conn]struct{}),
	}
	go ch.acceptLoop()

	cnx.chMu.Lock()
	cnx.owned[name] = ch
	cnx.chMu.Unlock()

	Debugf("cnx %s: channel %q created on port %d", cnx.traceID, name, port)
	return ch, nil
}

// ChannelDelete asks the manager to delete ch. It returns 0 and a nil
// error on success; the live client count and an ErrBusyChannel error
// when clients are still connected; and -1 with an error otherwise.
func ChannelDelete(ctx context.Context, ch *Channel, timeout Timeout) (int, error) {
	req := wire.ChannelDeleteRequest{ID: ch.cnx.id, Name: ch.name}
	dctx, cancel := timeout.context(ctx)
	defer cancel()

	var reply wire.ChannelDeleteReply
	err := ch.cnx.doRequest(dctx, wire.OpChannelDelete, req.Marshal(), nil, func() error {
		r, err := wire.ReadChannelDeleteReply(ch.cnx.conn)
		reply = r
		return err
	})
	if err != nil {
		return -1, err
	}
	if reply.NClients > 0 {
		return int(reply.NClients), newError(KindBusyChannel, "ChannelDelete", ch.name, nil)
	}
	if reply.NClients < 0 {
		return -1, newError(KindNameMissing, "ChannelDelete", ch.name, errors.New("no such channel, or not owned by this connection"))
	}
	ch.closeOwned()
	ch.cnx.chMu.Lock()
	delete(ch.cnx.owned, ch.name)
	ch.cnx.chMu.Unlock()
	return 0, nil
}

// ChannelConnect locates name via the manager and either reuses an
// existing outbound socket for it in this process, or opens a fresh
// one and completes the CONNECTING handshake.
func ChannelConnect(ctx context.Context, cnx *Cnx, name string, timeout Timeout) (*Channel, error) {
	cnx.chMu.Lock()
	if existing, ok := cnx.peers[name]; ok {
		cnx.chMu.Unlock()
		return existing, nil
	}
	cnx.chMu.Unlock()

	dctx, cancel := timeout.context(ctx)
	defer cancel()

	req := wire.ChannelConnectRequest{ID: cnx.id, Name: name}
	var reply wire.ChannelConnectReply
	err := cnx.doRequest(dctx, wire.OpChannelConnect, req.Marshal(), nil, func() error {
		r, err := wire.ReadChannelConnectReply(cnx.conn)
		reply = r
		return err
	})
	if err != nil {
		return nil, err
	}
	if !reply.OK {
		return nil, newError(KindNameMissing, "ChannelConnect", name, errors.New("no such channel"))
	}

	cnx.chMu.Lock()
	if existing, ok := cnx.peers[name]; ok {
		cnx.chMu.Unlock()
		return existing, nil
	}
	cnx.chMu.Unlock()

	addr := net.JoinHostPort(reply.AddrStr, strconv.Itoa(int(reply.Port)))
	var d net.Dialer
	conn, err := d.DialContext(dctx, "tcp", addr)
	if err != nil {
		return nil, dialErr(err)
	}
	if err := applyDeadline(conn, dctx); err == nil {
		_ = wire.WriteMarkerFrame(conn, wire.FlagConnecting, cnx.id)
	}

	ch := &Channel{
		cnx:              cnx,
		name:             name,
		timeout:          timeout,
		connected:        true,
		ownerID:          reply.OwnerID,
		peerConn:         conn,
		ownerControlSock: reply.OwnerControlSock,
	}

	cnx.chMu.Lock()
	cnx.peers[name] = ch
	cnx.chMu.Unlock()

	Debugf("cnx %s: connected to channel %q owned by %q", cnx.traceID, name, reply.OwnerID)
	return ch, nil
}

// ChannelDisconnect notifies the owner, then the manager, that this
// process is leaving channel ch.
func ChannelDisconnect(ctx context.Context, ch *Channel, timeout Timeout) error {
	dctx, cancel := timeout.context(ctx)
	defer cancel()

	if ch.connected {
		ch.peerWriteMu.Lock()
		if err := applyDeadline(ch.peerConn, dctx); err == nil {
			_ = wire.WriteMarkerFrame(ch.peerConn, wire.FlagDisconnecting, ch.cnx.id)
		}
		ch.peerWriteMu.Unlock()
	}

	req := wire.ChannelDisconnectRequest{ID: ch.cnx.id, Name: ch.name}
	var reply wire.ChannelDisconnectReply
	err := ch.cnx.doRequest(dctx, wire.OpChannelDisconnect, req.Marshal(), nil, func() error {
		r, err := wire.ReadChannelDisconnectReply(ch.cnx.conn)
		reply = r
		return err
	})
	if err != nil {
		return err
	}
	if !reply.OK {
		return newError(KindProtocol, "ChannelDisconnect", ch.name, errors.New("manager refused CHANNEL_DISCONNECT"))
	}

	ch.closePeer()
	ch.cnx.chMu.Lock()
	delete(ch.cnx.peers, ch.name)
	ch.cnx.chMu.Unlock()
	return nil
}

func (ch *Channel) closeOwned() {
	select {
	case <-ch.done:
		return
	default:
		close(ch.done)
	}
	_ = ch.listener.Close()

	ch.mu.Lock()
	for _, t := range ch.timers {
		t.Stop()
	}
	for conn := range ch.peers {
		_ = conn.Close()
	}
	ch.mu.Unlock()
}

func (ch *Channel) closePeer() {
	if ch.peerConn != nil {
		_ = ch.peerConn.Close()
	}
}

// localAdvertiseAddr returns the local address this process is
// reachable at, as seen by the manager over cnx, for use as the
// channel's advertised owner address.
func localAdvertiseAddr(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil {
		return "127.0.0.1"
	}
	if strings.HasPrefix(host, "::") || host == "" {
		return "127.0.0.1"
	}
	return host
}
