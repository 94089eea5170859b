package manager

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/osingla/messip/internal/wire"
)

// Server is the manager process: a control-port listener plus the
// shared Registry every connection handler mutates.
type Server struct {
	Registry *Registry
	listener net.Listener

	mu    sync.Mutex
	conns map[net.Conn]struct{} // accepted control links still being handled
}

// NewServer binds addr (the control port) and returns a Server ready
// to Serve.
func NewServer(addr string) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{Registry: NewRegistry(), listener: l, conns: make(map[net.Conn]struct{})}, nil
}

// Addr returns the bound control port address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve accepts connections until ctx is cancelled or the listener
// errors, handling each on its own goroutine under an errgroup so a
// single misbehaving connection can't bring the process down. On
// cancellation every live control link is closed too, which unblocks
// its handler's read loop and runs the same teardown a remote death
// would — so shutdown dismantles every registered connection and
// channel, not just the accept loop.
func (s *Server) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		err := s.listener.Close()
		s.mu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
		return err
	})

	g.Go(func() error {
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
			g.Go(func() error {
				s.handleConn(gctx, conn)
				return nil
			})
		}
	})

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// handleConn owns one control link end to end: the CONNECT handshake,
// the opcode dispatch loop, and — on any read error or clean close —
// the full teardown sequence.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	op, err := wire.ReadOpcode(conn)
	if err != nil || op != wire.OpConnect {
		return
	}
	req, err := wire.ReadConnectRequest(conn)
	if err != nil {
		return
	}
	if err := wire.WriteFull(conn, wire.ConnectReply{OK: true}.Marshal()); err != nil {
		return
	}
	c := s.Registry.Connect(conn, req.ID)
	logger.Info("connection established", "id", req.ID, "sock", c.Sock, "addr", c.Addr)

	for {
		op, err := wire.ReadOpcode(conn)
		if err != nil {
			break
		}
		if err := s.dispatch(conn, c, op); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			logger.Warn("request failed", "id", c.ID, "sock", c.Sock, "opcode", op, "err", err)
			break
		}
	}

	s.teardown(c)
}

func (s *Server) dispatch(conn net.Conn, c *Connection, op wire.Opcode) error {
	switch op {
	case wire.OpChannelCreate:
		return s.handleChannelCreate(conn, c)
	case wire.OpChannelDelete:
		return s.handleChannelDelete(conn, c)
	case wire.OpChannelConnect:
		return s.handleChannelConnect(conn, c)
	case wire.OpChannelDisconnect:
		return s.handleChannelDisconnect(conn, c)
	case wire.OpBufferedSend:
		return s.handleBufferedSend(conn, c)
	case wire.OpDeathNotify:
		return s.handleDeathNotify(conn, c)
	default:
		return errors.New("manager: unknown opcode")
	}
}

func (s *Server) handleChannelCreate(conn net.Conn, c *Connection) error {
	req, err := wire.ReadChannelCreateRequest(conn)
	if err != nil {
		return err
	}
	ch, ok := s.Registry.CreateChannel(c, req.Name, req.MaxBuffered, req.OwnerPort, req.OwnerAddrStr)
	reply := wire.ChannelCreateReply{OK: ok}
	if ok {
		reply.Port = ch.OwnerPort
		reply.AddrStr = ch.OwnerAddr
	}
	return wire.WriteFull(conn, reply.Marshal())
}

func (s *Server) handleChannelDelete(conn net.Conn, c *Connection) error {
	req, err := wire.ReadChannelDeleteRequest(conn)
	if err != nil {
		return err
	}
	n, _ := s.Registry.DeleteChannel(req.Name, req.ID)
	return wire.WriteFull(conn, wire.ChannelDeleteReply{NClients: int32(n)}.Marshal())
}

func (s *Server) handleChannelConnect(conn net.Conn, c *Connection) error {
	req, err := wire.ReadChannelConnectRequest(conn)
	if err != nil {
		return err
	}
	ch, ok, already := s.Registry.ConnectChannel(req.Name, c.Sock)
	reply := wire.ChannelConnectReply{OK: ok, AlreadyConnected: already}
	if ok {
		reply.OwnerID = ch.Owner.ID
		reply.Port = ch.OwnerPort
		reply.AddrStr = ch.OwnerAddr
		reply.OwnerControlSock = ch.Key
	}
	return wire.WriteFull(conn, reply.Marshal())
}

func (s *Server) handleChannelDisconnect(conn net.Conn, c *Connection) error {
	req, err := wire.ReadChannelDisconnectRequest(conn)
	if err != nil {
		return err
	}
	// The named channel gates the ok/not-ok reply, but the removal
	// sweeps every channel this connection had connected to.
	_, ok := s.Registry.Lookup(req.Name)
	if ok {
		s.Registry.DisconnectChannelsFor(c.Sock)
	}
	return wire.WriteFull(conn, wire.ChannelDisconnectReply{OK: ok}.Marshal())
}

func (s *Server) handleBufferedSend(conn net.Conn, c *Connection) error {
	req, err := wire.ReadBufferedSendRequest(conn)
	if err != nil {
		return err
	}
	payload := make([]byte, req.DataLen)
	if req.DataLen > 0 {
		if err := wire.ReadFull(conn, payload); err != nil {
			return err
		}
	}
	nb, ok := s.Registry.BufferedSendByKey(req.OwnerControlSock, BufferedMessage{
		SenderID: req.SenderID,
		UserType: req.UserType,
		Payload:  payload,
	})
	reply := wire.BufferedSendReply{OK: ok, NBuffered: uint32(nb)}
	return wire.WriteFull(conn, reply.Marshal())
}

func (s *Server) handleDeathNotify(conn net.Conn, c *Connection) error {
	req, err := wire.ReadDeathNotifyRequest(conn)
	if err != nil {
		return err
	}
	s.Registry.SetDeathNotify(c.Sock, req.Enable)
	return wire.WriteFull(conn, wire.DeathNotifyReply{OK: true}.Marshal())
}

// teardown runs when a control link ends, by whatever cause. All
// notifications destined for one owner are written in order on a
// single connection, so DISMISSED frames reach it before any
// DEATH_PROCESS frame occasioned by the same death — the ordering
// invariant spec section 5 requires.
func (s *Server) teardown(c *Connection) {
	logger.Info("connection closed", "id", c.ID, "sock", c.Sock)

	type target struct {
		addr string
		port uint32
	}
	var order []target
	frames := make(map[target][]uint32)
	add := func(addr string, port uint32, flag uint32) {
		tgt := target{addr: addr, port: port}
		if _, seen := frames[tgt]; !seen {
			order = append(order, tgt)
		}
		frames[tgt] = append(frames[tgt], flag)
	}

	for _, ch := range s.Registry.ChannelsWithClient(c.Sock) {
		add(ch.OwnerAddr, ch.OwnerPort, wire.FlagDismissed)
	}
	s.Registry.DisconnectChannelsFor(c.Sock)

	for _, ch := range s.Registry.ChannelsWantingDeathNotify(c.Sock) {
		add(ch.OwnerAddr, ch.OwnerPort, wire.FlagDeathProcess)
	}

	for _, tgt := range order {
		notifyBatch(tgt.addr, tgt.port, frames[tgt], c.ID)
	}

	s.Registry.DestroyChannelsOwnedBy(c.Sock)
	s.Registry.RemoveConnection(c.Sock)
}
