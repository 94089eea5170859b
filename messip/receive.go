package messip

import (
	"context"
	"net"

	"github.com/osingla/messip/internal/wire"
)

// EventKind discriminates what a Receive call surfaced. It replaces
// the reference library's negative integer sentinels (TIMEOUT=-4,
// DISCONNECT=-2, ...) with an explicit, typed result, so callers switch
// on a named constant instead of comparing against a magic number.
type EventKind int

const (
	// EventData is an ordinary synchronous message; Reply it with Message.Index.
	EventData EventKind = iota
	// EventTimeout means the deadline expired before any frame arrived.
	EventTimeout
	// EventDisconnect means the peer issued DISCONNECTING.
	EventDisconnect
	// EventDismissed means the manager notified this owner of a client's death.
	EventDismissed
	// EventTimer means a local timer fired.
	EventTimer
	// EventNoReply means the frame was a buffered delivery, already
	// acknowledged internally — no Reply needed.
	EventNoReply
	// EventDeathProcess is a third-party death notification (DeathNotify subscribers).
	EventDeathProcess
)

// Message is the result of a successful Receive.
type Message struct {
	Event EventKind
	// Index is valid only for EventData: pass it to Reply.
	Index int
	Type  uint32
	// N is the number of payload bytes copied into the caller's buffer.
	N int
	// Overflow holds payload bytes beyond the caller's buffer length,
	// per spec's over-length preservation property. Valid until Reply.
	Overflow []byte
	// PeerID is the subject of a DISMISSED/DEATH_PROCESS notification,
	// or the sender id of an ordinary message.
	PeerID string
}

// acceptLoop accepts peer connections on ch's listener until the
// channel is closed.
func (ch *Channel) acceptLoop() {
	for {
		conn, err := ch.listener.Accept()
		if err != nil {
			return
		}
		ch.mu.Lock()
		ch.peers[conn] = struct{}{}
		ch.mu.Unlock()
		go ch.readLoop(conn)
	}
}

// readLoop reads successive frames off one accepted peer connection,
// dispatching each to the channel's event queue (or, for PING,
// answering it inline without ever surfacing it to Receive).
func (ch *Channel) readLoop(conn net.Conn) {
	defer func() {
		ch.mu.Lock()
		delete(ch.peers, conn)
		ch.mu.Unlock()
	}()

	for {
		f, err := wire.ReadSendFrame(conn)
		if err != nil {
			return
		}
		switch f.Flag {
		case wire.FlagPing:
			_ = wire.WriteReplyFrame(conn, wire.ReplyFrame{SenderID: ch.cnx.id})
		case wire.FlagConnecting:
			// Informational only; the peer is now known to be attached.
		case wire.FlagDisconnecting:
			ch.emit(event{kind: EventDisconnect, peerID: f.SenderID})
			return
		case wire.FlagDismissed:
			ch.emit(event{kind: EventDismissed, peerID: f.SenderID})
		case wire.FlagDeathProcess:
			ch.emit(event{kind: EventDeathProcess, peerID: f.SenderID})
		case wire.FlagTimer:
			ch.emit(event{kind: EventTimer, userType: f.UserType})
		case wire.FlagBuffered:
			// The manager's worker keeps the message queued until this
			// owner acknowledges it, and the acknowledgement is sent
			// only when Receive consumes the event — so the queue depth
			// the manager reports counts messages the application has
			// not yet taken.
			ch.emit(event{kind: EventNoReply, userType: f.UserType, overflow: f.Payload, peerID: f.SenderID, conn: conn})
		default:
			ch.deliverData(conn, f)
		}
	}
}

func (ch *Channel) deliverData(conn net.Conn, f wire.SendFrame) {
	ch.mu.Lock()
	idx := ch.slots.alloc(conn, nil)
	ch.mu.Unlock()
	ch.emit(event{kind: EventData, index: idx, userType: f.UserType, overflow: f.Payload, peerID: f.SenderID})
}

func (ch *Channel) emit(e event) {
	select {
	case ch.events <- e:
	case <-ch.done:
	}
}

// Receive waits for the next inbound message, timer firing, or
// lifecycle notification on ch, copying payload bytes into buf (up to
// len(buf)); any remainder is returned in Message.Overflow per the
// over-length preservation property.
func Receive(ctx context.Context, ch *Channel, buf []byte, timeout Timeout) (Message, error) {
	return ch.receive(ctx, buf, timeout)
}

// ReceiveAlloc is Receive's dynamic-allocation counterpart: the
// library allocates a buffer exactly sized to the inbound payload and
// the caller owns the returned slice.
func ReceiveAlloc(ctx context.Context, ch *Channel, timeout Timeout) (Message, []byte, error) {
	msg, err := ch.receive(ctx, nil, timeout)
	if err != nil {
		return msg, nil, err
	}
	return msg, msg.Overflow, nil
}

func (ch *Channel) receive(ctx context.Context, buf []byte, timeout Timeout) (Message, error) {
	rctx, cancel := timeout.context(ctx)
	defer cancel()

	select {
	case e := <-ch.events:
		if e.kind == EventNoReply && e.conn != nil {
			// Ack the buffered delivery so the manager's worker dequeues
			// it and moves on to the next queued message.
			_ = wire.WriteReplyFrame(e.conn, wire.ReplyFrame{SenderID: ch.cnx.id})
		}
		if e.kind == EventData {
			n := copy(buf, e.overflow)
			overflow := append([]byte(nil), e.overflow[n:]...)
			ch.mu.Lock()
			if s, ok := ch.slots.get(e.index); ok {
				s.overflow = overflow
				ch.slots.slots[e.index] = s
			}
			ch.mu.Unlock()
			return Message{Event: EventData, Index: e.index, Type: e.userType, N: n, Overflow: overflow, PeerID: e.peerID}, nil
		}
		return Message{Event: e.kind, Type: e.userType, Overflow: e.overflow, PeerID: e.peerID}, nil
	case <-ch.done:
		return Message{}, newError(KindProtocol, "Receive", ch.name, nil)
	case <-rctx.Done():
		return Message{Event: EventTimeout}, nil
	}
}

// PendingReplies reports how many Receive'd messages on ch are still
// awaiting a Reply.
func (ch *Channel) PendingReplies() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.slots.pending()
}
