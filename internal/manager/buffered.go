package manager

import (
	"net"
	"sync"
	"time"

	"github.com/osingla/messip/internal/wire"
)

// bufferedWorker is the lazily-started, per-channel task that drains
// the buffered queue one message at a time over a persistent outbound
// socket to the channel's owner, per spec section 4.2.
type bufferedWorker struct {
	reg  *Registry
	ch   *Channel
	cond *sync.Cond

	mu      sync.Mutex // guards conn/stopped, separate from reg.mu to avoid holding it during I/O
	conn    net.Conn
	stopped bool
}

func newBufferedWorker(reg *Registry, ch *Channel) *bufferedWorker {
	w := &bufferedWorker{reg: reg, ch: ch, cond: sync.NewCond(&reg.mu)}
	go w.run()
	return w
}

func (w *bufferedWorker) stop() {
	w.mu.Lock()
	w.stopped = true
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.mu.Unlock()
	w.cond.Broadcast()
	w.ch.cond.Broadcast()
}

// retryDelay paces redelivery attempts after a failed push, so a
// temporarily unreachable owner doesn't spin the worker.
const retryDelay = 250 * time.Millisecond

func (w *bufferedWorker) run() {
	for {
		w.reg.mu.Lock()
		for len(w.ch.queue) == 0 && !w.isStopped() {
			w.cond.Wait()
		}
		if w.isStopped() {
			w.reg.mu.Unlock()
			return
		}
		msg := w.ch.queue[0]
		w.reg.mu.Unlock()

		if !w.deliver(msg) {
			// The head message stays queued until the owner acks it.
			time.Sleep(retryDelay)
			continue
		}

		w.reg.mu.Lock()
		if len(w.ch.queue) > 0 {
			w.ch.queue = w.ch.queue[1:]
		}
		w.ch.cond.Broadcast()
		w.reg.mu.Unlock()
	}
}

func (w *bufferedWorker) isStopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

// deliver pushes one message to the channel owner and blocks for the
// tiny acknowledgement frame, all outside the registry mutex. The
// owner only acks once its application consumes the message, so the
// ack read carries no deadline: it ends when the ack arrives or the
// connection is torn down. It reports whether the ack arrived —
// only then may the caller dequeue the message.
func (w *bufferedWorker) deliver(msg BufferedMessage) bool {
	conn, err := w.dial()
	if err != nil {
		return false
	}
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	f := wire.SendFrame{
		Flag:     wire.FlagBuffered,
		SenderID: msg.SenderID,
		UserType: msg.UserType,
		Payload:  msg.Payload,
	}
	if err := wire.WriteSendFrame(conn, f); err != nil {
		w.resetConn()
		return false
	}
	_ = conn.SetWriteDeadline(time.Time{})
	if _, err := wire.ReadReplyFrame(conn); err != nil {
		w.resetConn()
		return false
	}
	return true
}

func (w *bufferedWorker) dial() (net.Conn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil, errStopped
	}
	if w.conn != nil {
		return w.conn, nil
	}
	addr := net.JoinHostPort(w.ch.OwnerAddr, portString(w.ch.OwnerPort))
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, err
	}
	w.conn = conn
	return conn, nil
}

func (w *bufferedWorker) resetConn() {
	w.mu.Lock()
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.mu.Unlock()
}
