package messip

import (
	"context"
	"net"
	"time"

	"github.com/osingla/messip/internal/wire"
)

// Timer arms an OS timer whose expiry is delivered to its owning
// channel as a synthetic TIMER frame, exactly as an ordinary peer
// message would arrive.
type Timer struct {
	ch       *Channel
	userType uint32
	repeat   time.Duration
	stop     chan struct{}
}

// TimerCreate arms a timer on ch (which must be owned by this
// process): first fires after first elapses, then every repeat until
// Stop is called or the channel is destroyed. repeat == 0 means
// one-shot.
func TimerCreate(ctx context.Context, ch *Channel, userType uint32, first, repeat time.Duration) (*Timer, error) {
	if !ch.owned {
		return nil, newError(KindProtocol, "TimerCreate", ch.name, nil)
	}
	t := &Timer{ch: ch, userType: userType, repeat: repeat, stop: make(chan struct{})}

	ch.mu.Lock()
	ch.timers = append(ch.timers, t)
	ch.mu.Unlock()

	go t.run(first)
	return t, nil
}

// Stop disarms the timer. Safe to call more than once.
func (t *Timer) Stop() {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
}

func (t *Timer) run(first time.Duration) {
	timer := time.NewTimer(first)
	defer timer.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-t.ch.done:
			return
		case <-timer.C:
			t.fire()
			if t.repeat <= 0 {
				return
			}
			timer.Reset(t.repeat)
		}
	}
}

// fire opens a short-lived outbound connection to the owning
// channel's own listener and writes a TIMER frame, reusing the same
// accept/read path every other peer message travels.
func (t *Timer) fire() {
	_, portStr, err := net.SplitHostPort(t.ch.listener.Addr().String())
	if err != nil {
		Errorf("timer %d on %q: bad listener address: %v", t.userType, t.ch.name, err)
		return
	}
	addr := net.JoinHostPort("127.0.0.1", portStr)

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		Errorf("timer %d on %q: self-dial failed: %v", t.userType, t.ch.name, err)
		return
	}
	defer conn.Close()

	_ = wire.WriteSendFrame(conn, wire.SendFrame{
		Flag:     wire.FlagTimer,
		SenderID: t.ch.cnx.id,
		UserType: t.userType,
	})
}
