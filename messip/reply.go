package messip

import (
	"context"
	"time"

	"github.com/osingla/messip/internal/wire"
)

// Reply answers the message Receive returned at index, then releases
// the reply slot. The write is bounded by timeout. An out-of-range or
// already-released index is a harmless no-op, per spec's non-fatal
// Reply contract — the caller should not treat it as fatal, but the
// return value still reports it so callers that want to notice can.
func Reply(ctx context.Context, ch *Channel, index int, answer uint32, buf []byte, timeout Timeout) error {
	rctx, cancel := timeout.context(ctx)
	defer cancel()

	ch.mu.Lock()
	slot, ok := ch.slots.get(index)
	if ok {
		ch.slots.release(index)
	}
	ch.mu.Unlock()

	if !ok {
		return newError(KindProtocol, "Reply", ch.name, nil)
	}

	if err := applyWriteDeadline(slot.conn, rctx); err != nil {
		return err
	}
	err := wire.WriteReplyFrame(slot.conn, wire.ReplyFrame{SenderID: ch.cnx.id, Answer: answer, Payload: buf})
	_ = slot.conn.SetWriteDeadline(time.Time{})
	if err != nil {
		return newError(KindRemotePeerGone, "Reply", ch.name, err)
	}
	return nil
}
