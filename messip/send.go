package messip

import (
	"context"

	"github.com/osingla/messip/internal/wire"
)

// Send writes payload with the given user type to ch (a
// ChannelConnect'd channel) and blocks for the matching reply,
// copying up to len(replyBuf) bytes into it. Any remainder of the
// reply is returned as overflow, mirroring Receive's over-length
// preservation property in the other direction.
func Send(ctx context.Context, ch *Channel, userType uint32, payload []byte, replyBuf []byte, timeout Timeout) (answer uint32, n int, overflow []byte, err error) {
	rep, err := ch.send(ctx, userType, payload, uint32(len(replyBuf)), timeout)
	if err != nil {
		return 0, 0, nil, err
	}
	n = copy(replyBuf, rep.Payload)
	overflow = append([]byte(nil), rep.Payload[n:]...)
	return rep.Answer, n, overflow, nil
}

// SendAlloc is Send's dynamic-allocation counterpart: the reply is
// delivered in a library-allocated, caller-owned slice sized exactly
// to the answer.
func SendAlloc(ctx context.Context, ch *Channel, userType uint32, payload []byte, timeout Timeout) (answer uint32, reply []byte, err error) {
	rep, err := ch.send(ctx, userType, payload, 0, timeout)
	if err != nil {
		return 0, nil, err
	}
	return rep.Answer, rep.Payload, nil
}

func (ch *Channel) send(ctx context.Context, userType uint32, payload []byte, replyMaxLen uint32, timeout Timeout) (wire.ReplyFrame, error) {
	sctx, cancel := timeout.context(ctx)
	defer cancel()

	ch.peerWriteMu.Lock()
	defer ch.peerWriteMu.Unlock()

	if err := applyDeadline(ch.peerConn, sctx); err != nil {
		return wire.ReplyFrame{}, err
	}
	frame := wire.SendFrame{
		Flag:        wire.FlagNormal,
		SenderID:    ch.cnx.id,
		UserType:    userType,
		ReplyMaxLen: replyMaxLen,
		Payload:     payload,
	}
	if err := wire.WriteSendFrame(ch.peerConn, frame); err != nil {
		return wire.ReplyFrame{}, newError(KindRemotePeerGone, "Send", ch.name, err)
	}

	if err := applyDeadline(ch.peerConn, sctx); err != nil {
		return wire.ReplyFrame{}, err
	}
	rep, err := wire.ReadReplyFrame(ch.peerConn)
	if err != nil {
		return wire.ReplyFrame{}, newError(KindRemotePeerGone, "Send", ch.name, err)
	}
	return rep, nil
}

// BufferedSend submits a non-blocking message to ch over the manager
// control link. It only blocks if the manager withholds its reply
// because the queue is at capacity; on return it reports how many
// messages were already queued ahead of this one (0 for the first
// message into an empty queue).
func BufferedSend(ctx context.Context, ch *Channel, userType uint32, payload []byte, timeout Timeout) (depth int, err error) {
	req := wire.BufferedSendRequest{
		SenderID:         ch.cnx.id,
		UserType:         userType,
		DataLen:          uint32(len(payload)),
		OwnerControlSock: ch.ownerControlSock,
	}
	dctx, cancel := timeout.context(ctx)
	defer cancel()

	var reply wire.BufferedSendReply
	doErr := ch.cnx.doRequest(dctx, wire.OpBufferedSend, req.Marshal(), payload, func() error {
		r, err := wire.ReadBufferedSendReply(ch.cnx.conn)
		reply = r
		return err
	})
	if doErr != nil {
		return -1, doErr
	}
	if !reply.OK {
		return -1, newError(KindProtocol, "BufferedSend", ch.name, nil)
	}
	return int(reply.NBuffered), nil
}
