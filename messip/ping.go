package messip

import (
	"context"

	"github.com/osingla/messip/internal/wire"
)

// Ping round-trips a PING marker to the owner of ch over the peer
// socket. The owner's Receive loop answers it transparently; Ping
// never surfaces a pong to the remote's own Receive calls.
func Ping(ctx context.Context, ch *Channel, timeout Timeout) error {
	pctx, cancel := timeout.context(ctx)
	defer cancel()

	ch.peerWriteMu.Lock()
	defer ch.peerWriteMu.Unlock()

	if err := applyDeadline(ch.peerConn, pctx); err != nil {
		return err
	}
	if err := wire.WriteMarkerFrame(ch.peerConn, wire.FlagPing, ch.cnx.id); err != nil {
		return newError(KindRemotePeerGone, "Ping", ch.name, err)
	}
	if err := applyDeadline(ch.peerConn, pctx); err != nil {
		return err
	}
	if _, err := wire.ReadReplyFrame(ch.peerConn); err != nil {
		return newError(KindRemotePeerGone, "Ping", ch.name, err)
	}
	return nil
}
