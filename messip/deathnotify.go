package messip

import (
	"context"

	"github.com/osingla/messip/internal/wire"
)

// DeathNotify enables or disables death notifications for cnx: when
// enabled, the manager fans out DEATH_PROCESS to this connection's
// channels whenever any other connection dies.
func DeathNotify(ctx context.Context, cnx *Cnx, enable bool, timeout Timeout) error {
	req := wire.DeathNotifyRequest{ID: cnx.id, Enable: enable}
	dctx, cancel := timeout.context(ctx)
	defer cancel()

	var reply wire.DeathNotifyReply
	err := cnx.doRequest(dctx, wire.OpDeathNotify, req.Marshal(), nil, func() error {
		r, err := wire.ReadDeathNotifyReply(cnx.conn)
		reply = r
		return err
	})
	if err != nil {
		return err
	}
	if !reply.OK {
		return newError(KindProtocol, "DeathNotify", "", nil)
	}
	return nil
}
