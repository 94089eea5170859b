package manager

import (
	"net"
	"time"

	"github.com/osingla/messip/internal/wire"
)

// notifyBatch dials addr:port once, writes one marker frame per flag
// in the order given, and closes. Failures are swallowed: the
// recipient process may already be gone, and there is no reply path
// to report through. Writing the batch on a single connection is what
// keeps same-owner notifications ordered.
func notifyBatch(addr string, port uint32, flags []uint32, subject string) {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(addr, portString(port)), 3*time.Second)
	if err != nil {
		return
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))
	for _, flag := range flags {
		if err := wire.WriteMarkerFrame(conn, flag, subject); err != nil {
			return
		}
	}
}
