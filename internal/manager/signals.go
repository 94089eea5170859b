package manager

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WatchSignals blocks until ctx is cancelled or SIGINT/SIGTERM arrives
// (returning so the caller can begin an orderly shutdown), dumping the
// registry snapshot to the log on SIGUSR1 without otherwise
// interrupting the wait.
func WatchSignals(ctx context.Context, reg *Registry) {
	sig := make(chan os.Signal, 4)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	defer signal.Stop(sig)

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-sig:
			switch s {
			case syscall.SIGUSR1:
				dumpRegistry(reg)
			default:
				logger.Info("signal received, shutting down", "signal", s)
				return
			}
		}
	}
}

func dumpRegistry(reg *Registry) {
	snap := reg.Snapshot()
	logger.Info("registry dump", "connections", len(snap.Connections), "channels", len(snap.Channels))
	for _, c := range snap.Connections {
		logger.Info("connection", "sock", c.Sock, "id", c.ID, "addr", c.Addr)
	}
	for _, ch := range snap.Channels {
		logger.Info("channel", "name", ch.Name, "owner", ch.OwnerID, "queue_depth", ch.QueueDepth, "clients", ch.NClients)
	}
}
