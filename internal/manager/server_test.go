package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osingla/messip/messip"
)

func startTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	srv, err := NewServer("127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx)
		close(done)
	}()
	return srv, func() {
		cancel()
		<-done
	}
}

func connectTo(t *testing.T, srv *Server, id string) *messip.Cnx {
	t.Helper()
	cnx, err := messip.ConnectAddr(context.Background(), srv.Addr().String(), id, messip.Timeout(2*time.Second))
	require.NoError(t, err)
	return cnx
}

func TestServerSynchronousSendReply(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()

	owner := connectTo(t, srv, "owner")
	defer owner.Close()

	ch, err := messip.ChannelCreate(context.Background(), owner, "greet", messip.NoTimeout, 0)
	require.NoError(t, err)

	client := connectTo(t, srv, "client")
	defer client.Close()

	peer, err := messip.ChannelConnect(context.Background(), client, "greet", messip.NoTimeout)
	require.NoError(t, err)

	go func() {
		buf := make([]byte, 64)
		msg, err := messip.Receive(context.Background(), ch, buf, messip.NoTimeout)
		if err != nil || msg.Event != messip.EventData {
			return
		}
		_ = messip.Reply(context.Background(), ch, msg.Index, 42, buf[:msg.N], messip.Timeout(2*time.Second))
	}()

	answer, reply, err := messip.SendAlloc(context.Background(), peer, 7, []byte("hello"), messip.Timeout(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, uint32(42), answer)
	assert.Equal(t, "hello", string(reply))
}

func TestServerBufferedSendAndDismiss(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()

	owner := connectTo(t, srv, "owner2")
	defer owner.Close()

	ch, err := messip.ChannelCreate(context.Background(), owner, "queue", messip.NoTimeout, 2)
	require.NoError(t, err)

	client := connectTo(t, srv, "client2")

	peer, err := messip.ChannelConnect(context.Background(), client, "queue", messip.NoTimeout)
	require.NoError(t, err)

	depth, err := messip.BufferedSend(context.Background(), peer, 1, []byte("a"), messip.Timeout(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, depth)

	msg, err := messip.Receive(context.Background(), ch, make([]byte, 8), messip.Timeout(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, messip.EventNoReply, msg.Event)

	require.NoError(t, client.Close())

	assert.Eventually(t, func() bool {
		_, deleted := srv.Registry.DeleteChannel("queue", "owner2")
		return deleted
	}, 2*time.Second, 20*time.Millisecond)
}

func TestServerShutdownTearsDownLiveConnections(t *testing.T) {
	srv, stop := startTestServer(t)

	owner := connectTo(t, srv, "owner-down")
	defer owner.Close()
	_, err := messip.ChannelCreate(context.Background(), owner, "ephemeral", messip.NoTimeout, 0)
	require.NoError(t, err)

	// Cancelling the serve context must close the live control link and
	// run its teardown, not just stop accepting new connections.
	stop()

	snap := srv.Registry.Snapshot()
	assert.Empty(t, snap.Connections)
	assert.Empty(t, snap.Channels)
}

func TestServerDeathNotify(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()

	watcher := connectTo(t, srv, "watcher")
	defer watcher.Close()

	watcherCh, err := messip.ChannelCreate(context.Background(), watcher, "watch", messip.NoTimeout, 0)
	require.NoError(t, err)

	require.NoError(t, messip.DeathNotify(context.Background(), watcher, true, messip.Timeout(time.Second)))

	victim := connectTo(t, srv, "victim")
	_, err = messip.ChannelCreate(context.Background(), victim, "doomed", messip.NoTimeout, 0)
	require.NoError(t, err)
	require.NoError(t, victim.Close())

	msg, err := messip.Receive(context.Background(), watcherCh, nil, messip.Timeout(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, messip.EventDeathProcess, msg.Event)
	assert.Equal(t, "victim", msg.PeerID)
}
