package manager

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is a minimal net.Conn standing in for a real control link
// in registry-only tests that never touch the network.
type fakeConn struct {
	net.Conn
	remote net.Addr
}

func (f *fakeConn) RemoteAddr() net.Addr { return f.remote }
func (f *fakeConn) Close() error         { return nil }

func newFakeConn() net.Conn {
	return &fakeConn{remote: &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9200}}
}

func TestRegistryCreateChannelNameTaken(t *testing.T) {
	r := NewRegistry()
	owner := r.Connect(newFakeConn(), "srv1")

	_, ok := r.CreateChannel(owner, "one", 0, 4001, "127.0.0.1")
	require.True(t, ok)

	_, ok = r.CreateChannel(owner, "one", 0, 4002, "127.0.0.1")
	assert.False(t, ok, "duplicate channel name must be refused")
}

func TestRegistryDeleteChannelRefusedWithClients(t *testing.T) {
	r := NewRegistry()
	owner := r.Connect(newFakeConn(), "srv1")
	_, ok := r.CreateChannel(owner, "one", 0, 4001, "127.0.0.1")
	require.True(t, ok)

	client := r.Connect(newFakeConn(), "cli1")
	_, ok, already := r.ConnectChannel("one", client.Sock)
	require.True(t, ok)
	require.False(t, already)

	n, deleted := r.DeleteChannel("one", "srv1")
	assert.Equal(t, 1, n)
	assert.False(t, deleted)

	r.DisconnectChannelsFor(client.Sock)
	n, deleted = r.DeleteChannel("one", "srv1")
	assert.Equal(t, 0, n)
	assert.True(t, deleted)
}

func TestRegistryDeleteChannelMissingIsRefused(t *testing.T) {
	r := NewRegistry()
	n, deleted := r.DeleteChannel("nope", "whoever")
	assert.Equal(t, -1, n)
	assert.False(t, deleted)
}

func TestRegistryDeleteChannelRefusedForNonOwner(t *testing.T) {
	r := NewRegistry()
	owner := r.Connect(newFakeConn(), "srv1")
	_, ok := r.CreateChannel(owner, "one", 0, 4001, "127.0.0.1")
	require.True(t, ok)

	n, deleted := r.DeleteChannel("one", "someoneelse")
	assert.Equal(t, -1, n)
	assert.False(t, deleted)
}

func TestRegistryConnectChannelAlreadyConnected(t *testing.T) {
	r := NewRegistry()
	owner := r.Connect(newFakeConn(), "srv1")
	_, ok := r.CreateChannel(owner, "one", 0, 4001, "127.0.0.1")
	require.True(t, ok)

	client := r.Connect(newFakeConn(), "cli1")
	_, ok, already := r.ConnectChannel("one", client.Sock)
	require.True(t, ok)
	require.False(t, already)

	_, ok, already = r.ConnectChannel("one", client.Sock)
	require.True(t, ok)
	assert.True(t, already)
}

func TestRegistrySetDeathNotifyOnlyMarksOwnChannels(t *testing.T) {
	r := NewRegistry()
	a := r.Connect(newFakeConn(), "a")
	b := r.Connect(newFakeConn(), "b")
	_, ok := r.CreateChannel(a, "a-chan", 0, 4001, "127.0.0.1")
	require.True(t, ok)
	_, ok = r.CreateChannel(b, "b-chan", 0, 4002, "127.0.0.1")
	require.True(t, ok)

	r.SetDeathNotify(a.Sock, true)

	subs := r.ChannelsWantingDeathNotify(0)
	require.Len(t, subs, 1)
	assert.Equal(t, "a-chan", subs[0].Name)

	// excluding a itself yields nothing
	assert.Empty(t, r.ChannelsWantingDeathNotify(a.Sock))

	r.SetDeathNotify(a.Sock, false)
	assert.Empty(t, r.ChannelsWantingDeathNotify(0))
}

func TestRegistryDestroyChannelsOwnedByIgnoresLiveClientCount(t *testing.T) {
	r := NewRegistry()
	owner := r.Connect(newFakeConn(), "srv1")
	_, ok := r.CreateChannel(owner, "one", 0, 4001, "127.0.0.1")
	require.True(t, ok)

	client := r.Connect(newFakeConn(), "cli1")
	_, ok, _ = r.ConnectChannel("one", client.Sock)
	require.True(t, ok)

	destroyed := r.DestroyChannelsOwnedBy(owner.Sock)
	require.Len(t, destroyed, 1)
	assert.Equal(t, "one", destroyed[0].Name)

	_, ok = r.Lookup("one")
	assert.False(t, ok)
}

// TestRegistryBufferedSendAscendingDepth exercises spec section 8's S3
// scenario at the registry layer: with MaxBuffered == 3, three sends
// return immediately reporting ascending depth 0, 1, 2, and a fourth
// blocks until a (simulated) drain frees a slot.
func TestRegistryBufferedSendAscendingDepth(t *testing.T) {
	r := NewRegistry()
	owner := r.Connect(newFakeConn(), "srv1")
	ch, ok := r.CreateChannel(owner, "one", 3, 4001, "127.0.0.1")
	require.True(t, ok)

	// Pre-install a worker whose run loop we never start: the test
	// drives the drain itself rather than dialing a real owner socket.
	ch.worker = &bufferedWorker{reg: r, ch: ch, cond: sync.NewCond(&r.mu)}

	for i := 0; i < 3; i++ {
		nb, ok := r.BufferedSendByKey(ch.Key, BufferedMessage{SenderID: "cli", UserType: uint32(i)})
		require.True(t, ok)
		assert.Equal(t, i, nb)
	}

	done := make(chan int, 1)
	go func() {
		nb, ok := r.BufferedSendByKey(ch.Key, BufferedMessage{SenderID: "cli", UserType: 99})
		require.True(t, ok)
		done <- nb
	}()

	select {
	case <-done:
		t.Fatal("fourth buffered send must block while the queue is at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	// Simulate the worker draining one message.
	r.mu.Lock()
	ch.queue = ch.queue[1:]
	ch.cond.Broadcast()
	r.mu.Unlock()

	select {
	case nb := <-done:
		assert.Equal(t, 2, nb)
	case <-time.After(time.Second):
		t.Fatal("blocked send never woke after room freed")
	}
}
