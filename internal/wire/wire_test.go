package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedStringRoundTrip(t *testing.T) {
	buf := make([]byte, NameLen)
	require.NoError(t, PutFixed(buf, NameLen, "one"))
	assert.Equal(t, "one", GetFixed(buf))
}

func TestPutFixedTooLong(t *testing.T) {
	buf := make([]byte, 4)
	err := PutFixed(buf, 4, "toolong")
	require.Error(t, err)
}

func TestChannelCreateRequestRoundTrip(t *testing.T) {
	req := ChannelCreateRequest{
		ID:           "srv1",
		MaxBuffered:  3,
		Name:         "one",
		OwnerPort:    4001,
		OwnerAddrStr: "127.0.0.1",
	}
	var buf bytes.Buffer
	buf.Write(req.Marshal())

	got, err := ReadChannelCreateRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestChannelConnectReplyRoundTrip(t *testing.T) {
	rep := ChannelConnectReply{
		OK:               true,
		AlreadyConnected: false,
		OwnerID:          "srv1",
		Port:             4001,
		Addr:             0x0100007f,
		AddrStr:          "127.0.0.1",
		OwnerControlSock: 7,
	}
	var buf bytes.Buffer
	buf.Write(rep.Marshal())

	got, err := ReadChannelConnectReply(&buf)
	require.NoError(t, err)
	assert.Equal(t, rep, got)
}

func TestSendFrameRoundTrip(t *testing.T) {
	f := SendFrame{
		Flag:        FlagBuffered,
		SenderID:    "cli1",
		UserType:    1961,
		ReplyMaxLen: 80,
		Payload:     []byte("Hello"),
	}
	var buf bytes.Buffer
	require.NoError(t, WriteSendFrame(&buf, f))

	got, err := ReadSendFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestSendFrameEmptyPayload(t *testing.T) {
	f := SendFrame{Flag: FlagPing, SenderID: "cli1", UserType: 0, ReplyMaxLen: 0}
	var buf bytes.Buffer
	require.NoError(t, WriteSendFrame(&buf, f))

	got, err := ReadSendFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, got.Payload)
}

func TestReplyFrameRoundTrip(t *testing.T) {
	f := ReplyFrame{SenderID: "srv1", Answer: 3005, Payload: []byte("Bonjour")}
	var buf bytes.Buffer
	require.NoError(t, WriteReplyFrame(&buf, f))

	got, err := ReadReplyFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestMarkerFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMarkerFrame(&buf, FlagDisconnecting, "cli1"))

	got, err := ReadSendFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, FlagDisconnecting, got.Flag)
	assert.Equal(t, "cli1", got.SenderID)
	assert.Empty(t, got.Payload)
}

func TestOpcodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOpcode(&buf, OpChannelCreate))

	got, err := ReadOpcode(&buf)
	require.NoError(t, err)
	assert.Equal(t, OpChannelCreate, got)
}

func TestDeathNotifyRequestFieldOrder(t *testing.T) {
	req := DeathNotifyRequest{ID: "srv1", Enable: true}
	raw := req.Marshal()
	require.Len(t, raw, IDLen+1)
	assert.Equal(t, "srv1", GetFixed(raw[:IDLen]))
	assert.Equal(t, byte(1), raw[IDLen])

	var buf bytes.Buffer
	buf.Write(raw)

	got, err := ReadDeathNotifyRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}
