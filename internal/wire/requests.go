package wire

import (
	"bytes"
	"io"
)

// ConnectRequest is the CONNECT opcode payload.
type ConnectRequest struct {
	ID string
}

func (r ConnectRequest) Marshal() []byte {
	buf := make([]byte, IDLen)
	_ = PutFixed(buf, IDLen, r.ID)
	return buf
}

func ReadConnectRequest(r io.Reader) (ConnectRequest, error) {
	buf := make([]byte, IDLen)
	if err := ReadFull(r, buf); err != nil {
		return ConnectRequest{}, err
	}
	return ConnectRequest{ID: GetFixed(buf)}, nil
}

// ConnectReply is the CONNECT reply payload.
type ConnectReply struct {
	OK bool
}

func (r ConnectReply) Marshal() []byte {
	return []byte{boolByte(r.OK)}
}

func ReadConnectReply(r io.Reader) (ConnectReply, error) {
	var b [1]byte
	if err := ReadFull(r, b[:]); err != nil {
		return ConnectReply{}, err
	}
	return ConnectReply{OK: b[0] != 0}, nil
}

// ChannelCreateRequest is the CHANNEL_CREATE opcode payload.
type ChannelCreateRequest struct {
	ID           string
	MaxBuffered  uint32
	Name         string
	OwnerPort    uint32
	OwnerAddrStr string
}

func (r ChannelCreateRequest) Marshal() []byte {
	buf := make([]byte, 0, IDLen+4+NameLen+4+AddrLen)
	buf = appendFixed(buf, IDLen, r.ID)
	buf = appendUint32(buf, r.MaxBuffered)
	buf = appendFixed(buf, NameLen, r.Name)
	buf = appendUint32(buf, r.OwnerPort)
	buf = appendFixed(buf, AddrLen, r.OwnerAddrStr)
	return buf
}

func ReadChannelCreateRequest(r io.Reader) (ChannelCreateRequest, error) {
	buf := make([]byte, IDLen+4+NameLen+4+AddrLen)
	if err := ReadFull(r, buf); err != nil {
		return ChannelCreateRequest{}, err
	}
	br := bytes.NewReader(buf)
	id := readFixed(br, IDLen)
	maxBuffered := readUint32(br)
	name := readFixed(br, NameLen)
	port := readUint32(br)
	addr := readFixed(br, AddrLen)
	return ChannelCreateRequest{
		ID:           id,
		MaxBuffered:  maxBuffered,
		Name:         name,
		OwnerPort:    port,
		OwnerAddrStr: addr,
	}, nil
}

// ChannelCreateReply is the CHANNEL_CREATE reply payload.
type ChannelCreateReply struct {
	OK      bool
	Port    uint32
	Addr    uint32
	AddrStr string
}

func (r ChannelCreateReply) Marshal() []byte {
	buf := make([]byte, 0, 1+4+4+AddrLen)
	buf = append(buf, boolByte(r.OK))
	buf = appendUint32(buf, r.Port)
	buf = appendUint32(buf, r.Addr)
	buf = appendFixed(buf, AddrLen, r.AddrStr)
	return buf
}

func ReadChannelCreateReply(r io.Reader) (ChannelCreateReply, error) {
	buf := make([]byte, 1+4+4+AddrLen)
	if err := ReadFull(r, buf); err != nil {
		return ChannelCreateReply{}, err
	}
	br := bytes.NewReader(buf)
	ok := readBool(br)
	port := readUint32(br)
	addr := readUint32(br)
	addrStr := readFixed(br, AddrLen)
	return ChannelCreateReply{OK: ok, Port: port, Addr: addr, AddrStr: addrStr}, nil
}

// ChannelDeleteRequest is the CHANNEL_DELETE opcode payload.
type ChannelDeleteRequest struct {
	ID   string
	Name string
}

func (r ChannelDeleteRequest) Marshal() []byte {
	buf := make([]byte, 0, IDLen+NameLen)
	buf = appendFixed(buf, IDLen, r.ID)
	buf = appendFixed(buf, NameLen, r.Name)
	return buf
}

func ReadChannelDeleteRequest(r io.Reader) (ChannelDeleteRequest, error) {
	buf := make([]byte, IDLen+NameLen)
	if err := ReadFull(r, buf); err != nil {
		return ChannelDeleteRequest{}, err
	}
	br := bytes.NewReader(buf)
	return ChannelDeleteRequest{ID: readFixed(br, IDLen), Name: readFixed(br, NameLen)}, nil
}

// ChannelDeleteReply is the CHANNEL_DELETE reply payload. NClients is
// signed: a negative value refuses the delete because the channel
// doesn't exist or the requester doesn't own it, zero means the
// channel was deleted, and a positive count refuses because clients
// are still connected.
type ChannelDeleteReply struct {
	NClients int32
}

func (r ChannelDeleteReply) Marshal() []byte {
	return appendUint32(nil, uint32(r.NClients))
}

func ReadChannelDeleteReply(r io.Reader) (ChannelDeleteReply, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return ChannelDeleteReply{}, err
	}
	return ChannelDeleteReply{NClients: int32(n)}, nil
}

// ChannelConnectRequest is the CHANNEL_CONNECT opcode payload.
type ChannelConnectRequest struct {
	ID   string
	Name string
}

func (r ChannelConnectRequest) Marshal() []byte {
	buf := make([]byte, 0, IDLen+NameLen)
	buf = appendFixed(buf, IDLen, r.ID)
	buf = appendFixed(buf, NameLen, r.Name)
	return buf
}

func ReadChannelConnectRequest(r io.Reader) (ChannelConnectRequest, error) {
	buf := make([]byte, IDLen+NameLen)
	if err := ReadFull(r, buf); err != nil {
		return ChannelConnectRequest{}, err
	}
	br := bytes.NewReader(buf)
	return ChannelConnectRequest{ID: readFixed(br, IDLen), Name: readFixed(br, NameLen)}, nil
}

// ChannelConnectReply is the CHANNEL_CONNECT reply payload.
type ChannelConnectReply struct {
	OK                bool
	AlreadyConnected  bool
	OwnerID           string
	Port              uint32
	Addr              uint32
	AddrStr           string
	OwnerControlSock  uint32
}

func (r ChannelConnectReply) Marshal() []byte {
	buf := make([]byte, 0, 1+1+IDLen+4+4+AddrLen+4)
	buf = append(buf, boolByte(r.OK), boolByte(r.AlreadyConnected))
	buf = appendFixed(buf, IDLen, r.OwnerID)
	buf = appendUint32(buf, r.Port)
	buf = appendUint32(buf, r.Addr)
	buf = appendFixed(buf, AddrLen, r.AddrStr)
	buf = appendUint32(buf, r.OwnerControlSock)
	return buf
}

func ReadChannelConnectReply(r io.Reader) (ChannelConnectReply, error) {
	buf := make([]byte, 1+1+IDLen+4+4+AddrLen+4)
	if err := ReadFull(r, buf); err != nil {
		return ChannelConnectReply{}, err
	}
	br := bytes.NewReader(buf)
	ok := readBool(br)
	already := readBool(br)
	ownerID := readFixed(br, IDLen)
	port := readUint32(br)
	addr := readUint32(br)
	addrStr := readFixed(br, AddrLen)
	ctrl := readUint32(br)
	return ChannelConnectReply{
		OK:               ok,
		AlreadyConnected: already,
		OwnerID:          ownerID,
		Port:             port,
		Addr:             addr,
		AddrStr:          addrStr,
		OwnerControlSock: ctrl,
	}, nil
}

// ChannelDisconnectRequest is the CHANNEL_DISCONNECT opcode payload.
type ChannelDisconnectRequest struct {
	ID   string
	Name string
}

func (r ChannelDisconnectRequest) Marshal() []byte {
	buf := make([]byte, 0, IDLen+NameLen)
	buf = appendFixed(buf, IDLen, r.ID)
	buf = appendFixed(buf, NameLen, r.Name)
	return buf
}

func ReadChannelDisconnectRequest(r io.Reader) (ChannelDisconnectRequest, error) {
	buf := make([]byte, IDLen+NameLen)
	if err := ReadFull(r, buf); err != nil {
		return ChannelDisconnectRequest{}, err
	}
	br := bytes.NewReader(buf)
	return ChannelDisconnectRequest{ID: readFixed(br, IDLen), Name: readFixed(br, NameLen)}, nil
}

// ChannelDisconnectReply is the CHANNEL_DISCONNECT reply payload.
type ChannelDisconnectReply struct {
	OK bool
}

func (r ChannelDisconnectReply) Marshal() []byte {
	return []byte{boolByte(r.OK)}
}

func ReadChannelDisconnectReply(r io.Reader) (ChannelDisconnectReply, error) {
	var b [1]byte
	if err := ReadFull(r, b[:]); err != nil {
		return ChannelDisconnectReply{}, err
	}
	return ChannelDisconnectReply{OK: b[0] != 0}, nil
}

// BufferedSendRequest is the BUFFERED_SEND opcode fixed header; the
// payload bytes follow immediately on the wire and are read separately.
type BufferedSendRequest struct {
	SenderID         string
	UserType         uint32
	DataLen          uint32
	OwnerControlSock uint32
}

func (r BufferedSendRequest) Marshal() []byte {
	buf := make([]byte, 0, IDLen+4+4+4)
	buf = appendFixed(buf, IDLen, r.SenderID)
	buf = appendUint32(buf, r.UserType)
	buf = appendUint32(buf, r.DataLen)
	buf = appendUint32(buf, r.OwnerControlSock)
	return buf
}

func ReadBufferedSendRequest(r io.Reader) (BufferedSendRequest, error) {
	buf := make([]byte, IDLen+4+4+4)
	if err := ReadFull(r, buf); err != nil {
		return BufferedSendRequest{}, err
	}
	br := bytes.NewReader(buf)
	senderID := readFixed(br, IDLen)
	userType := readUint32(br)
	dataLen := readUint32(br)
	ctrl := readUint32(br)
	return BufferedSendRequest{SenderID: senderID, UserType: userType, DataLen: dataLen, OwnerControlSock: ctrl}, nil
}

// BufferedSendReply is the BUFFERED_SEND reply payload.
type BufferedSendReply struct {
	OK        bool
	NBuffered uint32
}

func (r BufferedSendReply) Marshal() []byte {
	buf := make([]byte, 0, 1+4)
	buf = append(buf, boolByte(r.OK))
	buf = appendUint32(buf, r.NBuffered)
	return buf
}

func ReadBufferedSendReply(r io.Reader) (BufferedSendReply, error) {
	buf := make([]byte, 1+4)
	if err := ReadFull(r, buf); err != nil {
		return BufferedSendReply{}, err
	}
	br := bytes.NewReader(buf)
	ok := readBool(br)
	n := readUint32(br)
	return BufferedSendReply{OK: ok, NBuffered: n}, nil
}

// DeathNotifyRequest is the DEATH_NOTIFY opcode payload, with the
// requester's id followed by the enable/disable flag.
type DeathNotifyRequest struct {
	ID     string
	Enable bool
}

func (r DeathNotifyRequest) Marshal() []byte {
	buf := make([]byte, 0, IDLen+1)
	buf = appendFixed(buf, IDLen, r.ID)
	buf = append(buf, boolByte(r.Enable))
	return buf
}

func ReadDeathNotifyRequest(r io.Reader) (DeathNotifyRequest, error) {
	buf := make([]byte, IDLen+1)
	if err := ReadFull(r, buf); err != nil {
		return DeathNotifyRequest{}, err
	}
	br := bytes.NewReader(buf)
	id := readFixed(br, IDLen)
	enable := readBool(br)
	return DeathNotifyRequest{ID: id, Enable: enable}, nil
}

// DeathNotifyReply is the DEATH_NOTIFY reply payload.
type DeathNotifyReply struct {
	OK bool
}

func (r DeathNotifyReply) Marshal() []byte {
	return []byte{boolByte(r.OK)}
}

func ReadDeathNotifyReply(r io.Reader) (DeathNotifyReply, error) {
	var b [1]byte
	if err := ReadFull(r, b[:]); err != nil {
		return DeathNotifyReply{}, err
	}
	return DeathNotifyReply{OK: b[0] != 0}, nil
}

// --- helpers ---

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func appendFixed(dst []byte, width int, s string) []byte {
	field := make([]byte, width)
	_ = PutFixed(field, width, s)
	return append(dst, field...)
}

func appendUint32(dst []byte, v uint32) []byte {
	var b [4]byte
	Order.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func readFixed(r *bytes.Reader, width int) string {
	b := make([]byte, width)
	_, _ = io.ReadFull(r, b)
	return GetFixed(b)
}

func readUint32(r *bytes.Reader) uint32 {
	var b [4]byte
	_, _ = io.ReadFull(r, b[:])
	return Order.Uint32(b[:])
}

func readBool(r *bytes.Reader) bool {
	b, _ := r.ReadByte()
	return b != 0
}
