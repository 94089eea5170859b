package wire

import (
	"bytes"
	"io"
)

// SendFrame is the peer send frame: a datasend header, a reply_maxlen
// hint, then the payload bytes.
type SendFrame struct {
	Flag        uint32
	SenderID    string
	UserType    uint32
	ReplyMaxLen uint32
	Payload     []byte
}

// WriteSendFrame writes a full peer send frame to w.
func WriteSendFrame(w io.Writer, f SendFrame) error {
	buf := make([]byte, 0, 4+IDLen+4+4+4+len(f.Payload))
	buf = appendUint32(buf, f.Flag)
	buf = appendFixed(buf, IDLen, f.SenderID)
	buf = appendUint32(buf, f.UserType)
	buf = appendUint32(buf, uint32(len(f.Payload)))
	buf = appendUint32(buf, f.ReplyMaxLen)
	buf = append(buf, f.Payload...)
	return WriteFull(w, buf)
}

// ReadSendFrame reads a full peer send frame from r.
func ReadSendFrame(r io.Reader) (SendFrame, error) {
	head := make([]byte, 4+IDLen+4+4+4)
	if err := ReadFull(r, head); err != nil {
		return SendFrame{}, err
	}
	br := bytes.NewReader(head)
	flag := readUint32(br)
	senderID := readFixed(br, IDLen)
	userType := readUint32(br)
	dataLen := readUint32(br)
	replyMaxLen := readUint32(br)

	var payload []byte
	if dataLen > 0 {
		payload = make([]byte, dataLen)
		if err := ReadFull(r, payload); err != nil {
			return SendFrame{}, err
		}
	}
	return SendFrame{
		Flag:        flag,
		SenderID:    senderID,
		UserType:    userType,
		ReplyMaxLen: replyMaxLen,
		Payload:     payload,
	}, nil
}

// ReplyFrame is the peer reply frame: a datareply header followed by
// the reply bytes.
type ReplyFrame struct {
	SenderID string
	Answer   uint32
	Payload  []byte
}

// WriteReplyFrame writes a full peer reply frame to w.
func WriteReplyFrame(w io.Writer, f ReplyFrame) error {
	buf := make([]byte, 0, IDLen+4+4+len(f.Payload))
	buf = appendFixed(buf, IDLen, f.SenderID)
	buf = appendUint32(buf, f.Answer)
	buf = appendUint32(buf, uint32(len(f.Payload)))
	buf = append(buf, f.Payload...)
	return WriteFull(w, buf)
}

// ReadReplyFrame reads a full peer reply frame from r.
func ReadReplyFrame(r io.Reader) (ReplyFrame, error) {
	head := make([]byte, IDLen+4+4)
	if err := ReadFull(r, head); err != nil {
		return ReplyFrame{}, err
	}
	br := bytes.NewReader(head)
	senderID := readFixed(br, IDLen)
	answer := readUint32(br)
	dataLen := readUint32(br)

	var payload []byte
	if dataLen > 0 {
		payload = make([]byte, dataLen)
		if err := ReadFull(r, payload); err != nil {
			return ReplyFrame{}, err
		}
	}
	return ReplyFrame{SenderID: senderID, Answer: answer, Payload: payload}, nil
}

// FlagNormal marks an ordinary synchronous Send awaiting a Reply. The
// reserved flags (FlagConnecting, FlagDisconnecting, ...) reuse this
// same SendFrame shape with an empty payload — they are one-shot
// notifications, not a distinct wire structure.
const FlagNormal uint32 = 0

// WriteMarkerFrame writes a zero-payload SendFrame carrying only a
// reserved flag and a subject id — used for CONNECTING, DISCONNECTING,
// DISMISSED, PING and DEATH_PROCESS notifications. TIMER frames carry a
// user type and are written with WriteSendFrame instead.
func WriteMarkerFrame(w io.Writer, flag uint32, id string) error {
	return WriteSendFrame(w, SendFrame{Flag: flag, SenderID: id})
}

