package wire

import (
	"errors"
	"io"
	"net"
	"syscall"

	pkgerrors "github.com/pkg/errors"
)

// ErrReset is returned (wrapped) when a peer resets the connection
// mid-frame, distinct from a clean EOF before any bytes of the frame
// arrive.
var ErrReset = errors.New("wire: connection reset")

// ReadFull reads exactly len(buf) bytes, looping over short reads and
// transient interruptions. A reset mid-frame is reported as ErrReset;
// a clean EOF before any byte is read is reported as io.EOF.
func ReadFull(r io.Reader, buf []byte) error {
	n, err := io.ReadFull(r, buf)
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) && n == 0 {
		return io.EOF
	}
	if isReset(err) || errors.Is(err, io.ErrUnexpectedEOF) {
		return pkgerrors.Wrap(ErrReset, err.Error())
	}
	return pkgerrors.Wrap(err, "wire: short read")
}

// WriteFull writes every byte of buf, looping over short writes and
// transient interruptions.
func WriteFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			if isReset(err) {
				return pkgerrors.Wrap(ErrReset, err.Error())
			}
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return pkgerrors.Wrap(err, "wire: short write")
		}
		buf = buf[n:]
	}
	return nil
}

func isReset(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return isReset(opErr.Err)
	}
	return false
}

// ReadUint32 reads one little-endian uint32.
func ReadUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if err := ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return Order.Uint32(b[:]), nil
}

// WriteUint32 writes one little-endian uint32.
func WriteUint32(w io.Writer, v uint32) error {
	var b [4]byte
	Order.PutUint32(b[:], v)
	return WriteFull(w, b[:])
}
