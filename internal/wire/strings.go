package wire

import (
	"bytes"

	"github.com/pkg/errors"
)

// errTooLong is returned when a string does not fit in a fixed wire field.
var errTooLong = errors.New("wire: string too long for fixed field")

// PutFixed writes s, NUL-padded, into a field of width. It fails if s
// (including its terminator) does not fit.
func PutFixed(dst []byte, width int, s string) error {
	if len(s)+1 > width {
		return errors.Wrapf(errTooLong, "field width %d, string %q", width, s)
	}
	for i := range dst[:width] {
		dst[i] = 0
	}
	copy(dst, s)
	return nil
}

// GetFixed reads a NUL-terminated string out of a fixed-width field.
func GetFixed(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		return string(src[:i])
	}
	return string(src)
}
