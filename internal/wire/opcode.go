package wire

import "io"

// WriteOpcode writes the 32-bit opcode that begins every manager request.
func WriteOpcode(w io.Writer, op Opcode) error {
	return WriteUint32(w, uint32(op))
}

// ReadOpcode reads the 32-bit opcode that begins every manager request.
// Returns io.EOF when the control link has been cleanly closed between
// requests (the normal end-of-stream case the manager's handler loop
// watches for).
func ReadOpcode(r io.Reader) (Opcode, error) {
	v, err := ReadUint32(r)
	if err != nil {
		return 0, err
	}
	return Opcode(v), nil
}
