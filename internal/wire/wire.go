// Package wire implements the byte-exact framing shared by the manager
// and the client library.
//
// All integers are little-endian. Strings are fixed-length, NUL-padded
// fields. Variable payloads are always preceded by a 32-bit byte count.
package wire

import "encoding/binary"

// Field widths, per spec section 4.1.
const (
	IDLen   = 8 + 1  // identifier: 8 bytes + NUL terminator
	NameLen = 47 + 1 // channel name: 47 bytes + NUL terminator
	AddrLen = 48     // dotted IPv4 text field
)

// Order is the single canonical byte order for every wire integer.
var Order = binary.LittleEndian

// Opcode identifies a manager request.
type Opcode uint32

// Opcode catalog, per spec section 6.
const (
	OpConnect           Opcode = 0x01010101
	OpChannelCreate     Opcode = 0x02020202
	OpChannelDelete     Opcode = 0x03030303
	OpChannelConnect    Opcode = 0x04040404
	OpChannelDisconnect Opcode = 0x05050505
	OpBufferedSend      Opcode = 0x06060606
	OpDeathNotify       Opcode = 0x07070707
	// 0x08080808 is reserved.
	OpSin Opcode = 0x09090909
)

// Peer frame flags, per spec section 6.
const (
	FlagConnecting    uint32 = 1
	FlagDisconnecting uint32 = 2
	FlagDismissed     uint32 = 3
	FlagTimer         uint32 = 5
	FlagBuffered      uint32 = 6
	FlagPing          uint32 = 7
	FlagDeathProcess  uint32 = 8
)

// Negative receive sentinels, per spec section 6.
const (
	Disconnect   = -2
	Dismissed    = -3
	Timeout      = -4
	Timer        = -5
	NoReply      = -6
	DeathProcess = -7
)
