// Package proto defines the message layouts the demo tasks exchange over
// shuttles. Messages are written straight into task memory.
package proto

import "encoding/binary"

// Kind identifies the message type in the first two bytes of a message.
type Kind uint16

const (
	MsgEcho Kind = iota + 1
	MsgEchoReply
	MsgError
)

func (k Kind) String() string {
	switch k {
	case MsgEcho:
		return "echo"
	case MsgEchoReply:
		return "echo_reply"
	case MsgError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrCode is a generic error category for MsgError responses.
type ErrCode uint16

const (
	ErrUnknown ErrCode = iota
	ErrBadMessage
	ErrTooLarge
)

func (c ErrCode) String() string {
	switch c {
	case ErrBadMessage:
		return "bad_message"
	case ErrTooLarge:
		return "too_large"
	default:
		return "unknown"
	}
}

// HeaderSize is the fixed prefix of every message.
//
// Layout (little-endian):
//   - u16: kind
//   - u32: sequence number
const HeaderSize = 6

// PutHeader writes a message header into dst, which must hold HeaderSize bytes.
func PutHeader(dst []byte, kind Kind, seq uint32) {
	binary.LittleEndian.PutUint16(dst[0:2], uint16(kind))
	binary.LittleEndian.PutUint32(dst[2:6], seq)
}

// Header decodes a message header.
func Header(msg []byte) (kind Kind, seq uint32, ok bool) {
	if len(msg) < HeaderSize {
		return 0, 0, false
	}
	return Kind(binary.LittleEndian.Uint16(msg[0:2])), binary.LittleEndian.Uint32(msg[2:6]), true
}
