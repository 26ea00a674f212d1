package proto

import "encoding/binary"

// PutEcho encodes a MsgEcho request into dst and returns its length, or 0
// when dst is too small.
//
// Layout: header, then the body bytes.
func PutEcho(dst []byte, seq uint32, body []byte) int {
	n := HeaderSize + len(body)
	if len(dst) < n {
		return 0
	}
	PutHeader(dst, MsgEcho, seq)
	copy(dst[HeaderSize:], body)
	return n
}

// PutEchoReply answers req into dst with the request body in upper case.
// It returns the reply length, or 0 when req is not an echo request or dst
// is too small.
func PutEchoReply(dst, req []byte) int {
	kind, seq, ok := Header(req)
	if !ok || kind != MsgEcho {
		return 0
	}
	body := req[HeaderSize:]
	n := HeaderSize + len(body)
	if len(dst) < n {
		return 0
	}
	PutHeader(dst, MsgEchoReply, seq)
	for i, b := range body {
		if b >= 'a' && b <= 'z' {
			b -= 'a' - 'A'
		}
		dst[HeaderSize+i] = b
	}
	return n
}

// PutError encodes a MsgError response into dst and returns its length.
//
// Layout: header, then
//   - u16: code
//   - u16: ref kind (the request kind that failed)
func PutError(dst []byte, seq uint32, code ErrCode, ref Kind) int {
	const n = HeaderSize + 4
	if len(dst) < n {
		return 0
	}
	PutHeader(dst, MsgError, seq)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(code))
	binary.LittleEndian.PutUint16(dst[8:10], uint16(ref))
	return n
}

// DecodeError decodes a MsgError response.
func DecodeError(msg []byte) (seq uint32, code ErrCode, ref Kind, ok bool) {
	kind, seq, ok := Header(msg)
	if !ok || kind != MsgError || len(msg) < HeaderSize+4 {
		return 0, 0, 0, false
	}
	code = ErrCode(binary.LittleEndian.Uint16(msg[6:8]))
	ref = Kind(binary.LittleEndian.Uint16(msg[8:10]))
	return seq, code, ref, true
}
