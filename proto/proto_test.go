package proto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEchoReply(t *testing.T) {
	req := make([]byte, 32)
	n := PutEcho(req, 7, []byte("ping 7"))
	require.Equal(t, HeaderSize+6, n)

	resp := make([]byte, 32)
	m := PutEchoReply(resp, req[:n])
	require.Equal(t, n, m)
	kind, seq, ok := Header(resp[:m])
	require.True(t, ok)
	require.Equal(t, MsgEchoReply, kind)
	require.Equal(t, uint32(7), seq)
	require.Equal(t, "PING 7", string(resp[HeaderSize:m]))
}

func TestEchoRejects(t *testing.T) {
	require.Zero(t, PutEcho(make([]byte, 4), 1, nil))

	resp := make([]byte, 32)
	require.Zero(t, PutEchoReply(resp, []byte{1, 0}))

	bad := make([]byte, HeaderSize)
	PutHeader(bad, MsgError, 3)
	require.Zero(t, PutEchoReply(resp, bad))

	req := make([]byte, 32)
	n := PutEcho(req, 1, []byte("0123456789"))
	require.Zero(t, PutEchoReply(resp[:8], req[:n]))
}

func TestErrorRoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	n := PutError(buf, 9, ErrTooLarge, MsgEcho)
	seq, code, ref, ok := DecodeError(buf[:n])
	require.True(t, ok)
	require.Equal(t, uint32(9), seq)
	require.Equal(t, ErrTooLarge, code)
	require.Equal(t, MsgEcho, ref)
	require.Equal(t, "too_large", code.String())
	require.Equal(t, "echo", ref.String())

	_, _, _, ok = DecodeError(buf[:HeaderSize])
	require.False(t, ok)
}
