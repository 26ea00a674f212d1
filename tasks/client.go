package tasks

import (
	"bytes"
	"strconv"

	"ferry/kernel"
	"ferry/proto"
)

const (
	callTimeout = 200
	callPace    = 25
	replyAddr   = 32
	replySize   = 32
)

// client calls the echo server, checks the answer and sleeps on its pace
// timer between calls.
type client struct {
	st    *Stats
	port  kernel.Handle
	pace  kernel.Handle
	seq   uint32
	want  []byte
	phase int
}

func (cl *client) Step(c *kernel.Context) {
	switch cl.phase {
	case 0:
		cl.port, cl.pace = c.Port("echo.req"), c.Timer("pace")
		cl.seq++
		body := strconv.AppendUint([]byte("ping "), uint64(cl.seq), 10)
		cl.want = bytes.ToUpper(body)
		n := proto.PutEcho(c.Memory()[:replyAddr], cl.seq, body)
		c.Buffer(0, 0, uint32(n))
		cl.phase = 1
	case 1:
		c.Buffer(1, replyAddr, replySize)
		cl.phase = 2
	case 2:
		c.Call(0, cl.port, 1, callTimeout)
		cl.st.Calls++
		cl.phase = 3
	case 3:
		cl.check(c)
		c.Reset(0)
		cl.phase = 4
	case 4:
		c.Reset(1)
		cl.phase = 5
	case 5:
		c.SetTimer(cl.pace, 2, callPace)
		cl.phase = 6
	case 6:
		c.Wait(2, 0)
		cl.phase = 7
	default:
		c.Reset(2)
		cl.phase = 0
	}
}

func (cl *client) check(c *kernel.Context) {
	st, h, n := c.Result()
	if st != kernel.StatusOK || h != 1 {
		cl.st.CallErrors++
		return
	}
	msg := c.Memory()[replyAddr : replyAddr+n]
	kind, seq, ok := proto.Header(msg)
	if !ok || kind != proto.MsgEchoReply || seq != cl.seq || !bytes.Equal(msg[proto.HeaderSize:], cl.want) {
		cl.st.Mismatches++
		return
	}
	cl.st.Replies++
}
