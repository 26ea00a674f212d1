package tasks

import (
	"ferry/kernel"
	"ferry/proto"
)

const (
	echoRequestSize = 64
	echoReplyAddr   = 64
)

// echoServer answers MsgEcho requests on the "echo.req" port through the
// requester's reply credential.
type echoServer struct {
	st    *Stats
	port  kernel.Handle
	phase int
}

func (e *echoServer) Step(c *kernel.Context) {
	switch e.phase {
	case 0:
		e.port = c.Port("echo.req")
		c.Buffer(0, 0, echoRequestSize)
		e.phase = 1
	case 1:
		c.Recv(0, e.port, 0)
		e.phase = 2
	case 2:
		st, _, n := c.Result()
		if st != kernel.StatusOK {
			c.Reset(0)
			e.phase = 1
			return
		}
		mem := c.Memory()
		out := mem[echoReplyAddr : echoReplyAddr+echoRequestSize]
		m := proto.PutEchoReply(out, mem[:n])
		if m == 0 {
			kind, seq, _ := proto.Header(mem[:n])
			m = proto.PutError(out, seq, proto.ErrBadMessage, kind)
			e.st.Rejected++
		}
		c.Buffer(1, echoReplyAddr, uint32(m))
		e.phase = 3
	case 3:
		c.Reply(1, 0)
		e.phase = 4
	case 4:
		if c.Status() == kernel.StatusOK {
			e.st.Served++
		}
		c.Reset(0)
		e.phase = 5
	default:
		c.Reset(1)
		e.phase = 1
	}
}
