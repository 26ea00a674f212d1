package tasks

import "ferry/kernel"

// keys counts interrupts delivered on the "keys.irq" port. Every routed line
// arrives as an empty message.
type keys struct {
	st    *Stats
	phase int
}

func (k *keys) Step(c *kernel.Context) {
	if k.phase == 0 {
		c.Recv(0, c.Port("keys.irq"), 0)
		k.phase = 1
		return
	}
	if c.Status() == kernel.StatusOK {
		k.st.Keys++
	}
	c.Reset(0)
	k.phase = 0
}
