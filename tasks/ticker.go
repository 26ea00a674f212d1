package tasks

import "ferry/kernel"

const tickPeriod = 100

type ticker struct {
	st    *Stats
	timer kernel.Handle
	phase int
}

func (t *ticker) Step(c *kernel.Context) {
	switch t.phase {
	case 0:
		t.timer = c.Timer("tick")
		c.SetTimer(t.timer, 0, tickPeriod)
		t.phase = 1
	case 1:
		c.Wait(0, 0)
		t.phase = 2
	default:
		if c.Status() == kernel.StatusOK {
			t.st.Ticks++
		}
		c.Reset(0)
		t.phase = 0
	}
}
