package tasks

import "ferry/kernel"

// adder increments the shared counter with a read and a write in separate
// steps, holding the "counter" lock twice over (recursively) in between.
type adder struct {
	st    *Stats
	lock  kernel.Handle
	read  uint32
	phase int
}

func (a *adder) Step(c *kernel.Context) {
	switch a.phase {
	case 0:
		a.lock = c.Lock("counter")
		c.Acquire(a.lock, 0, 0)
		a.phase = 1
	case 1:
		if c.Status() != kernel.StatusOK {
			c.Reset(0)
			a.phase = 0
			return
		}
		a.read = a.st.Counter
		c.Acquire(a.lock, 0, 0)
		a.phase = 2
	case 2:
		a.st.Counter = a.read + 1
		a.st.Increments++
		c.Release(a.lock)
		a.phase = 3
	case 3:
		c.Release(a.lock)
		a.phase = 4
	default:
		c.Reset(0)
		a.phase = 0
	}
}
