package tasks

import "ferry/kernel"

const flakyLife = 40

// flaky burns through flakyLife clock reads and then faults, so the kernel
// parks it and replays a fresh instance.
type flaky struct {
	steps int
}

func (f *flaky) Step(c *kernel.Context) {
	f.steps++
	if f.steps > flakyLife {
		var regs []uint32
		_ = regs[f.steps]
	}
	c.Clock()
}
