package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ferry/manifest"
)

// spinner issues Clock forever and counts its steps.
type spinner struct{ steps int }

func (s *spinner) Step(c *Context) {
	s.steps++
	c.Clock()
}

func TestPriorityPreemptionFromInterrupt(t *testing.T) {
	low, high := task("low"), task("high")
	low.Priority, high.Priority = 1, 5
	m := &manifest.Manifest{
		Priorities: true,
		Tasks:      []manifest.Task{low, high},
		Ports:      []manifest.Port{{Name: "irq", Grants: []manifest.Grant{grant("high", "recv")}}},
		IRQs:       []manifest.IRQ{{Line: 3, Port: "irq"}},
	}
	l := &spinner{}
	wakes, step := 0, 0
	ps := ProgramSet{
		"low": func() Program { return l },
		"high": func() Program {
			return ProgramFunc(func(c *Context) {
				if step%2 == 0 {
					c.Recv(0, c.Port("irq"), 0)
				} else {
					if c.Status() == StatusOK {
						wakes++
					}
					c.Reset(0)
				}
				step++
			})
		},
	}
	k, hw := boot(t, m, ps, Config{Quantum: 1000})
	lowID, highID := k.TaskByName("low").ID, k.TaskByName("high").ID

	runAll(t, k, 50)
	require.Equal(t, lowID, k.Current())
	require.Equal(t, TaskWait, k.Task(highID).State)
	before := l.steps

	hw.Raise(3)
	require.NoError(t, k.Step())
	require.Equal(t, highID, k.Current())
	require.True(t, k.Task(lowID).inReady)
	require.Equal(t, TaskReady, k.Task(lowID).State)
	require.Equal(t, before, l.steps)

	runAll(t, k, 20)
	require.Equal(t, 1, wakes)
	require.Equal(t, lowID, k.Current())
	line, ok := k.IRQ(3)
	require.True(t, ok)
	require.Equal(t, uint32(1), line.Raised())
}

func TestInterruptLinesCoalesce(t *testing.T) {
	m := &manifest.Manifest{
		Tasks: []manifest.Task{task("idle")},
		Ports: []manifest.Port{{Name: "irq", Grants: []manifest.Grant{grant("idle", "recv")}}},
		IRQs:  []manifest.IRQ{{Line: 7, Port: "irq"}},
	}
	k, hw := boot(t, m, nil, Config{})

	hw.Raise(7)
	require.ErrorIs(t, k.Step(), ErrIdle)
	hw.Raise(7)
	require.ErrorIs(t, k.Step(), ErrIdle)

	line, _ := k.IRQ(7)
	require.Equal(t, uint32(1), line.Raised())
	require.Equal(t, uint32(1), line.Coalesced())
	require.Equal(t, 1, k.PortByName("irq").Senders())
}

func TestRoundRobinOnQuantum(t *testing.T) {
	m := &manifest.Manifest{Tasks: []manifest.Task{task("a"), task("b")}}
	a, b := &spinner{}, &spinner{}
	ps := ProgramSet{"a": func() Program { return a }, "b": func() Program { return b }}
	k, _ := boot(t, m, ps, Config{Quantum: 5})

	runAll(t, k, 100)
	require.Greater(t, a.steps, 30)
	require.Greater(t, b.steps, 30)
	require.Greater(t, k.Switches(), uint64(10))
}

func TestPriorityStarvesLowerTasks(t *testing.T) {
	lo, hi := task("lo"), task("hi")
	lo.Priority, hi.Priority = 0, 3
	m := &manifest.Manifest{Priorities: true, Tasks: []manifest.Task{lo, hi}}
	l, h := &spinner{}, &spinner{}
	ps := ProgramSet{"lo": func() Program { return l }, "hi": func() Program { return h }}
	k, _ := boot(t, m, ps, Config{Quantum: 5})

	runAll(t, k, 100)
	require.Zero(t, l.steps)
	require.Greater(t, h.steps, 50)
}

func TestYieldRotatesEqualPriority(t *testing.T) {
	m := &manifest.Manifest{Tasks: []manifest.Task{task("a"), task("b")}}
	var order []string
	yielder := func(name string) func() Program {
		return func() Program {
			return ProgramFunc(func(c *Context) {
				order = append(order, name)
				c.Yield()
			})
		}
	}
	k, _ := boot(t, m, ProgramSet{"a": yielder("a"), "b": yielder("b")}, Config{Quantum: 1000})

	for i := 0; i < 7; i++ {
		require.NoError(t, k.Step())
	}
	require.Equal(t, []string{"a", "b", "a", "b", "a", "b"}, order)
}

func TestCriticalSectionDefersPreemption(t *testing.T) {
	m := &manifest.Manifest{Tasks: []manifest.Task{task("a"), task("b")}}
	a := newScript(
		func(c *Context) { c.Enter(TrapRelease) },
		func(c *Context) { c.Enter(TrapRelease) },
	)
	for i := 0; i < 30; i++ {
		a.steps = append(a.steps, func(c *Context) { c.Clock() })
	}
	a.steps = append(a.steps,
		func(c *Context) { c.Wait(AnyShuttle, 0) },
		func(c *Context) { c.Leave() },
		func(c *Context) { c.Leave() },
		func(c *Context) { c.Leave() },
	)
	b := &spinner{}
	ps := programs(map[string]*script{"a": a})
	ps["b"] = func() Program { return b }
	k, _ := boot(t, m, ps, Config{Quantum: 5})

	for len(a.results) < 32 {
		require.NoError(t, k.Step())
		require.Zero(t, b.steps)
	}
	require.True(t, k.InCritical())

	runAll(t, k, 100)
	require.True(t, a.done())
	n := len(a.results)
	require.Equal(t, StatusAccess, a.status(n-4))
	require.Equal(t, StatusOK, a.status(n-3))
	require.Equal(t, StatusOK, a.status(n-2))
	require.Equal(t, StatusAccess, a.status(n-1))
	require.False(t, k.InCritical())
	require.Greater(t, b.steps, 0)
}

func TestCriticalSectionArguments(t *testing.T) {
	m := &manifest.Manifest{Tasks: []manifest.Task{task("a")}}
	a := newScript(
		func(c *Context) { c.Enter(TrapBehavior(9)) },
		func(c *Context) { c.Leave() },
	)
	k, _ := boot(t, m, programs(map[string]*script{"a": a}), Config{})
	runAll(t, k, 20)
	require.Equal(t, StatusArgument, a.status(0))
	require.Equal(t, StatusAccess, a.status(1))
}

func TestDomainSwitchReloadsProtection(t *testing.T) {
	m := pipe()
	m.Tasks[0].Domain = 1
	m.Tasks[1].Domain = 2
	rx := newScript(
		func(c *Context) { c.Buffer(0, 0, 8) },
		func(c *Context) { c.Recv(0, c.Port("p"), 0) },
	)
	tx := newScript(
		func(c *Context) { c.Buffer(0, 0, 8) },
		func(c *Context) { c.SendWait(0, c.Port("p"), 0) },
	)
	k, hw := boot(t, m, programs(map[string]*script{"rx": rx, "tx": tx}), Config{})
	runAll(t, k, 100)

	require.Equal(t, StatusOK, rx.status(1))
	require.GreaterOrEqual(t, hw.Loads(), 3)
	require.Equal(t, 1, hw.Windows())
	require.False(t, hw.WindowOpen())
	d, loaded := hw.Domain()
	require.True(t, loaded)
	require.Equal(t, uint8(1), d)
}

func TestSameDomainSkipsReload(t *testing.T) {
	m := &manifest.Manifest{Tasks: []manifest.Task{task("a"), task("b")}}
	a, b := &spinner{}, &spinner{}
	ps := ProgramSet{"a": func() Program { return a }, "b": func() Program { return b }}
	k, hw := boot(t, m, ps, Config{Quantum: 2})
	runAll(t, k, 50)

	require.Greater(t, k.Switches(), uint64(5))
	require.Equal(t, 1, hw.Loads())
}
