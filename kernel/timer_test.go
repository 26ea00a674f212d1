package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ferry/manifest"
)

func ticking() *manifest.Manifest {
	return &manifest.Manifest{
		Tasks:  []manifest.Task{task("t"), task("u")},
		Timers: []manifest.Timer{{Name: "tick", Owner: "t"}},
	}
}

func TestTimerObjectFires(t *testing.T) {
	var woke uint64
	s := newScript(
		func(c *Context) { c.SetTimer(c.Timer("tick"), 0, 30) },
		func(c *Context) { c.Wait(0, 0) },
		func(c *Context) {
			woke = c.k.Now()
			c.Clock()
		},
	)
	k, _ := boot(t, ticking(), programs(map[string]*script{"t": s}), Config{})
	runAll(t, k, 200)

	require.True(t, s.done())
	require.Equal(t, StatusOK, s.status(0))
	require.Equal(t, result{st: StatusOK, h: 0, n: 0}, s.results[1])
	require.GreaterOrEqual(t, woke, uint64(30))
	require.False(t, k.Timer(0).Armed())
}

func TestTimerResetDisarms(t *testing.T) {
	s := newScript(
		func(c *Context) { c.SetTimer(c.Timer("tick"), 0, 30) },
		func(c *Context) { c.Reset(0) },
	)
	k, _ := boot(t, ticking(), programs(map[string]*script{"t": s}), Config{})
	runAll(t, k, 200)

	require.True(t, s.done())
	require.False(t, k.Timer(0).Armed())
	sh, _ := k.Shuttle(0, 0)
	require.Equal(t, ShuttleReset, sh.State)
	require.Zero(t, k.Task(0).completed.n)
}

func TestTimerZeroDelayCancels(t *testing.T) {
	s := newScript(
		func(c *Context) { c.SetTimer(c.Timer("tick"), 0, 30) },
		func(c *Context) { c.SetTimer(c.Timer("tick"), NoHandle, 0) },
	)
	k, _ := boot(t, ticking(), programs(map[string]*script{"t": s}), Config{})
	runAll(t, k, 200)

	require.Equal(t, StatusOK, s.status(1))
	require.False(t, k.Timer(0).Armed())
	sh, _ := k.Shuttle(0, 0)
	require.Equal(t, ShuttleReset, sh.State)
}

func TestTimerRearmMovesDeadline(t *testing.T) {
	var woke uint64
	s := newScript(
		func(c *Context) { c.SetTimer(c.Timer("tick"), 0, 30) },
		func(c *Context) { c.SetTimer(c.Timer("tick"), 0, 80) },
		func(c *Context) { c.Wait(0, 0) },
		func(c *Context) {
			woke = c.k.Now()
			c.Clock()
		},
	)
	k, _ := boot(t, ticking(), programs(map[string]*script{"t": s}), Config{})
	runAll(t, k, 300)

	require.True(t, s.done())
	require.Equal(t, StatusOK, s.status(1))
	require.GreaterOrEqual(t, woke, uint64(80))
}

func TestTimerRequiresOwnership(t *testing.T) {
	u := newScript(
		func(c *Context) { c.SetTimer(Handle(0), 0, 10) },
		func(c *Context) { c.SetTimer(c.Timer("tick"), 0, 10) },
	)
	k, _ := boot(t, ticking(), programs(map[string]*script{"u": u}), Config{})
	runAll(t, k, 50)

	require.Equal(t, StatusAccess, u.status(0))
	require.Equal(t, StatusAccess, u.status(1))
}

func TestTimerQueueOrder(t *testing.T) {
	m := &manifest.Manifest{Tasks: []manifest.Task{task("a"), task("b"), task("c"), task("d")}}
	k, _ := boot(t, m, nil, Config{})

	k.timerEnqueue(0, 30)
	k.timerEnqueue(1, 10)
	k.timerEnqueue(2, 20)
	k.timerEnqueue(3, 10)

	var order []int32
	for ref := k.timerq.head; ref >= 0; ref = k.timerNodeAt(ref).next {
		order = append(order, ref)
	}
	require.Equal(t, []int32{1, 3, 2, 0}, order)

	k.timerCancel(3)
	k.timerCancel(3)
	k.timerEnqueue(0, 5)
	order = order[:0]
	for ref := k.timerq.head; ref >= 0; ref = k.timerNodeAt(ref).next {
		order = append(order, ref)
	}
	require.Equal(t, []int32{0, 1, 2}, order)
	require.Equal(t, 3, k.timerq.n)
	require.Equal(t, int32(2), k.timerq.tail)

	d, ok := k.nextDeadline()
	require.True(t, ok)
	require.Equal(t, uint64(5), d)
}
