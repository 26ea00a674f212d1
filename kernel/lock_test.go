package kernel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ferry/manifest"
)

func locked(tasks ...string) *manifest.Manifest {
	m := &manifest.Manifest{}
	l := manifest.Lock{Name: "l"}
	for _, name := range tasks {
		m.Tasks = append(m.Tasks, task(name))
		l.Grants = append(l.Grants, manifest.Grant{Task: name})
	}
	m.Locks = []manifest.Lock{l}
	return m
}

func capturePanics(t *testing.T) *[]PanicInfo {
	var got []PanicInfo
	SetPanicHandler(func(p PanicInfo) { got = append(got, p) })
	t.Cleanup(func() { SetPanicHandler(nil) })
	return &got
}

func acquire(c *Context) { c.Acquire(c.Lock("l"), 0, 0) }
func release(c *Context) { c.Release(c.Lock("l")) }

func TestRecursiveLockBalances(t *testing.T) {
	s := newScript(acquire, acquire, acquire, release, release, release)
	k, _ := boot(t, locked("t"), programs(map[string]*script{"t": s}), Config{})
	runAll(t, k, 100)

	require.True(t, s.done())
	require.Equal(t, result{st: StatusOK, h: 0, n: 0}, s.results[0])
	for i := 1; i < 6; i++ {
		require.Equal(t, StatusOK, s.status(i), "step %d", i)
	}
	lk := k.LockByName("l")
	require.Equal(t, NoTask, lk.Holder())
	require.Zero(t, lk.Count())
	require.True(t, lk.Free())
	require.Equal(t, 1, k.Port(lk.port).Senders())
	halted, _ := k.Halted()
	require.False(t, halted)
}

func TestOverReleaseHalts(t *testing.T) {
	panics := capturePanics(t)
	s := newScript(acquire, acquire, acquire, release, release, release, release)
	k, _ := boot(t, locked("t"), programs(map[string]*script{"t": s}), Config{})

	err := k.RunFor(100)
	require.ErrorIs(t, err, ErrHalted)
	halted, reason := k.Halted()
	require.True(t, halted)
	require.Contains(t, reason, "non-holder")
	require.Len(t, *panics, 1)
	require.Equal(t, TaskID(0), (*panics)[0].TaskID)
	require.True(t, strings.HasPrefix((*panics)[0].Reason, "lock l"))

	require.ErrorIs(t, k.Step(), ErrHalted)
	require.Len(t, *panics, 1)
}

func TestReleaseByNonHolderHalts(t *testing.T) {
	capturePanics(t)
	holder := newScript(acquire, func(c *Context) { c.Yield() })
	other := newScript(release)
	k, _ := boot(t, locked("holder", "other"), programs(map[string]*script{"holder": holder, "other": other}), Config{})

	require.ErrorIs(t, k.RunFor(100), ErrHalted)
	require.Equal(t, k.TaskByName("holder").ID, k.LockByName("l").Holder())
}

func TestLockHandoffWakesWaiter(t *testing.T) {
	first := newScript(acquire, func(c *Context) { c.Yield() }, release)
	second := newScript(acquire)
	k, _ := boot(t, locked("first", "second"), programs(map[string]*script{"first": first, "second": second}), Config{})
	runAll(t, k, 100)

	require.True(t, first.done())
	require.True(t, second.done())
	require.Equal(t, result{st: StatusOK, h: 0, n: 0}, second.results[0])
	lk := k.LockByName("l")
	require.Equal(t, k.TaskByName("second").ID, lk.Holder())
	require.Equal(t, uint32(1), lk.Count())
	require.Zero(t, k.Port(lk.port).Senders())
	require.Zero(t, k.Port(lk.port).Receivers())
}

func TestLockAcquireTimeout(t *testing.T) {
	first := newScript(acquire, func(c *Context) { c.Yield() })
	second := newScript(func(c *Context) { c.Acquire(c.Lock("l"), 0, 20) })
	k, _ := boot(t, locked("first", "second"), programs(map[string]*script{"first": first, "second": second}), Config{})
	runAll(t, k, 200)

	require.Equal(t, result{st: StatusTimeout, h: 0, n: 0}, second.results[0])
	s, _ := k.Shuttle(k.TaskByName("second").ID, 0)
	require.Equal(t, ShuttleRecv, s.State)
	require.Equal(t, 1, k.Port(k.LockByName("l").port).Receivers())
}

func TestLockSaturates(t *testing.T) {
	var steps []func(*Context)
	for i := 0; i <= MaxHoldCount; i++ {
		steps = append(steps, acquire)
	}
	s := newScript(steps...)
	k, _ := boot(t, locked("t"), programs(map[string]*script{"t": s}), Config{})
	runAll(t, k, 1000)

	require.True(t, s.done())
	require.Equal(t, StatusOK, s.status(MaxHoldCount-1))
	require.Equal(t, StatusFailed, s.status(MaxHoldCount))
	require.Equal(t, uint32(MaxHoldCount), k.LockByName("l").Count())
}

func TestLockWithoutGrant(t *testing.T) {
	m := locked("t")
	m.Tasks = append(m.Tasks, task("u"))
	u := newScript(
		func(c *Context) { c.Acquire(Handle(0), 0, 0) },
		func(c *Context) { c.Release(Handle(0)) },
	)
	k, _ := boot(t, m, programs(map[string]*script{"u": u}), Config{})
	runAll(t, k, 50)

	require.Equal(t, StatusAccess, u.status(0))
	require.Equal(t, StatusAccess, u.status(1))
	halted, _ := k.Halted()
	require.False(t, halted)
}
