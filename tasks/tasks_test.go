package tasks

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ferry/hal"
	"ferry/internal/builder"
	"ferry/kernel"
)

func bootDefault(t *testing.T) (*kernel.Kernel, *hal.Machine, *Stats) {
	t.Helper()
	m, err := DefaultManifest()
	require.NoError(t, err)
	res, err := builder.Build(m, builder.Options{Seed: []byte("tasks")})
	require.NoError(t, err)

	st := &Stats{}
	hw := hal.NewMachine()
	k, err := kernel.New(res.Image, kernel.Hardware{Timer: hw, CPU: hw, IRQ: hw, MPU: hw}, Programs(st), kernel.Config{})
	require.NoError(t, err)
	return k, hw, st
}

func TestDefaultManifestCoversPrograms(t *testing.T) {
	m, err := DefaultManifest()
	require.NoError(t, err)
	ps := Programs(&Stats{})
	require.Len(t, ps, len(m.Tasks))
	for _, task := range m.Tasks {
		require.Contains(t, ps, task.Name)
	}
}

func TestDefaultManifestNamesAreDistinct(t *testing.T) {
	m, err := DefaultManifest()
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	_, ok := m.Handle("client", "echo.req")
	require.True(t, ok)
	_, ok = m.Handle("keys", "keys.irq")
	require.True(t, ok)
	for _, q := range m.IRQs {
		require.Equal(t, "keys.irq", q.Port)
	}
}

func TestDefaultSystemRuns(t *testing.T) {
	k, _, st := bootDefault(t)
	require.NoError(t, k.RunFor(3000))

	halted, reason := k.Halted()
	require.False(t, halted, reason)

	require.Greater(t, st.Served, uint32(10))
	require.Greater(t, st.Replies, uint32(10))
	require.Zero(t, st.Mismatches)
	require.Zero(t, st.Rejected)
	require.LessOrEqual(t, st.Replies, st.Calls)

	require.Greater(t, st.Increments, uint32(0))
	require.Equal(t, st.Increments, st.Counter)

	require.GreaterOrEqual(t, st.Ticks, uint32(20))

	flaky := k.TaskByName("flaky")
	require.Greater(t, flaky.Replays(), uint32(0))
	require.Equal(t, int(flaky.Replays())+1, int(st.FlakyRuns))
}

func TestKeysCountsInterrupts(t *testing.T) {
	k, hw, st := bootDefault(t)
	require.NoError(t, k.RunFor(200))
	require.Zero(t, st.Keys)

	hw.Raise(2)
	require.NoError(t, k.RunFor(50))
	require.Equal(t, uint32(1), st.Keys)

	hw.Raise(0)
	require.NoError(t, k.RunFor(50))
	require.Equal(t, uint32(2), st.Keys)

	line, ok := k.IRQ(2)
	require.True(t, ok)
	require.Equal(t, uint32(1), line.Raised())
}
