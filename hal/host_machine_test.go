//go:build !tinygo

package hal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMachineTimer(t *testing.T) {
	m := NewMachine()
	require.False(t, m.Expired())
	require.False(t, m.WaitForInterrupt(), "nothing armed, nothing pending")

	m.Arm(5)
	m.Cycle()
	require.False(t, m.Expired())
	require.True(t, m.WaitForInterrupt())
	require.Equal(t, uint64(5), m.Now())
	require.True(t, m.Expired())

	m.Disarm()
	require.False(t, m.Expired())
	_, armed := m.Armed()
	require.False(t, armed)

	m.Advance(10)
	require.Equal(t, uint64(15), m.Now())
}

func TestMachineInterruptLines(t *testing.T) {
	m := NewMachine()
	m.Raise(3)
	m.Raise(3)
	m.Raise(31)
	m.Raise(40)
	require.Equal(t, uint32(1<<3|1<<31), m.Pending())
	require.True(t, m.WaitForInterrupt())
	require.Zero(t, m.Now())

	m.Ack(1 << 3)
	require.Equal(t, uint32(1<<31), m.Pending())
}

func TestMachineProtection(t *testing.T) {
	m := NewMachine()
	_, loaded := m.Domain()
	require.False(t, loaded)

	m.Load(2)
	d, loaded := m.Domain()
	require.True(t, loaded)
	require.Equal(t, uint8(2), d)
	require.Equal(t, 1, m.Loads())

	restore := m.Open(1, 2)
	require.True(t, m.WindowOpen())
	require.Panics(t, func() { m.Open(1, 2) })
	restore()
	require.False(t, m.WindowOpen())
	require.Equal(t, 1, m.Windows())
}

func TestFramebufferClear(t *testing.T) {
	fb := NewFramebuffer(4, 2)
	require.Equal(t, 8, fb.StrideBytes())
	fb.ClearRGB(255, 0, 0)
	buf := fb.Buffer()
	require.Len(t, buf, 16)
	p := RGB565(255, 0, 0)
	require.Equal(t, byte(p), buf[14])
	require.Equal(t, byte(p>>8), buf[15])

	r, g, b := rgb888From565(p)
	require.Equal(t, [3]uint8{255, 0, 0}, [3]uint8{r, g, b})
}
