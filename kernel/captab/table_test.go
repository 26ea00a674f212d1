package captab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	require.Equal(t, uint32(0xdeadbeef), Hash(0, 0xdeadbeef))
	require.Equal(t, uint32(0), Hash(1, 0))
	require.Equal(t, uint32(1), Hash(2, 0))
	require.Equal(t, uint32(6), Hash(10, 0))
	require.Equal(t, uint32(6^0x30), Hash(10, 0x30))
}

func TestTableSize(t *testing.T) {
	for n, want := range map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 8: 8, 9: 16, 100: 128} {
		require.Equal(t, want, TableSize(n), "n=%d", n)
	}
}

func TestSlotWraps(t *testing.T) {
	const size = 8
	home := Home(5, 0x1234, size)
	for d := 0; d < size; d++ {
		s := Slot(5, 0x1234, size, d)
		require.Equal(t, (home+d)%size, s)
		require.Equal(t, d, Displacement(5, 0x1234, size, s))
	}
}

func TestResolve(t *testing.T) {
	const key = 0x5a5a
	tb := NewTable(4, 4)
	require.Len(t, tb.Objects, 4)

	home := Home(3, key, len(tb.Objects))
	tb.Objects[home] = ObjectEntry{Owner: 0, Kind: KindPort, Handle: 3, Index: 7, Grant: GrantSend}

	e, ok := tb.Resolve(0, key, 3, GrantSend)
	require.True(t, ok)
	require.Equal(t, uint16(7), e.Index)
	require.Equal(t, KindPort, e.Kind)

	_, ok = tb.Resolve(0, key, 3, GrantRecv)
	require.False(t, ok, "grant mismatch")
	_, ok = tb.Resolve(1, key, 3, 0)
	require.False(t, ok, "other owner")
	_, ok = tb.Resolve(NoOwner, key, 3, 0)
	require.False(t, ok)

	// a colliding entry one slot further is still found
	tb.Objects[(home+1)%4] = ObjectEntry{Owner: 1, Kind: KindLock, Handle: 3, Index: 2, Grant: GrantLock}
	e, ok = tb.Resolve(1, key, 3, GrantLock)
	require.True(t, ok)
	require.Equal(t, KindLock, e.Kind)
	require.Equal(t, 1, tb.MaxProbe([]uint32{key, key}))
}

func TestResolveShuttle(t *testing.T) {
	const key = 0x77
	tb := NewTable(2, 1)
	tb.Shuttles[Home(0, key, 2)] = ShuttleEntry{Owner: 2, Handle: 0, Index: 9}

	idx, ok := tb.ResolveShuttle(2, key, 0)
	require.True(t, ok)
	require.Equal(t, uint16(9), idx)

	_, ok = tb.ResolveShuttle(2, key^1, 0)
	require.False(t, ok)
	_, ok = tb.ResolveShuttle(3, key, 0)
	require.False(t, ok)

	var empty Table
	_, ok = empty.ResolveShuttle(0, 0, 0)
	require.False(t, ok)
}

func TestGrantString(t *testing.T) {
	require.Equal(t, "-", Grant(0).String())
	require.Equal(t, "sr", (GrantSend | GrantRecv).String())
	require.Equal(t, "t", GrantTimer.String())
	require.True(t, (GrantSend | GrantRecv).Has(GrantRecv))
	require.False(t, GrantSend.Has(GrantSend|GrantRecv))
	require.Equal(t, "timer", KindTimer.String())
}
