package builder

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"ferry/kernel/captab"
	"ferry/manifest"
)

func wide(tasks, ports int) *manifest.Manifest {
	m := &manifest.Manifest{}
	for i := 0; i < tasks; i++ {
		m.Tasks = append(m.Tasks, manifest.Task{Name: fmt.Sprintf("t%d", i), Shuttles: 3 + i%5})
	}
	for p := 0; p < ports; p++ {
		port := manifest.Port{Name: fmt.Sprintf("p%d", p)}
		for i := 0; i < tasks; i++ {
			if (i+p)%3 == 0 {
				continue
			}
			access := []string{"send"}
			if i%2 == 0 {
				access = []string{"send", "recv"}
			}
			port.Grants = append(port.Grants, manifest.Grant{Task: m.Tasks[i].Name, Access: access})
		}
		m.Ports = append(m.Ports, port)
	}
	m.Locks = []manifest.Lock{{Name: "mu", Grants: []manifest.Grant{{Task: "t0"}, {Task: "t1"}}}}
	m.Timers = []manifest.Timer{{Name: "tick", Owner: "t2"}}
	return m
}

func TestBuildIsDeterministic(t *testing.T) {
	opts := Options{Seed: []byte("fixed")}
	a, err := Build(wide(8, 6), opts)
	require.NoError(t, err)
	b, err := Build(wide(8, 6), opts)
	require.NoError(t, err)

	ea, err := a.Image.Encode()
	require.NoError(t, err)
	eb, err := b.Image.Encode()
	require.NoError(t, err)
	require.Equal(t, ea, eb)
	require.Equal(t, a.Attempts, b.Attempts)
}

func TestBuildResolvesEveryCapability(t *testing.T) {
	m := wide(12, 9)
	res, err := Build(m, Options{Seed: []byte("resolve")})
	require.NoError(t, err)
	img := res.Image
	require.Less(t, res.MaxProbe, captab.MaxDisplacement)
	require.Equal(t, res.MaxProbe, img.Table.MaxProbe(img.Keys()))

	caps, err := m.Capabilities()
	require.NoError(t, err)
	granted := make(map[[2]uint16]bool)
	for _, c := range caps {
		key := img.Tasks[c.Task].Key
		e, ok := img.Table.Resolve(c.Task, key, c.Handle, c.Grant)
		require.True(t, ok, "task %d handle %d", c.Task, c.Handle)
		require.Equal(t, c.Kind, e.Kind)
		require.Equal(t, c.Index, e.Index)
		granted[[2]uint16{uint16(c.Task), c.Handle}] = true
	}

	for id, tr := range img.Tasks {
		for h := uint16(0); h < tr.ShuttleCount; h++ {
			idx, ok := img.Table.ResolveShuttle(uint8(id), tr.Key, h)
			require.True(t, ok)
			require.Equal(t, tr.ShuttleBase+h, idx)
		}
		_, ok := img.Table.ResolveShuttle(uint8(id), tr.Key, tr.ShuttleCount)
		require.False(t, ok)

		for h := uint16(0); h < 32; h++ {
			if granted[[2]uint16{uint16(id), h}] {
				continue
			}
			_, ok := img.Table.Resolve(uint8(id), tr.Key, h, 0)
			require.False(t, ok, "task %d handle %d", id, h)
		}
	}
}

func TestBuildDisplacementBound(t *testing.T) {
	// a full table whose homes crowd half the slots cannot be probed in bound
	m := &manifest.Manifest{Tasks: []manifest.Task{{Name: "big", Shuttles: 1024}}}
	_, err := Build(m, Options{Seed: []byte("x"), Attempts: 2})
	require.ErrorIs(t, err, ErrDisplacement)
}

func TestBuildRejectsInvalidManifest(t *testing.T) {
	_, err := Build(&manifest.Manifest{}, Options{})
	require.ErrorIs(t, err, manifest.ErrInvalid)
}

func TestBuildLaysOutObjects(t *testing.T) {
	m := wide(3, 2)
	m.IRQs = []manifest.IRQ{{Line: 9, Port: "p1"}}
	m.Priorities = true
	res, err := Build(m, Options{BuildID: [16]byte{0xAB}})
	require.NoError(t, err)
	img := res.Image

	require.True(t, img.Priorities())
	require.Equal(t, byte(0xAB), img.BuildID[0])
	require.Len(t, img.Ports, 2)
	require.Len(t, img.Locks, 1)
	require.Equal(t, uint8(2), img.Timers[0].Owner)
	require.Equal(t, uint16(1), img.IRQs[0].Target)
	require.Equal(t, uint8(9), img.IRQs[0].Line)

	base := uint16(0)
	for i, tr := range img.Tasks {
		require.Equal(t, base, tr.ShuttleBase)
		require.Equal(t, uint16(m.Tasks[i].Shuttles), tr.ShuttleCount)
		base += tr.ShuttleCount
	}
	require.Equal(t, base, img.Shuttles)
}
