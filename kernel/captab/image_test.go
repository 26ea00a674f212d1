package captab_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"ferry/internal/builder"
	"ferry/kernel/captab"
	"ferry/manifest"
)

func sample(t *testing.T) *captab.Image {
	t.Helper()
	m := &manifest.Manifest{
		Quantum:    7,
		Priorities: true,
		Tasks: []manifest.Task{
			{Name: "srv", Priority: 2, Domain: 1, Shuttles: 3, Memory: 512},
			{Name: "cli", Priority: 1, Domain: 2, Shuttles: 2, Memory: 256},
		},
		Ports: []manifest.Port{{Name: "svc", Grants: []manifest.Grant{
			{Task: "srv", Access: []string{"recv"}},
			{Task: "cli", Access: []string{"send"}},
		}}},
		Locks:  []manifest.Lock{{Name: "mu", Grants: []manifest.Grant{{Task: "srv"}, {Task: "cli"}}}},
		Timers: []manifest.Timer{{Name: "tick", Owner: "cli"}},
		IRQs:   []manifest.IRQ{{Line: 4, Port: "svc"}},
	}
	res, err := builder.Build(m, builder.Options{Seed: []byte("image"), BuildID: [16]byte{1, 2, 3}})
	require.NoError(t, err)
	return res.Image
}

func TestImageRoundTrip(t *testing.T) {
	img := sample(t)
	b, err := img.Encode()
	require.NoError(t, err)

	n, err := captab.EncodedSize(b)
	require.NoError(t, err)
	require.Equal(t, len(b), n)

	got, err := captab.Decode(b)
	require.NoError(t, err)
	require.Equal(t, img, got)
	require.True(t, got.Priorities())
	require.Equal(t, uint32(7), got.Quantum)
	require.Equal(t, uint16(5), got.Shuttles)

	id, ok := got.TaskByName("cli")
	require.True(t, ok)
	require.Equal(t, uint8(1), id)
	require.Equal(t, uint8(4), got.IRQs[0].Line)
}

func TestDecodeTrailingBytesIgnored(t *testing.T) {
	b, err := sample(t).Encode()
	require.NoError(t, err)
	padded := append(append([]byte(nil), b...), 0xFF, 0xFF, 0xFF, 0xFF)
	_, err = captab.Decode(padded)
	require.NoError(t, err)
}

func TestDecodeRejectsCorruption(t *testing.T) {
	b, err := sample(t).Encode()
	require.NoError(t, err)
	mutate := func(f func(b []byte) []byte) []byte {
		return f(append([]byte(nil), b...))
	}

	_, err = captab.Decode(b[:10])
	require.ErrorIs(t, err, captab.ErrTruncated)

	_, err = captab.Decode(b[:len(b)-1])
	require.ErrorIs(t, err, captab.ErrTruncated)

	_, err = captab.Decode(mutate(func(b []byte) []byte { b[0] = 'X'; return b }))
	require.ErrorIs(t, err, captab.ErrBadMagic)

	_, err = captab.Decode(mutate(func(b []byte) []byte {
		binary.LittleEndian.PutUint16(b[4:6], 9)
		return b
	}))
	require.ErrorIs(t, err, captab.ErrBadVersion)

	_, err = captab.Decode(mutate(func(b []byte) []byte { b[len(b)-3] ^= 0x40; return b }))
	require.ErrorIs(t, err, captab.ErrBadChecksum)

	// erased flash
	erased := make([]byte, 256)
	for i := range erased {
		erased[i] = 0xFF
	}
	_, err = captab.Decode(erased)
	require.ErrorIs(t, err, captab.ErrBadMagic)
}

func TestValidate(t *testing.T) {
	img := sample(t)
	require.NoError(t, img.Validate())

	bad := *img
	bad.Table.Shuttles = bad.Table.Shuttles[:3]
	require.ErrorIs(t, bad.Validate(), captab.ErrBadImage)

	bad = *img
	bad.Timers = []captab.ObjectRecord{{Name: "t", Kind: captab.KindTimer, Owner: 9}}
	require.ErrorIs(t, bad.Validate(), captab.ErrBadImage)

	bad = *img
	bad.Shuttles++
	require.ErrorIs(t, bad.Validate(), captab.ErrBadImage)

	bad = *img
	bad.Tasks = nil
	require.ErrorIs(t, bad.Validate(), captab.ErrBadImage)

	_, err := bad.Encode()
	require.ErrorIs(t, err, captab.ErrBadImage)
}
