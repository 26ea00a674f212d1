//go:build !tinygo && cgo

package hal

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// keypadLines maps host keys to external interrupt lines: the digit row
// drives lines 0-9 and F1-F3 drive lines 10-12.
var keypadLines = [...]struct {
	key  ebiten.Key
	line uint8
}{
	{ebiten.KeyDigit0, 0},
	{ebiten.KeyDigit1, 1},
	{ebiten.KeyDigit2, 2},
	{ebiten.KeyDigit3, 3},
	{ebiten.KeyDigit4, 4},
	{ebiten.KeyDigit5, 5},
	{ebiten.KeyDigit6, 6},
	{ebiten.KeyDigit7, 7},
	{ebiten.KeyDigit8, 8},
	{ebiten.KeyDigit9, 9},
	{ebiten.KeyF1, 10},
	{ebiten.KeyF2, 11},
	{ebiten.KeyF3, 12},
}

type hostKeypad struct {
	m *Machine
}

func newHostKeypad(m *Machine) *hostKeypad {
	return &hostKeypad{m: m}
}

func (k *hostKeypad) poll() {
	for _, kl := range keypadLines {
		if inpututil.IsKeyJustPressed(kl.key) {
			k.m.Raise(kl.line)
		}
	}
}
