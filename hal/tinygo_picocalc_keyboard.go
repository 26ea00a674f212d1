//go:build tinygo && baremetal && picocalc

package hal

import (
	"machine"
	"time"

	"github.com/pkg/errors"
)

const (
	picoCalcKbdAddr uint16 = 0x1F
	picoCalcKbdFIFO        = 0x09

	picoCalcKeyDown = 0x01

	picoCalcKeyF1 byte = 0x81
	picoCalcKeyF2 byte = 0x82
	picoCalcKeyF3 byte = 0x83
)

// picoCalcKeypad polls the keyboard controller FIFO and raises interrupt
// lines for key-down events: digits drive lines 0-9, F1-F3 lines 10-12.
type picoCalcKeypad struct {
	i2c  *machine.I2C
	cmd  [1]byte
	read [2]byte
}

func newPicoCalcKeypad() (*picoCalcKeypad, error) {
	// I2C1 is the PicoCalc wiring; some TinyGo targets only expose I2C0.
	for _, bus := range []*machine.I2C{machine.I2C1, machine.I2C0} {
		if bus == nil {
			continue
		}
		for _, freq := range []uint32{100_000, 400_000} {
			if err := bus.Configure(machine.I2CConfig{
				SCL:       machine.GP7,
				SDA:       machine.GP6,
				Frequency: freq,
			}); err != nil {
				continue
			}
			k := &picoCalcKeypad{i2c: bus, cmd: [1]byte{picoCalcKbdFIFO}}
			// the keyboard MCU can be slow to answer after power-up
			for i := 0; i < 50; i++ {
				if err := k.i2c.Tx(picoCalcKbdAddr, k.cmd[:], k.read[:]); err == nil {
					return k, nil
				}
				time.Sleep(10 * time.Millisecond)
			}
		}
	}
	return nil, errors.New("keyboard: I2C unavailable")
}

func (k *picoCalcKeypad) next() (uint8, bool) {
	if err := k.i2c.Tx(picoCalcKbdAddr, k.cmd[:], k.read[:]); err != nil {
		return 0, false
	}
	if k.read[0] != picoCalcKeyDown {
		return 0, false
	}
	return keyLine(k.read[1])
}

func keyLine(code byte) (uint8, bool) {
	switch {
	case code >= '0' && code <= '9':
		return code - '0', true
	case code >= picoCalcKeyF1 && code <= picoCalcKeyF3:
		return 10 + code - picoCalcKeyF1, true
	}
	return 0, false
}

func (k *picoCalcKeypad) run(m *tinyGoMachine) {
	for {
		if line, ok := k.next(); ok {
			m.raise(line)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
