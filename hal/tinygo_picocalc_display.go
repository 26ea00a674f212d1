//go:build tinygo && baremetal && picocalc

package hal

import (
	"machine"
	"time"

	"github.com/pkg/errors"
	"tinygo.org/x/drivers"
)

const (
	ili9488CASET  = 0x2A
	ili9488PASET  = 0x2B
	ili9488RAMWR  = 0x2C
	ili9488COLMOD = 0x3A
	ili9488MADCTL = 0x36
	ili9488INVON  = 0x21
	ili9488SLPOUT = 0x11
	ili9488DISPON = 0x29
)

// ili9488 drives the PicoCalc panel over any drivers.SPI bus. Only the
// full-frame blit used by Present is implemented.
type ili9488 struct {
	bus drivers.SPI
	cs  machine.Pin
	dc  machine.Pin
	rst machine.Pin
	tx  []byte
}

func newILI9488() (*ili9488, error) {
	if machine.SPI1 == nil {
		return nil, errors.New("ili9488: SPI1 unavailable")
	}
	if err := machine.SPI1.Configure(machine.SPIConfig{
		SCK:       machine.GP10,
		SDO:       machine.GP11,
		SDI:       machine.GP12,
		Frequency: 40_000_000,
	}); err != nil {
		return nil, errors.Wrap(err, "ili9488: configure SPI1")
	}

	d := &ili9488{
		bus: machine.SPI1,
		cs:  machine.GP13,
		dc:  machine.GP14,
		rst: machine.GP15,
		tx:  make([]byte, 4096),
	}
	for _, p := range []machine.Pin{d.cs, d.dc, d.rst} {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		p.High()
	}

	d.rst.Low()
	time.Sleep(64 * time.Millisecond)
	d.rst.High()
	time.Sleep(140 * time.Millisecond)

	d.command(0xC0, 0x17, 0x15)
	d.command(0xC1, 0x41)
	d.command(0xC5, 0x00, 0x12, 0x80, 0x40)
	d.command(ili9488COLMOD, 0x55)
	d.command(0xB1, 0xA0, 0x11)
	d.command(0xB6, 0x02, 0x22, 0x27)
	d.command(ili9488INVON)
	// MX, MH and BGR order for the PicoCalc wiring.
	d.command(ili9488MADCTL, 0x40|0x04|0x08)
	d.command(ili9488SLPOUT)
	time.Sleep(120 * time.Millisecond)
	d.command(ili9488DISPON)
	return d, nil
}

func (d *ili9488) command(c byte, data ...byte) {
	d.cs.Low()
	d.dc.Low()
	d.bus.Tx([]byte{c}, nil)
	d.dc.High()
	if len(data) > 0 {
		d.bus.Tx(data, nil)
	}
	d.cs.High()
}

func (d *ili9488) window(w, h int) {
	x1, y1 := uint16(w-1), uint16(h-1)
	d.command(ili9488CASET, 0, 0, byte(x1>>8), byte(x1))
	d.command(ili9488PASET, 0, 0, byte(y1>>8), byte(y1))
	d.command(ili9488RAMWR)
}

// blit sends a little-endian RGB565 frame; the panel expects big-endian.
func (d *ili9488) blit(buf []byte, w, h int) error {
	total := w * h * 2
	if w <= 0 || h <= 0 || len(buf) < total {
		return errors.New("ili9488: invalid framebuffer")
	}
	d.window(w, h)

	d.cs.Low()
	d.dc.High()
	chunk := d.tx[:len(d.tx)&^1]
	for off := 0; off < total; {
		n := min(len(chunk), total-off)
		src := buf[off : off+n]
		for i := 0; i < n; i += 2 {
			chunk[i], chunk[i+1] = src[i+1], src[i]
		}
		if err := d.bus.Tx(chunk[:n], nil); err != nil {
			d.cs.High()
			return errors.Wrapf(err, "ili9488: blit at %d", off)
		}
		off += n
	}
	d.cs.High()
	return nil
}

type picoCalcFramebuffer struct {
	w, h int
	buf  []byte
	lcd  *ili9488
}

func newPicoCalcFramebuffer(lcd *ili9488) *picoCalcFramebuffer {
	const w, h = 320, 320
	return &picoCalcFramebuffer{w: w, h: h, buf: make([]byte, w*h*2), lcd: lcd}
}

func (f *picoCalcFramebuffer) Width() int             { return f.w }
func (f *picoCalcFramebuffer) Height() int            { return f.h }
func (f *picoCalcFramebuffer) Format() PixelFormat    { return PixelFormatRGB565 }
func (f *picoCalcFramebuffer) StrideBytes() int       { return f.w * 2 }
func (f *picoCalcFramebuffer) Buffer() []byte         { return f.buf }
func (f *picoCalcFramebuffer) ClearRGB(r, g, b uint8) { fillRGB565(f.buf, rgb565(r, g, b)) }

func (f *picoCalcFramebuffer) Present() error {
	if f.lcd == nil {
		return ErrNotImplemented
	}
	return f.lcd.blit(f.buf, f.w, f.h)
}
