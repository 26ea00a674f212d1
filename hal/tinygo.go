//go:build tinygo && baremetal && !picocalc

package hal

import "machine"

type tinyGoHAL struct {
	logger *uartLogger
	led    *pinLED
	fb     Framebuffer
	m      *tinyGoMachine
	flash  Flash
}

// New returns a Pico 2 (RP2350) HAL implementation.
//
// UART: UART0 on GP0 (TX) / GP1 (RX), 115200 8N1.
// Interrupt lines 0-3: buttons to ground on GP2-GP5.
func New() HAL {
	uart := configureUART0()
	m := newTinyGoMachine()
	for i, pin := range []machine.Pin{machine.GP2, machine.GP3, machine.GP4, machine.GP5} {
		m.bindPin(pin, uint8(i))
	}
	return &tinyGoHAL{
		logger: &uartLogger{uart: uart},
		led:    configureLED(),
		fb:     &stubFramebuffer{w: 320, h: 320, format: PixelFormatRGB565},
		m:      m,
		flash:  newRP2Flash(),
	}
}

func (h *tinyGoHAL) Logger() Logger   { return h.logger }
func (h *tinyGoHAL) LED() LED         { return h.led }
func (h *tinyGoHAL) Display() Display { return tinyGoDisplay{fb: h.fb} }
func (h *tinyGoHAL) Flash() Flash     { return h.flash }
func (h *tinyGoHAL) Timer() Timer     { return h.m }
func (h *tinyGoHAL) CPU() CPU         { return h.m }
func (h *tinyGoHAL) IRQ() IRQ         { return h.m }
func (h *tinyGoHAL) MPU() MPU         { return h.m }
