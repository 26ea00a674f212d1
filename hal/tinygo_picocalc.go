//go:build tinygo && baremetal && picocalc

package hal

type picoCalcHAL struct {
	logger *uartLogger
	led    *pinLED
	fb     Framebuffer
	m      *tinyGoMachine
	flash  Flash
}

// New returns a PicoCalc HAL implementation (Pico/Pico2 on the PicoCalc carrier).
//
// UART: UART0 on GP0 (TX) / GP1 (RX), 115200 8N1.
func New() HAL {
	uart := configureUART0()
	m := newTinyGoMachine()

	// without a panel Present reports ErrNotImplemented
	lcd, _ := newILI9488()

	if kp, err := newPicoCalcKeypad(); err == nil {
		m.sources++
		go kp.run(m)
	}

	return &picoCalcHAL{
		logger: &uartLogger{uart: uart},
		led:    configureLED(),
		fb:     newPicoCalcFramebuffer(lcd),
		m:      m,
		flash:  newRP2Flash(),
	}
}

func (h *picoCalcHAL) Logger() Logger   { return h.logger }
func (h *picoCalcHAL) LED() LED         { return h.led }
func (h *picoCalcHAL) Display() Display { return tinyGoDisplay{fb: h.fb} }
func (h *picoCalcHAL) Flash() Flash     { return h.flash }
func (h *picoCalcHAL) Timer() Timer     { return h.m }
func (h *picoCalcHAL) CPU() CPU         { return h.m }
func (h *picoCalcHAL) IRQ() IRQ         { return h.m }
func (h *picoCalcHAL) MPU() MPU         { return h.m }
