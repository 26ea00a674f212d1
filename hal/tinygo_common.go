//go:build tinygo && baremetal

package hal

import (
	"machine"
	"sync/atomic"
	"time"
)

type tinyGoDisplay struct {
	fb Framebuffer
}

func (d tinyGoDisplay) Framebuffer() Framebuffer { return d.fb }

// stubFramebuffer describes a panel that is not wired. Drawing into it is
// dropped and Present reports ErrNotImplemented.
type stubFramebuffer struct {
	w, h   int
	format PixelFormat
}

func (f *stubFramebuffer) Width() int             { return f.w }
func (f *stubFramebuffer) Height() int            { return f.h }
func (f *stubFramebuffer) Format() PixelFormat    { return f.format }
func (f *stubFramebuffer) StrideBytes() int       { return f.w * 2 }
func (f *stubFramebuffer) Buffer() []byte         { return nil }
func (f *stubFramebuffer) ClearRGB(_, _, _ uint8) {}
func (f *stubFramebuffer) Present() error         { return ErrNotImplemented }

// tinyGoMachine runs the kernel timer off the monotonic clock in
// milliseconds. Interrupt lines are latched by pin or keyboard handlers and
// drained by the kernel between user steps.
type tinyGoMachine struct {
	boot     time.Time
	armed    atomic.Bool
	deadline atomic.Uint64
	pending  atomic.Uint32
	sources  int

	domain uint8
	loaded bool
}

func newTinyGoMachine() *tinyGoMachine {
	return &tinyGoMachine{boot: time.Now()}
}

func (m *tinyGoMachine) Now() uint64 {
	return uint64(time.Since(m.boot) / time.Millisecond)
}

func (m *tinyGoMachine) Arm(deadline uint64) {
	m.deadline.Store(deadline)
	m.armed.Store(true)
}

func (m *tinyGoMachine) Disarm() { m.armed.Store(false) }

func (m *tinyGoMachine) Expired() bool {
	return m.armed.Load() && m.Now() >= m.deadline.Load()
}

// Cycle is a no-op: wall time advances on its own.
func (m *tinyGoMachine) Cycle() {}

func (m *tinyGoMachine) WaitForInterrupt() bool {
	if !m.armed.Load() && m.sources == 0 {
		return m.pending.Load() != 0
	}
	for {
		if m.pending.Load() != 0 || m.Expired() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
}

func (m *tinyGoMachine) raise(line uint8) {
	if line >= 32 {
		return
	}
	for {
		old := m.pending.Load()
		if m.pending.CompareAndSwap(old, old|1<<line) {
			return
		}
	}
}

func (m *tinyGoMachine) Pending() uint32 { return m.pending.Load() }

func (m *tinyGoMachine) Ack(lines uint32) {
	for {
		old := m.pending.Load()
		if m.pending.CompareAndSwap(old, old&^lines) {
			return
		}
	}
}

// Load records the domain; the RP2 MPU regions are not programmed, so every
// domain shares one flat address space on the device.
func (m *tinyGoMachine) Load(domain uint8) {
	m.domain = domain
	m.loaded = true
}

func (m *tinyGoMachine) Open(src, dst uint8) func() { return func() {} }

// bindPin raises line on every falling edge of pin.
func (m *tinyGoMachine) bindPin(pin machine.Pin, line uint8) {
	pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	if err := pin.SetInterrupt(machine.PinFalling, func(machine.Pin) { m.raise(line) }); err == nil {
		m.sources++
	}
}

type uartLogger struct {
	uart *machine.UART
}

func (l *uartLogger) WriteLineString(s string) {
	for i := 0; i < len(s); i++ {
		l.uart.WriteByte(s[i])
	}
	l.uart.WriteByte('\r')
	l.uart.WriteByte('\n')
}

func (l *uartLogger) WriteLineBytes(b []byte) {
	for i := 0; i < len(b); i++ {
		l.uart.WriteByte(b[i])
	}
	l.uart.WriteByte('\r')
	l.uart.WriteByte('\n')
}

type pinLED struct {
	pin machine.Pin
}

func (l *pinLED) High() { l.pin.High() }
func (l *pinLED) Low()  { l.pin.Low() }

func configureUART0() *machine.UART {
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GP0,
		RX:       machine.GP1,
	})
	return uart
}

func configureLED() *pinLED {
	p := machine.LED
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &pinLED{pin: p}
}
