package hal

import "github.com/pkg/errors"

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// LED is a minimal output pin abstraction.
type LED interface {
	High()
	Low()
}

var ErrNotImplemented = errors.New("not implemented")

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a simple pixel buffer plus a "present" hook.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// Display provides access to the framebuffer (if available).
type Display interface {
	Framebuffer() Framebuffer
}

// Flash provides raw access to non-volatile memory.
//
// It is intentionally low-level: addresses and erase blocks only.
type Flash interface {
	SizeBytes() uint32
	EraseBlockBytes() uint32
	ReadAt(p []byte, off uint32) (int, error)
	WriteAt(p []byte, off uint32) (int, error)
	Erase(off, size uint32) error
}

// Timer is the machine tick counter with a single compare channel.
//
// The kernel programs it for the nearer of the quantum boundary and the
// earliest pending deadline.
type Timer interface {
	Now() uint64
	Arm(deadline uint64)
	Disarm()
	// Expired reports whether the timer is armed and its deadline has passed.
	Expired() bool
}

// IRQ is the external interrupt controller. Lines are bit positions.
type IRQ interface {
	Pending() uint32
	Ack(lines uint32)
}

// CPU covers the processor primitives the scheduler needs.
type CPU interface {
	// Cycle accounts for one slice of user-mode execution.
	Cycle()
	// WaitForInterrupt idles until the timer or an IRQ line fires. It
	// returns false when nothing armed could ever wake the processor.
	WaitForInterrupt() bool
}

// MPU switches memory-protection state between isolation domains.
type MPU interface {
	// Load installs the protection state of domain for user execution.
	Load(domain uint8)
	// Open grants the kernel access to both domains for a cross-domain copy.
	// The returned function restores the previous state.
	Open(src, dst uint8) (restore func())
}

// HAL provides the only contact point between the OS and the outside world.
type HAL interface {
	Logger() Logger
	LED() LED
	Display() Display
	Flash() Flash
	Timer() Timer
	CPU() CPU
	IRQ() IRQ
	MPU() MPU
}
