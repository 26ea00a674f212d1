//go:build !tinygo

package hal

import "sync"

// Machine is the host model of the single-core target: a virtual tick
// counter advanced by user execution and by idle waits, one compare
// channel, a 32-line interrupt controller and a domain-tracking MPU.
//
// Time only moves when the kernel runs user code (Cycle) or idles
// (WaitForInterrupt), so runs are deterministic.
type Machine struct {
	mu sync.Mutex

	now      uint64
	armed    bool
	deadline uint64
	pending  uint32

	domain  uint8
	loaded  bool
	loads   int
	windows int
	open    bool
}

// NewMachine returns a machine at tick zero with nothing armed.
func NewMachine() *Machine {
	return &Machine{}
}

func (m *Machine) Now() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Machine) Arm(deadline uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = true
	m.deadline = deadline
}

func (m *Machine) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = false
}

func (m *Machine) Expired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed && m.now >= m.deadline
}

// Armed returns the programmed deadline, if any.
func (m *Machine) Armed() (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deadline, m.armed
}

func (m *Machine) Cycle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now++
}

// Advance moves time forward by n ticks without running user code.
func (m *Machine) Advance(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += n
}

func (m *Machine) WaitForInterrupt() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != 0 {
		return true
	}
	if !m.armed {
		return false
	}
	if m.deadline > m.now {
		m.now = m.deadline
	}
	return true
}

// Raise asserts an external interrupt line.
func (m *Machine) Raise(line uint8) {
	if line >= 32 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending |= 1 << line
}

func (m *Machine) Pending() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

func (m *Machine) Ack(lines uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending &^= lines
}

func (m *Machine) Load(domain uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domain = domain
	m.loaded = true
	m.loads++
}

func (m *Machine) Open(src, dst uint8) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		panic("mpu: nested cross-domain window")
	}
	m.open = true
	m.windows++
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.open = false
	}
}

// Domain returns the loaded protection domain.
func (m *Machine) Domain() (uint8, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.domain, m.loaded
}

// Loads counts protection reloads.
func (m *Machine) Loads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

// Windows counts cross-domain copy windows opened so far.
func (m *Machine) Windows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.windows
}

// WindowOpen reports whether a cross-domain window is currently open.
func (m *Machine) WindowOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}
