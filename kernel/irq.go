package kernel

// MaxIRQLines is the number of external interrupt lines.
const MaxIRQLines = 32

// IRQLine routes one external interrupt line to a port. When the line
// fires its kernel shuttle is bound as a zero-length sender; repeated
// firings while it is still queued are coalesced.
type IRQLine struct {
	Line uint8
	Port int

	shuttle   int32
	raised    uint32
	coalesced uint32
}

// Raised counts deliveries queued on the port.
func (l *IRQLine) Raised() uint32 { return l.raised }

// Coalesced counts firings folded into an already queued delivery.
func (l *IRQLine) Coalesced() uint32 { return l.coalesced }

func (k *Kernel) interruptPending() bool {
	return k.hw.Timer.Expired() || k.hw.IRQ.Pending() != 0
}

// drainInterrupts handles an expired compare channel and every pending
// external line.
func (k *Kernel) drainInterrupts() {
	if k.hw.Timer.Expired() {
		now := k.hw.Timer.Now()
		k.hw.Timer.Disarm()
		k.processElapsed(now)
		if k.current != NoTask && now >= k.quantumEnd {
			k.quantumExpired = true
			k.preempt = true
			k.quantumEnd = now + uint64(k.quantum)
		}
	}

	if lines := k.hw.IRQ.Pending(); lines != 0 {
		k.hw.IRQ.Ack(lines)
		for line := uint8(0); line < MaxIRQLines; line++ {
			if lines&(1<<line) != 0 {
				k.raise(line)
			}
		}
	}
}

func (k *Kernel) raise(line uint8) {
	idx := k.lines[line]
	if idx < 0 {
		k.log.Warn("spurious interrupt", "line", line)
		return
	}
	l := &k.irqs[idx]
	s := &k.shuttles[l.shuttle]
	if !s.Idle() {
		l.coalesced++
		return
	}
	l.raised++
	s.Size = 0
	s.lockOp = false
	k.log.Trace("irq", "line", line, "port", k.ports[l.Port].Name)
	k.bindSend(l.shuttle, l.Port)
}
