package captab

// Kind identifies the kernel object class behind a non-shuttle capability.
type Kind uint8

const (
	KindNone Kind = iota
	KindPort
	KindLock
	KindTimer
	KindIRQ
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindPort:
		return "port"
	case KindLock:
		return "lock"
	case KindTimer:
		return "timer"
	case KindIRQ:
		return "irq"
	default:
		return "unknown"
	}
}

// Grant is the access mask carried by a capability.
type Grant uint8

const (
	GrantSend Grant = 1 << iota
	GrantRecv
	GrantLock
	GrantTimer
)

// Has reports whether g includes every bit of want.
func (g Grant) Has(want Grant) bool { return g&want == want }

func (g Grant) String() string {
	if g == 0 {
		return "-"
	}
	var b []byte
	for _, it := range [...]struct {
		g Grant
		c byte
	}{{GrantSend, 's'}, {GrantRecv, 'r'}, {GrantLock, 'l'}, {GrantTimer, 't'}} {
		if g&it.g != 0 {
			b = append(b, it.c)
		}
	}
	return string(b)
}

// ShuttleEntry maps (owner, handle) to a slot in the kernel shuttle pool.
type ShuttleEntry struct {
	Owner  uint8
	Handle uint16
	Index  uint16
}

// ObjectEntry maps (owner, handle) to a port, lock or timer instance.
type ObjectEntry struct {
	Owner  uint8
	Kind   Kind
	Handle uint16
	Index  uint16
	Grant  Grant
}

// Table is the pair of open-addressed capability tables consulted on every
// system call. Both slices have a power-of-two length and are immutable once
// the kernel boots.
type Table struct {
	Shuttles []ShuttleEntry
	Objects  []ObjectEntry
}

// NewTable returns tables sized for the given entry counts with every slot empty.
func NewTable(shuttles, objects int) Table {
	t := Table{
		Shuttles: make([]ShuttleEntry, TableSize(shuttles)),
		Objects:  make([]ObjectEntry, TableSize(objects)),
	}
	for i := range t.Shuttles {
		t.Shuttles[i].Owner = NoOwner
	}
	for i := range t.Objects {
		t.Objects[i].Owner = NoOwner
	}
	return t
}

// ResolveShuttle returns the pool index of the shuttle owned by owner under handle.
func (t *Table) ResolveShuttle(owner uint8, key uint32, handle uint16) (uint16, bool) {
	size := len(t.Shuttles)
	if size == 0 || owner == NoOwner {
		return 0, false
	}
	for d := 0; d < MaxDisplacement && d < size; d++ {
		e := &t.Shuttles[Slot(handle, key, size, d)]
		if e.Owner == NoOwner {
			return 0, false
		}
		if e.Owner == owner && e.Handle == handle {
			return e.Index, true
		}
	}
	return 0, false
}

// Resolve returns the object entry owned by owner under handle when it
// carries every bit of want. A miss within the probe bound is final.
func (t *Table) Resolve(owner uint8, key uint32, handle uint16, want Grant) (ObjectEntry, bool) {
	size := len(t.Objects)
	if size == 0 || owner == NoOwner {
		return ObjectEntry{}, false
	}
	for d := 0; d < MaxDisplacement && d < size; d++ {
		e := &t.Objects[Slot(handle, key, size, d)]
		if e.Owner == NoOwner {
			return ObjectEntry{}, false
		}
		if e.Owner == owner && e.Handle == handle {
			if !e.Grant.Has(want) {
				return ObjectEntry{}, false
			}
			return *e, true
		}
	}
	return ObjectEntry{}, false
}

// MaxProbe reports the worst displacement present in the tables, given the
// per-task keys. It is used by the builder and by image validation.
func (t *Table) MaxProbe(keys []uint32) int {
	worst := 0
	for i, e := range t.Shuttles {
		if e.Owner == NoOwner || int(e.Owner) >= len(keys) {
			continue
		}
		if d := Displacement(e.Handle, keys[e.Owner], len(t.Shuttles), i); d > worst {
			worst = d
		}
	}
	for i, e := range t.Objects {
		if e.Owner == NoOwner || int(e.Owner) >= len(keys) {
			continue
		}
		if d := Displacement(e.Handle, keys[e.Owner], len(t.Objects), i); d > worst {
			worst = d
		}
	}
	return worst
}
