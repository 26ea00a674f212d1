package kernel

import "runtime"

// copyPayload moves src's payload into dst's buffer across the two owners'
// address spaces. The cross-domain window is open only for the copy. A
// runtime fault during the copy unwinds here and fails the transfer.
func (k *Kernel) copyPayload(dst, src *Shuttle) (ok bool) {
	if src.Owner == NoTask || dst.Owner == NoTask {
		return false
	}
	from, to := &k.tasks[src.Owner], &k.tasks[dst.Owner]

	restore := k.hw.MPU.Open(from.Domain, to.Domain)
	defer restore()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if _, fault := r.(runtime.Error); !fault {
			panic(r)
		}
		k.log.Warn("copy fault", "from", from.Name, "to", to.Name, "size", src.Size, "err", r)
		ok = false
	}()

	n := copy(to.memory[dst.Addr:dst.Addr+src.Size], from.memory[src.Addr:src.Addr+src.Size])
	return n == int(src.Size)
}

// bufferInRange reports whether [addr, addr+size) lies inside mem.
func bufferInRange(mem []byte, addr, size uint32) bool {
	end := uint64(addr) + uint64(size)
	return end <= uint64(len(mem))
}
