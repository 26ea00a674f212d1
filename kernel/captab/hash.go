// Package captab holds the capability tables shared by the offline builder
// and the kernel: the hash, the probe bound and the sizing rule live here so
// both sides agree on them.
package captab

// HashMultiplier is the odd constant used by the multiplicative handle hash.
const HashMultiplier uint64 = 0x9E3779B1

// MaxDisplacement bounds linear probing: an entry sits at most
// MaxDisplacement-1 slots past its home slot.
const MaxDisplacement = 8

// NoOwner marks an empty table slot.
const NoOwner uint8 = 0xFF

// Hash mixes a task-local handle with the owning task's table key.
func Hash(handle uint16, key uint32) uint32 {
	return uint32((uint64(handle)*HashMultiplier)>>32) ^ key
}

// Slot returns the slot probed at displacement d in a table of size slots.
// size must be a power of two.
func Slot(handle uint16, key uint32, size int, d int) int {
	return int((Hash(handle, key) + uint32(d)) & uint32(size-1))
}

// Home returns the displacement-zero slot.
func Home(handle uint16, key uint32, size int) int {
	return Slot(handle, key, size, 0)
}

// Displacement returns how far slot is from the home slot of handle.
func Displacement(handle uint16, key uint32, size int, slot int) int {
	return (slot - Home(handle, key, size)) & (size - 1)
}

// TableSize returns the number of slots for n live entries: the next power
// of two that is at least n (and at least one).
func TableSize(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}
