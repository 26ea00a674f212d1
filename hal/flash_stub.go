package hal

import "github.com/pkg/errors"

// stubFlash stands in when no flash device or backing file is available.
// Every access reports ErrNotImplemented so callers fall back to built-in
// images.
type stubFlash struct{}

func (stubFlash) SizeBytes() uint32       { return 0 }
func (stubFlash) EraseBlockBytes() uint32 { return 0 }

func (stubFlash) ReadAt(_ []byte, off uint32) (int, error) {
	return 0, errors.Wrapf(ErrNotImplemented, "flash read at %#x", off)
}

func (stubFlash) WriteAt(_ []byte, off uint32) (int, error) {
	return 0, errors.Wrapf(ErrNotImplemented, "flash write at %#x", off)
}

func (stubFlash) Erase(off, size uint32) error {
	return errors.Wrapf(ErrNotImplemented, "flash erase %#x+%d", off, size)
}
