// Package flashfile models NOR flash on top of a host file: erased bytes
// read as 0xFF and a write may only clear bits.
package flashfile

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrWriteRequiresErase = errors.New("flash write requires erase")
	ErrInvalid            = errors.New("flash: invalid argument")
)

// File is a flash image backed by an *os.File.
type File struct {
	mu        sync.Mutex
	f         *os.File
	size      uint32
	eraseSize uint32
	scratch   []byte
}

// Open opens an existing image, or creates one of size bytes erased to 0xFF.
func Open(path string, size, eraseSize uint32) (*File, error) {
	if eraseSize == 0 || eraseSize%256 != 0 {
		return nil, errors.Wrapf(ErrInvalid, "erase size %d", eraseSize)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open flash file %q", path)
	}
	ff := &File{f: f, eraseSize: eraseSize, scratch: make([]byte, eraseSize)}
	for i := range ff.scratch {
		ff.scratch[i] = 0xFF
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "stat flash file %q", path)
	}
	if st.Size() > 0 {
		if st.Size() > int64(^uint32(0)) || uint32(st.Size())%eraseSize != 0 {
			_ = f.Close()
			return nil, errors.Wrapf(ErrInvalid, "flash file %q has size %d", path, st.Size())
		}
		ff.size = uint32(st.Size())
		return ff, nil
	}

	if size == 0 || size%eraseSize != 0 {
		_ = f.Close()
		return nil, errors.Wrapf(ErrInvalid, "size %d not multiple of erase size %d", size, eraseSize)
	}
	if err := f.Truncate(int64(size)); err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "truncate flash file %q to %d", path, size)
	}
	ff.size = size
	if err := ff.Erase(0, size); err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "erase flash file %q", path)
	}
	return ff, nil
}

func (f *File) Close() error { return f.f.Close() }

func (f *File) SizeBytes() uint32       { return f.size }
func (f *File) EraseBlockBytes() uint32 { return f.eraseSize }

func (f *File) ReadAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off >= f.size {
		return 0, errors.Wrapf(ErrInvalid, "read at %d", off)
	}
	if maxN := int(f.size - off); len(p) > maxN {
		p = p[:maxN]
	}
	return f.f.ReadAt(p, int64(off))
}

func (f *File) WriteAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off >= f.size {
		return 0, errors.Wrapf(ErrInvalid, "write at %d", off)
	}
	if maxN := int(f.size - off); len(p) > maxN {
		p = p[:maxN]
	}

	prev := make([]byte, len(p))
	if _, err := f.f.ReadAt(prev, int64(off)); err != nil && !errors.Is(err, io.EOF) {
		return 0, errors.Wrapf(err, "flash read before write at %d", off)
	}
	for i := range p {
		if prev[i]&p[i] != p[i] {
			return 0, ErrWriteRequiresErase
		}
	}
	return f.f.WriteAt(p, int64(off))
}

func (f *File) Erase(off, size uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if size == 0 {
		return nil
	}
	if off%f.eraseSize != 0 || size%f.eraseSize != 0 || off >= f.size || off+size > f.size {
		return errors.Wrapf(ErrInvalid, "erase off=%d size=%d", off, size)
	}
	for size > 0 {
		if _, err := f.f.WriteAt(f.scratch, int64(off)); err != nil {
			return errors.Wrapf(err, "flash erase block at %d", off)
		}
		off += f.eraseSize
		size -= f.eraseSize
	}
	return nil
}

// Program erases the blocks covering [off, off+len(p)) and writes p there.
func (f *File) Program(p []byte, off uint32) error {
	if off%f.eraseSize != 0 {
		return errors.Wrapf(ErrInvalid, "program offset %d not erase aligned", off)
	}
	span := (uint32(len(p)) + f.eraseSize - 1) / f.eraseSize * f.eraseSize
	if err := f.Erase(off, span); err != nil {
		return err
	}
	if _, err := f.WriteAt(p, off); err != nil {
		return errors.Wrapf(err, "program %d bytes at %d", len(p), off)
	}
	return nil
}
