package captab

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/pkg/errors"
)

// Image layout (little-endian), as written by mkcaps and loaded as-is at boot:
//   - header (HeaderSize bytes)
//   - task records       (TaskRecordSize each)
//   - object records     (ObjectRecordSize each: ports, locks, timers, irqs)
//   - shuttle table      (EntrySize each)
//   - object table       (EntrySize each)
const (
	HeaderSize       = 56
	TaskRecordSize   = 32
	ObjectRecordSize = 24
	EntrySize        = 8
	NameBytes        = 16

	imageVersion = 1
)

var imageMagic = [4]byte{'F', 'R', 'Y', 'C'}

// Image flags.
const (
	FlagPriorities uint16 = 1 << iota
)

var (
	ErrBadMagic    = errors.New("captab: bad image magic")
	ErrBadVersion  = errors.New("captab: unsupported image version")
	ErrBadChecksum = errors.New("captab: image checksum mismatch")
	ErrTruncated   = errors.New("captab: image truncated")
	ErrBadImage    = errors.New("captab: malformed image")
)

// TaskRecord is the boot description of one task.
type TaskRecord struct {
	Name         string
	Key          uint32
	Priority     uint8
	Domain       uint8
	ShuttleBase  uint16
	ShuttleCount uint16
	MemorySize   uint32
}

// ObjectRecord is the instance storage descriptor of a port, lock, timer or
// interrupt line. Owner is meaningful for timers; Line and Target for irqs.
type ObjectRecord struct {
	Name   string
	Kind   Kind
	Owner  uint8
	Line   uint8
	Target uint16
}

// Image is a decoded capability image.
type Image struct {
	BuildID  [16]byte
	Flags    uint16
	Quantum  uint32
	Shuttles uint16

	Tasks  []TaskRecord
	Ports  []ObjectRecord
	Locks  []ObjectRecord
	Timers []ObjectRecord
	IRQs   []ObjectRecord

	Table Table
}

// Priorities reports whether priority scheduling is enabled.
func (img *Image) Priorities() bool { return img.Flags&FlagPriorities != 0 }

// Keys returns the per-task table keys indexed by task id.
func (img *Image) Keys() []uint32 {
	keys := make([]uint32, len(img.Tasks))
	for i, t := range img.Tasks {
		keys[i] = t.Key
	}
	return keys
}

// TaskByName returns the id of the named task.
func (img *Image) TaskByName(name string) (uint8, bool) {
	for i, t := range img.Tasks {
		if t.Name == name {
			return uint8(i), true
		}
	}
	return 0, false
}

// Encode serializes the image.
func (img *Image) Encode() ([]byte, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	var body []byte
	for _, t := range img.Tasks {
		body = appendName(body, t.Name)
		body = binary.LittleEndian.AppendUint32(body, t.Key)
		body = append(body, t.Priority, t.Domain)
		body = binary.LittleEndian.AppendUint16(body, t.ShuttleBase)
		body = binary.LittleEndian.AppendUint16(body, t.ShuttleCount)
		body = binary.LittleEndian.AppendUint16(body, 0)
		body = binary.LittleEndian.AppendUint32(body, t.MemorySize)
	}
	for _, list := range [][]ObjectRecord{img.Ports, img.Locks, img.Timers, img.IRQs} {
		for _, o := range list {
			body = append(body, byte(o.Kind), o.Owner, o.Line, 0)
			body = binary.LittleEndian.AppendUint16(body, o.Target)
			body = binary.LittleEndian.AppendUint16(body, 0)
			body = appendName(body, o.Name)
		}
	}
	for _, e := range img.Table.Shuttles {
		body = append(body, e.Owner, 0)
		body = binary.LittleEndian.AppendUint16(body, e.Handle)
		body = binary.LittleEndian.AppendUint16(body, e.Index)
		body = binary.LittleEndian.AppendUint16(body, 0)
	}
	for _, e := range img.Table.Objects {
		body = append(body, e.Owner, byte(e.Kind))
		body = binary.LittleEndian.AppendUint16(body, e.Handle)
		body = binary.LittleEndian.AppendUint16(body, e.Index)
		body = append(body, byte(e.Grant), 0)
	}

	hdr := make([]byte, 0, HeaderSize+len(body))
	hdr = append(hdr, imageMagic[:]...)
	hdr = binary.LittleEndian.AppendUint16(hdr, imageVersion)
	hdr = binary.LittleEndian.AppendUint16(hdr, img.Flags)
	hdr = append(hdr, img.BuildID[:]...)
	hdr = binary.LittleEndian.AppendUint32(hdr, img.Quantum)
	for _, n := range []int{
		len(img.Tasks), int(img.Shuttles),
		len(img.Ports), len(img.Locks), len(img.Timers), len(img.IRQs),
		len(img.Table.Shuttles), len(img.Table.Objects),
		MaxDisplacement, 0,
	} {
		hdr = binary.LittleEndian.AppendUint16(hdr, uint16(n))
	}
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(len(body)))
	hdr = binary.LittleEndian.AppendUint32(hdr, crc32.ChecksumIEEE(body))
	return append(hdr, body...), nil
}

// EncodedSize returns the total image length announced by a header.
func EncodedSize(hdr []byte) (int, error) {
	if len(hdr) < HeaderSize {
		return 0, ErrTruncated
	}
	if !bytes.Equal(hdr[0:4], imageMagic[:]) {
		return 0, ErrBadMagic
	}
	return HeaderSize + int(binary.LittleEndian.Uint32(hdr[48:52])), nil
}

// Decode parses and validates an encoded image.
func Decode(b []byte) (*Image, error) {
	total, err := EncodedSize(b)
	if err != nil {
		return nil, err
	}
	if v := binary.LittleEndian.Uint16(b[4:6]); v != imageVersion {
		return nil, errors.Wrapf(ErrBadVersion, "version %d", v)
	}
	if len(b) < total {
		return nil, errors.Wrapf(ErrTruncated, "have %d bytes, header announces %d", len(b), total)
	}
	body := b[HeaderSize:total]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(b[52:56]) {
		return nil, ErrBadChecksum
	}

	img := &Image{
		Flags:   binary.LittleEndian.Uint16(b[6:8]),
		Quantum: binary.LittleEndian.Uint32(b[24:28]),
	}
	copy(img.BuildID[:], b[8:24])

	count := func(i int) int { return int(binary.LittleEndian.Uint16(b[28+2*i:])) }
	nTasks := count(0)
	img.Shuttles = uint16(count(1))
	nPorts, nLocks, nTimers, nIRQs := count(2), count(3), count(4), count(5)
	nShuttleSlots, nObjectSlots := count(6), count(7)
	if d := count(8); d != MaxDisplacement {
		return nil, errors.Wrapf(ErrBadImage, "built for displacement bound %d, kernel enforces %d", d, MaxDisplacement)
	}

	want := nTasks*TaskRecordSize +
		(nPorts+nLocks+nTimers+nIRQs)*ObjectRecordSize +
		(nShuttleSlots+nObjectSlots)*EntrySize
	if len(body) != want {
		return nil, errors.Wrapf(ErrBadImage, "body is %d bytes, counts require %d", len(body), want)
	}

	r := body
	img.Tasks = make([]TaskRecord, nTasks)
	for i := range img.Tasks {
		img.Tasks[i] = TaskRecord{
			Name:         readName(r[0:NameBytes]),
			Key:          binary.LittleEndian.Uint32(r[16:20]),
			Priority:     r[20],
			Domain:       r[21],
			ShuttleBase:  binary.LittleEndian.Uint16(r[22:24]),
			ShuttleCount: binary.LittleEndian.Uint16(r[24:26]),
			MemorySize:   binary.LittleEndian.Uint32(r[28:32]),
		}
		r = r[TaskRecordSize:]
	}
	readObjects := func(n int) []ObjectRecord {
		out := make([]ObjectRecord, n)
		for i := range out {
			out[i] = ObjectRecord{
				Kind:   Kind(r[0]),
				Owner:  r[1],
				Line:   r[2],
				Target: binary.LittleEndian.Uint16(r[4:6]),
				Name:   readName(r[8:24]),
			}
			r = r[ObjectRecordSize:]
		}
		return out
	}
	img.Ports = readObjects(nPorts)
	img.Locks = readObjects(nLocks)
	img.Timers = readObjects(nTimers)
	img.IRQs = readObjects(nIRQs)

	img.Table.Shuttles = make([]ShuttleEntry, nShuttleSlots)
	for i := range img.Table.Shuttles {
		img.Table.Shuttles[i] = ShuttleEntry{
			Owner:  r[0],
			Handle: binary.LittleEndian.Uint16(r[2:4]),
			Index:  binary.LittleEndian.Uint16(r[4:6]),
		}
		r = r[EntrySize:]
	}
	img.Table.Objects = make([]ObjectEntry, nObjectSlots)
	for i := range img.Table.Objects {
		img.Table.Objects[i] = ObjectEntry{
			Owner:  r[0],
			Kind:   Kind(r[1]),
			Handle: binary.LittleEndian.Uint16(r[2:4]),
			Index:  binary.LittleEndian.Uint16(r[4:6]),
			Grant:  Grant(r[6]),
		}
		r = r[EntrySize:]
	}

	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// Validate checks the structural invariants the kernel relies on.
func (img *Image) Validate() error {
	if len(img.Tasks) == 0 || len(img.Tasks) >= int(NoOwner) {
		return errors.Wrapf(ErrBadImage, "task count %d", len(img.Tasks))
	}
	for _, n := range []int{len(img.Table.Shuttles), len(img.Table.Objects)} {
		if n == 0 || n&(n-1) != 0 {
			return errors.Wrapf(ErrBadImage, "table size %d is not a power of two", n)
		}
	}

	next := uint16(0)
	for i, t := range img.Tasks {
		if t.ShuttleBase != next {
			return errors.Wrapf(ErrBadImage, "task %d: shuttle range starts at %d, want %d", i, t.ShuttleBase, next)
		}
		next += t.ShuttleCount
	}
	if next != img.Shuttles {
		return errors.Wrapf(ErrBadImage, "shuttle pool is %d, tasks claim %d", img.Shuttles, next)
	}

	for i, o := range img.Timers {
		if int(o.Owner) >= len(img.Tasks) {
			return errors.Wrapf(ErrBadImage, "timer %d: owner %d out of range", i, o.Owner)
		}
	}
	for i, o := range img.IRQs {
		if int(o.Target) >= len(img.Ports) {
			return errors.Wrapf(ErrBadImage, "irq %d: port %d out of range", i, o.Target)
		}
	}

	for _, e := range img.Table.Shuttles {
		if e.Owner == NoOwner {
			continue
		}
		if int(e.Owner) >= len(img.Tasks) {
			return errors.Wrapf(ErrBadImage, "shuttle entry owner %d out of range", e.Owner)
		}
		t := img.Tasks[e.Owner]
		if e.Index < t.ShuttleBase || e.Index >= t.ShuttleBase+t.ShuttleCount {
			return errors.Wrapf(ErrBadImage, "shuttle %d not owned by task %d", e.Index, e.Owner)
		}
	}
	for _, e := range img.Table.Objects {
		if e.Owner == NoOwner {
			continue
		}
		if int(e.Owner) >= len(img.Tasks) {
			return errors.Wrapf(ErrBadImage, "object entry owner %d out of range", e.Owner)
		}
		var n int
		switch e.Kind {
		case KindPort:
			n = len(img.Ports)
		case KindLock:
			n = len(img.Locks)
		case KindTimer:
			n = len(img.Timers)
		default:
			return errors.Wrapf(ErrBadImage, "object entry kind %s", e.Kind)
		}
		if int(e.Index) >= n {
			return errors.Wrapf(ErrBadImage, "%s %d out of range", e.Kind, e.Index)
		}
	}

	if d := img.Table.MaxProbe(img.Keys()); d >= MaxDisplacement {
		return errors.Wrapf(ErrBadImage, "probe displacement %d exceeds bound %d", d, MaxDisplacement-1)
	}
	return nil
}

func appendName(b []byte, name string) []byte {
	var buf [NameBytes]byte
	copy(buf[:], name)
	return append(b, buf[:]...)
}

func readName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
