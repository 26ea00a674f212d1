// Package builder computes capability images offline: it lays out the
// shuttle pool and object storage from a manifest, then searches per-task
// table keys until every capability sits within captab.MaxDisplacement of
// its home slot.
package builder

import (
	"encoding/binary"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"ferry/kernel/captab"
	"ferry/manifest"
)

// DefaultAttempts is the key search budget used when Options.Attempts is zero.
const DefaultAttempts = 4096

// ErrDisplacement means no key assignment within the retry budget satisfied
// the displacement bound. The manifest must change; the kernel cannot boot
// a table it cannot probe in bounded time.
var ErrDisplacement = errors.New("builder: displacement bound not met")

// Options controls a build.
type Options struct {
	// Seed feeds the key stream. Equal seeds and manifests give equal images.
	Seed []byte
	// Attempts is the retry budget for the key search.
	Attempts int
	// BuildID is stamped into the image header.
	BuildID [16]byte
	Logger  hclog.Logger
}

// Result carries the image and search statistics.
type Result struct {
	Image    *captab.Image
	Attempts int
	MaxProbe int
}

type rec struct {
	owner  uint8
	handle uint16
	ref    int
	used   bool
}

// Build produces a capability image for m.
func Build(m *manifest.Manifest, opts Options) (*Result, error) {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	log := opts.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	m.ApplyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}

	img := &captab.Image{
		BuildID: opts.BuildID,
		Quantum: m.Quantum,
	}
	if m.Priorities {
		img.Flags |= captab.FlagPriorities
	}

	var shuttles []captab.ShuttleEntry
	base := uint16(0)
	for i, t := range m.Tasks {
		img.Tasks = append(img.Tasks, captab.TaskRecord{
			Name:         t.Name,
			Priority:     t.Priority,
			Domain:       t.Domain,
			ShuttleBase:  base,
			ShuttleCount: uint16(t.Shuttles),
			MemorySize:   t.Memory,
		})
		for h := 0; h < t.Shuttles; h++ {
			shuttles = append(shuttles, captab.ShuttleEntry{
				Owner:  uint8(i),
				Handle: uint16(h),
				Index:  base + uint16(h),
			})
		}
		base += uint16(t.Shuttles)
	}
	img.Shuttles = base

	for _, p := range m.Ports {
		img.Ports = append(img.Ports, captab.ObjectRecord{Name: p.Name, Kind: captab.KindPort})
	}
	for _, l := range m.Locks {
		img.Locks = append(img.Locks, captab.ObjectRecord{Name: l.Name, Kind: captab.KindLock})
	}
	for _, t := range m.Timers {
		owner, _ := m.TaskID(t.Owner)
		img.Timers = append(img.Timers, captab.ObjectRecord{Name: t.Name, Kind: captab.KindTimer, Owner: owner})
	}
	for _, q := range m.IRQs {
		port := 0
		for i, p := range m.Ports {
			if p.Name == q.Port {
				port = i
			}
		}
		img.IRQs = append(img.IRQs, captab.ObjectRecord{
			Name:   q.Port,
			Kind:   captab.KindIRQ,
			Line:   q.Line,
			Target: uint16(port),
		})
	}

	caps, err := m.Capabilities()
	if err != nil {
		return nil, err
	}

	shuttleRecs := make([]rec, len(shuttles))
	for i, e := range shuttles {
		shuttleRecs[i] = rec{owner: e.Owner, handle: e.Handle, ref: i}
	}
	objectRecs := make([]rec, len(caps))
	for i, c := range caps {
		objectRecs[i] = rec{owner: c.Task, handle: c.Handle, ref: i}
	}
	shuttleSize := captab.TableSize(len(shuttleRecs))
	objectSize := captab.TableSize(len(objectRecs))

	keys := make([]uint32, len(m.Tasks))
	for attempt := 0; attempt < opts.Attempts; attempt++ {
		for i := range keys {
			keys[i] = salt(opts.Seed, attempt, uint8(i))
		}
		sSlots, sWorst := place(shuttleRecs, shuttleSize, keys)
		oSlots, oWorst := place(objectRecs, objectSize, keys)
		worst := max(sWorst, oWorst)
		if worst >= captab.MaxDisplacement {
			log.Trace("key search miss", "attempt", attempt, "displacement", worst)
			continue
		}

		for i := range img.Tasks {
			img.Tasks[i].Key = keys[i]
		}
		img.Table = captab.NewTable(len(shuttleRecs), len(objectRecs))
		for i, s := range sSlots {
			if s.used {
				img.Table.Shuttles[i] = shuttles[s.ref]
			}
		}
		for i, s := range oSlots {
			if !s.used {
				continue
			}
			c := caps[s.ref]
			img.Table.Objects[i] = captab.ObjectEntry{
				Owner:  c.Task,
				Kind:   c.Kind,
				Handle: c.Handle,
				Index:  c.Index,
				Grant:  c.Grant,
			}
		}
		log.Debug("capability tables placed",
			"attempt", attempt,
			"displacement", worst,
			"shuttle_slots", shuttleSize,
			"object_slots", objectSize)
		return &Result{Image: img, Attempts: attempt + 1, MaxProbe: worst}, nil
	}

	return nil, errors.Wrapf(ErrDisplacement, "%d attempts, bound %d", opts.Attempts, captab.MaxDisplacement)
}

// place inserts recs into a table of size slots with robin-hood probing and
// returns the slots and the worst displacement.
func place(recs []rec, size int, keys []uint32) ([]rec, int) {
	slots := make([]rec, size)
	for _, r := range recs {
		cur := r
		cur.used = true
		d := 0
		for {
			i := captab.Slot(cur.handle, keys[cur.owner], size, d)
			s := &slots[i]
			if !s.used {
				*s = cur
				break
			}
			if sd := captab.Displacement(s.handle, keys[s.owner], size, i); sd < d {
				*s, cur = cur, *s
				d = sd
			}
			d++
		}
	}

	worst := 0
	for i, s := range slots {
		if !s.used {
			continue
		}
		if d := captab.Displacement(s.handle, keys[s.owner], size, i); d > worst {
			worst = d
		}
	}
	return slots, worst
}

func salt(seed []byte, attempt int, task uint8) uint32 {
	buf := make([]byte, 0, len(seed)+5)
	buf = append(buf, seed...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(attempt))
	buf = append(buf, task)
	sum := blake2b.Sum256(buf)
	return binary.LittleEndian.Uint32(sum[:4])
}
