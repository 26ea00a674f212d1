package manifest

import (
	"sort"

	"github.com/pkg/errors"

	"ferry/kernel/captab"
)

// Capability is one (task, handle) → object grant after handle assignment.
type Capability struct {
	Task   uint8
	Handle uint16
	Kind   captab.Kind
	Index  uint16
	Grant  captab.Grant
	Object string
}

// Capabilities assigns task-local handles to every grant. Fixed handles are
// honoured first; the rest take the lowest free handle of their task in
// declaration order (ports, then locks, then timers). The result is sorted
// by task then handle.
func (m *Manifest) Capabilities() ([]Capability, error) {
	var caps []Capability
	var pending []int
	used := make([]map[uint16]string, len(m.Tasks))
	for i := range used {
		used[i] = make(map[uint16]string)
	}

	add := func(task string, handle *uint16, kind captab.Kind, index int, grant captab.Grant, object string) error {
		id, ok := m.TaskID(task)
		if !ok {
			return errors.Wrapf(ErrInvalid, "%s %q: unknown task %q", kind, object, task)
		}
		c := Capability{Task: id, Kind: kind, Index: uint16(index), Grant: grant, Object: object}
		if handle != nil {
			if prev, dup := used[id][*handle]; dup {
				return errors.Wrapf(ErrInvalid, "task %q: handle %d used by %q and %q", task, *handle, prev, object)
			}
			used[id][*handle] = object
			c.Handle = *handle
		} else {
			pending = append(pending, len(caps))
		}
		caps = append(caps, c)
		return nil
	}

	for i, p := range m.Ports {
		for _, g := range p.Grants {
			grant, err := portGrant(g.Access)
			if err != nil {
				return nil, errors.Wrapf(err, "port %q", p.Name)
			}
			if err := add(g.Task, g.Handle, captab.KindPort, i, grant, p.Name); err != nil {
				return nil, err
			}
		}
	}
	for i, l := range m.Locks {
		for _, g := range l.Grants {
			if err := add(g.Task, g.Handle, captab.KindLock, i, captab.GrantLock, l.Name); err != nil {
				return nil, err
			}
		}
	}
	for i, t := range m.Timers {
		if err := add(t.Owner, t.Handle, captab.KindTimer, i, captab.GrantTimer, t.Name); err != nil {
			return nil, err
		}
	}

	next := make([]uint16, len(m.Tasks))
	for _, ci := range pending {
		c := &caps[ci]
		h := next[c.Task]
		for {
			if _, taken := used[c.Task][h]; !taken {
				break
			}
			h++
		}
		if h >= FirstReservedHandle {
			return nil, errors.Wrapf(ErrInvalid, "task %q: out of handles", m.Tasks[c.Task].Name)
		}
		used[c.Task][h] = c.Object
		c.Handle = h
		next[c.Task] = h + 1
	}

	sort.Slice(caps, func(i, j int) bool {
		if caps[i].Task != caps[j].Task {
			return caps[i].Task < caps[j].Task
		}
		return caps[i].Handle < caps[j].Handle
	})
	return caps, nil
}

// Handle returns the handle under which task reaches object.
func (m *Manifest) Handle(task, object string) (uint16, bool) {
	id, ok := m.TaskID(task)
	if !ok {
		return 0, false
	}
	caps, err := m.Capabilities()
	if err != nil {
		return 0, false
	}
	for _, c := range caps {
		if c.Task == id && c.Object == object {
			return c.Handle, true
		}
	}
	return 0, false
}
