// Package manifest describes the build-time system image: tasks, ports,
// locks, timers, interrupt lines and the cross-task grants between them.
package manifest

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"

	"ferry/kernel/captab"
)

// Reserved handle values. Handles at or above FirstReservedHandle are never
// assigned by the builder.
const (
	FirstReservedHandle uint16 = 0xFFF0
)

const (
	maxTasks        = 64
	maxShuttles     = 0xFFF0
	defaultMemory   = 4096
	defaultShuttles = 4
)

var (
	ErrInvalid = errors.New("manifest: invalid")
)

// Manifest is the offline declaration of a system.
type Manifest struct {
	Quantum    uint32  `json:"quantum"`
	Priorities bool    `json:"priorities"`
	Tasks      []Task  `json:"tasks"`
	Ports      []Port  `json:"ports"`
	Locks      []Lock  `json:"locks"`
	Timers     []Timer `json:"timers"`
	IRQs       []IRQ   `json:"irqs"`
}

// Task declares one task.
type Task struct {
	Name     string `json:"name"`
	Priority uint8  `json:"priority"`
	Domain   uint8  `json:"domain"`
	Shuttles int    `json:"shuttles"`
	Memory   uint32 `json:"memory"`
}

// Grant gives a task access to an object under an optional fixed handle.
type Grant struct {
	Task   string   `json:"task"`
	Access []string `json:"access"`
	Handle *uint16  `json:"handle,omitempty"`
}

// Port declares an IPC port and who may send to / receive from it.
type Port struct {
	Name   string  `json:"name"`
	Grants []Grant `json:"grants"`
}

// Lock declares a recursive lock and the tasks allowed to take it.
type Lock struct {
	Name   string  `json:"name"`
	Grants []Grant `json:"grants"`
}

// Timer declares a timer object owned by exactly one task.
type Timer struct {
	Name   string  `json:"name"`
	Owner  string  `json:"owner"`
	Handle *uint16 `json:"handle,omitempty"`
}

// IRQ routes an external interrupt line to a port.
type IRQ struct {
	Line uint8  `json:"line"`
	Port string `json:"port"`
}

// Load decodes a JSON manifest and validates it.
func Load(r io.Reader) (*Manifest, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Wrap(err, "manifest: decode")
	}
	m.ApplyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadFile reads a manifest from path.
func LoadFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "manifest: open %s", path)
	}
	defer f.Close()
	return Load(f)
}

// ApplyDefaults fills in task memory and shuttle counts left at zero.
func (m *Manifest) ApplyDefaults() {
	for i := range m.Tasks {
		t := &m.Tasks[i]
		if t.Memory == 0 {
			t.Memory = defaultMemory
		}
		if t.Shuttles == 0 {
			t.Shuttles = defaultShuttles
		}
	}
}

// TaskID returns the id assigned to the named task.
func (m *Manifest) TaskID(name string) (uint8, bool) {
	for i, t := range m.Tasks {
		if t.Name == name {
			return uint8(i), true
		}
	}
	return 0, false
}

func (m *Manifest) portIndex(name string) (int, bool) {
	for i, p := range m.Ports {
		if p.Name == name {
			return i, true
		}
	}
	return 0, false
}

// Validate checks names, references and limits.
func (m *Manifest) Validate() error {
	if len(m.Tasks) == 0 {
		return errors.Wrap(ErrInvalid, "no tasks")
	}
	if len(m.Tasks) > maxTasks {
		return errors.Wrapf(ErrInvalid, "%d tasks, limit %d", len(m.Tasks), maxTasks)
	}

	names := make(map[string]string)
	claim := func(kind, name string) error {
		if name == "" {
			return errors.Wrapf(ErrInvalid, "%s with empty name", kind)
		}
		if len(name) > captab.NameBytes {
			return errors.Wrapf(ErrInvalid, "%s %q: name longer than %d bytes", kind, name, captab.NameBytes)
		}
		if prev, ok := names[name]; ok {
			return errors.Wrapf(ErrInvalid, "%s %q: name already used by a %s", kind, name, prev)
		}
		names[name] = kind
		return nil
	}

	shuttles := 0
	for _, t := range m.Tasks {
		if err := claim("task", t.Name); err != nil {
			return err
		}
		if t.Shuttles < 0 {
			return errors.Wrapf(ErrInvalid, "task %q: negative shuttle count", t.Name)
		}
		shuttles += t.Shuttles
	}
	if shuttles > maxShuttles {
		return errors.Wrapf(ErrInvalid, "%d shuttles, limit %d", shuttles, maxShuttles)
	}

	for _, p := range m.Ports {
		if err := claim("port", p.Name); err != nil {
			return err
		}
		if err := m.checkGrants("port", p.Name, p.Grants, true); err != nil {
			return err
		}
	}
	for _, l := range m.Locks {
		if err := claim("lock", l.Name); err != nil {
			return err
		}
		if err := m.checkGrants("lock", l.Name, l.Grants, false); err != nil {
			return err
		}
	}
	for _, t := range m.Timers {
		if err := claim("timer", t.Name); err != nil {
			return err
		}
		if _, ok := m.TaskID(t.Owner); !ok {
			return errors.Wrapf(ErrInvalid, "timer %q: unknown owner %q", t.Name, t.Owner)
		}
		if t.Handle != nil && *t.Handle >= FirstReservedHandle {
			return errors.Wrapf(ErrInvalid, "timer %q: handle %#x is reserved", t.Name, *t.Handle)
		}
	}
	lines := make(map[uint8]bool)
	for _, q := range m.IRQs {
		if lines[q.Line] {
			return errors.Wrapf(ErrInvalid, "irq line %d routed twice", q.Line)
		}
		lines[q.Line] = true
		if _, ok := m.portIndex(q.Port); !ok {
			return errors.Wrapf(ErrInvalid, "irq line %d: unknown port %q", q.Line, q.Port)
		}
	}

	_, err := m.Capabilities()
	return err
}

func (m *Manifest) checkGrants(kind, name string, grants []Grant, port bool) error {
	seen := make(map[string]bool)
	for _, g := range grants {
		if _, ok := m.TaskID(g.Task); !ok {
			return errors.Wrapf(ErrInvalid, "%s %q: grant to unknown task %q", kind, name, g.Task)
		}
		if seen[g.Task] {
			return errors.Wrapf(ErrInvalid, "%s %q: task %q granted twice", kind, name, g.Task)
		}
		seen[g.Task] = true
		if g.Handle != nil && *g.Handle >= FirstReservedHandle {
			return errors.Wrapf(ErrInvalid, "%s %q: handle %#x is reserved", kind, name, *g.Handle)
		}
		if !port {
			continue
		}
		if len(g.Access) == 0 {
			return errors.Wrapf(ErrInvalid, "port %q: grant to %q has no access", name, g.Task)
		}
		if _, err := portGrant(g.Access); err != nil {
			return errors.Wrapf(err, "port %q: grant to %q", name, g.Task)
		}
	}
	return nil
}

func portGrant(access []string) (captab.Grant, error) {
	var g captab.Grant
	for _, a := range access {
		switch a {
		case "send":
			g |= captab.GrantSend
		case "recv":
			g |= captab.GrantRecv
		default:
			return 0, errors.Wrapf(ErrInvalid, "unknown access %q", a)
		}
	}
	return g, nil
}
