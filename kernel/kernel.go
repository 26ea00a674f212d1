// Package kernel is the ferry microkernel: a priority scheduler, port and
// shuttle IPC, recursive locks, a deadline-sorted timer queue and the trap
// dispatcher, driven over the hal collaborators.
//
// One Kernel value holds all scheduler state. Kernel operations never
// interleave: every entry goes through Trap and leaves through the
// scheduler exit path.
package kernel

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"ferry/hal"
	"ferry/kernel/captab"
)

// Defaults applied by New.
const (
	DefaultQuantum     = 10
	DefaultReplayDelay = 50
)

var (
	// ErrHalted is returned once a fatal condition stopped the system.
	ErrHalted = errors.New("kernel: halted")
	// ErrIdle means no task is ready and nothing armed can wake the core.
	ErrIdle = errors.New("kernel: idle with no wake source")
	// ErrHardware means a collaborator is missing.
	ErrHardware = errors.New("kernel: incomplete hardware")
)

// Hardware bundles the machine collaborators the kernel drives.
type Hardware struct {
	Timer hal.Timer
	CPU   hal.CPU
	IRQ   hal.IRQ
	MPU   hal.MPU
}

// HardwareOf picks the kernel collaborators out of a HAL.
func HardwareOf(h hal.HAL) Hardware {
	return Hardware{Timer: h.Timer(), CPU: h.CPU(), IRQ: h.IRQ(), MPU: h.MPU()}
}

func (hw Hardware) complete() bool {
	return hw.Timer != nil && hw.CPU != nil && hw.IRQ != nil && hw.MPU != nil
}

// Config tunes a kernel. Zero fields take defaults; a non-zero image
// quantum and the image priority flag take precedence.
type Config struct {
	// Quantum is the timeslice in ticks.
	Quantum uint32
	// Priorities enables priority-ordered scheduling.
	Priorities bool
	// ReplayDelay is how long a trapped task stays parked.
	ReplayDelay uint32
	Logger      hclog.Logger
}

// Kernel is the scheduler state of one machine.
type Kernel struct {
	img  *captab.Image
	caps *captab.Table
	hw   Hardware
	log  hclog.Logger

	tasks    []Task
	shuttles []Shuttle
	ports    []Port
	locks    []Lock
	timers   []Timer
	irqs     []IRQLine
	lines    [MaxIRQLines]int

	factories ProgramSet

	ready      taskQueue
	timerq     timerQueue
	priorities bool

	current TaskID
	caller  TaskID

	preempt        bool
	quantumExpired bool
	quantum        uint32
	quantumEnd     uint64
	replayDelay    uint32

	critical criticalSection

	halted     bool
	haltReason string
	stalled    bool

	domain       uint8
	domainLoaded bool
	switches     uint64
}

// New instantiates the objects described by img. Tasks with a program in
// programs start ready in id order; the others stay parked.
func New(img *captab.Image, hw Hardware, programs ProgramSet, cfg Config) (*Kernel, error) {
	if img == nil {
		return nil, errors.Wrap(captab.ErrBadImage, "nil image")
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if !hw.complete() {
		return nil, ErrHardware
	}

	if cfg.Quantum == 0 {
		cfg.Quantum = DefaultQuantum
	}
	if img.Quantum != 0 {
		cfg.Quantum = img.Quantum
	}
	if cfg.ReplayDelay == 0 {
		cfg.ReplayDelay = DefaultReplayDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	k := &Kernel{
		img:         img,
		caps:        &img.Table,
		hw:          hw,
		log:         cfg.Logger.Named("kernel"),
		factories:   programs,
		ready:       newTaskQueue(),
		timerq:      newTimerQueue(),
		priorities:  cfg.Priorities || img.Priorities(),
		current:     NoTask,
		caller:      NoTask,
		quantum:     cfg.Quantum,
		replayDelay: cfg.ReplayDelay,
	}
	if k.factories == nil {
		k.factories = ProgramSet{}
	}

	for _, p := range img.Ports {
		k.ports = append(k.ports, newPort(p.Name))
	}
	for i, l := range img.Locks {
		p := newPort("lock:" + l.Name)
		p.lock = i
		k.ports = append(k.ports, p)
	}

	k.tasks = make([]Task, len(img.Tasks))
	for i, rec := range img.Tasks {
		t := &k.tasks[i]
		*t = Task{
			ID:           TaskID(i),
			Name:         rec.Name,
			Priority:     rec.Priority,
			Domain:       rec.Domain,
			Key:          rec.Key,
			memory:       make([]byte, rec.MemorySize),
			shuttleBase:  rec.ShuttleBase,
			shuttleCount: rec.ShuttleCount,
			reply:        len(k.ports),
			waitOn:       waitNone,
			completed:    newShuttleQueue(),
			timer:        newTimerNode(),
			readyNext:    NoTask,
			readyPrev:    NoTask,
		}
		p := newPort(rec.Name + ".reply")
		p.owner = t.ID
		k.ports = append(k.ports, p)
		for h := uint16(0); h < rec.ShuttleCount; h++ {
			k.shuttles = append(k.shuttles, newShuttle(t.ID, Handle(h)))
		}
	}

	for i, l := range img.Locks {
		id := k.kernelShuttle()
		k.locks = append(k.locks, Lock{Name: l.Name, port: len(img.Ports) + i, holder: NoTask, unlock: id})
		k.shuttles[id].State = ShuttleSend
		k.shuttles[id].lockOp = true
		k.pushShuttle(location{kind: locSenders, idx: len(img.Ports) + i}, id)
	}

	for _, tm := range img.Timers {
		k.timers = append(k.timers, Timer{Name: tm.Name, Owner: TaskID(tm.Owner), node: newTimerNode(), shuttle: -1})
	}

	for i := range k.lines {
		k.lines[i] = -1
	}
	for _, q := range img.IRQs {
		if q.Line >= MaxIRQLines {
			return nil, errors.Wrapf(captab.ErrBadImage, "irq line %d", q.Line)
		}
		if k.lines[q.Line] >= 0 {
			return nil, errors.Wrapf(captab.ErrBadImage, "irq line %d routed twice", q.Line)
		}
		k.lines[q.Line] = len(k.irqs)
		k.irqs = append(k.irqs, IRQLine{Line: q.Line, Port: int(q.Target), shuttle: k.kernelShuttle()})
	}

	for i := range k.tasks {
		t := &k.tasks[i]
		f := k.factories[t.Name]
		if f == nil {
			t.State = TaskWait
			k.log.Debug("task has no program", "task", t.Name)
			continue
		}
		t.program = f()
		t.ctx = Context{k: k, t: t}
		k.readyInsert(t.ID)
	}

	k.log.Debug("kernel ready",
		"tasks", len(k.tasks),
		"shuttles", len(k.shuttles),
		"ports", len(k.ports),
		"locks", len(k.locks),
		"timers", len(k.timers),
		"irqs", len(k.irqs),
		"quantum", k.quantum,
		"priorities", k.priorities)
	return k, nil
}

func (k *Kernel) kernelShuttle() int32 {
	k.shuttles = append(k.shuttles, newShuttle(NoTask, NoHandle))
	return int32(len(k.shuttles) - 1)
}

// Step runs one round: pending interrupts are dispatched first, otherwise
// the current task executes until it traps.
func (k *Kernel) Step() error {
	if k.halted {
		return ErrHalted
	}
	switch {
	case k.interruptPending():
		k.Trap(Trap{Kind: TrapInterrupt})
	case k.current == NoTask:
		k.schedExit()
	default:
		k.Trap(k.execute(&k.tasks[k.current]))
	}

	switch {
	case k.halted:
		return ErrHalted
	case k.stalled:
		return ErrIdle
	}
	return nil
}

// Run steps the machine until it halts, stalls or ctx is done.
func (k *Kernel) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := k.Step(); err != nil {
			return err
		}
	}
}

// RunFor steps the machine until the tick counter reaches deadline. An idle
// stall is not an error here.
func (k *Kernel) RunFor(ticks uint64) error {
	end := k.hw.Timer.Now() + ticks
	for k.hw.Timer.Now() < end {
		if err := k.Step(); err != nil {
			if errors.Is(err, ErrIdle) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (k *Kernel) lookup(owner TaskID, kind captab.Kind, name string) Handle {
	var names []captab.ObjectRecord
	switch kind {
	case captab.KindPort:
		names = k.img.Ports
	case captab.KindLock:
		names = k.img.Locks
	case captab.KindTimer:
		names = k.img.Timers
	}
	for _, e := range k.caps.Objects {
		if e.Owner != uint8(owner) || e.Kind != kind || int(e.Index) >= len(names) {
			continue
		}
		if names[e.Index].Name == name {
			return Handle(e.Handle)
		}
	}
	return NoHandle
}

// Task returns the task record for id.
func (k *Kernel) Task(id TaskID) *Task {
	if int(id) >= len(k.tasks) {
		return nil
	}
	return &k.tasks[id]
}

// TaskByName returns the named task.
func (k *Kernel) TaskByName(name string) *Task {
	for i := range k.tasks {
		if k.tasks[i].Name == name {
			return &k.tasks[i]
		}
	}
	return nil
}

// Tasks returns the number of tasks.
func (k *Kernel) Tasks() int { return len(k.tasks) }

// Current returns the running task, or NoTask.
func (k *Kernel) Current() TaskID { return k.current }

// Shuttle resolves a task's shuttle handle through the capability table.
func (k *Kernel) Shuttle(id TaskID, h Handle) (*Shuttle, bool) {
	t := k.Task(id)
	if t == nil {
		return nil, false
	}
	idx, ok := k.ownShuttle(t, h)
	if !ok {
		return nil, false
	}
	return &k.shuttles[idx], true
}

// Lock returns lock i.
func (k *Kernel) Lock(i int) *Lock { return &k.locks[i] }

// LockByName returns the named lock.
func (k *Kernel) LockByName(name string) *Lock {
	for i := range k.locks {
		if k.locks[i].Name == name {
			return &k.locks[i]
		}
	}
	return nil
}

// Port returns port i. Manifest ports come first, then lock ports, then
// the per-task reply ports.
func (k *Kernel) Port(i int) *Port { return &k.ports[i] }

// PortByName returns the named port.
func (k *Kernel) PortByName(name string) *Port {
	for i := range k.ports {
		if k.ports[i].Name == name {
			return &k.ports[i]
		}
	}
	return nil
}

// Ports returns the number of ports.
func (k *Kernel) Ports() int { return len(k.ports) }

// Timer returns timer object i.
func (k *Kernel) Timer(i int) *Timer { return &k.timers[i] }

// IRQ returns the routing of an interrupt line.
func (k *Kernel) IRQ(line uint8) (*IRQLine, bool) {
	if line >= MaxIRQLines || k.lines[line] < 0 {
		return nil, false
	}
	return &k.irqs[k.lines[line]], true
}

// Now returns the tick counter.
func (k *Kernel) Now() uint64 { return k.hw.Timer.Now() }

// Halted reports whether the system stopped, and why.
func (k *Kernel) Halted() (bool, string) { return k.halted, k.haltReason }

// Switches counts context switches.
func (k *Kernel) Switches() uint64 { return k.switches }

// InCritical reports whether a critical section is open.
func (k *Kernel) InCritical() bool { return k.critical.active }

// TaskInfo is one row of Snapshot.
type TaskInfo struct {
	ID       TaskID
	Name     string
	State    TaskState
	Priority uint8
	Pending  int
	Faults   uint32
	Replays  uint32
	Current  bool
}

// Snapshot returns the task table.
func (k *Kernel) Snapshot() []TaskInfo {
	out := make([]TaskInfo, len(k.tasks))
	for i := range k.tasks {
		t := &k.tasks[i]
		out[i] = TaskInfo{
			ID:       t.ID,
			Name:     t.Name,
			State:    t.State,
			Priority: t.Priority,
			Pending:  t.completed.n,
			Faults:   t.faults,
			Replays:  t.replays,
			Current:  t.ID == k.current,
		}
	}
	return out
}
