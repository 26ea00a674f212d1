package kernel

import "fmt"

// TrapKind classifies an entry into the kernel.
type TrapKind uint8

const (
	// TrapSyscall is an explicit system call by the current task; the
	// number is in A7 and the arguments in A0..A6.
	TrapSyscall TrapKind = iota
	// TrapInterrupt covers the compare timer and external lines.
	TrapInterrupt
	// TrapFault is an exception raised by the current task.
	TrapFault
)

func (k TrapKind) String() string {
	switch k {
	case TrapSyscall:
		return "syscall"
	case TrapInterrupt:
		return "interrupt"
	case TrapFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Trap is one kernel entry.
type Trap struct {
	Kind  TrapKind
	Cause string
}

// Trap dispatches tr on behalf of the current task and returns with the
// next task to run selected.
func (k *Kernel) Trap(tr Trap) {
	if k.halted {
		return
	}

	switch tr.Kind {
	case TrapSyscall:
		if k.current == NoTask {
			break
		}
		t := &k.tasks[k.current]
		k.caller = t.ID
		k.syscall(t)
		k.caller = NoTask
	case TrapInterrupt:
		k.drainInterrupts()
	case TrapFault:
		if k.current != NoTask {
			k.fault(&k.tasks[k.current], tr.Cause)
		}
	}

	if k.halted {
		return
	}
	k.schedExit()
}

// execute runs one step of the current task's program. A step that issued
// no system call is treated as a yield.
func (k *Kernel) execute(t *Task) (tr Trap) {
	c := &t.ctx
	c.issued, c.extra = false, false

	defer func() {
		if r := recover(); r != nil {
			tr = Trap{Kind: TrapFault, Cause: fmt.Sprint("panic: ", r)}
		}
	}()

	k.hw.CPU.Cycle()
	t.program.Step(c)

	switch {
	case c.extra:
		return Trap{Kind: TrapFault, Cause: "second system call in one step"}
	case !c.issued:
		t.Frame.Regs[RegA7] = SysYield
	}
	return Trap{Kind: TrapSyscall}
}

// fault parks t after an exception. Inside a critical section with
// TrapFatal the whole system halts instead.
func (k *Kernel) fault(t *Task, cause string) {
	t.faults++
	k.log.Warn("task fault", "task", t.Name, "cause", cause, "faults", t.faults)
	k.trapped(t, cause)
}

// trapped applies the critical-section trap behavior and parks t.
func (k *Kernel) trapped(t *Task, cause string) {
	if k.inCritical(t) {
		if k.critical.behavior == TrapFatal {
			k.halt(t.ID, "trap in critical section: "+cause)
			return
		}
		k.critical = criticalSection{}
	}
	k.park(t)
}

// park moves t to WaitTrapped: its locks are released, its shuttles reset
// and a replay is scheduled.
func (k *Kernel) park(t *Task) {
	k.releaseHeld(t)
	k.resetTaskShuttles(t)
	k.readyRemove(t.ID)
	t.State = TaskWaitTrapped
	t.waitOn = waitNone
	if k.factories[t.Name] == nil {
		return
	}
	k.timerEnqueue(k.taskRef(t.ID), k.hw.Timer.Now()+uint64(k.replayDelay))
}

// replay re-enters a trapped task with a fresh program and clean state.
func (k *Kernel) replay(t *Task) {
	t.replays++
	k.resetTaskShuttles(t)
	t.Frame = Frame{}
	t.program = k.factories[t.Name]()
	t.ctx = Context{k: k, t: t}
	k.log.Info("task replay", "task", t.Name, "replays", t.replays)
	k.run(t)
}

func (k *Kernel) resetTaskShuttles(t *Task) {
	for i := uint16(0); i < t.shuttleCount; i++ {
		k.resetShuttle(int32(t.shuttleBase + i))
	}
}

// halt stops the system after an unrecoverable condition. The panic
// handler runs once.
func (k *Kernel) halt(task TaskID, reason string) {
	if k.halted {
		return
	}
	k.halted = true
	k.hw.Timer.Disarm()
	name := ""
	if task != NoTask && int(task) < len(k.tasks) {
		name = k.tasks[task].Name
	}
	k.haltReason = reason
	k.log.Error("kernel halt", "task", name, "reason", reason)
	triggerPanic(PanicInfo{TaskID: task, TaskName: name, Reason: reason})
}
