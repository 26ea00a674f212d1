package kernel

// TrapBehavior selects what a trap inside a critical section does.
type TrapBehavior uint32

const (
	// TrapFatal halts the system when the section owner traps.
	TrapFatal TrapBehavior = iota
	// TrapRelease drops the section and handles the trap normally.
	TrapRelease
)

type criticalSection struct {
	active   bool
	task     TaskID
	depth    int
	behavior TrapBehavior
}

// run makes a waiting task runnable. It cancels a pending timeout and
// clears the wait state; with no current task it becomes current directly,
// otherwise it joins the ready queue and may request preemption.
func (k *Kernel) run(t *Task) {
	k.timerCancel(k.taskRef(t.ID))
	t.State = TaskReady
	t.waitOn = waitNone

	switch {
	case k.current == t.ID:
	case k.current == NoTask:
		k.current = t.ID
	default:
		k.readyInsert(t.ID)
		if k.priorities && t.Priority > k.tasks[k.current].Priority {
			k.preempt = true
		}
	}
}

// wait moves the current task into a wait state, with a deadline when
// timeout is non-zero.
func (k *Kernel) wait(t *Task, target int32, timeout uint32) {
	if t.State != TaskReady {
		k.halt(t.ID, "wait from non-ready task")
		return
	}
	t.waitOn = target
	if timeout == 0 {
		t.State = TaskWait
		return
	}
	t.State = TaskWaitWithTimeout
	k.timerEnqueue(k.taskRef(t.ID), k.hw.Timer.Now()+uint64(timeout))
}

// inCritical reports whether t owns the active critical section.
func (k *Kernel) inCritical(t *Task) bool {
	return k.critical.active && k.critical.task == t.ID
}

func (k *Kernel) enterCritical(t *Task, b TrapBehavior) Status {
	if b != TrapFatal && b != TrapRelease {
		return StatusArgument
	}
	if k.critical.active {
		if k.critical.task != t.ID {
			return StatusAccess
		}
		k.critical.depth++
		return StatusOK
	}
	k.critical = criticalSection{active: true, task: t.ID, depth: 1, behavior: b}
	k.log.Trace("critical-enter", "task", t.ID, "behavior", b)
	return StatusOK
}

func (k *Kernel) leaveCritical(t *Task) Status {
	if !k.inCritical(t) {
		return StatusAccess
	}
	k.critical.depth--
	if k.critical.depth == 0 {
		k.critical = criticalSection{}
		k.log.Trace("critical-leave", "task", t.ID)
	}
	return StatusOK
}

// yield requeues the current task behind every ready task of the same or
// higher priority.
func (k *Kernel) yield(t *Task) {
	if k.critical.active || k.current != t.ID {
		return
	}
	head := k.ready.head
	if head == NoTask {
		return
	}
	if k.priorities && k.tasks[head].Priority < t.Priority {
		return
	}
	k.readyInsert(t.ID)
	k.current = NoTask
}

// schedExit runs at the end of every trap. It drops a blocked current task,
// honours a deferred preemption request outside critical sections, idles
// until some task is ready, and on a switch reprograms the quantum and the
// memory protection.
func (k *Kernel) schedExit() {
	prev := k.current
	if prev != NoTask && k.tasks[prev].Waiting() {
		k.current = NoTask
	}
	dropped := k.current != prev

	if k.current != NoTask && k.preempt && !k.critical.active {
		cur := &k.tasks[k.current]
		if head := k.ready.head; head != NoTask {
			hp := k.tasks[head].Priority
			switch {
			case !k.priorities && k.quantumExpired:
				k.readyInsert(cur.ID)
				k.current = NoTask
				dropped = true
			case k.priorities && (hp > cur.Priority || (k.quantumExpired && hp == cur.Priority)):
				k.readyInsert(cur.ID)
				k.current = NoTask
				dropped = true
			}
		}
	}
	if !k.critical.active {
		k.preempt = false
		k.quantumExpired = false
	}

	for k.current == NoTask {
		k.preempt = false
		if id := k.readyPop(); id != NoTask {
			k.current = id
			break
		}
		if k.halted {
			return
		}
		k.armInterrupt()
		if !k.hw.CPU.WaitForInterrupt() {
			k.stalled = true
			return
		}
		k.drainInterrupts()
		if k.current != NoTask && k.ready.head != NoTask {
			// Several tasks woke in one drain: pick by queue order.
			k.readyInsert(k.current)
			k.current = NoTask
		}
	}
	k.stalled = false

	next := &k.tasks[k.current]
	if dropped || k.current != prev {
		k.quantumEnd = k.hw.Timer.Now() + uint64(k.quantum)
		if !k.domainLoaded || next.Domain != k.domain {
			k.hw.MPU.Load(next.Domain)
			k.domain = next.Domain
			k.domainLoaded = true
		}
		k.switches++
		k.log.Trace("sched-switch", "from", prev, "to", next.ID, "name", next.Name)
	}
	k.armInterrupt()
}
