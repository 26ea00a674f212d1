package kernel

import "ferry/kernel/captab"

// TaskID identifies a task. Ids are assigned by the image, in manifest order.
type TaskID uint8

// NoTask is the null task id (also the owner of kernel shuttles).
const NoTask = TaskID(captab.NoOwner)

// Handle is a task-local capability handle.
type Handle uint16

// Reserved handle values understood by the system call layer.
const (
	NoHandle   Handle = 0xFFFF
	AnyShuttle Handle = 0xFFFE
	ReplyPort  Handle = 0xFFFD
)

// TaskState is the scheduling state of a task.
type TaskState uint8

const (
	TaskReady TaskState = iota
	TaskWait
	TaskWaitWithTimeout
	TaskWaitTrapped
)

func (s TaskState) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskWait:
		return "wait"
	case TaskWaitWithTimeout:
		return "wait-timeout"
	case TaskWaitTrapped:
		return "trapped"
	default:
		return "unknown"
	}
}

// Register slots of the saved trap frame.
const (
	RegA0 = iota
	RegA1
	RegA2
	RegA3
	RegA4
	RegA5
	RegA6
	RegA7
	NumRegs
)

// Frame is the saved register context of a task.
type Frame struct {
	Regs [NumRegs]uint32
}

// wait targets besides a shuttle pool index
const (
	waitNone int32 = -1
	waitAny  int32 = -2
)

// Task is the kernel record of one manifest task.
type Task struct {
	ID       TaskID
	Name     string
	State    TaskState
	Priority uint8
	Domain   uint8
	Key      uint32
	Frame    Frame

	memory       []byte
	shuttleBase  uint16
	shuttleCount uint16
	reply        int

	waitOn    int32
	completed shuttleQueue

	timer timerNode

	readyNext, readyPrev TaskID
	inReady              bool

	program Program
	ctx     Context

	faults  uint32
	replays uint32
}

// Waiting reports whether the task is in one of the wait states.
func (t *Task) Waiting() bool { return t.State != TaskReady }

// Memory returns the task's private address space.
func (t *Task) Memory() []byte { return t.memory }

// Faults returns how many times the task trapped or exited.
func (t *Task) Faults() uint32 { return t.faults }

// Replays returns how many times the task was re-entered after a trap.
func (t *Task) Replays() uint32 { return t.replays }

// taskQueue is the ready queue, linked through Task.readyNext/readyPrev.
type taskQueue struct {
	head, tail TaskID
	n          int
}

func newTaskQueue() taskQueue { return taskQueue{head: NoTask, tail: NoTask} }

func (k *Kernel) readyInsert(id TaskID) {
	q := &k.ready
	t := &k.tasks[id]
	if t.inReady {
		return
	}
	t.inReady = true
	q.n++

	// Walk back from the tail past strictly lower priorities so equal
	// priorities stay FIFO.
	after := q.tail
	if k.priorities {
		for after != NoTask && k.tasks[after].Priority < t.Priority {
			after = k.tasks[after].readyPrev
		}
	}

	t.readyPrev = after
	if after == NoTask {
		t.readyNext = q.head
		q.head = id
	} else {
		t.readyNext = k.tasks[after].readyNext
		k.tasks[after].readyNext = id
	}
	if t.readyNext == NoTask {
		q.tail = id
	} else {
		k.tasks[t.readyNext].readyPrev = id
	}
}

func (k *Kernel) readyRemove(id TaskID) {
	q := &k.ready
	t := &k.tasks[id]
	if !t.inReady {
		return
	}
	if t.readyPrev == NoTask {
		q.head = t.readyNext
	} else {
		k.tasks[t.readyPrev].readyNext = t.readyNext
	}
	if t.readyNext == NoTask {
		q.tail = t.readyPrev
	} else {
		k.tasks[t.readyNext].readyPrev = t.readyPrev
	}
	t.readyNext, t.readyPrev = NoTask, NoTask
	t.inReady = false
	q.n--
}

func (k *Kernel) readyPop() TaskID {
	id := k.ready.head
	if id != NoTask {
		k.readyRemove(id)
	}
	return id
}
