package kernel

// timerNode links a task or a timer object into the deadline-sorted queue.
type timerNode struct {
	deadline   uint64
	next, prev int32
	linked     bool
}

func newTimerNode() timerNode { return timerNode{next: -1, prev: -1} }

// Timer is a manifest-declared timer object owned by one task. While armed
// it holds exactly one shuttle in the Recv state.
type Timer struct {
	Name  string
	Owner TaskID

	node    timerNode
	shuttle int32
}

// Armed reports whether the timer has a pending deadline.
func (t *Timer) Armed() bool { return t.node.linked }

// Deadline returns the pending deadline; meaningful only while Armed.
func (t *Timer) Deadline() uint64 { return t.node.deadline }

// timerQueue is ordered by deadline; equal deadlines keep insertion order.
// Node references below len(tasks) name a task, the rest name timer objects.
type timerQueue struct {
	head, tail int32
	n          int
}

func newTimerQueue() timerQueue { return timerQueue{head: -1, tail: -1} }

func (k *Kernel) taskRef(id TaskID) int32 { return int32(id) }

func (k *Kernel) timerRef(idx int) int32 { return int32(len(k.tasks) + idx) }

func (k *Kernel) timerNodeAt(ref int32) *timerNode {
	if int(ref) < len(k.tasks) {
		return &k.tasks[ref].timer
	}
	return &k.timers[int(ref)-len(k.tasks)].node
}

// timerEnqueue (re)inserts ref at deadline.
func (k *Kernel) timerEnqueue(ref int32, deadline uint64) {
	k.timerCancel(ref)

	q := &k.timerq
	n := k.timerNodeAt(ref)
	n.deadline = deadline
	n.linked = true
	q.n++

	after := q.tail
	for after >= 0 && k.timerNodeAt(after).deadline > deadline {
		after = k.timerNodeAt(after).prev
	}
	n.prev = after
	if after < 0 {
		n.next = q.head
		q.head = ref
	} else {
		a := k.timerNodeAt(after)
		n.next = a.next
		a.next = ref
	}
	if n.next < 0 {
		q.tail = ref
	} else {
		k.timerNodeAt(n.next).prev = ref
	}
}

// timerCancel unlinks ref. It is a no-op for a node that is not queued.
func (k *Kernel) timerCancel(ref int32) {
	n := k.timerNodeAt(ref)
	if !n.linked {
		return
	}
	q := &k.timerq
	if n.prev < 0 {
		q.head = n.next
	} else {
		k.timerNodeAt(n.prev).next = n.next
	}
	if n.next < 0 {
		q.tail = n.prev
	} else {
		k.timerNodeAt(n.next).prev = n.prev
	}
	n.next, n.prev = -1, -1
	n.linked = false
	q.n--
}

// nextDeadline returns the earliest queued deadline.
func (k *Kernel) nextDeadline() (uint64, bool) {
	if k.timerq.head < 0 {
		return 0, false
	}
	return k.timerNodeAt(k.timerq.head).deadline, true
}

// processElapsed pops and handles every node whose deadline is at or
// before now.
func (k *Kernel) processElapsed(now uint64) {
	for {
		ref := k.timerq.head
		if ref < 0 {
			return
		}
		n := k.timerNodeAt(ref)
		if n.deadline > now {
			return
		}
		k.timerCancel(ref)

		if int(ref) >= len(k.tasks) {
			k.fireTimer(int(ref) - len(k.tasks))
			continue
		}
		t := &k.tasks[ref]
		switch t.State {
		case TaskWaitWithTimeout:
			k.expire(t)
		case TaskWaitTrapped:
			k.replay(t)
		}
	}
}

// fireTimer retires the shuttle bound to timer idx.
func (k *Kernel) fireTimer(idx int) {
	tm := &k.timers[idx]
	id := tm.shuttle
	if id < 0 {
		return
	}
	k.unlinkShuttle(id)
	k.log.Trace("timer-fire", "timer", tm.Name, "owner", tm.Owner, "handle", k.shuttles[id].Handle)
	k.retire(id, StatusOK, 0)
}

// timerSet binds shuttle id to timer idx to fire delay ticks from now. A
// zero delay disarms the timer and resets the shuttle bound to it.
func (k *Kernel) timerSet(idx int, id int32, delay uint32) {
	tm := &k.timers[idx]
	if tm.shuttle >= 0 {
		k.resetShuttle(tm.shuttle)
	}
	k.timerCancel(k.timerRef(idx))
	if delay == 0 {
		return
	}

	s := &k.shuttles[id]
	s.State = ShuttleRecv
	s.where = location{kind: locTimer, idx: idx}
	tm.shuttle = id
	k.timerEnqueue(k.timerRef(idx), k.hw.Timer.Now()+uint64(delay))
}

// armInterrupt programs the compare channel for the nearer of the quantum
// boundary and the earliest deadline. Inside a critical section it stays
// disarmed.
func (k *Kernel) armInterrupt() {
	if k.critical.active {
		k.hw.Timer.Disarm()
		return
	}
	deadline, ok := k.nextDeadline()
	if k.current != NoTask && (!ok || k.quantumEnd < deadline) {
		deadline, ok = k.quantumEnd, true
	}
	if !ok {
		k.hw.Timer.Disarm()
		return
	}
	k.hw.Timer.Arm(deadline)
}
