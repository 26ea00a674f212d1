package kernel

// MaxHoldCount bounds recursive acquisition of one lock.
const MaxHoldCount = 255

// Lock is a recursive mutex built on a port. While the lock is free its
// kernel-owned unlock shuttle sits in the port's sender queue; acquiring is
// a receive on that port and releasing re-sends the unlock shuttle.
type Lock struct {
	Name string

	port   int
	holder TaskID
	count  uint32
	unlock int32
}

// Holder returns the holding task, or NoTask.
func (l *Lock) Holder() TaskID { return l.holder }

// Count returns the recursive hold count.
func (l *Lock) Count() uint32 { return l.count }

// Free reports whether the unlock shuttle is queued on the lock port.
func (l *Lock) Free() bool { return l.holder == NoTask }

// acquire takes lock li for t, re-entering when t already holds it.
// Otherwise it queues recv on the lock port and sleeps on it.
func (k *Kernel) acquire(t *Task, li int, recv int32, timeout uint32) {
	lk := &k.locks[li]
	if lk.holder == t.ID {
		if lk.count >= MaxHoldCount {
			setResult(t, StatusFailed, NoHandle, 0)
			return
		}
		lk.count++
		setResult(t, StatusOK, NoHandle, 0)
		return
	}

	r := newIPCRequest()
	r.recv = recv
	r.recvPort = lk.port
	r.wait = recv
	r.timeout = timeout
	r.lock = true
	k.sendRecvWait(t, r)
}

// release drops one level of t's hold on lock li. The last release hands
// the lock to the first queued acquirer, if any.
func (k *Kernel) release(t *Task, li int) {
	lk := &k.locks[li]
	if lk.holder != t.ID || lk.count == 0 {
		k.halt(t.ID, "lock "+lk.Name+": release by non-holder")
		return
	}
	lk.count--
	if lk.count == 0 {
		k.unlock(li)
	}
	setResult(t, StatusOK, NoHandle, 0)
}

// unlock clears the holder and binds the unlock shuttle as a sender.
func (k *Kernel) unlock(li int) {
	lk := &k.locks[li]
	lk.holder = NoTask
	lk.count = 0
	k.shuttles[lk.unlock].lockOp = true
	k.bindSend(lk.unlock, lk.port)
}

// releaseHeld force-releases every lock held by t.
func (k *Kernel) releaseHeld(t *Task) {
	for i := range k.locks {
		if k.locks[i].holder == t.ID {
			k.log.Warn("lock released on trap", "lock", k.locks[i].Name, "task", t.Name, "count", k.locks[i].count)
			k.unlock(i)
		}
	}
}

// lockHandoff completes a pairing on a lock port: the receiver's owner
// becomes the holder and no payload moves.
func (k *Kernel) lockHandoff(port int, send, recv int32) {
	lk := &k.locks[k.ports[port].lock]
	rs := &k.shuttles[recv]
	lk.holder = rs.Owner
	lk.count = 1
	k.resetShuttle(send)
	rs.lockOp = false
	k.log.Trace("lock-handoff", "lock", lk.Name, "holder", lk.holder)
	k.retire(recv, StatusOK, 0)
}
