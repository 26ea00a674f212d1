package kernel

// Port is a rendezvous point with FIFO queues of waiting senders and
// receivers. Outside of a kernel operation at most one queue is non-empty.
type Port struct {
	Name      string
	senders   shuttleQueue
	receivers shuttleQueue

	// lock is the index of the lock this port implements, or -1.
	lock int
	// owner is the task whose private reply port this is, or NoTask.
	owner TaskID
}

func newPort(name string) Port {
	return Port{
		Name:      name,
		senders:   newShuttleQueue(),
		receivers: newShuttleQueue(),
		lock:      -1,
		owner:     NoTask,
	}
}

// Senders returns the number of queued senders.
func (p *Port) Senders() int { return p.senders.n }

// Receivers returns the number of queued receivers.
func (p *Port) Receivers() int { return p.receivers.n }

// bindSend queues id as a sender on port, pairing it at once with a
// waiting receiver when there is one.
func (k *Kernel) bindSend(id int32, port int) {
	k.shuttles[id].State = ShuttleSend
	if r := k.popShuttle(location{kind: locReceivers, idx: port}); r >= 0 {
		k.transfer(port, id, r)
		return
	}
	k.pushShuttle(location{kind: locSenders, idx: port}, id)
}

// bindRecv queues id as a receiver on port, pairing it at once with a
// waiting sender when there is one.
func (k *Kernel) bindRecv(id int32, port int) {
	k.shuttles[id].State = ShuttleRecv
	if s := k.popShuttle(location{kind: locSenders, idx: port}); s >= 0 {
		k.transfer(port, s, id)
		return
	}
	k.pushShuttle(location{kind: locReceivers, idx: port}, id)
}
