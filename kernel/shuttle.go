package kernel

// ShuttleState is the state of one in-flight transfer record.
type ShuttleState uint8

const (
	ShuttleReset ShuttleState = iota
	ShuttleSend
	ShuttleRecv
	ShuttleCompletePending
	ShuttleCompleteIdle
)

func (s ShuttleState) String() string {
	switch s {
	case ShuttleReset:
		return "reset"
	case ShuttleSend:
		return "send"
	case ShuttleRecv:
		return "recv"
	case ShuttleCompletePending:
		return "complete-pending"
	case ShuttleCompleteIdle:
		return "complete-idle"
	default:
		return "unknown"
	}
}

// Flags accepted by SysSendRecvWait in A6.
const (
	// FlagReply makes A1 name the caller's receive shuttle whose request is
	// being answered, instead of a port.
	FlagReply uint32 = 1 << iota
	flagLock
)

type locKind uint8

const (
	locNone locKind = iota
	locSenders
	locReceivers
	locCompleted
	locTimer
)

// location records which list a shuttle is linked into.
type location struct {
	kind locKind
	idx  int
}

// Shuttle is one slot of the kernel shuttle pool.
type Shuttle struct {
	Owner  TaskID
	Handle Handle
	State  ShuttleState

	Addr uint32
	Size uint32

	Transferred uint32
	Err         Status

	lockOp bool

	// grant points from a pending send (or from the receive shuttle that
	// accepted it) to the requester's reply shuttle; grantee is the reverse
	// link kept on that reply shuttle.
	grant   int32
	grantee int32

	where      location
	next, prev int32
}

// Idle reports whether the shuttle may be bound by a new call.
func (s *Shuttle) Idle() bool { return s.State < ShuttleSend }

// CanReply reports whether the shuttle carries a live reply credential.
func (s *Shuttle) CanReply() bool { return s.grant >= 0 }

func newShuttle(owner TaskID, h Handle) Shuttle {
	return Shuttle{Owner: owner, Handle: h, grant: -1, grantee: -1, next: -1, prev: -1}
}

// shuttleQueue is a FIFO linked through Shuttle.next/prev.
type shuttleQueue struct {
	head, tail int32
	n          int
}

func newShuttleQueue() shuttleQueue { return shuttleQueue{head: -1, tail: -1} }

func (q *shuttleQueue) empty() bool { return q.head < 0 }

func (k *Kernel) queueAt(loc location) *shuttleQueue {
	switch loc.kind {
	case locSenders:
		return &k.ports[loc.idx].senders
	case locReceivers:
		return &k.ports[loc.idx].receivers
	case locCompleted:
		return &k.tasks[loc.idx].completed
	default:
		return nil
	}
}

func (k *Kernel) pushShuttle(loc location, id int32) {
	q := k.queueAt(loc)
	s := &k.shuttles[id]
	s.where = loc
	s.next = -1
	s.prev = q.tail
	if q.tail < 0 {
		q.head = id
	} else {
		k.shuttles[q.tail].next = id
	}
	q.tail = id
	q.n++
}

func (k *Kernel) popShuttle(loc location) int32 {
	q := k.queueAt(loc)
	id := q.head
	if id >= 0 {
		k.unlinkShuttle(id)
	}
	return id
}

// unlinkShuttle removes the shuttle from whatever list or timer holds it.
func (k *Kernel) unlinkShuttle(id int32) {
	s := &k.shuttles[id]
	switch s.where.kind {
	case locNone:
		return
	case locTimer:
		tm := &k.timers[s.where.idx]
		if tm.shuttle == id {
			tm.shuttle = -1
			k.timerCancel(k.timerRef(s.where.idx))
		}
	default:
		q := k.queueAt(s.where)
		if s.prev < 0 {
			q.head = s.next
		} else {
			k.shuttles[s.prev].next = s.next
		}
		if s.next < 0 {
			q.tail = s.prev
		} else {
			k.shuttles[s.next].prev = s.prev
		}
		q.n--
	}
	s.next, s.prev = -1, -1
	s.where = location{}
}

// revokeGrant drops any reply-credential link held by or pointing at id.
func (k *Kernel) revokeGrant(id int32) {
	s := &k.shuttles[id]
	if s.grant >= 0 {
		if g := &k.shuttles[s.grant]; g.grantee == id {
			g.grantee = -1
		}
		s.grant = -1
	}
	if s.grantee >= 0 {
		if g := &k.shuttles[s.grantee]; g.grant == id {
			g.grant = -1
		}
		s.grantee = -1
	}
}

// resetShuttle unlinks id from every list and relationship and returns it
// to the Reset state. The payload buffer binding survives a reset.
func (k *Kernel) resetShuttle(id int32) {
	k.unlinkShuttle(id)
	k.revokeGrant(id)
	s := &k.shuttles[id]
	s.State = ShuttleReset
	s.Err = StatusOK
	s.Transferred = 0
	s.lockOp = false
}
