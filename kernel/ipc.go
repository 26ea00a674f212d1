package kernel

// ipcRequest is a decoded and validated SysSendRecvWait call. Indices are
// shuttle pool / port table positions; -1 means absent.
type ipcRequest struct {
	send     int32
	sendPort int
	replyTo  int32

	recv     int32
	recvPort int

	wait    int32
	timeout uint32
	lock    bool
}

func newIPCRequest() ipcRequest {
	return ipcRequest{send: -1, sendPort: -1, replyTo: -1, recv: -1, recvPort: -1, wait: waitNone}
}

// sendRecvWait performs the validated request on behalf of t. The wait
// state is entered before any transfer so that shuttles retired by this very
// call are visible to the pickup at the end.
func (k *Kernel) sendRecvWait(t *Task, r ipcRequest) {
	if r.wait != waitNone {
		k.wait(t, r.wait, r.timeout)
	}

	if r.send >= 0 {
		s := &k.shuttles[r.send]
		s.lockOp = r.lock
		switch {
		case r.replyTo >= 0:
			k.reply(r.send, r.replyTo)
		default:
			if r.recv >= 0 {
				s.grant = r.recv
				k.shuttles[r.recv].grantee = r.send
			}
			k.bindSend(r.send, r.sendPort)
		}
	}

	if r.recv >= 0 {
		k.shuttles[r.recv].lockOp = r.lock
		k.bindRecv(r.recv, r.recvPort)
	}

	if t.Waiting() {
		k.pickup(t)
		return
	}
	setResult(t, StatusOK, NoHandle, 0)
}

// reply answers the request whose reply credential target is target,
// bypassing port addressing. The credential is consumed.
func (k *Kernel) reply(send, target int32) {
	k.revokeGrant(target)
	port := k.shuttles[target].where.idx
	k.unlinkShuttle(target)
	k.shuttles[send].State = ShuttleSend
	k.transfer(port, send, target)
}

// transfer pairs a sender with a receiver on port, moves the payload and
// retires both shuttles.
func (k *Kernel) transfer(port int, send, recv int32) {
	ss, rs := &k.shuttles[send], &k.shuttles[recv]
	if ss.lockOp || rs.lockOp {
		k.lockHandoff(port, send, recv)
		return
	}

	st := StatusOK
	var n uint32
	switch {
	case ss.Size > rs.Size:
		st = StatusIncomplete
	case ss.Size > 0:
		if k.copyPayload(rs, ss) {
			n = ss.Size
		} else {
			st = StatusFailed
		}
	}

	if ss.grant >= 0 {
		g := ss.grant
		ss.grant = -1
		rs.grant = g
		k.shuttles[g].grantee = recv
	}

	k.log.Trace("ipc-pair",
		"port", k.ports[port].Name,
		"sender", ss.Owner, "send_handle", ss.Handle,
		"receiver", rs.Owner, "recv_handle", rs.Handle,
		"size", n, "status", st)

	k.retire(send, st, n)
	k.retire(recv, st, n)
}

// retire completes a shuttle. A sleeping owner waiting for it (or for any
// shuttle, with nothing older pending) is woken with the result in its
// registers; otherwise the shuttle joins the owner's completed list. The
// task whose trap is being handled never gets woken here: its own pickup
// runs at the end of the call.
func (k *Kernel) retire(id int32, st Status, n uint32) {
	s := &k.shuttles[id]
	s.Err = st
	s.Transferred = n
	if s.Owner == NoTask {
		k.resetShuttle(id)
		return
	}

	o := &k.tasks[s.Owner]
	if o.ID != k.caller && (o.State == TaskWait || o.State == TaskWaitWithTimeout) {
		if o.waitOn == id || (o.waitOn == waitAny && o.completed.empty()) {
			k.deliver(o, id)
			return
		}
	}
	s.State = ShuttleCompletePending
	k.pushShuttle(location{kind: locCompleted, idx: int(o.ID)}, id)
}

// deliver hands a completed shuttle to its owner and makes it runnable.
func (k *Kernel) deliver(t *Task, id int32) {
	s := &k.shuttles[id]
	s.State = ShuttleCompleteIdle
	setResult(t, s.Err, s.Handle, s.Transferred)
	k.run(t)
}

// pickup consumes an already-completed wait target of t, if there is one.
func (k *Kernel) pickup(t *Task) {
	id := int32(-1)
	switch {
	case t.waitOn == waitAny:
		id = t.completed.head
	case t.waitOn >= 0 && k.shuttles[t.waitOn].State == ShuttleCompletePending:
		id = t.waitOn
	}
	if id < 0 {
		return
	}
	k.unlinkShuttle(id)
	k.deliver(t, id)
}

// expire wakes t after its wait deadline passed. Its shuttles stay bound.
func (k *Kernel) expire(t *Task) {
	h := NoHandle
	if t.waitOn >= 0 {
		h = k.shuttles[t.waitOn].Handle
	}
	setResult(t, StatusTimeout, h, 0)
	k.run(t)
}

func setResult(t *Task, st Status, h Handle, n uint32) {
	t.Frame.Regs[RegA0] = uint32(st)
	t.Frame.Regs[RegA1] = uint32(h)
	t.Frame.Regs[RegA2] = n
}
