package kernel

import "ferry/kernel/captab"

// System call numbers, passed in A7.
const (
	SysSendRecvWait uint32 = iota
	SysShuttleReset
	SysShuttleBuffer
	SysLockAcquire
	SysLockRelease
	SysTimerSet
	SysCriticalEnter
	SysCriticalLeave
	SysYield
	SysExit
	SysClock
)

type sysentry struct {
	args int
	name string
	impl func(*Kernel, *Task)
}

var sysent [11]sysentry

func init() {
	sysent = [...]sysentry{
		{7, "send_recv_wait", sysSendRecvWait},  /*  0 */
		{1, "shuttle_reset", sysShuttleReset},   /*  1 */
		{3, "shuttle_buffer", sysShuttleBuffer}, /*  2 */
		{3, "lock_acquire", sysLockAcquire},     /*  3 */
		{1, "lock_release", sysLockRelease},     /*  4 */
		{3, "timer_set", sysTimerSet},           /*  5 */
		{1, "critical_enter", sysCriticalEnter}, /*  6 */
		{0, "critical_leave", sysCriticalLeave}, /*  7 */
		{0, "yield", sysYield},                  /*  8 */
		{1, "exit", sysExit},                    /*  9 */
		{0, "clock", sysClock},                  /* 10 */
	}
}

// SyscallName returns the table name of system call nr.
func SyscallName(nr uint32) string {
	if nr >= uint32(len(sysent)) {
		return "unknown"
	}
	return sysent[nr].name
}

func (k *Kernel) syscall(t *Task) {
	nr := t.Frame.Regs[RegA7]
	if nr >= uint32(len(sysent)) {
		k.fault(t, "unknown system call")
		return
	}
	e := &sysent[nr]
	k.log.Trace("syscall", "task", t.Name, "call", e.name, "a0", t.Frame.Regs[RegA0])
	e.impl(k, t)
}

func arg(t *Task, i int) uint32 { return t.Frame.Regs[i] }

func handleArg(t *Task, i int) Handle { return Handle(t.Frame.Regs[i]) }

// ownShuttle resolves one of t's shuttle handles to a pool index.
func (k *Kernel) ownShuttle(t *Task, h Handle) (int32, bool) {
	idx, ok := k.caps.ResolveShuttle(uint8(t.ID), t.Key, uint16(h))
	if !ok {
		return -1, false
	}
	return int32(idx), true
}

// object resolves h in t's object table, requiring kind and want.
func (k *Kernel) object(t *Task, h Handle, kind captab.Kind, want captab.Grant) (int, bool) {
	e, ok := k.caps.Resolve(uint8(t.ID), t.Key, uint16(h), want)
	if !ok || e.Kind != kind {
		return -1, false
	}
	return int(e.Index), true
}

func sysSendRecvWait(k *Kernel, t *Task) {
	st, r := k.decodeIPC(t)
	if st != StatusOK {
		setResult(t, st, NoHandle, 0)
		return
	}
	k.sendRecvWait(t, r)
}

// decodeIPC validates a SysSendRecvWait call without touching any state.
func (k *Kernel) decodeIPC(t *Task) (Status, ipcRequest) {
	r := newIPCRequest()
	flags := arg(t, RegA6)
	if flags&^FlagReply != 0 {
		return StatusArgument, r
	}

	if h := handleArg(t, RegA0); h != NoHandle {
		id, ok := k.ownShuttle(t, h)
		if !ok || !k.shuttles[id].Idle() {
			return StatusAccess, r
		}
		r.send = id

		if flags&FlagReply != 0 {
			q, ok := k.ownShuttle(t, handleArg(t, RegA1))
			if !ok {
				return StatusAccess, r
			}
			target := k.shuttles[q].grant
			if target < 0 {
				return StatusAccess, r
			}
			if ts := &k.shuttles[target]; ts.State != ShuttleRecv || ts.where.kind != locReceivers {
				return StatusAccess, r
			}
			r.replyTo = target
		} else {
			port, ok := k.object(t, handleArg(t, RegA1), captab.KindPort, captab.GrantSend)
			if !ok {
				return StatusAccess, r
			}
			r.sendPort = port
		}
	} else if flags&FlagReply != 0 {
		return StatusArgument, r
	}

	if h := handleArg(t, RegA2); h != NoHandle {
		id, ok := k.ownShuttle(t, h)
		if !ok || !k.shuttles[id].Idle() {
			return StatusAccess, r
		}
		if id == r.send {
			return StatusArgument, r
		}
		r.recv = id

		if p := handleArg(t, RegA3); p == ReplyPort {
			if !k.ports[t.reply].receivers.empty() {
				return StatusArgument, r
			}
			r.recvPort = t.reply
		} else {
			port, ok := k.object(t, p, captab.KindPort, captab.GrantRecv)
			if !ok {
				return StatusAccess, r
			}
			r.recvPort = port
		}
	}

	switch w := handleArg(t, RegA4); w {
	case NoHandle:
	case AnyShuttle:
		r.wait = waitAny
	default:
		id, ok := k.ownShuttle(t, w)
		if !ok {
			return StatusAccess, r
		}
		// A reset or already delivered shuttle has nothing left to complete.
		if s := &k.shuttles[id]; id != r.send && id != r.recv && (s.Idle() || s.State == ShuttleCompleteIdle) {
			return StatusArgument, r
		}
		r.wait = id
	}
	if r.wait != waitNone {
		if k.critical.active {
			return StatusAccess, r
		}
		r.timeout = arg(t, RegA5)
	}
	return StatusOK, r
}

func sysShuttleReset(k *Kernel, t *Task) {
	id, ok := k.ownShuttle(t, handleArg(t, RegA0))
	if !ok {
		setResult(t, StatusAccess, NoHandle, 0)
		return
	}
	k.resetShuttle(id)
	setResult(t, StatusOK, NoHandle, 0)
}

func sysShuttleBuffer(k *Kernel, t *Task) {
	id, ok := k.ownShuttle(t, handleArg(t, RegA0))
	if !ok || !k.shuttles[id].Idle() {
		setResult(t, StatusAccess, NoHandle, 0)
		return
	}
	addr, size := arg(t, RegA1), arg(t, RegA2)
	if !bufferInRange(t.memory, addr, size) {
		setResult(t, StatusArgument, NoHandle, 0)
		return
	}
	s := &k.shuttles[id]
	s.Addr, s.Size = addr, size
	setResult(t, StatusOK, NoHandle, 0)
}

func sysLockAcquire(k *Kernel, t *Task) {
	li, ok := k.object(t, handleArg(t, RegA0), captab.KindLock, captab.GrantLock)
	if !ok {
		setResult(t, StatusAccess, NoHandle, 0)
		return
	}
	recv := int32(-1)
	if k.locks[li].holder != t.ID {
		if k.critical.active {
			setResult(t, StatusAccess, NoHandle, 0)
			return
		}
		id, ok := k.ownShuttle(t, handleArg(t, RegA1))
		if !ok || !k.shuttles[id].Idle() {
			setResult(t, StatusAccess, NoHandle, 0)
			return
		}
		recv = id
	}
	k.acquire(t, li, recv, arg(t, RegA5))
}

func sysLockRelease(k *Kernel, t *Task) {
	li, ok := k.object(t, handleArg(t, RegA0), captab.KindLock, captab.GrantLock)
	if !ok {
		setResult(t, StatusAccess, NoHandle, 0)
		return
	}
	k.release(t, li)
}

func sysTimerSet(k *Kernel, t *Task) {
	ti, ok := k.object(t, handleArg(t, RegA0), captab.KindTimer, captab.GrantTimer)
	if !ok {
		setResult(t, StatusAccess, NoHandle, 0)
		return
	}
	delay := arg(t, RegA2)
	id := int32(-1)
	if delay != 0 {
		id, ok = k.ownShuttle(t, handleArg(t, RegA1))
		if !ok || (!k.shuttles[id].Idle() && k.timers[ti].shuttle != id) {
			setResult(t, StatusAccess, NoHandle, 0)
			return
		}
	}
	k.timerSet(ti, id, delay)
	setResult(t, StatusOK, NoHandle, 0)
}

func sysCriticalEnter(k *Kernel, t *Task) {
	setResult(t, k.enterCritical(t, TrapBehavior(arg(t, RegA0))), NoHandle, 0)
}

func sysCriticalLeave(k *Kernel, t *Task) {
	setResult(t, k.leaveCritical(t), NoHandle, 0)
}

func sysYield(k *Kernel, t *Task) {
	setResult(t, StatusOK, NoHandle, 0)
	k.yield(t)
}

func sysExit(k *Kernel, t *Task) {
	t.faults++
	k.log.Info("task exit", "task", t.Name, "code", arg(t, RegA0))
	k.trapped(t, "exit")
}

func sysClock(k *Kernel, t *Task) {
	now := k.hw.Timer.Now()
	t.Frame.Regs[RegA0] = uint32(StatusOK)
	t.Frame.Regs[RegA1] = uint32(now)
	t.Frame.Regs[RegA2] = uint32(now >> 32)
}
