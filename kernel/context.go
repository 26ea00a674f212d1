package kernel

import "ferry/kernel/captab"

// Program is the user code of one task. Each Step runs until the program
// issues one system call through the Context; the result is available on
// the next Step via Context.Result.
type Program interface {
	Step(*Context)
}

// ProgramFunc adapts a plain function to Program.
type ProgramFunc func(*Context)

func (f ProgramFunc) Step(c *Context) { f(c) }

// ProgramSet maps task names to program constructors. A trapped task is
// replayed with a fresh instance from its constructor.
type ProgramSet map[string]func() Program

// Context provides task-local access to kernel operations.
type Context struct {
	k *Kernel
	t *Task

	issued bool
	extra  bool
}

// TaskID returns the current task ID.
func (c *Context) TaskID() TaskID { return c.t.ID }

// Name returns the task name.
func (c *Context) Name() string { return c.t.Name }

// Memory returns the task's address space. Shuttle buffers are offsets into it.
func (c *Context) Memory() []byte { return c.t.memory }

// Result returns the outcome of the previous system call: status, the
// completed shuttle handle (or NoHandle) and the transferred size.
func (c *Context) Result() (Status, Handle, uint32) {
	r := &c.t.Frame.Regs
	return Status(r[RegA0]), Handle(r[RegA1]), r[RegA2]
}

// Status returns only the status of the previous system call.
func (c *Context) Status() Status { return Status(c.t.Frame.Regs[RegA0]) }

// Port returns the handle under which this task holds the named port.
func (c *Context) Port(name string) Handle { return c.k.lookup(c.t.ID, captab.KindPort, name) }

// Lock returns the handle under which this task holds the named lock.
func (c *Context) Lock(name string) Handle { return c.k.lookup(c.t.ID, captab.KindLock, name) }

// Timer returns the handle under which this task owns the named timer.
func (c *Context) Timer(name string) Handle { return c.k.lookup(c.t.ID, captab.KindTimer, name) }

func (c *Context) syscall(nr uint32, args ...uint32) {
	if c.issued {
		c.extra = true
		return
	}
	c.issued = true
	r := &c.t.Frame.Regs
	*r = [NumRegs]uint32{}
	copy(r[:RegA7], args)
	r[RegA7] = nr
}

// Request is the argument block of SendRecvWait. Unused handles must be
// NoHandle; NewRequest starts from that state.
type Request struct {
	Send     Handle
	SendPort Handle
	Recv     Handle
	RecvPort Handle
	Wait     Handle
	Timeout  uint32
	Flags    uint32
}

// NewRequest returns a request with every handle unset.
func NewRequest() Request {
	return Request{Send: NoHandle, SendPort: NoHandle, Recv: NoHandle, RecvPort: NoHandle, Wait: NoHandle}
}

// SendRecvWait issues the combined IPC primitive.
func (c *Context) SendRecvWait(r Request) {
	c.syscall(SysSendRecvWait,
		uint32(r.Send), uint32(r.SendPort),
		uint32(r.Recv), uint32(r.RecvPort),
		uint32(r.Wait), r.Timeout, r.Flags)
}

// Send queues shuttle s on port without waiting.
func (c *Context) Send(s, port Handle) {
	r := NewRequest()
	r.Send, r.SendPort = s, port
	c.SendRecvWait(r)
}

// SendWait sends s on port and sleeps until it completes.
func (c *Context) SendWait(s, port Handle, timeout uint32) {
	r := NewRequest()
	r.Send, r.SendPort = s, port
	r.Wait, r.Timeout = s, timeout
	c.SendRecvWait(r)
}

// Recv binds shuttle s as a receiver on port and sleeps until it completes.
func (c *Context) Recv(s, port Handle, timeout uint32) {
	r := NewRequest()
	r.Recv, r.RecvPort = s, port
	r.Wait, r.Timeout = s, timeout
	c.SendRecvWait(r)
}

// Call sends s on port with a reply credential for recv, which waits on
// the task's private reply port.
func (c *Context) Call(s, port, recv Handle, timeout uint32) {
	r := NewRequest()
	r.Send, r.SendPort = s, port
	r.Recv, r.RecvPort = recv, ReplyPort
	r.Wait, r.Timeout = recv, timeout
	c.SendRecvWait(r)
}

// Reply answers the request received on q by sending s straight to the
// requester's reply shuttle.
func (c *Context) Reply(s, q Handle) {
	r := NewRequest()
	r.Send, r.SendPort = s, q
	r.Flags = FlagReply
	c.SendRecvWait(r)
}

// Wait sleeps on one shuttle, or on AnyShuttle.
func (c *Context) Wait(s Handle, timeout uint32) {
	r := NewRequest()
	r.Wait, r.Timeout = s, timeout
	c.SendRecvWait(r)
}

// Reset returns shuttle s to the reset state.
func (c *Context) Reset(s Handle) { c.syscall(SysShuttleReset, uint32(s)) }

// Buffer binds s to memory [addr, addr+size).
func (c *Context) Buffer(s Handle, addr, size uint32) {
	c.syscall(SysShuttleBuffer, uint32(s), addr, size)
}

// Acquire takes lock, sleeping on recv while another task holds it.
func (c *Context) Acquire(lock, recv Handle, timeout uint32) {
	c.syscall(SysLockAcquire, uint32(lock), uint32(recv), 0, 0, 0, timeout)
}

// Release drops one level of the hold on lock.
func (c *Context) Release(lock Handle) { c.syscall(SysLockRelease, uint32(lock)) }

// SetTimer arms timer to complete s after delay ticks. A zero delay disarms it.
func (c *Context) SetTimer(timer, s Handle, delay uint32) {
	c.syscall(SysTimerSet, uint32(timer), uint32(s), delay)
}

// Enter opens (or nests) a scheduler critical section.
func (c *Context) Enter(b TrapBehavior) { c.syscall(SysCriticalEnter, uint32(b)) }

// Leave closes one critical section level.
func (c *Context) Leave() { c.syscall(SysCriticalLeave) }

// Yield gives up the rest of the quantum.
func (c *Context) Yield() { c.syscall(SysYield) }

// Exit ends the task; it is replayed later.
func (c *Context) Exit(code uint32) { c.syscall(SysExit, code) }

// Clock requests the tick counter; read it with Now on the next step.
func (c *Context) Clock() { c.syscall(SysClock) }

// Now decodes the result of a Clock call.
func (c *Context) Now() uint64 {
	r := &c.t.Frame.Regs
	return uint64(r[RegA1]) | uint64(r[RegA2])<<32
}
