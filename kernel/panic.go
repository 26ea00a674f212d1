package kernel

import (
	"sync/atomic"
)

// PanicInfo describes a kernel halt.
type PanicInfo struct {
	TaskID   TaskID
	TaskName string
	Reason   string
	Stack    []byte
}

var (
	panicActive atomic.Bool

	panicHandler atomic.Value // func(PanicInfo)
)

// InPanicMode reports whether any kernel has halted.
func InPanicMode() bool {
	return panicActive.Load()
}

// SetPanicHandler installs a process-wide halt handler.
//
// A kernel invokes it at most once, on its first halt. It must not panic.
func SetPanicHandler(fn func(PanicInfo)) {
	panicHandler.Store(fn)
}

func triggerPanic(info PanicInfo) {
	panicActive.Store(true)
	info.Stack = captureStack()
	if v := panicHandler.Load(); v != nil {
		if fn, ok := v.(func(PanicInfo)); ok && fn != nil {
			fn(info)
		}
	}
}
