package kernel

// Status is the result code returned to tasks in register A0.
type Status uint32

const (
	StatusOK Status = iota
	StatusArgument
	StatusAccess
	StatusTimeout
	StatusIncomplete
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusArgument:
		return "argument"
	case StatusAccess:
		return "access"
	case StatusTimeout:
		return "timeout"
	case StatusIncomplete:
		return "incomplete"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}
