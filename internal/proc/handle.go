package proc

import "time"

// DefaultTerminateTimeout is the total termination budget: half is spent
// waiting after the graceful signal, half after the forceful one.
const DefaultTerminateTimeout = 20 * time.Second

// TermResult is the outcome of a termination attempt.
type TermResult int

const (
	// TermNoOp means there was no live process to terminate.
	TermNoOp TermResult = iota
	// TermTerminated means the process exited within the termination budget.
	TermTerminated
	// TermSurvived means the process outlived both the graceful and the
	// forceful wait. Reported as its own outcome rather than folded into
	// TermFailed so callers can tell "kernel refused" from "still dying".
	TermSurvived
	// TermFailed means an OS-level error occurred while signaling or waiting
	// (e.g. permission denied).
	TermFailed
)

func (r TermResult) String() string {
	switch r {
	case TermNoOp:
		return "noop"
	case TermTerminated:
		return "terminated"
	case TermSurvived:
		return "survived"
	case TermFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Handle abstracts OS process inspection and signaling. Implementations must
// be safe for concurrent use.
type Handle interface {
	// IsRunning reports whether pid refers to a live process. A missing or
	// zombie process is a normal false result, never an error.
	IsRunning(pid int) bool
	// Terminate sends a graceful signal and waits up to timeout/2, then
	// escalates to a forceful kill and waits up to another timeout/2.
	Terminate(pid int, timeout time.Duration) TermResult
}

// OS returns the Handle backed by the host operating system.
func OS() Handle { return osHandle{} }
