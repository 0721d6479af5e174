package ready

import (
	"os"
	"time"
)

// CallbackStarter declares a process ready the moment Ready returns true.
// The predicate is evaluated once per polling tick; the log is not
// inspected.
type CallbackStarter struct {
	Args  []string
	Env   []string
	Ready func() bool

	Timeout      time.Duration // default DefaultWaitTimeout
	PollInterval time.Duration // default DefaultPollInterval
}

func (s *CallbackStarter) LaunchArgs() []string  { return s.Args }
func (s *CallbackStarter) Environment() []string { return s.Env }

func (s *CallbackStarter) Validate() error {
	if s.Ready == nil {
		return ErrNilPredicate
	}
	return nil
}

func (s *CallbackStarter) Wait(_ *os.File) bool {
	if s.Ready == nil {
		return false
	}
	poll := s.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	deadline := time.Now().Add(timeout)
	for {
		if s.Ready() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(poll)
	}
}
