package ready

import (
	"bytes"
	"os"
	"regexp"
	"time"
)

// PatternStarter declares a process ready the first time a line appended to
// its log matches Pattern. The log is polled from the current offset; when
// no complete line is available it sleeps PollInterval and retries.
//
// Two budgets bound the wait: MaxLines counts non-matching lines (matching
// the original line-count cap) and Timeout caps elapsed wall time so a
// silent child cannot stall the caller forever.
type PatternStarter struct {
	Args    []string
	Env     []string
	Pattern string

	Timeout      time.Duration // default DefaultWaitTimeout
	MaxLines     int           // default DefaultLineBudget
	PollInterval time.Duration // default DefaultPollInterval
}

func (s *PatternStarter) LaunchArgs() []string  { return s.Args }
func (s *PatternStarter) Environment() []string { return s.Env }

func (s *PatternStarter) Validate() error {
	if s.Pattern == "" {
		return ErrMissingPattern
	}
	_, err := regexp.Compile(s.Pattern)
	return err
}

func (s *PatternStarter) Wait(log *os.File) bool {
	re, err := regexp.Compile(s.Pattern)
	if err != nil {
		return false
	}
	poll := s.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	budget := s.MaxLines
	if budget <= 0 {
		budget = DefaultLineBudget
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	deadline := time.Now().Add(timeout)

	tail := tailReader{f: log}
	for {
		line, ok := tail.nextLine()
		if !ok {
			if !time.Now().Before(deadline) {
				return false
			}
			time.Sleep(poll)
			continue
		}
		if re.Match(line) {
			return true
		}
		budget--
		if budget < 0 {
			return false
		}
		if !time.Now().Before(deadline) {
			return false
		}
	}
}

// tailReader yields complete lines from a growing file, retaining partial
// trailing data between reads.
type tailReader struct {
	f       *os.File
	pending []byte
}

func (t *tailReader) nextLine() ([]byte, bool) {
	var buf [4096]byte
	for {
		if i := bytes.IndexByte(t.pending, '\n'); i >= 0 {
			line := t.pending[:i]
			t.pending = append([]byte(nil), t.pending[i+1:]...)
			return line, true
		}
		n, err := t.f.Read(buf[:])
		if n > 0 {
			t.pending = append(t.pending, buf[:n]...)
			continue
		}
		if err != nil {
			// EOF or read error: no complete line available right now.
			return nil, false
		}
		return nil, false
	}
}
