package supervisor

import (
	"os"
	"sync"
)

// Session is the caller-owned registry of open log handles, scoped to one
// test-suite invocation. Repeated Ensure calls for the same name replace
// (and close) the prior handle. The caller closes the session when the
// invocation ends.
type Session struct {
	mu   sync.Mutex
	logs map[string]*os.File
}

func NewSession() *Session {
	return &Session{logs: make(map[string]*os.File)}
}

func (s *Session) attach(name string, f *os.File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.logs[name]; ok && prev != nil {
		_ = prev.Close()
	}
	s.logs[name] = f
}

// Log returns the registered handle for name, or nil.
func (s *Session) Log(name string) *os.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logs[name]
}

// Close closes every registered handle.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for name, f := range s.logs {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.logs, name)
	}
	return firstErr
}
