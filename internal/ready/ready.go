// Package ready holds the pluggable readiness strategies used when a fresh
// process is launched: the launch command, its environment, and a policy
// that blocks until the process is usable.
package ready

import (
	"errors"
	"os"
	"time"
)

// Polling defaults shared by the strategy variants.
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultLineBudget   = 50
	DefaultWaitTimeout  = 30 * time.Second
)

var (
	ErrNoLaunchArgs   = errors.New("strategy has no launch arguments")
	ErrMissingPattern = errors.New("strategy has no readiness pattern")
	ErrNilPredicate   = errors.New("strategy has no readiness predicate")
)

// Strategy supplies a launch command, an optional environment, and a
// readiness wait evaluated against the live log stream. Wait is called
// exactly once per launch and blocks until ready or exhausted.
type Strategy interface {
	// LaunchArgs is the command and its arguments. Must be non-empty.
	LaunchArgs() []string
	// Environment returns KEY=VALUE overrides; nil means inherit.
	Environment() []string
	// Wait blocks on the open log handle until the process is usable.
	// Returns false when the strategy exhausted its budget.
	Wait(log *os.File) bool
}

// Validate checks a strategy eagerly, before anything is spawned.
// Strategies may add their own checks via a Validate() error method.
func Validate(s Strategy) error {
	if len(s.LaunchArgs()) == 0 {
		return ErrNoLaunchArgs
	}
	if v, ok := s.(interface{ Validate() error }); ok {
		return v.Validate()
	}
	return nil
}
