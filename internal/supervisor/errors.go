package supervisor

import "fmt"

// StartupError reports a launch whose readiness strategy gave up. The
// spawned child is intentionally left running: the caller decides whether
// to inspect the log or terminate the entry.
type StartupError struct {
	Name string
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("could not start process %s", e.Name)
}
