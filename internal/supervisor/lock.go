package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryInterval is the interval between attempts to acquire a control
// lock. The check-then-launch sequence is short, so contention clears fast.
const lockRetryInterval = 50 * time.Millisecond

// acquireLock takes the per-name advisory lock guarding the
// check-then-launch critical section. Concurrent Ensure calls for the same
// name, from any process sharing the control root, serialize here.
func acquireLock(ctx context.Context, path string) (*flock.Flock, error) {
	fl := flock.New(path)
	locked, err := fl.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("acquiring control lock %s: %w", path, err)
	}
	if !locked {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("acquiring control lock %s: %w", path, ctx.Err())
		}
		return nil, fmt.Errorf("acquiring control lock %s: lock not acquired", path)
	}
	return fl, nil
}

// releaseLock is best-effort; the lock file stays on disk so a concurrent
// acquirer is never invalidated by an unlink.
func releaseLock(log *slog.Logger, fl *flock.Flock) {
	if fl == nil {
		return
	}
	if err := fl.Close(); err != nil {
		log.Debug("failed to release control lock", "path", fl.Path(), "err", err)
	}
}
