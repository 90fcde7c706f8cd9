// Package runlock provides an exclusive cross-process lock guarding the
// remediation pipeline. Only one cycle may mutate host state at a time,
// regardless of how many trigger loops or processes are running.
package runlock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/remedy/pkg/domain/model/errs"
	"github.com/secmon-lab/remedy/pkg/utils/logging"
)

const pollInterval = 100 * time.Millisecond

// Lock is an advisory flock-based lock. The kernel drops the lock when the
// holding process exits, so release is tied to process lifetime and an
// abnormal termination never leaves the lock stuck.
type Lock struct {
	path string

	mu   sync.Mutex
	file *os.File
}

func New(path string) *Lock {
	return &Lock{path: path}
}

// TryAcquire attempts the lock once without blocking.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return false, goerr.New("run lock already held by this instance",
			goerr.V("path", l.path),
		)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return false, goerr.Wrap(err, "failed to create lock directory",
			goerr.V("path", l.path),
			goerr.Tag(errs.TagConfiguration),
		)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return false, goerr.Wrap(err, "failed to open lock file",
			goerr.V("path", l.path),
			goerr.Tag(errs.TagConfiguration),
		)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if err == syscall.EWOULDBLOCK {
			return false, nil
		}
		return false, goerr.Wrap(err, "flock failed", goerr.V("path", l.path))
	}

	// PID is diagnostic only, the flock is the lock
	_ = f.Truncate(0)
	_, _ = f.WriteAt([]byte(fmt.Sprintf("%d\n", os.Getpid())), 0)

	l.file = f
	return true, nil
}

// Acquire blocks until the lock is obtained or the timeout elapses. On
// timeout it returns a TagLockContention error and the caller must skip the
// cycle rather than proceed unlocked.
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		ok, err := l.TryAcquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		if time.Now().After(deadline) {
			return goerr.New("run lock held by another process",
				goerr.V("path", l.path),
				goerr.V("timeout", timeout.String()),
				goerr.Tag(errs.TagLockContention),
			)
		}

		select {
		case <-ctx.Done():
			return goerr.Wrap(ctx.Err(), "canceled while waiting for run lock",
				goerr.V("path", l.path),
			)
		case <-time.After(pollInterval):
		}
	}
}

// Release drops the lock. Safe to call when not held.
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		logging.From(ctx).Warn("failed to unlock run lock file",
			"path", l.path, "error", err,
		)
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return goerr.Wrap(err, "failed to close lock file", goerr.V("path", l.path))
	}
	return nil
}

// Held reports whether this instance currently holds the lock.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file != nil
}
