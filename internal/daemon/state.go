package daemon

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"

	"detectd/internal/services"
)

// State is the daemon's position in the job lifecycle.
type State int32

const (
	StateIdle State = iota
	StateTriggered
	StateLoading
	StateDetecting
	StateAggregating
	StatePublishing
)

var stateNames = [...]string{"idle", "triggered", "loading", "detecting", "aggregating", "publishing"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

// LockHeld reports whether another process holds the daemon lock at path.
// It briefly takes the lock itself when it is free.
func LockHeld(path string) (bool, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe lock: %w", err)
	}
	if !ok {
		return true, nil
	}
	if err := lock.Unlock(); err != nil {
		return false, errors.Join(errors.New("release probe lock"), err)
	}
	return false, nil
}

// InstanceLock is the single-instance lock held for the life of a daemon
// process.
type InstanceLock struct {
	path string
	lock *flock.Flock
}

// AcquireLock takes the instance lock at path without blocking. A lock held
// by another process is an initialization failure.
func AcquireLock(path string) (*InstanceLock, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrInitialization, "daemon", "acquire lock", path, err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrInitialization, "daemon", "acquire lock", "another detectd instance is already running", nil)
	}
	return &InstanceLock{path: path, lock: lock}, nil
}

// Path returns the lock file path.
func (l *InstanceLock) Path() string {
	return l.path
}

// Release drops the lock. It is safe to call more than once.
func (l *InstanceLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
