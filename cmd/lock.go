package cmd

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/sideassist/sideassist/internal/config"
)

var (
	instanceLock *flock.Flock
	lockMu       sync.Mutex
)

// lockPath is the single-instance lock shared by every session command
func lockPath() string {
	return filepath.Join(config.GetStateDir(), "sideassist.lock")
}

// AcquireLock takes the single-instance lock. It returns false if another
// sideassist session already holds it.
func AcquireLock() (bool, error) {
	lockMu.Lock()
	defer lockMu.Unlock()

	if instanceLock != nil {
		return true, nil
	}
	fl := flock.New(lockPath())
	locked, err := fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", fl.Path(), err)
	}
	if !locked {
		return false, nil
	}
	instanceLock = fl
	return true, nil
}

// ReleaseLock releases the single-instance lock if held
func ReleaseLock() error {
	lockMu.Lock()
	defer lockMu.Unlock()

	if instanceLock == nil {
		return nil
	}
	err := instanceLock.Unlock()
	instanceLock = nil
	return err
}
