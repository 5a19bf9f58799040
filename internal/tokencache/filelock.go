package tokencache

import (
	"fmt"
	"os"
	"time"
)

// fileLock coordinates cache writes across overlapping CLI invocations
// (two cron jobs racing). It uses a sibling lock file created with
// O_EXCL; locks older than staleAfter are assumed abandoned and removed.
type fileLock struct {
	lockFile *os.File
	lockPath string
}

const (
	lockRetries    = 50
	lockRetryDelay = 100 * time.Millisecond
	staleAfter     = 30 * time.Second
)

func acquireFileLock(path string) (*fileLock, error) {
	lockPath := path + ".lock"

	for i := 0; i < lockRetries; i++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			// PID in the lock file helps debugging abandoned locks.
			fmt.Fprintf(f, "%d", os.Getpid())
			return &fileLock{lockFile: f, lockPath: lockPath}, nil
		}

		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > staleAfter {
			if remErr := os.Remove(lockPath); remErr != nil && !os.IsNotExist(remErr) {
				return nil, fmt.Errorf("failed to remove stale lock file %s: %w", lockPath, remErr)
			}
			continue
		}

		time.Sleep(lockRetryDelay)
	}

	return nil, fmt.Errorf("timeout waiting for lock on %s", lockPath)
}

func (fl *fileLock) release() error {
	if fl.lockFile != nil {
		fl.lockFile.Close()
	}
	return os.Remove(fl.lockPath)
}
