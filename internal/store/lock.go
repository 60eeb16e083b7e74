package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// locksDirName is the subdirectory for lock files.
// Using a subdirectory avoids modifying the match directory's mtime, which
// would look like an external edit to the watcher on every acquire/release.
const locksDirName = ".locks"

// LockTimeout is the timeout for acquiring the per-directory lock.
const LockTimeout = 2 * time.Second

const (
	dirPerms  = 0o755
	filePerms = 0o644
)

// Lock errors.
var (
	errLockTimeout  = errors.New("lock timeout")
	errLockFileOpen = errors.New("failed to open lock file")
)

// withDirLock executes handler while holding the exclusive per-directory
// lock. Every read-modify-write-rename sequence of the store runs under
// this lock; readers through the cache never take it.
func withDirLock(dir string, handler func() error) error {
	lock, lockErr := acquireDirLock(dir)
	if lockErr != nil {
		return fmt.Errorf("acquiring directory lock: %w", lockErr)
	}

	defer lock.release()

	return handler()
}

// dirLock represents a held lock on a match directory.
type dirLock struct {
	path string
	file *os.File
}

// release releases the lock and removes the lock file.
// Order matters: remove while holding lock, then unlock, then close.
func (l *dirLock) release() {
	if l.file != nil {
		_ = os.Remove(l.path)
		_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
		_ = l.file.Close()
		l.file = nil
	}
}

// acquireDirLock tries to take the directory's exclusive lock with the
// default timeout. The lock file lives in a .locks subdirectory. The race
// between flock acquisition and lock-file deletion is handled by verifying
// the inode after acquiring the lock.
func acquireDirLock(dir string) (*dirLock, error) {
	return acquireDirLockWithTimeout(dir, LockTimeout)
}

func acquireDirLockWithTimeout(dir string, timeout time.Duration) (*dirLock, error) {
	locksDir := filepath.Join(dir, locksDirName)
	lockPath := filepath.Join(locksDir, "dir.lock")

	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: %s", errLockTimeout, dir)
		}

		mkdirErr := os.MkdirAll(locksDir, dirPerms)
		if mkdirErr != nil {
			return nil, fmt.Errorf("creating locks dir: %w", mkdirErr)
		}

		file, openErr := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, filePerms)
		if openErr != nil {
			return nil, fmt.Errorf("%w: %w", errLockFileOpen, openErr)
		}

		// Get inode of the file we opened.
		var openStat syscall.Stat_t

		err := syscall.Fstat(int(file.Fd()), &openStat)
		if err != nil {
			_ = file.Close()

			return nil, fmt.Errorf("fstat lock file: %w", err)
		}

		fd := int(file.Fd())
		done := make(chan error, 1)

		go func() {
			done <- syscall.Flock(fd, syscall.LOCK_EX)
		}()

		select {
		case err := <-done:
			if err != nil {
				_ = file.Close()

				return nil, fmt.Errorf("flock: %w", err)
			}

			// Verify the file at the path still has the same inode.
			// If not, someone deleted and recreated it while we were waiting.
			var pathStat syscall.Stat_t

			statErr := syscall.Stat(lockPath, &pathStat)
			if statErr != nil || pathStat.Ino != openStat.Ino {
				// File was deleted/replaced, retry with new file.
				_ = syscall.Flock(fd, syscall.LOCK_UN)
				_ = file.Close()

				continue
			}

			return &dirLock{path: lockPath, file: file}, nil
		case <-time.After(remaining):
			_ = file.Close()

			return nil, fmt.Errorf("%w: %s", errLockTimeout, dir)
		}
	}
}
