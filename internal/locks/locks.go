// Package locks keeps two taskloop processes from driving the same state
// directory at once.
package locks

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrLocked is returned when another live process holds the lock.
var ErrLocked = errors.New("state directory is in use by another taskloop process")

const lockName = "taskloop.lock"

// Holder describes the process that wrote a lock file.
type Holder struct {
	Owner    string
	PID      int
	Acquired time.Time
}

// Lock is an acquired advisory lock on a state directory.
type Lock struct {
	path string
	file *os.File
}

// Path returns the lock file path for stateDir.
func Path(stateDir string) string {
	return filepath.Join(stateDir, lockName)
}

// Acquire takes a non-blocking exclusive flock on stateDir's lock file and
// records owner, pid, and time in it. The lock is released by Release or
// when the process exits.
func Acquire(stateDir, owner string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	path := Path(stateDir)

	for attempt := 0; attempt < maxAcquireAttempts; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open lock file %s: %w", path, err)
		}

		if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
			f.Close()
			if h, herr := ReadHolder(stateDir); herr == nil {
				return nil, fmt.Errorf("%w (pid %d, owner %s, since %s)",
					ErrLocked, h.PID, h.Owner, h.Acquired.Format(time.RFC3339))
			}
			return nil, fmt.Errorf("%w: %v", ErrLocked, err)
		}

		// A releasing holder unlinks the file while still locked; if that
		// happened between our open and flock we locked a dead inode.
		if !stillLinked(f, path) {
			f.Close()
			continue
		}

		f.Truncate(0)
		f.Seek(0, 0)
		fmt.Fprintf(f, "%s %d %s\n", owner, os.Getpid(), time.Now().Format(time.RFC3339))

		return &Lock{path: path, file: f}, nil
	}
	return nil, fmt.Errorf("%w: lock file %s kept changing", ErrLocked, path)
}

const maxAcquireAttempts = 5

// stillLinked reports whether f is the file currently at path.
func stillLinked(f *os.File, path string) bool {
	held, err := f.Stat()
	if err != nil {
		return false
	}
	current, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(held, current)
}

// Release removes the lock file and then unlocks it. Safe to call more
// than once.
func (l *Lock) Release() {
	if l == nil || l.file == nil {
		return
	}
	os.Remove(l.path)
	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	l.file.Close()
	l.file = nil
}

// ReadHolder parses the metadata line from stateDir's lock file.
func ReadHolder(stateDir string) (Holder, error) {
	data, err := os.ReadFile(Path(stateDir))
	if err != nil {
		return Holder{}, fmt.Errorf("read lock file: %w", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) != 3 {
		return Holder{}, fmt.Errorf("malformed lock file: %q", strings.TrimSpace(string(data)))
	}
	pid, err := strconv.Atoi(fields[1])
	if err != nil {
		return Holder{}, fmt.Errorf("malformed lock pid %q: %w", fields[1], err)
	}
	at, err := time.Parse(time.RFC3339, fields[2])
	if err != nil {
		return Holder{}, fmt.Errorf("malformed lock time %q: %w", fields[2], err)
	}
	return Holder{Owner: fields[0], PID: pid, Acquired: at}, nil
}

// CleanStale removes stateDir's lock file when no process holds it.
// It reports whether a stale file was removed.
func CleanStale(stateDir string) (bool, error) {
	path := Path(stateDir)
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("open lock file: %w", err)
	}
	defer f.Close()

	// If we can take the lock, nobody else has it.
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return false, nil
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	// The file we locked may already have been replaced by a live holder's.
	if !stillLinked(f, path) {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, fmt.Errorf("remove stale lock: %w", err)
	}
	return true, nil
}
