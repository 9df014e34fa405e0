package orchestrator

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/kylegalloway/taskloop/internal/locks"
	"github.com/kylegalloway/taskloop/internal/state"
	"github.com/kylegalloway/taskloop/internal/tasks"
)

// CleanupResult reports what was cleaned up during startup.
type CleanupResult struct {
	StaleLockRemoved bool
	TempFilesRemoved int
	Recovery         *state.Checkpoint
	RecoveredTasks   []tasks.Task
}

// CleanupStaleState performs startup cleanup: removes a lock file left by a
// dead process, deletes temp files from interrupted atomic writes, and
// loads any checkpoint and queue file a previous run left behind.
//
// The state directory's lock is held for the duration. If another live
// process holds it, CleanupStaleState returns an error wrapping
// locks.ErrLocked and touches nothing.
func CleanupStaleState(stateDir string, stateMgr *state.Manager, taskStore *tasks.TaskStore) (*CleanupResult, error) {
	result := &CleanupResult{}

	// 1. Stale lock (holder process is gone), then hold it ourselves
	if stateDir != "" {
		removed, err := locks.CleanStale(stateDir)
		if err != nil {
			log.Printf("Warning: stale lock cleanup: %v", err)
		}
		lock, err := locks.Acquire(stateDir, "taskloop-cleanup")
		if err != nil {
			return nil, fmt.Errorf("cleanup %s: %w", stateDir, err)
		}
		defer lock.Release()
		result.StaleLockRemoved = removed
	}

	// 2. Orphan temp files from writes that never reached rename
	dirs := []string{stateDir}
	if taskStore != nil {
		if d := filepath.Dir(taskStore.Path()); d != filepath.Clean(stateDir) {
			dirs = append(dirs, d)
		}
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		n, err := removeTempFiles(dir)
		if err != nil {
			log.Printf("Warning: temp file cleanup in %s: %v", dir, err)
		}
		result.TempFilesRemoved += n
	}

	// 3. Crash recovery checkpoint
	if stateMgr != nil && stateMgr.Exists() {
		cp, err := stateMgr.Load()
		if err != nil {
			log.Printf("Warning: could not load recovery state: %v", err)
		} else {
			result.Recovery = cp
			log.Printf("Found recovery state from session %s at iteration %d", cp.SessionID, cp.Iteration)
		}
	}

	// 4. Queue the checkpoint refers to
	if result.Recovery != nil && taskStore != nil && taskStore.Exists() {
		if err := taskStore.Load(); err != nil {
			log.Printf("Warning: could not load tasks file: %v", err)
		} else {
			result.RecoveredTasks = taskStore.Tasks()
		}
	}

	return result, nil
}

func removeTempFiles(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// FormatCleanupResult returns a human-readable summary of cleanup actions.
func FormatCleanupResult(r *CleanupResult) string {
	if r == nil {
		return "No cleanup needed"
	}

	msg := ""
	if r.StaleLockRemoved {
		msg += "Removed stale lock. "
	}
	if r.TempFilesRemoved > 0 {
		msg += fmt.Sprintf("Removed %d temp file(s). ", r.TempFilesRemoved)
	}
	if r.Recovery != nil {
		msg += fmt.Sprintf("Recovery state available (session %s, iteration %d, %d queued).",
			shortSession(r.Recovery.SessionID), r.Recovery.Iteration, len(r.RecoveredTasks))
	}
	if msg == "" {
		msg = "Clean startup, no stale state found."
	}
	return msg
}

func shortSession(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
