package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kylegalloway/taskloop/internal/tasks"
)

// Checkpoint holds the persistent loop state for crash recovery. The queue
// itself lives in the tasks file; the checkpoint records where the run was.
type Checkpoint struct {
	SessionID   string                `json:"session_id"`
	Objective   string                `json:"objective"`
	Iteration   int                   `json:"iteration"`
	TaskCounter int                   `json:"task_counter"`
	Stats       Stats                 `json:"stats"`
	Completed   []tasks.CompletedTask `json:"completed,omitempty"`
	StartTime   time.Time             `json:"start_time"`
	LastSave    time.Time             `json:"last_save"`
}

// Manager handles checkpoint and session history persistence.
type Manager struct {
	path         string
	sessionsPath string
}

// NewManager creates a state Manager rooted at stateDir.
func NewManager(stateDir string) *Manager {
	return &Manager{
		path:         filepath.Join(stateDir, "state.json"),
		sessionsPath: filepath.Join(stateDir, "sessions.json"),
	}
}

// Save persists the checkpoint atomically.
func (m *Manager) Save(cp *Checkpoint) error {
	cp.LastSave = time.Now()
	if err := writeJSON(m.path, "state-*.json.tmp", cp); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Load reads the persisted checkpoint.
func (m *Manager) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}

	return &cp, nil
}

// Exists returns true if a recovery checkpoint exists.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Remove deletes the checkpoint (after a run ends cleanly).
func (m *Manager) Remove() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove state: %w", err)
	}
	return nil
}

// SaveSessions replaces the persisted session history.
func (m *Manager) SaveSessions(sessions []Session) error {
	if sessions == nil {
		sessions = []Session{}
	}
	if err := writeJSON(m.sessionsPath, "sessions-*.json.tmp", sessions); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}
	return nil
}

// LoadSessions reads the persisted session history. A missing file is an
// empty history, not an error.
func (m *Manager) LoadSessions() ([]Session, error) {
	data, err := os.ReadFile(m.sessionsPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}

	var sessions []Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("parse sessions: %w", err)
	}
	return sessions, nil
}

// writeJSON writes v to path via a temp file and rename.
func writeJSON(path, pattern string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
