package tasks

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Task is one unit of queued work. IDs are string labels: generated tasks get
// the decimal form of a shared counter, prioritized tasks get whatever label
// the model wrote, so uniqueness is not guaranteed.
type Task struct {
	ID   string `yaml:"task_id" json:"task_id"`
	Name string `yaml:"task_name" json:"task_name"`
}

// CompletedTask records one successful execution. Never mutated after creation.
type CompletedTask struct {
	TaskID        string    `yaml:"task_id" json:"task_id"`
	TaskName      string    `yaml:"task_name" json:"task_name"`
	Result        string    `yaml:"result" json:"result"`
	CompletedAt   time.Time `yaml:"completed_at" json:"completed_at"`
	ExecutionTime float64   `yaml:"execution_time" json:"execution_time"` // seconds
}

// NumericID returns the task ID as an integer, if it is one.
func (t Task) NumericID() (int, bool) {
	n, err := strconv.Atoi(t.ID)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Queue is an ordered FIFO of tasks. It is not safe for concurrent use;
// the orchestrator guards it with its own mutex.
type Queue struct {
	items []Task
}

// NewQueue creates a Queue holding a copy of the given tasks.
func NewQueue(initial ...Task) *Queue {
	q := &Queue{}
	q.items = append(q.items, initial...)
	return q
}

// Push appends a task to the back of the queue.
func (q *Queue) Push(t Task) {
	q.items = append(q.items, t)
}

// PushFront puts a task back at the head of the queue.
func (q *Queue) PushFront(t Task) {
	q.items = append([]Task{t}, q.items...)
}

// Pop removes and returns the task at the head of the queue.
func (q *Queue) Pop() (Task, bool) {
	if len(q.items) == 0 {
		return Task{}, false
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t, true
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	return len(q.items)
}

// Tasks returns a copy of the queued tasks in order.
func (q *Queue) Tasks() []Task {
	out := make([]Task, len(q.items))
	copy(out, q.items)
	return out
}

// Names returns the queued task names in order.
func (q *Queue) Names() []string {
	names := make([]string, len(q.items))
	for i, t := range q.items {
		names[i] = t.Name
	}
	return names
}

// Edit renames the first task with the given ID.
func (q *Queue) Edit(id, name string) bool {
	for i := range q.items {
		if q.items[i].ID == id {
			q.items[i].Name = name
			return true
		}
	}
	return false
}

// Remove deletes every task with the given ID and returns how many were removed.
func (q *Queue) Remove(id string) int {
	kept := q.items[:0]
	removed := 0
	for _, t := range q.items {
		if t.ID == id {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	q.items = kept
	return removed
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.items = nil
}

// Replace swaps the entire queue contents for the given order.
func (q *Queue) Replace(ts []Task) {
	q.items = append([]Task(nil), ts...)
}

// TaskFile represents the top-level tasks.yaml structure.
type TaskFile struct {
	SchemaVersion int    `yaml:"schema_version"`
	SessionID     string `yaml:"session_id,omitempty"`
	Objective     string `yaml:"objective,omitempty"`
	TaskCounter   int    `yaml:"task_counter"`
	Tasks         []Task `yaml:"tasks"`
}

// TaskStore persists the live queue as a human-editable YAML file.
type TaskStore struct {
	path string
	file *TaskFile
}

// NewTaskStore creates a TaskStore from a file path.
func NewTaskStore(path string) *TaskStore {
	return &TaskStore{path: path}
}

// Path returns the backing file path.
func (s *TaskStore) Path() string {
	return s.path
}

// Exists reports whether the task file is present on disk.
func (s *TaskStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the task file from disk.
func (s *TaskStore) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read tasks: %w", err)
	}
	var tf TaskFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("parse tasks: %w", err)
	}
	s.file = &tf
	return nil
}

// Save writes the task file to disk atomically (write-to-temp-then-rename).
func (s *TaskStore) Save() error {
	if s.file == nil {
		return fmt.Errorf("no task file loaded")
	}
	data, err := yaml.Marshal(s.file)
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create tasks dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "tasks-*.yaml.tmp")
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

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Remove deletes the task file if present.
func (s *TaskStore) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove tasks: %w", err)
	}
	return nil
}

// File returns the current in-memory TaskFile.
func (s *TaskStore) File() *TaskFile {
	return s.file
}

// SetFile replaces the in-memory TaskFile.
func (s *TaskStore) SetFile(tf *TaskFile) {
	s.file = tf
}

// Tasks returns the task list.
func (s *TaskStore) Tasks() []Task {
	if s.file == nil {
		return nil
	}
	return s.file.Tasks
}
