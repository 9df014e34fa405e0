package state

import (
	"time"

	"github.com/kylegalloway/taskloop/internal/tasks"
)

// Log levels.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// LogEntry is one line of the in-memory activity log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Stats are cumulative execution counters.
type Stats struct {
	TasksCompleted   int     `json:"tasks_completed"`
	TasksGenerated   int     `json:"tasks_generated"`
	TasksRejected    int     `json:"tasks_rejected"`
	TasksFailed      int     `json:"tasks_failed"`
	AvgExecutionTime float64 `json:"avg_execution_time"` // seconds
}

// RecordSuccess counts one successful execution and folds its duration
// into the running mean.
func (s *Stats) RecordSuccess(d time.Duration) {
	s.TasksCompleted++
	n := float64(s.TasksCompleted)
	s.AvgExecutionTime = (s.AvgExecutionTime*(n-1) + d.Seconds()) / n
}

// RecordFailure counts one failed execution.
func (s *Stats) RecordFailure() {
	s.TasksFailed++
}

// SuccessRate is the percentage of executions that did not fail. With no
// executions yet it is 100.
func (s Stats) SuccessRate() float64 {
	total := s.TasksCompleted + s.TasksFailed
	if total == 0 {
		return 100
	}
	return float64(s.TasksCompleted) / float64(total) * 100
}

// Session is an immutable record of one start-to-stop run.
type Session struct {
	ID             string                `json:"id"`
	StartTime      time.Time             `json:"start_time"`
	EndTime        time.Time             `json:"end_time"`
	Objective      string                `json:"objective"`
	Iterations     int                   `json:"iterations"`
	CompletedTasks []tasks.CompletedTask `json:"completed_tasks"`
	Stats          Stats                 `json:"stats"`
	Logs           []LogEntry            `json:"logs"`
}

// Duration is how long the session ran.
func (s Session) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}
