package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/kylegalloway/taskloop/internal/agent"
	"github.com/kylegalloway/taskloop/internal/config"
	"github.com/kylegalloway/taskloop/internal/memory"
	"github.com/kylegalloway/taskloop/internal/sanitize"
	"github.com/kylegalloway/taskloop/internal/state"
	"github.com/kylegalloway/taskloop/internal/tasks"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrEmptyTask         = errors.New("task name is empty")
	ErrEmptyObjective    = errors.New("objective is empty")
	ErrNoPendingApproval = errors.New("no task is awaiting approval")
	ErrApprovalMismatch  = errors.New("task is not the one awaiting approval")
	ErrNotStopped        = errors.New("agent is not stopped")
	ErrNoSession         = errors.New("no session has been started")
)

// statusLogLines is how many log entries Status returns.
const statusLogLines = 50

var tracer = otel.Tracer("github.com/kylegalloway/taskloop/internal/orchestrator")

// RunState is the loop's lifecycle state.
type RunState string

const (
	Stopped RunState = "stopped"
	Running RunState = "running"
	Paused  RunState = "paused"
)

// TaskCreator proposes follow-on tasks.
type TaskCreator interface {
	Create(ctx context.Context, objective, lastTask, lastResult string, pending []string) ([]tasks.Task, error)
}

// TaskPrioritizer reorders the queue.
type TaskPrioritizer interface {
	Prioritize(ctx context.Context, completedID string, queue []tasks.Task, objective string) (agent.Prioritized, error)
}

// TaskExecutor carries out one task.
type TaskExecutor interface {
	Execute(ctx context.Context, objective, task string) (string, error)
}

// Deps are the collaborators the loop drives. Embedder and Store may be nil,
// in which case results are not stored. StateMgr and TaskStore may be nil,
// in which case nothing is persisted.
type Deps struct {
	Creator     TaskCreator
	Prioritizer TaskPrioritizer
	Executor    TaskExecutor
	Embedder    agent.Embedder
	Store       memory.Store
	StateMgr    *state.Manager
	TaskStore   *tasks.TaskStore
	Logger      *log.Logger
}

// PendingApproval is a dequeued task waiting at the approval gate.
type PendingApproval struct {
	Task        tasks.Task
	Approved    *bool
	RequestedAt time.Time
}

type approvalGate struct {
	PendingApproval
	decision chan bool
}

// Status is a consistent snapshot of the agent for display.
type Status struct {
	Objective       string
	RunState        RunState
	SessionID       string
	Iteration       int
	MaxIterations   int
	StartTime       time.Time
	Queue           []tasks.Task
	CurrentTask     *tasks.Task
	Completed       []tasks.CompletedTask
	PendingApproval *PendingApproval
	Stats           state.Stats
	SuccessRate     float64
	Logs            []state.LogEntry
	Sessions        []state.Session
}

// Orchestrator owns the task queue and runs the execution loop in the
// background. All methods are safe for concurrent use.
type Orchestrator struct {
	config *config.Config
	deps   Deps
	logger *log.Logger

	mu           sync.Mutex
	objective    string
	queue        *tasks.Queue
	queueVersion uint64
	taskCounter  int
	current      *tasks.Task
	iteration    int
	runState     RunState
	stats        state.Stats
	completed    *Ring[tasks.CompletedTask]
	logs         *Ring[state.LogEntry]
	history      *Ring[state.Session]
	gate         *approvalGate
	sessionID    string
	startTime    time.Time
	resumed      bool
	cancel       context.CancelFunc
	done         chan struct{}

	persistMu sync.Mutex
}

// New creates an Orchestrator in the Stopped state with an empty queue.
// Session history is loaded from deps.StateMgr when present.
func New(cfg *config.Config, deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	o := &Orchestrator{
		config:    cfg,
		deps:      deps,
		logger:    logger,
		objective: cfg.Agent.Objective,
		queue:     tasks.NewQueue(),
		runState:  Stopped,
		completed: NewRing[tasks.CompletedTask](cfg.Agent.CompletedCapacity),
		logs:      NewRing[state.LogEntry](cfg.Agent.LogCapacity),
		history:   NewRing[state.Session](cfg.Agent.HistoryCapacity),
	}

	if deps.StateMgr != nil {
		sessions, err := deps.StateMgr.LoadSessions()
		if err != nil {
			logger.Printf("Warning: could not load session history: %v", err)
		}
		for _, s := range sessions {
			o.history.Push(s)
		}
	}
	return o
}

// Start moves Stopped to Running and launches the loop. It returns false
// if the agent is already running or paused. If a previous loop is still
// winding down after Stop, Start waits for it first.
func (o *Orchestrator) Start(ctx context.Context) bool {
	o.mu.Lock()
	if o.runState != Stopped {
		o.mu.Unlock()
		return false
	}
	prev := o.done
	o.mu.Unlock()

	if prev != nil {
		<-prev
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runState != Stopped || o.done != prev {
		return false
	}

	if o.resumed {
		o.resumed = false
		o.logLocked(state.LevelInfo, "Resuming session %s at iteration %d", o.sessionID, o.iteration)
	} else {
		o.iteration = 0
		o.completed.Clear()
		o.sessionID = newSessionID()
		o.startTime = time.Now()
		o.logLocked(state.LevelInfo, "Agent started with objective: %s", o.objective)
	}
	if o.queue.Len() == 0 {
		first := o.newTaskLocked(o.config.Agent.FirstTask)
		o.logLocked(state.LevelInfo, "Seeded first task %s: %s", first.ID, first.Name)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.cancel = cancel
	o.done = done
	o.runState = Running

	go o.run(runCtx, done)
	return true
}

// Pause toggles Running and Paused and returns the new state. It does
// nothing when Stopped.
func (o *Orchestrator) Pause() RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.runState {
	case Running:
		o.runState = Paused
		o.logLocked(state.LevelInfo, "Agent paused")
	case Paused:
		o.runState = Running
		o.logLocked(state.LevelInfo, "Agent resumed")
	}
	return o.runState
}

// Stop halts the loop. It is idempotent and safe at any point, including
// while a task waits for approval. A task that was dequeued but not yet
// completed goes back to the front of the queue.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
	if o.runState == Stopped {
		return
	}
	o.runState = Stopped
	o.logLocked(state.LevelInfo, "Agent stopped")
}

// Wait blocks until the current loop, if any, has exited.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Done returns a channel closed when the current loop exits, or nil if no
// loop was ever started.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// SetObjective replaces the objective used by subsequent prompts.
func (o *Orchestrator) SetObjective(objective string) error {
	objective = strings.TrimSpace(objective)
	if objective == "" {
		return ErrEmptyObjective
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objective = objective
	o.logLocked(state.LevelInfo, "Objective updated: %s", objective)
	return nil
}

// AddTask appends a task with the next counter ID.
func (o *Orchestrator) AddTask(name string) (tasks.Task, error) {
	name = sanitize.TaskName(name)
	if name == "" {
		return tasks.Task{}, ErrEmptyTask
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	t := o.newTaskLocked(name)
	o.logLocked(state.LevelInfo, "Added task %s: %s", t.ID, t.Name)
	return t, nil
}

// EditTask renames the first queued task with the given ID.
func (o *Orchestrator) EditTask(id, name string) error {
	name = sanitize.TaskName(name)
	if name == "" {
		return ErrEmptyTask
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.queue.Edit(id, name) {
		return fmt.Errorf("edit task %s: %w", id, ErrTaskNotFound)
	}
	o.queueVersion++
	o.logLocked(state.LevelInfo, "Edited task %s: %s", id, name)
	return nil
}

// RemoveTask deletes every queued task with the given ID.
func (o *Orchestrator) RemoveTask(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := o.queue.Remove(id)
	if n == 0 {
		return fmt.Errorf("remove task %s: %w", id, ErrTaskNotFound)
	}
	o.queueVersion++
	o.logLocked(state.LevelInfo, "Removed task %s", id)
	return nil
}

// ClearTasks empties the queue and returns how many tasks were removed.
func (o *Orchestrator) ClearTasks() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := o.queue.Len()
	o.queue.Clear()
	o.queueVersion++
	o.logLocked(state.LevelInfo, "Cleared %d task(s)", n)
	return n
}

// Approve decides the task waiting at the approval gate.
func (o *Orchestrator) Approve(approved bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gate == nil || o.gate.Approved != nil {
		return ErrNoPendingApproval
	}
	return o.decideLocked(approved)
}

// ApproveTask is Approve guarded by the task ID, so a decision made for a
// task that already moved on is not applied to the next one.
func (o *Orchestrator) ApproveTask(id string, approved bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gate == nil || o.gate.Approved != nil {
		return ErrNoPendingApproval
	}
	if o.gate.Task.ID != id {
		return fmt.Errorf("approve %s (pending %s): %w", id, o.gate.Task.ID, ErrApprovalMismatch)
	}
	return o.decideLocked(approved)
}

func (o *Orchestrator) decideLocked(approved bool) error {
	v := approved
	o.gate.Approved = &v
	o.gate.decision <- approved // buffered; Approved guards against a second send
	return nil
}

// ResetStats zeroes the execution counters.
func (o *Orchestrator) ResetStats() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats = state.Stats{}
	o.logLocked(state.LevelInfo, "Statistics reset")
}

// SaveSession snapshots the current run into session history without
// stopping it.
func (o *Orchestrator) SaveSession() (state.Session, error) {
	o.mu.Lock()
	if o.startTime.IsZero() {
		o.mu.Unlock()
		return state.Session{}, ErrNoSession
	}
	s := o.snapshotLocked()
	o.history.Push(s)
	o.logLocked(state.LevelInfo, "Session %s saved", s.ID)
	sessions := o.history.Items()
	o.mu.Unlock()

	return s, o.saveSessions(sessions)
}

// Restore loads a checkpoint and its queue so the next Start resumes the
// interrupted run instead of beginning a new one.
func (o *Orchestrator) Restore(cp *state.Checkpoint, queue []tasks.Task) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runState != Stopped {
		return ErrNotStopped
	}
	if cp.Objective != "" {
		o.objective = cp.Objective
	}
	o.sessionID = cp.SessionID
	o.startTime = cp.StartTime
	o.iteration = cp.Iteration
	o.taskCounter = cp.TaskCounter
	o.stats = cp.Stats
	o.completed.Clear()
	for _, ct := range cp.Completed {
		o.completed.Push(ct)
	}
	o.queue.Replace(queue)
	o.queueVersion++
	o.bumpCounterLocked(queue)
	o.resumed = true
	return nil
}

// Status returns a consistent snapshot of the agent.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{
		Objective:     o.objective,
		RunState:      o.runState,
		SessionID:     o.sessionID,
		Iteration:     o.iteration,
		MaxIterations: o.config.Agent.MaxIterations,
		StartTime:     o.startTime,
		Queue:         o.queue.Tasks(),
		Completed:     o.completed.Items(),
		Stats:         o.stats,
		SuccessRate:   o.stats.SuccessRate(),
		Logs:          o.logs.Last(statusLogLines),
		Sessions:      o.history.Items(),
	}
	if o.current != nil {
		cur := *o.current
		st.CurrentTask = &cur
	}
	if o.gate != nil {
		pa := o.gate.PendingApproval
		if pa.Approved != nil {
			v := *pa.Approved
			pa.Approved = &v
		}
		st.PendingApproval = &pa
	}
	return st
}

// newTaskLocked appends a task with the next counter ID.
func (o *Orchestrator) newTaskLocked(name string) tasks.Task {
	o.taskCounter++
	t := tasks.Task{ID: strconv.Itoa(o.taskCounter), Name: name}
	o.queue.Push(t)
	o.queueVersion++
	return t
}

// bumpCounterLocked moves the counter past any numeric label in ts so
// generated IDs do not reuse labels the prioritizer handed out.
func (o *Orchestrator) bumpCounterLocked(ts []tasks.Task) {
	for _, t := range ts {
		if n, ok := t.NumericID(); ok && n > o.taskCounter {
			o.taskCounter = n
		}
	}
}

func (o *Orchestrator) logLocked(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	o.logs.Push(state.LogEntry{Time: time.Now(), Level: level, Message: msg})
	switch level {
	case state.LevelWarning:
		o.logger.Printf("Warning: %s", msg)
	case state.LevelError:
		o.logger.Printf("Error: %s", msg)
	default:
		o.logger.Print(msg)
	}
}

func (o *Orchestrator) logf(level, format string, args ...interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.logLocked(level, format, args...)
}

func (o *Orchestrator) snapshotLocked() state.Session {
	return state.Session{
		ID:             o.sessionID,
		StartTime:      o.startTime,
		EndTime:        time.Now(),
		Objective:      o.objective,
		Iterations:     o.iteration,
		CompletedTasks: o.completed.Items(),
		Stats:          o.stats,
		Logs:           o.logs.Items(),
	}
}
