package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kylegalloway/taskloop/internal/memory"
	"github.com/kylegalloway/taskloop/internal/sanitize"
	"github.com/kylegalloway/taskloop/internal/state"
	"github.com/kylegalloway/taskloop/internal/tasks"
)

const defaultStoreTimeout = 30 * time.Second

// exitReason records why a loop ended.
type exitReason int

const (
	exitStopped exitReason = iota
	exitQueueEmpty
	exitMaxIterations
)

func newSessionID() string {
	return uuid.NewString()
}

func (o *Orchestrator) run(ctx context.Context, done chan struct{}) {
	reason := o.loop(ctx)
	o.finish(reason, done)
}

func (o *Orchestrator) loop(ctx context.Context) exitReason {
	for {
		if ctx.Err() != nil {
			return exitStopped
		}

		o.mu.Lock()
		switch o.runState {
		case Stopped:
			o.mu.Unlock()
			return exitStopped
		case Paused:
			o.mu.Unlock()
			if !sleepCtx(ctx, o.config.Agent.PausePoll) {
				return exitStopped
			}
			continue
		}
		if o.iteration >= o.config.Agent.MaxIterations {
			o.logLocked(state.LevelInfo, "Reached max iterations (%d)", o.config.Agent.MaxIterations)
			o.mu.Unlock()
			return exitMaxIterations
		}
		t, ok := o.queue.Pop()
		if !ok {
			o.logLocked(state.LevelSuccess, "All tasks completed")
			o.mu.Unlock()
			return exitQueueEmpty
		}
		o.queueVersion++
		o.current = &t
		o.mu.Unlock()

		if !o.iterate(ctx, t) {
			return exitStopped
		}
	}
}

// iterate runs one dequeued task through approval, execution, storage,
// generation and prioritization. It returns false once the run is stopped.
func (o *Orchestrator) iterate(ctx context.Context, t tasks.Task) bool {
	ctx, span := tracer.Start(ctx, "taskloop.iteration",
		trace.WithAttributes(attribute.String("task.id", t.ID)))
	defer span.End()

	approved, ok := o.awaitApproval(ctx, t)
	if !ok {
		o.requeue(t)
		return false
	}
	if !approved {
		o.mu.Lock()
		o.current = nil
		o.stats.TasksRejected++
		o.logLocked(state.LevelWarning, "Task %s rejected: %s", t.ID, t.Name)
		o.mu.Unlock()
		o.persist()
		return true
	}

	o.mu.Lock()
	objective := o.objective
	o.logLocked(state.LevelInfo, "Executing task %s: %s", t.ID, t.Name)
	o.mu.Unlock()

	execCtx, execSpan := tracer.Start(ctx, "taskloop.execute")
	start := time.Now()
	result, err := o.deps.Executor.Execute(execCtx, objective, t.Name)
	elapsed := time.Since(start)
	if err != nil {
		execSpan.RecordError(err)
		execSpan.SetStatus(codes.Error, err.Error())
	}
	execSpan.End()

	if err != nil {
		if ctx.Err() != nil {
			o.requeue(t)
			return false
		}
		o.mu.Lock()
		o.current = nil
		o.stats.RecordFailure()
		o.iteration++
		o.logLocked(state.LevelError, "Task %s failed: %v", t.ID, err)
		o.mu.Unlock()
		o.persist()
		return sleepCtx(ctx, o.config.Agent.ErrorBackoff)
	}

	o.mu.Lock()
	o.current = nil
	o.completed.Push(tasks.CompletedTask{
		TaskID:        t.ID,
		TaskName:      t.Name,
		Result:        sanitize.Preview(result, o.config.Agent.ResultPreviewChars),
		CompletedAt:   time.Now(),
		ExecutionTime: elapsed.Seconds(),
	})
	o.stats.RecordSuccess(elapsed)
	o.iteration++
	o.logLocked(state.LevelSuccess, "Completed task %s in %.1fs", t.ID, elapsed.Seconds())
	o.mu.Unlock()

	o.storeResult(ctx, t, result)
	if ctx.Err() == nil {
		o.generate(ctx, t, result, objective)
	}
	if ctx.Err() == nil {
		o.prioritize(ctx, t.ID, objective)
	}
	o.persist()

	return sleepCtx(ctx, o.config.Agent.IterationDelay)
}

// awaitApproval blocks until the pending task is decided, the approval
// timeout elapses, or ctx is cancelled. ok is false only on cancellation.
func (o *Orchestrator) awaitApproval(ctx context.Context, t tasks.Task) (approved, ok bool) {
	if !o.config.Approval.Required {
		return true, ctx.Err() == nil
	}

	_, span := tracer.Start(ctx, "taskloop.approval")
	defer span.End()

	decision := make(chan bool, 1)
	o.mu.Lock()
	o.gate = &approvalGate{
		PendingApproval: PendingApproval{Task: t, RequestedAt: time.Now()},
		decision:        decision,
	}
	o.logLocked(state.LevelInfo, "Task %s awaiting approval: %s", t.ID, t.Name)
	o.mu.Unlock()

	timer := time.NewTimer(o.config.Approval.Timeout)
	defer timer.Stop()

	select {
	case approved = <-decision:
		o.mu.Lock()
		o.gate = nil
		o.mu.Unlock()
		span.SetAttributes(attribute.Bool("approval.approved", approved))
		return approved, true

	case <-timer.C:
		o.mu.Lock()
		defer o.mu.Unlock()
		gate := o.gate
		o.gate = nil
		if gate != nil && gate.Approved != nil {
			// decided in the same instant the timer fired
			return *gate.Approved, true
		}
		o.logLocked(state.LevelWarning, "Approval for task %s timed out after %v, auto-approving",
			t.ID, o.config.Approval.Timeout)
		span.SetAttributes(attribute.Bool("approval.timed_out", true))
		return true, true

	case <-ctx.Done():
		o.mu.Lock()
		o.gate = nil
		o.mu.Unlock()
		return false, false
	}
}

// requeue returns an interrupted task to the front of the queue.
func (o *Orchestrator) requeue(t tasks.Task) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.current = nil
	o.queue.PushFront(t)
	o.queueVersion++
	o.logLocked(state.LevelInfo, "Task %s returned to the queue", t.ID)
}

// storeResult commits a completed task's result to the vector store. It
// runs to completion even after Stop, bounded by the LLM request timeout.
func (o *Orchestrator) storeResult(ctx context.Context, t tasks.Task, result string) {
	if o.deps.Embedder == nil || o.deps.Store == nil {
		return
	}
	bound := o.config.LLM.RequestTimeout
	if bound <= 0 {
		bound = defaultStoreTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bound)
	defer cancel()
	ctx, span := tracer.Start(ctx, "taskloop.store")
	defer span.End()

	rec := memory.Record{
		TaskID:    t.ID,
		TaskName:  t.Name,
		Result:    result,
		Embedding: o.deps.Embedder.Embed(ctx, result),
	}
	if err := o.deps.Store.Store(ctx, rec); err != nil {
		span.RecordError(err)
		o.logf(state.LevelWarning, "Could not store result of task %s: %v", t.ID, err)
	}
}

func (o *Orchestrator) generate(ctx context.Context, t tasks.Task, result, objective string) {
	ctx, span := tracer.Start(ctx, "taskloop.create")
	defer span.End()

	o.mu.Lock()
	pending := o.queue.Names()
	o.mu.Unlock()

	created, err := o.deps.Creator.Create(ctx, objective, t.Name, result, pending)
	if err != nil {
		span.RecordError(err)
		o.logf(state.LevelWarning, "Task creation failed: %v", err)
		return
	}
	if limit := o.config.Agent.MaxNewTasks; len(created) > limit {
		created = created[:limit]
	}
	span.SetAttributes(attribute.Int("tasks.created", len(created)))
	if len(created) == 0 {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, nt := range created {
		added := o.newTaskLocked(nt.Name)
		o.logLocked(state.LevelInfo, "New task %s: %s", added.ID, added.Name)
	}
	o.stats.TasksGenerated += len(created)
}

func (o *Orchestrator) prioritize(ctx context.Context, completedID, objective string) {
	o.mu.Lock()
	snapshot := o.queue.Tasks()
	version := o.queueVersion
	o.mu.Unlock()
	if len(snapshot) == 0 {
		return
	}

	ctx, span := tracer.Start(ctx, "taskloop.prioritize",
		trace.WithAttributes(attribute.Int("tasks.queued", len(snapshot))))
	defer span.End()

	res, err := o.deps.Prioritizer.Prioritize(ctx, completedID, snapshot, objective)
	if err != nil {
		span.RecordError(err)
		o.logf(state.LevelWarning, "Prioritization failed, keeping current order: %v", err)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.queueVersion != version {
		o.logLocked(state.LevelWarning, "Queue changed during prioritization, keeping current order")
		return
	}
	for _, name := range res.Dropped {
		o.logLocked(state.LevelWarning, "Prioritizer dropped task: %s", name)
	}
	o.queue.Replace(res.Tasks)
	o.queueVersion++
	o.bumpCounterLocked(res.Tasks)
}

// persist writes the checkpoint and the queue file.
func (o *Orchestrator) persist() {
	if o.deps.StateMgr == nil && o.deps.TaskStore == nil {
		return
	}
	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	o.mu.Lock()
	cp := o.checkpointLocked()
	tf := o.taskFileLocked()
	o.mu.Unlock()

	if o.deps.StateMgr != nil {
		if err := o.deps.StateMgr.Save(cp); err != nil {
			o.logf(state.LevelWarning, "Could not save checkpoint: %v", err)
		}
	}
	o.saveTaskFile(tf)
}

func (o *Orchestrator) saveTaskFile(tf *tasks.TaskFile) {
	if o.deps.TaskStore == nil {
		return
	}
	o.deps.TaskStore.SetFile(tf)
	if err := o.deps.TaskStore.Save(); err != nil {
		o.logf(state.LevelWarning, "Could not save tasks file: %v", err)
	}
}

func (o *Orchestrator) saveSessions(sessions []state.Session) error {
	if o.deps.StateMgr == nil {
		return nil
	}
	o.persistMu.Lock()
	defer o.persistMu.Unlock()
	return o.deps.StateMgr.SaveSessions(sessions)
}

func (o *Orchestrator) checkpointLocked() *state.Checkpoint {
	return &state.Checkpoint{
		SessionID:   o.sessionID,
		Objective:   o.objective,
		Iteration:   o.iteration,
		TaskCounter: o.taskCounter,
		Stats:       o.stats,
		Completed:   o.completed.Items(),
		StartTime:   o.startTime,
	}
}

func (o *Orchestrator) taskFileLocked() *tasks.TaskFile {
	return &tasks.TaskFile{
		SchemaVersion: 1,
		SessionID:     o.sessionID,
		Objective:     o.objective,
		TaskCounter:   o.taskCounter,
		Tasks:         o.queue.Tasks(),
	}
}

// finish records the session and releases the run. The checkpoint survives
// a stop so the run can be resumed, and is removed when the run ends on its
// own.
func (o *Orchestrator) finish(reason exitReason, done chan struct{}) {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.current = nil
	o.gate = nil
	o.runState = Stopped
	session := o.snapshotLocked()
	o.history.Push(session)
	sessions := o.history.Items()
	o.logLocked(state.LevelInfo, "Session %s finished after %d iteration(s)", session.ID, session.Iterations)
	o.mu.Unlock()

	if err := o.saveSessions(sessions); err != nil {
		o.logf(state.LevelWarning, "Could not save session history: %v", err)
	}

	if reason == exitStopped {
		o.persist()
	} else {
		o.persistMu.Lock()
		o.mu.Lock()
		tf := o.taskFileLocked()
		o.mu.Unlock()
		o.saveTaskFile(tf)
		if o.deps.StateMgr != nil {
			if err := o.deps.StateMgr.Remove(); err != nil {
				o.logf(state.LevelWarning, "Could not remove checkpoint: %v", err)
			}
		}
		o.persistMu.Unlock()
	}

	close(done)
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
