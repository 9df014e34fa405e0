package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/kylegalloway/taskloop/internal/state"
	"github.com/kylegalloway/taskloop/internal/tasks"
)

// ApprovalDecision represents the human's decision on a dequeued task.
type ApprovalDecision int

const (
	ApprovalApprove ApprovalDecision = iota
	ApprovalReject
	ApprovalStop
)

// CrashRecoveryDecision represents the human's decision when a previous run is found.
type CrashRecoveryDecision int

const (
	RecoveryResume CrashRecoveryDecision = iota
	RecoveryFresh
)

// ApprovalRequest describes a task waiting at the approval gate.
type ApprovalRequest struct {
	Task      tasks.Task
	Objective string
	Queued    int
	Iteration int
}

// Prompter is the interface for human interaction.
type Prompter interface {
	TaskApproval(req ApprovalRequest) ApprovalDecision
	CrashRecoveryPrompt(cp *state.Checkpoint) CrashRecoveryDecision
	Warn(msg string)
	Info(msg string)
}

// TerminalPrompter implements Prompter using terminal I/O.
type TerminalPrompter struct {
	reader *bufio.Reader
	writer io.Writer
	mu     sync.Mutex
}

// NewTerminalPrompter creates a TerminalPrompter using stdin/stdout.
func NewTerminalPrompter() *TerminalPrompter {
	return NewTerminalPrompterIO(os.Stdin, os.Stdout)
}

// NewTerminalPrompterIO creates a TerminalPrompter over arbitrary streams.
func NewTerminalPrompterIO(r io.Reader, w io.Writer) *TerminalPrompter {
	return &TerminalPrompter{
		reader: bufio.NewReader(r),
		writer: w,
	}
}

func (p *TerminalPrompter) TaskApproval(req ApprovalRequest) ApprovalDecision {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.writer, "\nTask %s awaiting approval (iteration %d, %d queued):\n  %s\n",
		req.Task.ID, req.Iteration+1, req.Queued, req.Task.Name)
	fmt.Fprintf(p.writer, "  (a)pprove / (r)eject / (s)top? ")
	line, err := p.reader.ReadString('\n')
	if err != nil && line == "" {
		// stdin closed: nobody is there to answer
		return ApprovalStop
	}
	switch strings.TrimSpace(strings.ToLower(line)) {
	case "a", "approve", "y", "yes":
		return ApprovalApprove
	case "r", "reject", "n", "no":
		return ApprovalReject
	case "s", "stop", "q", "quit":
		return ApprovalStop
	default:
		return ApprovalReject
	}
}

func (p *TerminalPrompter) CrashRecoveryPrompt(cp *state.Checkpoint) CrashRecoveryDecision {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.writer, "\nPrevious run found: %s\n", cp.SessionID)
	fmt.Fprintf(p.writer, "  Objective: %s\n", cp.Objective)
	fmt.Fprintf(p.writer, "  Iteration: %d, tasks completed: %d\n", cp.Iteration, cp.Stats.TasksCompleted)
	fmt.Fprintf(p.writer, "  Last saved: %s\n", cp.LastSave.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(p.writer, "\n(r)esume / (f)resh? ")
	line, _ := p.reader.ReadString('\n')
	switch strings.TrimSpace(strings.ToLower(line)) {
	case "r", "resume":
		return RecoveryResume
	default:
		return RecoveryFresh
	}
}

func (p *TerminalPrompter) Warn(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.writer, "WARNING: %s\n", msg)
}

func (p *TerminalPrompter) Info(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.writer, "%s\n", msg)
}

// ScriptedPrompter implements Prompter with predetermined decisions for
// testing and unattended runs.
type ScriptedPrompter struct {
	ApprovalDecisions []ApprovalDecision
	RecoveryDecisions []CrashRecoveryDecision
	Messages          []string
	// Quiet suppresses echoing messages to stderr.
	Quiet bool

	mu          sync.Mutex
	approvalIdx int
	recoveryIdx int
}

// TaskApproval returns the next scripted decision. Once the script runs out
// every task is approved.
func (p *ScriptedPrompter) TaskApproval(req ApprovalRequest) ApprovalDecision {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.approvalIdx < len(p.ApprovalDecisions) {
		d := p.ApprovalDecisions[p.approvalIdx]
		p.approvalIdx++
		return d
	}
	return ApprovalApprove
}

func (p *ScriptedPrompter) CrashRecoveryPrompt(cp *state.Checkpoint) CrashRecoveryDecision {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.recoveryIdx < len(p.RecoveryDecisions) {
		d := p.RecoveryDecisions[p.recoveryIdx]
		p.recoveryIdx++
		return d
	}
	return RecoveryFresh
}

// NewScriptedPrompterFromFile creates a ScriptedPrompter by reading decisions from a file.
// File format: one decision per line (approve/reject/stop/recovery-resume/recovery-fresh).
// Blank lines and lines starting with # are ignored.
func NewScriptedPrompterFromFile(path string) (*ScriptedPrompter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read decisions: %w", err)
	}

	p := &ScriptedPrompter{}
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch strings.ToLower(line) {
		case "approve":
			p.ApprovalDecisions = append(p.ApprovalDecisions, ApprovalApprove)
		case "reject":
			p.ApprovalDecisions = append(p.ApprovalDecisions, ApprovalReject)
		case "stop":
			p.ApprovalDecisions = append(p.ApprovalDecisions, ApprovalStop)
		case "recovery-resume":
			p.RecoveryDecisions = append(p.RecoveryDecisions, RecoveryResume)
		case "recovery-fresh":
			p.RecoveryDecisions = append(p.RecoveryDecisions, RecoveryFresh)
		default:
			return nil, fmt.Errorf("decisions line %d: unknown decision %q", i+1, line)
		}
	}
	return p, nil
}

func (p *ScriptedPrompter) Warn(msg string) {
	p.record("WARN: " + msg)
	if !p.Quiet {
		fmt.Fprintf(os.Stderr, "WARNING: %s\n", msg)
	}
}

func (p *ScriptedPrompter) Info(msg string) {
	p.record(msg)
	if !p.Quiet {
		fmt.Fprintf(os.Stderr, "%s\n", msg)
	}
}

func (p *ScriptedPrompter) record(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Messages = append(p.Messages, msg)
}
