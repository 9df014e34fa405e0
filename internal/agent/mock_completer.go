package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kylegalloway/taskloop/internal/config"
)

// MockCompleter implements Completer with predetermined replies per role,
// for tests and dry runs.
type MockCompleter struct {
	// Responses maps a role to its scripted reply. Roles without an entry
	// get a default: no new tasks, the queue echoed back unchanged, and a
	// short canned result.
	Responses map[string]MockResponse
	// Delay is how long each call takes. The wait honors ctx.
	Delay time.Duration

	mu    sync.Mutex
	calls []MockCall
}

// MockResponse defines what one role answers.
type MockResponse struct {
	Output string
	Err    error
	// Func, when set, computes the reply from the prompt instead of Output.
	Func func(prompt string) (string, error)
}

// MockCall records one Complete invocation.
type MockCall struct {
	Role     string
	Prompt   string
	Sampling config.Sampling
}

func (m *MockCompleter) Complete(ctx context.Context, prompt string, s config.Sampling) (string, error) {
	role := RoleOf(prompt)
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Role: role, Prompt: prompt, Sampling: s})
	resp, scripted := m.Responses[role]
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if scripted {
		if resp.Func != nil {
			return resp.Func(prompt)
		}
		return resp.Output, resp.Err
	}

	switch role {
	case RolePrioritization:
		return EchoPriorityList(prompt), nil
	case RoleExecution:
		return "Task completed.", nil
	}
	return "", nil
}

// Calls returns the recorded calls for role, or all calls when role is "".
func (m *MockCompleter) Calls(role string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MockCall
	for _, c := range m.calls {
		if role == "" || c.Role == role {
			out = append(out, c)
		}
	}
	return out
}

// EchoPriorityList answers a prioritization prompt with its own task list,
// in the offered order and with the offered labels.
func EchoPriorityList(prompt string) string {
	_, rest, ok := strings.Cut(prompt, priorityListHeader+"\n")
	if !ok {
		return ""
	}
	list, _, _ := strings.Cut(rest, "\n\n")
	return list
}

// MockEmbedder returns the same vector for every input.
type MockEmbedder struct {
	Vector []float64
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) []float64 {
	out := make([]float64, len(m.Vector))
	copy(out, m.Vector)
	return out
}
