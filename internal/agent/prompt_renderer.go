package agent

import (
	"fmt"
	"strings"
)

// Role constants. Each role is one kind of completion call.
const (
	RoleCreation       = "creation"
	RolePrioritization = "prioritization"
	RoleExecution      = "execution"
)

// Section headers shared by the renderers and the prompt-aware fakes.
const (
	creationHeader       = "You are a task creation AI that helps achieve objectives through systematic task generation."
	prioritizationHeader = "You are a task prioritization AI. Your goal is to reorder tasks to best achieve the objective."
	executionHeader      = "You are an AI agent executing a specific task to achieve an objective."

	priorityListHeader = "CURRENT TASKS TO PRIORITIZE:"
	noContext          = "No previous context available."
)

// CreationPromptData holds data for rendering task creation prompts.
type CreationPromptData struct {
	Objective    string
	LastTask     string
	LastResult   string
	PendingTasks []string
}

// PrioritizationPromptData holds data for rendering prioritization prompts.
type PrioritizationPromptData struct {
	Objective string
	FirstID   int
	TaskNames []string
}

// ExecutionPromptData holds data for rendering execution prompts.
type ExecutionPromptData struct {
	Objective string
	Task      string
	Context   []string
}

// DefaultPromptRenderer renders the built-in prompt templates.
type DefaultPromptRenderer struct{}

func (r *DefaultPromptRenderer) RenderPrompt(role string, data interface{}) (string, error) {
	switch role {
	case RoleCreation:
		d, ok := data.(CreationPromptData)
		if !ok {
			return "", fmt.Errorf("invalid data type for creation prompt")
		}
		return renderCreationPrompt(d), nil
	case RolePrioritization:
		d, ok := data.(PrioritizationPromptData)
		if !ok {
			return "", fmt.Errorf("invalid data type for prioritization prompt")
		}
		return renderPrioritizationPrompt(d), nil
	case RoleExecution:
		d, ok := data.(ExecutionPromptData)
		if !ok {
			return "", fmt.Errorf("invalid data type for execution prompt")
		}
		return renderExecutionPrompt(d), nil
	default:
		return "", fmt.Errorf("unknown role: %s", role)
	}
}

// RoleOf reports which role rendered prompt, or "" if none did.
func RoleOf(prompt string) string {
	switch {
	case strings.HasPrefix(prompt, creationHeader):
		return RoleCreation
	case strings.HasPrefix(prompt, prioritizationHeader):
		return RolePrioritization
	case strings.HasPrefix(prompt, executionHeader):
		return RoleExecution
	}
	return ""
}

func renderCreationPrompt(d CreationPromptData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nOBJECTIVE: %s\n\n", creationHeader, d.Objective)
	fmt.Fprintf(&b, "LAST COMPLETED TASK: %s\nTASK RESULT: %s\n\n", d.LastTask, d.LastResult)
	b.WriteString("CURRENT INCOMPLETE TASKS:\n")
	if len(d.PendingTasks) == 0 {
		b.WriteString("- None\n")
	}
	for _, name := range d.PendingTasks {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	b.WriteString(`
Based on the objective and the result of the last completed task, create 2-4 NEW specific, actionable tasks that will help achieve the objective.

Requirements:
- Tasks must be concrete and actionable
- Tasks should not duplicate existing incomplete tasks
- Tasks should build upon the result of the completed task
- Focus on the most important next steps

Return only the task descriptions, one per line, without numbers or bullets.`)
	return b.String()
}

func renderPrioritizationPrompt(d PrioritizationPromptData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nOBJECTIVE: %s\n\n%s\n", prioritizationHeader, d.Objective, priorityListHeader)
	for i, name := range d.TaskNames {
		fmt.Fprintf(&b, "%d. %s\n", d.FirstID+i, name)
	}
	b.WriteString(`
Reorder these tasks by priority to best achieve the objective. Consider:
- Which tasks provide the most value toward the objective
- Dependencies between tasks
- Logical sequence of execution

Return the reordered tasks in the exact format:
`)
	fmt.Fprintf(&b, "%d. [first task]\n%d. [second task]\netc.\n\n", d.FirstID, d.FirstID+1)
	b.WriteString("Use the exact task descriptions provided above.")
	return b.String()
}

func renderExecutionPrompt(d ExecutionPromptData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nOBJECTIVE: %s\n\nCURRENT TASK: %s\n\n", executionHeader, d.Objective, d.Task)
	b.WriteString("RELEVANT CONTEXT FROM PREVIOUS TASKS:\n")
	b.WriteString(FormatContext(d.Context))
	b.WriteString(`

Execute this task thoroughly and provide a detailed result. Your response should:
- Directly address the task requirements
- Be specific and actionable
- Build upon the context when relevant
- Contribute meaningfully toward the objective

TASK EXECUTION:`)
	return b.String()
}

// FormatContext renders retrieved task names as a bulleted block.
func FormatContext(items []string) string {
	if len(items) == 0 {
		return noContext
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}
