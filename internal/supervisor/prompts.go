package supervisor

import (
	"fmt"
	"strings"

	"github.com/taskloom/taskloom/internal/task"
)

// stageRoles maps pipeline stages to the role description used in the
// system prompt.
var stageRoles = map[task.Stage]string{
	task.StagePM:            "a product manager agent. Break the task into concrete requirements and acceptance criteria, recorded as files in the workspace",
	task.StageDev:           "a software developer agent. Implement the task by reading, writing, and editing files and running commands in the workspace",
	task.StageQA:            "a QA engineer agent. Verify the implementation: run tests and commands, inspect outputs, and record findings in the workspace",
	task.StageSecurity:      "a security reviewer agent. Audit the workspace for vulnerabilities, unsafe patterns, and secret leakage, and record findings",
	task.StageDocumentation: "a technical writer agent. Document the work in the workspace: READMEs, usage notes, and API descriptions",
}

// systemPrompt builds the stage-specific system prompt. canDelegate
// controls whether the delegation instructions are included; an agent
// that is not offered the delegation tool is not told about it either.
func systemPrompt(stage task.Stage, canDelegate bool) string {
	role, ok := stageRoles[stage]
	if !ok {
		role = stageRoles[task.StageDev]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s.\n\n", role)
	sb.WriteString("Work step by step using the available tools. All file paths are relative to the workspace root.\n")
	sb.WriteString("When the task is complete, call the done tool with status PASS and a summary. ")
	sb.WriteString("If you cannot complete the task, call done with status FAIL and explain why. ")
	sb.WriteString("Calling done is the only way to finish successfully.\n")

	if canDelegate {
		sb.WriteString("\nYou may delegate self-contained parts of the work to a subtask with delegate_subtask. ")
		sb.WriteString("Delegate only when a piece of work is independent enough to hand off; otherwise do it yourself.\n")
	}

	return sb.String()
}

// userPrompt builds the opening user turn from the task record.
func userPrompt(t *task.Task) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n", t.Title)
	if t.Description != "" {
		fmt.Fprintf(&sb, "\n%s\n", t.Description)
	}
	if t.Acceptance != "" {
		fmt.Fprintf(&sb, "\nAcceptance criteria: %s\n", t.Acceptance)
	}
	return sb.String()
}
