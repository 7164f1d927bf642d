package tools

import "github.com/taskloom/taskloom/internal/llm"

// Catalog returns the tool definitions offered to the model.
// Delegation is included only when includeDelegate is true; an agent
// that may not delegate is never shown the option.
func Catalog(includeDelegate bool) []llm.ToolDef {
	defs := []llm.ToolDef{
		{
			Name:        NameListFiles,
			Description: "List the immediate children of a directory in the workspace. Each entry is tagged as a file or directory.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Directory path relative to the workspace root (default: workspace root)",
					},
				},
			},
		},
		{
			Name:        NameReadFile,
			Description: "Read the full text content of a file in the workspace.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "File path relative to the workspace root",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        NameEditFile,
			Description: "Edit a file. With an empty search string, creates or overwrites the file with the replace content. Otherwise replaces the first exact occurrence of search.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "File path relative to the workspace root",
					},
					"search": map[string]any{
						"type":        "string",
						"description": "Exact text to find; empty to create or overwrite the file",
					},
					"replace": map[string]any{
						"type":        "string",
						"description": "Replacement text, or the full file content when search is empty",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        NameWriteFile,
			Description: "Write content to a file in the workspace, overwriting any existing content. Parent directories are created as needed.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "File path relative to the workspace root",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "Content to write",
					},
				},
				"required": []string{"path", "content"},
			},
		},
		{
			Name:        NameRunCommand,
			Description: "Execute a shell command in the workspace root. Output is combined stdout and stderr; a non-zero exit code is reported with the output.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command": map[string]any{
						"type":        "string",
						"description": "Shell command to execute",
					},
				},
				"required": []string{"command"},
			},
		},
		{
			Name:        NameDone,
			Description: "Signal that the task is finished. This is the only way to complete a task successfully.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"status": map[string]any{
						"type":        "string",
						"description": "PASS if the task succeeded, FAIL otherwise",
						"enum":        []string{"PASS", "FAIL"},
					},
					"summary": map[string]any{
						"type":        "string",
						"description": "Short summary of what was accomplished or why the task failed",
					},
				},
				"required": []string{"status", "summary"},
			},
		},
	}

	if includeDelegate {
		defs = append(defs, llm.ToolDef{
			Name:        NameDelegate,
			Description: "Delegate part of the work to a child subtask. With wait=true, blocks until the subtask finishes and returns its outcome; with wait=false, returns immediately after creating it.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{
						"type":        "string",
						"description": "Short title of the subtask",
					},
					"description": map[string]any{
						"type":        "string",
						"description": "What the subtask should accomplish",
					},
					"wait": map[string]any{
						"type":        "boolean",
						"description": "Whether to wait for the subtask to finish before continuing",
					},
				},
				"required": []string{"title"},
			},
		})
	}

	return defs
}
