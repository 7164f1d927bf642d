// Package tools defines the fixed set of agent tools and executes the
// side-effecting ones against a single workspace root.
package tools

import (
	"fmt"

	"github.com/taskloom/taskloom/internal/llm"
)

// Kind identifies one of the recognized tools. Dispatch is an
// exhaustive switch over this set, so a misspelled tool name from the
// model surfaces as an explicit parse error instead of being silently
// ignored.
type Kind int

const (
	KindListFiles Kind = iota
	KindReadFile
	KindEditFile
	KindWriteFile
	KindRunCommand
	KindDelegate
	KindDone
)

// Tool names as exposed to the LLM.
const (
	NameListFiles  = "list_files"
	NameReadFile   = "read_file"
	NameEditFile   = "edit_file"
	NameWriteFile  = "write_file"
	NameRunCommand = "run_command"
	NameDelegate   = "delegate_subtask"
	NameDone       = "done"
)

// String returns the LLM-facing name of the tool.
func (k Kind) String() string {
	switch k {
	case KindListFiles:
		return NameListFiles
	case KindReadFile:
		return NameReadFile
	case KindEditFile:
		return NameEditFile
	case KindWriteFile:
		return NameWriteFile
	case KindRunCommand:
		return NameRunCommand
	case KindDelegate:
		return NameDelegate
	case KindDone:
		return NameDone
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// ListFilesArgs lists the immediate children of a directory.
type ListFilesArgs struct {
	Path string
}

// ReadFileArgs reads the full content of a file.
type ReadFileArgs struct {
	Path string
}

// EditFileArgs replaces the first occurrence of Search with Replace.
// An empty Search means create-or-overwrite with Replace as content.
type EditFileArgs struct {
	Path    string
	Search  string
	Replace string
}

// WriteFileArgs writes Content to Path, overwriting.
type WriteFileArgs struct {
	Path    string
	Content string
}

// RunCommandArgs runs a shell command in the workspace root.
type RunCommandArgs struct {
	Command string
}

// DelegateArgs requests creation of a child task.
type DelegateArgs struct {
	Title       string
	Description string
	Wait        bool
}

// DoneArgs signals task completion.
type DoneArgs struct {
	Status  string // "PASS" or "FAIL"
	Summary string
}

// Call is a validated tool invocation. Args holds the typed argument
// struct matching Kind.
type Call struct {
	ID   string
	Kind Kind
	Args any
}

// ParseCall validates a raw tool call from the model into a typed Call.
func ParseCall(tc llm.ToolCall) (Call, error) {
	call := Call{ID: tc.ID}
	switch tc.Name {
	case NameListFiles:
		call.Kind = KindListFiles
		call.Args = ListFilesArgs{Path: stringArg(tc.Args, "path")}
	case NameReadFile:
		path, err := requiredString(tc.Args, "path", tc.Name)
		if err != nil {
			return Call{}, err
		}
		call.Kind = KindReadFile
		call.Args = ReadFileArgs{Path: path}
	case NameEditFile:
		path, err := requiredString(tc.Args, "path", tc.Name)
		if err != nil {
			return Call{}, err
		}
		call.Kind = KindEditFile
		call.Args = EditFileArgs{
			Path:    path,
			Search:  stringArg(tc.Args, "search"),
			Replace: stringArg(tc.Args, "replace"),
		}
	case NameWriteFile:
		path, err := requiredString(tc.Args, "path", tc.Name)
		if err != nil {
			return Call{}, err
		}
		call.Kind = KindWriteFile
		call.Args = WriteFileArgs{
			Path:    path,
			Content: stringArg(tc.Args, "content"),
		}
	case NameRunCommand:
		command, err := requiredString(tc.Args, "command", tc.Name)
		if err != nil {
			return Call{}, err
		}
		call.Kind = KindRunCommand
		call.Args = RunCommandArgs{Command: command}
	case NameDelegate:
		title, err := requiredString(tc.Args, "title", tc.Name)
		if err != nil {
			return Call{}, err
		}
		call.Kind = KindDelegate
		call.Args = DelegateArgs{
			Title:       title,
			Description: stringArg(tc.Args, "description"),
			Wait:        boolArg(tc.Args, "wait"),
		}
	case NameDone:
		status := stringArg(tc.Args, "status")
		if status == "" {
			status = "PASS"
		}
		call.Kind = KindDone
		call.Args = DoneArgs{
			Status:  status,
			Summary: stringArg(tc.Args, "summary"),
		}
	default:
		return Call{}, fmt.Errorf("unrecognized tool: %s", tc.Name)
	}
	return call, nil
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func requiredString(args map[string]any, key, tool string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s: %s is required", tool, key)
	}
	return v, nil
}

func boolArg(args map[string]any, key string) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}
