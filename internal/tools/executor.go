package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/taskloom/taskloom/internal/logging"
)

// DefaultCommandTimeout bounds run_command execution.
const DefaultCommandTimeout = 60 * time.Second

// previewLimit caps the file-content preview attached to a failed
// edit_file search.
const previewLimit = 200

// Result is the outcome of one tool execution, fed back to the model
// as a tool-result turn. Failures are values, never panics.
type Result struct {
	Content string
	IsError bool
}

func errorResult(format string, args ...any) Result {
	return Result{Content: fmt.Sprintf(format, args...), IsError: true}
}

// Executor performs file and command tools inside one workspace root.
type Executor struct {
	workspace  string
	cmdTimeout time.Duration
	log        *logging.Logger
}

// NewExecutor creates an executor rooted at workspace. The workspace
// path is made absolute once so later escape checks compare cleanly.
func NewExecutor(workspace string, cmdTimeout time.Duration, log *logging.Logger) (*Executor, error) {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace %s: %w", workspace, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace %s is not a directory", abs)
	}
	if cmdTimeout <= 0 {
		cmdTimeout = DefaultCommandTimeout
	}
	if log == nil {
		log = logging.New()
	}
	return &Executor{
		workspace:  abs,
		cmdTimeout: cmdTimeout,
		log:        log.WithComponent("tools"),
	}, nil
}

// Workspace returns the absolute workspace root.
func (e *Executor) Workspace() string {
	return e.workspace
}

// Execute dispatches a validated call. Delegation and done are control
// signals handled by the supervisor, not actions this executor
// performs; routing them here is a caller bug reported as an error
// result.
func (e *Executor) Execute(ctx context.Context, call Call) Result {
	e.log.ToolCall(call.Kind.String())
	start := time.Now()

	var res Result
	switch call.Kind {
	case KindListFiles:
		res = e.listFiles(call.Args.(ListFilesArgs))
	case KindReadFile:
		res = e.readFile(call.Args.(ReadFileArgs))
	case KindEditFile:
		res = e.editFile(call.Args.(EditFileArgs))
	case KindWriteFile:
		res = e.writeFile(call.Args.(WriteFileArgs))
	case KindRunCommand:
		res = e.runCommand(ctx, call.Args.(RunCommandArgs))
	case KindDelegate, KindDone:
		res = errorResult("%s is not executable as a workspace tool", call.Kind)
	default:
		res = errorResult("unrecognized tool kind: %s", call.Kind)
	}

	var resErr error
	if res.IsError {
		resErr = fmt.Errorf("%s", res.Content)
	}
	e.log.ToolResult(call.Kind.String(), time.Since(start), resErr)
	return res
}

// resolvePath resolves rel against the workspace root, rejecting
// absolute paths and any traversal that would escape the root.
func (e *Executor) resolvePath(rel string) (string, error) {
	if rel == "" {
		rel = "."
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute paths are not allowed: %s", rel)
	}
	abs := filepath.Clean(filepath.Join(e.workspace, rel))
	if abs != e.workspace && !strings.HasPrefix(abs, e.workspace+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes the workspace: %s", rel)
	}
	return abs, nil
}

func (e *Executor) listFiles(args ListFilesArgs) Result {
	dir, err := e.resolvePath(args.Path)
	if err != nil {
		return errorResult("list_files: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errorResult("list_files: failed to read directory: %v", err)
	}
	if len(entries) == 0 {
		return Result{Content: "(empty directory)"}
	}
	var sb strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			sb.WriteString("[dir]  ")
		} else {
			sb.WriteString("[file] ")
		}
		sb.WriteString(entry.Name())
		sb.WriteString("\n")
	}
	return Result{Content: strings.TrimRight(sb.String(), "\n")}
}

func (e *Executor) readFile(args ReadFileArgs) Result {
	path, err := e.resolvePath(args.Path)
	if err != nil {
		return errorResult("read_file: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return errorResult("read_file: %v", err)
	}
	if info.IsDir() {
		return errorResult("read_file: %s is a directory", args.Path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return errorResult("read_file: %v", err)
	}
	// Non-UTF-8 bytes pass through as-is rather than failing the read.
	return Result{Content: string(content)}
}

func (e *Executor) editFile(args EditFileArgs) Result {
	path, err := e.resolvePath(args.Path)
	if err != nil {
		return errorResult("edit_file: %v", err)
	}

	// Empty search means create-or-overwrite.
	if args.Search == "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return errorResult("edit_file: failed to create directories: %v", err)
		}
		if err := os.WriteFile(path, []byte(args.Replace), 0644); err != nil {
			return errorResult("edit_file: failed to write file: %v", err)
		}
		return Result{Content: fmt.Sprintf("wrote %s (%d bytes)", args.Path, len(args.Replace))}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return errorResult("edit_file: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, args.Search) {
		preview := text
		if len(preview) > previewLimit {
			preview = preview[:previewLimit] + "..."
		}
		return errorResult("edit_file: search text not found in %s; file starts with: %q", args.Path, preview)
	}
	updated := strings.Replace(text, args.Search, args.Replace, 1)
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		return errorResult("edit_file: failed to write file: %v", err)
	}
	return Result{Content: fmt.Sprintf("edited %s", args.Path)}
}

func (e *Executor) writeFile(args WriteFileArgs) Result {
	path, err := e.resolvePath(args.Path)
	if err != nil {
		return errorResult("write_file: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errorResult("write_file: failed to create directories: %v", err)
	}
	if err := os.WriteFile(path, []byte(args.Content), 0644); err != nil {
		return errorResult("write_file: failed to write file: %v", err)
	}
	return Result{Content: fmt.Sprintf("wrote %s (%d bytes)", args.Path, len(args.Content))}
}

func (e *Executor) runCommand(ctx context.Context, args RunCommandArgs) Result {
	cmdCtx, cancel := context.WithTimeout(ctx, e.cmdTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "bash", "-c", args.Command)
	cmd.Dir = e.workspace
	output, err := cmd.CombinedOutput()

	if cmdCtx.Err() == context.DeadlineExceeded {
		return errorResult("run_command: timed out after %s\noutput so far:\n%s", e.cmdTimeout, string(output))
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			// Non-zero exit is an observation for the model, not a
			// transport failure.
			return Result{Content: fmt.Sprintf("%s\n(exit code %d)", string(output), exitErr.ExitCode())}
		}
		return errorResult("run_command: failed to execute: %v", err)
	}
	if len(output) == 0 {
		return Result{Content: "(no output)"}
	}
	return Result{Content: string(output)}
}
