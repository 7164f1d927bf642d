package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/taskloom/taskloom/internal/llm"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	e, err := NewExecutor(t.TempDir(), 0, nil)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return e
}

func TestPathSafety(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	escapes := []string{
		"../outside.txt",
		"../../etc/passwd",
		"a/../../outside.txt",
		"/etc/passwd",
		"/tmp/abs.txt",
	}
	for _, path := range escapes {
		res := e.Execute(ctx, Call{Kind: KindReadFile, Args: ReadFileArgs{Path: path}})
		if !res.IsError {
			t.Errorf("read_file(%q) should be rejected, got %q", path, res.Content)
		}
		res = e.Execute(ctx, Call{Kind: KindWriteFile, Args: WriteFileArgs{Path: path, Content: "x"}})
		if !res.IsError {
			t.Errorf("write_file(%q) should be rejected, got %q", path, res.Content)
		}
	}

	// Interior .. that stays inside the root is fine.
	res := e.Execute(ctx, Call{Kind: KindWriteFile, Args: WriteFileArgs{Path: "sub/../ok.txt", Content: "fine"}})
	if res.IsError {
		t.Errorf("write_file(sub/../ok.txt) should be allowed: %s", res.Content)
	}
	if _, err := os.Stat(filepath.Join(e.Workspace(), "ok.txt")); err != nil {
		t.Errorf("ok.txt not created: %v", err)
	}
}

func TestWriteAndReadFile(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	res := e.Execute(ctx, Call{Kind: KindWriteFile, Args: WriteFileArgs{Path: "nested/dir/hello.txt", Content: "hi"}})
	if res.IsError {
		t.Fatalf("write_file: %s", res.Content)
	}

	res = e.Execute(ctx, Call{Kind: KindReadFile, Args: ReadFileArgs{Path: "nested/dir/hello.txt"}})
	if res.IsError {
		t.Fatalf("read_file: %s", res.Content)
	}
	if res.Content != "hi" {
		t.Errorf("read_file content = %q, want %q", res.Content, "hi")
	}
}

func TestReadFileErrors(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	res := e.Execute(ctx, Call{Kind: KindReadFile, Args: ReadFileArgs{Path: "missing.txt"}})
	if !res.IsError {
		t.Error("read_file on missing file should error")
	}

	os.Mkdir(filepath.Join(e.Workspace(), "somedir"), 0755)
	res = e.Execute(ctx, Call{Kind: KindReadFile, Args: ReadFileArgs{Path: "somedir"}})
	if !res.IsError || !strings.Contains(res.Content, "directory") {
		t.Errorf("read_file on directory = %q, want directory error", res.Content)
	}
}

func TestListFiles(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	os.Mkdir(filepath.Join(e.Workspace(), "pkg"), 0755)
	os.WriteFile(filepath.Join(e.Workspace(), "main.go"), []byte("package main"), 0644)

	res := e.Execute(ctx, Call{Kind: KindListFiles, Args: ListFilesArgs{}})
	if res.IsError {
		t.Fatalf("list_files: %s", res.Content)
	}
	if !strings.Contains(res.Content, "[dir]  pkg") {
		t.Errorf("listing missing directory tag: %q", res.Content)
	}
	if !strings.Contains(res.Content, "[file] main.go") {
		t.Errorf("listing missing file tag: %q", res.Content)
	}

	res = e.Execute(ctx, Call{Kind: KindListFiles, Args: ListFilesArgs{Path: "nope"}})
	if !res.IsError {
		t.Error("list_files on missing dir should error")
	}
}

func TestEditFileCreateOverwriteIdempotent(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	args := EditFileArgs{Path: "config.ini", Search: "", Replace: "key=value\n"}
	for i := 0; i < 2; i++ {
		res := e.Execute(ctx, Call{Kind: KindEditFile, Args: args})
		if res.IsError {
			t.Fatalf("edit_file pass %d: %s", i+1, res.Content)
		}
	}

	content, err := os.ReadFile(filepath.Join(e.Workspace(), "config.ini"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(content) != "key=value\n" {
		t.Errorf("content = %q, want overwrite semantics not append", string(content))
	}
}

func TestEditFileReplaceFirstOccurrence(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	os.WriteFile(filepath.Join(e.Workspace(), "a.txt"), []byte("foo bar foo"), 0644)
	res := e.Execute(ctx, Call{Kind: KindEditFile, Args: EditFileArgs{Path: "a.txt", Search: "foo", Replace: "baz"}})
	if res.IsError {
		t.Fatalf("edit_file: %s", res.Content)
	}
	content, _ := os.ReadFile(filepath.Join(e.Workspace(), "a.txt"))
	if string(content) != "baz bar foo" {
		t.Errorf("content = %q, want first occurrence only", string(content))
	}
}

func TestEditFileSearchMissReportsPreview(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	os.WriteFile(filepath.Join(e.Workspace(), "a.txt"), []byte("actual file content"), 0644)
	res := e.Execute(ctx, Call{Kind: KindEditFile, Args: EditFileArgs{Path: "a.txt", Search: "nonexistent", Replace: "x"}})
	if !res.IsError {
		t.Fatal("edit_file with missing search text should error")
	}
	if !strings.Contains(res.Content, "actual file content") {
		t.Errorf("error should include a content preview: %q", res.Content)
	}

	res = e.Execute(ctx, Call{Kind: KindEditFile, Args: EditFileArgs{Path: "missing.txt", Search: "x", Replace: "y"}})
	if !res.IsError {
		t.Error("edit_file with non-empty search on missing file should error")
	}
}

func TestRunCommand(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	res := e.Execute(ctx, Call{Kind: KindRunCommand, Args: RunCommandArgs{Command: "echo hello"}})
	if res.IsError {
		t.Fatalf("run_command: %s", res.Content)
	}
	if !strings.Contains(res.Content, "hello") {
		t.Errorf("output = %q, want echo output", res.Content)
	}
}

func TestRunCommandNonZeroExit(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	res := e.Execute(ctx, Call{Kind: KindRunCommand, Args: RunCommandArgs{Command: "echo oops >&2; exit 3"}})
	if res.IsError {
		t.Fatalf("non-zero exit should be reported as output, got error: %s", res.Content)
	}
	if !strings.Contains(res.Content, "oops") {
		t.Errorf("output = %q, want captured stderr", res.Content)
	}
	if !strings.Contains(res.Content, "exit code 3") {
		t.Errorf("output = %q, want exit code note", res.Content)
	}
}

func TestRunCommandTimeout(t *testing.T) {
	e, err := NewExecutor(t.TempDir(), 100*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	res := e.Execute(context.Background(), Call{Kind: KindRunCommand, Args: RunCommandArgs{Command: "sleep 5"}})
	if !res.IsError || !strings.Contains(res.Content, "timed out") {
		t.Errorf("result = %+v, want timeout error", res)
	}
}

func TestRunCommandRunsInWorkspace(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), Call{Kind: KindRunCommand, Args: RunCommandArgs{Command: "pwd"}})
	if res.IsError {
		t.Fatalf("run_command: %s", res.Content)
	}
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(res.Content))
	want, _ := filepath.EvalSymlinks(e.Workspace())
	if got != want {
		t.Errorf("pwd = %q, want workspace %q", got, want)
	}
}

func TestParseCall(t *testing.T) {
	cases := []struct {
		name    string
		call    llm.ToolCall
		want    Kind
		wantErr bool
	}{
		{"list default path", llm.ToolCall{Name: "list_files", Args: map[string]any{}}, KindListFiles, false},
		{"read", llm.ToolCall{Name: "read_file", Args: map[string]any{"path": "a.txt"}}, KindReadFile, false},
		{"read missing path", llm.ToolCall{Name: "read_file", Args: map[string]any{}}, 0, true},
		{"edit", llm.ToolCall{Name: "edit_file", Args: map[string]any{"path": "a.txt", "search": "x", "replace": "y"}}, KindEditFile, false},
		{"write", llm.ToolCall{Name: "write_file", Args: map[string]any{"path": "a.txt", "content": "x"}}, KindWriteFile, false},
		{"command", llm.ToolCall{Name: "run_command", Args: map[string]any{"command": "ls"}}, KindRunCommand, false},
		{"delegate", llm.ToolCall{Name: "delegate_subtask", Args: map[string]any{"title": "t", "wait": true}}, KindDelegate, false},
		{"done", llm.ToolCall{Name: "done", Args: map[string]any{"status": "FAIL", "summary": "s"}}, KindDone, false},
		{"misspelled", llm.ToolCall{Name: "reed_file", Args: map[string]any{"path": "a.txt"}}, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			call, err := ParseCall(tc.call)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCall: %v", err)
			}
			if call.Kind != tc.want {
				t.Errorf("kind = %v, want %v", call.Kind, tc.want)
			}
		})
	}
}

func TestParseCallDoneDefaultsToPass(t *testing.T) {
	call, err := ParseCall(llm.ToolCall{Name: "done", Args: map[string]any{"summary": "ok"}})
	if err != nil {
		t.Fatalf("ParseCall: %v", err)
	}
	if args := call.Args.(DoneArgs); args.Status != "PASS" {
		t.Errorf("status = %q, want PASS default", args.Status)
	}
}

func TestCatalogDepthGating(t *testing.T) {
	withDelegate := Catalog(true)
	withoutDelegate := Catalog(false)

	if len(withDelegate) != len(withoutDelegate)+1 {
		t.Fatalf("catalog sizes: with=%d without=%d", len(withDelegate), len(withoutDelegate))
	}
	for _, def := range withoutDelegate {
		if def.Name == NameDelegate {
			t.Error("delegation tool offered when it must be withheld")
		}
	}
	found := false
	for _, def := range withDelegate {
		if def.Name == NameDelegate {
			found = true
		}
	}
	if !found {
		t.Error("delegation tool missing from full catalog")
	}
}
