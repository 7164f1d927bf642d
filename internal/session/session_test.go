package session

import (
	"path/filepath"
	"testing"
)

func TestRecorderFileStore(t *testing.T) {
	store := NewFileStore(t.TempDir())
	rec, err := NewRecorder(store, "task-1", "dev")
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	events := []Event{
		{Type: EventSystem, Content: "you are an agent"},
		{Type: EventUser, Content: "write hello.txt"},
		{Type: EventAssistant, Content: "", Tool: "write_file"},
		{Type: EventToolResult, Tool: "write_file", Content: "wrote hello.txt (2 bytes)", DurationMs: 4},
	}
	for _, ev := range events {
		if err := rec.Add(ev); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if err := rec.Complete("wrote file"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	tr, err := store.Load(rec.ID())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tr.Status != StatusComplete || tr.Result != "wrote file" {
		t.Errorf("transcript status=%q result=%q", tr.Status, tr.Result)
	}
	if tr.TaskID != "task-1" || tr.Stage != "dev" {
		t.Errorf("transcript task=%q stage=%q", tr.TaskID, tr.Stage)
	}
	if len(tr.Events) != len(events) {
		t.Fatalf("got %d events, want %d", len(tr.Events), len(events))
	}
	for i, ev := range tr.Events {
		if ev.Type != events[i].Type {
			t.Errorf("event %d type = %q, want %q (order must be preserved)", i, ev.Type, events[i].Type)
		}
	}
}

func TestRecorderFail(t *testing.T) {
	store := NewFileStore(t.TempDir())
	rec, err := NewRecorder(store, "task-2", "qa")
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if err := rec.Fail("max iterations exceeded"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	tr, err := store.Load(rec.ID())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tr.Status != StatusFailed || tr.Error != "max iterations exceeded" {
		t.Errorf("transcript status=%q error=%q", tr.Status, tr.Error)
	}
}

func TestFileStoreLoadMissing(t *testing.T) {
	store := NewFileStore(t.TempDir())
	if _, err := store.Load("nope"); err == nil {
		t.Error("Load of missing transcript should error")
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "transcripts.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	rec, err := NewRecorder(store, "task-3", "security")
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	rec.Add(Event{Type: EventToolCall, Tool: "run_command", Args: map[string]any{"command": "ls"}})
	rec.Add(Event{Type: EventToolResult, Tool: "run_command", Content: "main.go", DurationMs: 12})
	rec.Add(Event{Type: EventDelegation, Content: "subtask abc created", Error: ""})
	if err := rec.Complete("audit clean"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	tr, err := store.Load(rec.ID())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tr.Status != StatusComplete || tr.Result != "audit clean" {
		t.Errorf("transcript status=%q result=%q", tr.Status, tr.Result)
	}
	if len(tr.Events) != 3 {
		t.Fatalf("got %d events, want 3", len(tr.Events))
	}
	if tr.Events[0].Args["command"] != "ls" {
		t.Errorf("event args not preserved: %v", tr.Events[0].Args)
	}
	if tr.Events[1].DurationMs != 12 {
		t.Errorf("event duration = %d, want 12", tr.Events[1].DurationMs)
	}
}

func TestSQLiteStoreLoadMissing(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "transcripts.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	if _, err := store.Load("nope"); err == nil {
		t.Error("Load of missing transcript should error")
	}
}
