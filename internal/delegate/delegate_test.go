package delegate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/taskloom/taskloom/internal/breaker"
	"github.com/taskloom/taskloom/internal/policy"
	"github.com/taskloom/taskloom/internal/task"
)

// memStore is an in-memory task.Store with injectable errors.
type memStore struct {
	mu       sync.Mutex
	tasks    map[string]*task.Task
	saveErr  error
	countErr error
	pollErr  error
}

func newMemStore() *memStore {
	return &memStore{tasks: make(map[string]*task.Task)}
}

func (s *memStore) Save(t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *memStore) Get(id string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, task.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) GetStatus(id string) (task.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollErr != nil {
		return "", s.pollErr
	}
	t, ok := s.tasks[id]
	if !ok {
		return "", task.ErrNotFound
	}
	return t.Status, nil
}

func (s *memStore) UpdateStatus(id string, status task.Status, result, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return task.ErrNotFound
	}
	t.Status = status
	t.Result = result
	t.Error = errMsg
	return nil
}

func (s *memStore) CountChildren(parentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	n := 0
	for _, t := range s.tasks {
		if t.ParentID == parentID {
			n++
		}
	}
	return n, nil
}

func (s *memStore) ListChildren(parentID string) ([]*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*task.Task
	for _, t := range s.tasks {
		if t.ParentID == parentID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func newTestCoordinator(store task.Store, runner Runner) (*Coordinator, *breaker.Breaker) {
	b := breaker.New(breaker.Settings{FailureThreshold: 3, ResetTimeout: time.Minute})
	pol := policy.New(3, 10)
	c := NewCoordinator(b, pol, store, runner, Settings{
		PollInterval: 10 * time.Millisecond,
		WaitTimeout:  500 * time.Millisecond,
	}, nil)
	return c, b
}

func TestDelegateNoWait(t *testing.T) {
	store := newMemStore()
	c, _ := newTestCoordinator(store, nil)
	parent := task.NewRoot("Parent", "", task.StageDev)
	store.Save(parent)

	res := c.Delegate(context.Background(), parent, Request{Title: "Child", Wait: false})
	if res.IsError {
		t.Fatalf("Delegate: %s", res.Message)
	}
	if res.ChildID == "" {
		t.Fatal("no child ID returned")
	}

	child, err := store.Get(res.ChildID)
	if err != nil {
		t.Fatalf("child not persisted: %v", err)
	}
	if child.Depth != parent.Depth+1 {
		t.Errorf("child depth = %d, want %d", child.Depth, parent.Depth+1)
	}
	if child.Status != task.StatusInProgress {
		t.Errorf("child status = %q, want in_progress", child.Status)
	}
	if !strings.Contains(res.Message, "not waiting") {
		t.Errorf("message = %q, want a created-not-waiting note", res.Message)
	}
}

func TestDelegateCircuitOpenCreatesNoChild(t *testing.T) {
	store := newMemStore()
	c, b := newTestCoordinator(store, nil)
	parent := task.NewRoot("Parent", "", task.StageDev)
	store.Save(parent)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}

	res := c.Delegate(context.Background(), parent, Request{Title: "Child"})
	if !res.IsError || !strings.Contains(res.Message, "circuit breaker is open") {
		t.Fatalf("result = %+v, want circuit-open rejection", res)
	}
	if n, _ := store.CountChildren(parent.ID); n != 0 {
		t.Errorf("children created under open circuit: %d", n)
	}
	if b.Failures() != 3 {
		t.Errorf("rejection must not touch breaker counters, failures = %d", b.Failures())
	}
}

func TestDelegatePolicyRejectionSkipsBreaker(t *testing.T) {
	store := newMemStore()
	c, b := newTestCoordinator(store, nil)

	deep := task.NewRoot("Deep", "", task.StageDev)
	deep.Depth = 3
	store.Save(deep)

	res := c.Delegate(context.Background(), deep, Request{Title: "Child"})
	if !res.IsError || !strings.Contains(res.Message, "depth") {
		t.Fatalf("result = %+v, want depth rejection", res)
	}
	if b.Failures() != 0 {
		t.Errorf("policy violation fed the breaker: failures = %d", b.Failures())
	}
	if n, _ := store.CountChildren(deep.ID); n != 0 {
		t.Errorf("child created past max depth: %d", n)
	}
}

func TestDelegateSubtaskCeiling(t *testing.T) {
	store := newMemStore()
	c, _ := newTestCoordinator(store, nil)
	parent := task.NewRoot("Parent", "", task.StageDev)
	store.Save(parent)

	for i := 0; i < 10; i++ {
		res := c.Delegate(context.Background(), parent, Request{Title: "Child"})
		if res.IsError {
			t.Fatalf("delegation %d rejected: %s", i+1, res.Message)
		}
	}
	res := c.Delegate(context.Background(), parent, Request{Title: "One too many"})
	if !res.IsError || !strings.Contains(res.Message, "subtask") {
		t.Fatalf("result = %+v, want subtask-count rejection", res)
	}
	if n, _ := store.CountChildren(parent.ID); n != 10 {
		t.Errorf("children = %d, want exactly the ceiling", n)
	}
}

// settleRunner resolves every child to the given status after a delay.
type settleRunner struct {
	store  task.Store
	status task.Status
	result string
	errMsg string
	delay  time.Duration
}

func (r *settleRunner) Run(ctx context.Context, t *task.Task) {
	time.Sleep(r.delay)
	r.store.UpdateStatus(t.ID, r.status, r.result, r.errMsg)
}

func TestDelegateWaitSuccess(t *testing.T) {
	store := newMemStore()
	runner := &settleRunner{store: store, status: task.StatusDone, result: "wrote the file", delay: 30 * time.Millisecond}
	c, b := newTestCoordinator(store, runner)
	parent := task.NewRoot("Parent", "", task.StageDev)
	store.Save(parent)

	res := c.Delegate(context.Background(), parent, Request{Title: "Child", Wait: true})
	if res.IsError {
		t.Fatalf("Delegate: %s", res.Message)
	}
	if !strings.Contains(res.Message, "wrote the file") {
		t.Errorf("message = %q, want child result summary", res.Message)
	}
	if b.State() != breaker.StateClosed || b.Failures() != 0 {
		t.Errorf("breaker after success: state=%v failures=%d", b.State(), b.Failures())
	}
}

func TestDelegateWaitFailure(t *testing.T) {
	store := newMemStore()
	runner := &settleRunner{store: store, status: task.StatusFailed, errMsg: "tests failed", delay: 30 * time.Millisecond}
	c, b := newTestCoordinator(store, runner)
	parent := task.NewRoot("Parent", "", task.StageDev)
	store.Save(parent)

	res := c.Delegate(context.Background(), parent, Request{Title: "Child", Wait: true})
	if !res.IsError {
		t.Fatal("expected failure result")
	}
	if !strings.Contains(res.Message, "tests failed") {
		t.Errorf("message = %q, want child error reason", res.Message)
	}
	if b.Failures() != 1 {
		t.Errorf("breaker failures = %d, want 1", b.Failures())
	}
}

func TestDelegateWaitTimeoutDistinctFromFailure(t *testing.T) {
	store := newMemStore()
	c, b := newTestCoordinator(store, nil) // no runner: child never settles
	parent := task.NewRoot("Parent", "", task.StageDev)
	store.Save(parent)

	res := c.Delegate(context.Background(), parent, Request{Title: "Child", Wait: true})
	if !res.IsError {
		t.Fatal("expected timeout result")
	}
	if !strings.Contains(res.Message, "did not finish within") {
		t.Errorf("message = %q, want timeout wording", res.Message)
	}
	if strings.Contains(res.Message, "subtask "+res.ChildID+" failed") {
		t.Errorf("timeout must not read as explicit failure: %q", res.Message)
	}
	if b.Failures() != 1 {
		t.Errorf("breaker failures = %d, want 1", b.Failures())
	}
}

func TestDelegateTransportErrorsDegrade(t *testing.T) {
	store := newMemStore()
	store.countErr = errors.New("connection refused")
	c, b := newTestCoordinator(store, nil)
	parent := task.NewRoot("Parent", "", task.StageDev)

	res := c.Delegate(context.Background(), parent, Request{Title: "Child"})
	if !res.IsError || !strings.Contains(res.Message, "connection refused") {
		t.Fatalf("result = %+v, want degraded transport error", res)
	}
	if b.Failures() != 1 {
		t.Errorf("transport error must feed the breaker: failures = %d", b.Failures())
	}

	store.countErr = nil
	store.saveErr = errors.New("disk full")
	res = c.Delegate(context.Background(), parent, Request{Title: "Child"})
	if !res.IsError || !strings.Contains(res.Message, "disk full") {
		t.Fatalf("result = %+v, want degraded save error", res)
	}
	if b.Failures() != 2 {
		t.Errorf("breaker failures = %d, want 2", b.Failures())
	}
}

func TestDelegatePollErrorDegrades(t *testing.T) {
	store := newMemStore()
	c, b := newTestCoordinator(store, nil)
	parent := task.NewRoot("Parent", "", task.StageDev)
	store.Save(parent)
	store.pollErr = errors.New("store unavailable")

	res := c.Delegate(context.Background(), parent, Request{Title: "Child", Wait: true})
	if !res.IsError || !strings.Contains(res.Message, "store unavailable") {
		t.Fatalf("result = %+v, want poll error", res)
	}
	if b.Failures() != 1 {
		t.Errorf("breaker failures = %d, want 1", b.Failures())
	}
}

func TestDelegateProbeAfterResetTimeout(t *testing.T) {
	store := newMemStore()
	parent := task.NewRoot("Parent", "", task.StageDev)
	store.Save(parent)

	b := breaker.New(breaker.Settings{FailureThreshold: 3, ResetTimeout: 50 * time.Millisecond})
	pol := policy.New(3, 100)
	c := NewCoordinator(b, pol, store, nil, Settings{
		PollInterval: 10 * time.Millisecond,
		WaitTimeout:  500 * time.Millisecond,
	}, nil)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	if res := c.Delegate(context.Background(), parent, Request{Title: "Blocked"}); !res.IsError {
		t.Fatal("delegation inside reset window should be rejected")
	}

	time.Sleep(60 * time.Millisecond)
	res := c.Delegate(context.Background(), parent, Request{Title: "Probe"})
	if res.IsError {
		t.Fatalf("probe after reset timeout rejected: %s", res.Message)
	}
	if res.ChildID == "" {
		t.Error("probe delegation created no child")
	}
}
