// Package supervisor drives one task's agent loop from start to a
// terminal outcome.
package supervisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/taskloom/taskloom/internal/delegate"
	"github.com/taskloom/taskloom/internal/llm"
	"github.com/taskloom/taskloom/internal/logging"
	"github.com/taskloom/taskloom/internal/policy"
	"github.com/taskloom/taskloom/internal/session"
	"github.com/taskloom/taskloom/internal/task"
	"github.com/taskloom/taskloom/internal/tools"
)

// State is the loop's execution state.
type State string

const (
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// DefaultMaxIterations caps the number of LLM round-trips per task.
const DefaultMaxIterations = 20

// Outcome is the terminal result of one supervised run. Summary is
// always human-readable, never a bare code.
type Outcome struct {
	State      State
	Summary    string
	Iterations int
}

// Settings configures a Supervisor.
type Settings struct {
	MaxIterations int
	MaxTokens     int
}

// Supervisor runs the agent loop for tasks. One Run executes
// sequentially on its calling goroutine; concurrent runs share only
// the circuit breaker inside the coordinator.
type Supervisor struct {
	provider    llm.Provider
	executor    *tools.Executor
	coordinator *delegate.Coordinator
	policy      *policy.Policy
	store       task.Store
	transcripts session.Store
	maxIter     int
	maxTokens   int
	log         *logging.Logger
}

// New creates a supervisor. transcripts may be nil to disable
// transcript recording.
func New(provider llm.Provider, executor *tools.Executor, coordinator *delegate.Coordinator,
	pol *policy.Policy, store task.Store, transcripts session.Store,
	settings Settings, log *logging.Logger) *Supervisor {
	if settings.MaxIterations <= 0 {
		settings.MaxIterations = DefaultMaxIterations
	}
	if log == nil {
		log = logging.New()
	}
	return &Supervisor{
		provider:    provider,
		executor:    executor,
		coordinator: coordinator,
		policy:      pol,
		store:       store,
		transcripts: transcripts,
		maxIter:     settings.MaxIterations,
		maxTokens:   settings.MaxTokens,
		log:         log.WithComponent("supervisor"),
	}
}

// Run implements delegate.Runner so delegated children execute through
// the same loop.
func (s *Supervisor) Run(ctx context.Context, t *task.Task) {
	s.Execute(ctx, t)
}

// parsedCall pairs a raw model call with its validated form. A parse
// failure is carried as a value and reported back to the model.
type parsedCall struct {
	raw      llm.ToolCall
	call     tools.Call
	parseErr error
}

// Execute runs the loop for one task until a terminal state.
func (s *Supervisor) Execute(ctx context.Context, t *task.Task) Outcome {
	start := time.Now()
	log := s.log.WithTask(t.ID)

	t.Status = task.StatusInProgress
	if err := s.store.Save(t); err != nil {
		log.Error("failed to mark task in_progress", map[string]interface{}{"error": err.Error()})
	}

	rec := s.startTranscript(t, log)
	canDelegate := s.policy.DelegationAvailable(t.Depth)
	catalog := tools.Catalog(canDelegate)

	system := systemPrompt(t.Stage, canDelegate)
	opening := userPrompt(t)
	history := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: opening},
	}
	s.record(rec, session.Event{Type: session.EventSystem, Content: system})
	s.record(rec, session.Event{Type: session.EventUser, Content: opening})

	for iter := 1; iter <= s.maxIter; iter++ {
		log.IterationStart(iter, s.maxIter)

		resp, err := s.provider.Chat(ctx, llm.ChatRequest{
			Messages:  history,
			Tools:     catalog,
			MaxTokens: s.maxTokens,
		})
		if err != nil {
			return s.finish(t, rec, log, start, Outcome{
				State:      StateFailed,
				Summary:    fmt.Sprintf("LLM backend unreachable: %v", err),
				Iterations: iter,
			})
		}
		s.record(rec, session.Event{Type: session.EventAssistant, Content: resp.Content})

		calls := llm.ExtractToolCalls(resp)

		// No tool call: the free-form content decides the outcome. A
		// completion-signaling answer counts as done; anything else is
		// an agent that stopped without finishing.
		if len(calls) == 0 {
			if strings.Contains(strings.ToLower(resp.Content), "done") {
				return s.finish(t, rec, log, start, Outcome{
					State:      StateDone,
					Summary:    resp.Content,
					Iterations: iter,
				})
			}
			return s.finish(t, rec, log, start, Outcome{
				State:      StateFailed,
				Summary:    "agent stopped without signaling completion: " + resp.Content,
				Iterations: iter,
			})
		}

		parsed := make([]parsedCall, len(calls))
		for i, raw := range calls {
			call, err := tools.ParseCall(raw)
			parsed[i] = parsedCall{raw: raw, call: call, parseErr: err}
		}

		// Assistant turn goes into history before any tool results.
		history = append(history, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: calls,
		})

		// An explicit done call is terminal regardless of what else
		// the turn contains.
		for _, pc := range parsed {
			if pc.parseErr == nil && pc.call.Kind == tools.KindDone {
				args := pc.call.Args.(tools.DoneArgs)
				state := StateDone
				if args.Status != "PASS" {
					state = StateFailed
				}
				summary := args.Summary
				if summary == "" {
					summary = "agent signaled " + args.Status
				}
				return s.finish(t, rec, log, start, Outcome{
					State:      state,
					Summary:    summary,
					Iterations: iter,
				})
			}
		}

		results := s.executeCalls(ctx, t, parsed)

		// Results are appended in the order the calls were issued,
		// even though delegations executed first.
		for i, pc := range parsed {
			history = append(history, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: pc.raw.ID,
				Content:    results[i],
			})
			s.record(rec, session.Event{
				Type:    session.EventToolResult,
				Tool:    pc.raw.Name,
				Content: results[i],
			})
		}
	}

	return s.finish(t, rec, log, start, Outcome{
		State:      StateFailed,
		Summary:    fmt.Sprintf("max iterations exceeded (%d)", s.maxIter),
		Iterations: s.maxIter,
	})
}

// executeCalls runs a turn's tool calls. Delegations run first, since
// they may block on a waiting child; everything else follows. The
// returned slice is indexed by issue order.
func (s *Supervisor) executeCalls(ctx context.Context, t *task.Task, parsed []parsedCall) []string {
	results := make([]string, len(parsed))

	for i, pc := range parsed {
		if pc.parseErr != nil || pc.call.Kind != tools.KindDelegate {
			continue
		}
		args := pc.call.Args.(tools.DelegateArgs)
		res := s.coordinator.Delegate(ctx, t, delegate.Request{
			Title:       args.Title,
			Description: args.Description,
			Wait:        args.Wait,
		})
		results[i] = res.Message
	}

	for i, pc := range parsed {
		switch {
		case pc.parseErr != nil:
			results[i] = "tool error: " + pc.parseErr.Error()
		case pc.call.Kind == tools.KindDelegate:
			// already executed
		default:
			res := s.executor.Execute(ctx, pc.call)
			results[i] = res.Content
		}
	}
	return results
}

// finish records the terminal outcome on the task, the transcript, and
// the log.
func (s *Supervisor) finish(t *task.Task, rec *session.Recorder, log *logging.Logger, start time.Time, out Outcome) Outcome {
	var err error
	switch out.State {
	case StateDone:
		err = s.store.UpdateStatus(t.ID, task.StatusDone, out.Summary, "")
	default:
		err = s.store.UpdateStatus(t.ID, task.StatusFailed, "", out.Summary)
	}
	if err != nil {
		log.Error("failed to record terminal task status", map[string]interface{}{"error": err.Error()})
	}

	if rec != nil {
		if out.State == StateDone {
			rec.Complete(out.Summary)
		} else {
			rec.Fail(out.Summary)
		}
	}

	log.RunComplete(string(out.State), out.Iterations, time.Since(start))
	return out
}

// startTranscript opens a transcript recorder. Transcript failures are
// logged and ignored; observability must not take the run down.
func (s *Supervisor) startTranscript(t *task.Task, log *logging.Logger) *session.Recorder {
	if s.transcripts == nil {
		return nil
	}
	rec, err := session.NewRecorder(s.transcripts, t.ID, string(t.Stage))
	if err != nil {
		log.Warn("failed to start transcript", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return rec
}

func (s *Supervisor) record(rec *session.Recorder, event session.Event) {
	if rec == nil {
		return
	}
	if err := rec.Add(event); err != nil {
		s.log.Warn("failed to record transcript event", map[string]interface{}{"error": err.Error()})
	}
}
