// Package delegate turns delegation requests into child tasks, guarded
// by the shared circuit breaker and the delegation policy.
package delegate

import (
	"context"
	"fmt"
	"time"

	"github.com/taskloom/taskloom/internal/breaker"
	"github.com/taskloom/taskloom/internal/logging"
	"github.com/taskloom/taskloom/internal/policy"
	"github.com/taskloom/taskloom/internal/task"
)

// Default polling parameters for wait=true delegations.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultWaitTimeout  = 300 * time.Second
)

// Request is a delegation request from an agent turn.
type Request struct {
	Title       string
	Description string
	Wait        bool
}

// Result is the outcome of a delegation attempt, fed back to the
// requesting agent as a tool result. Failures are values; this package
// never panics into the caller's loop.
type Result struct {
	ChildID string
	Message string
	IsError bool
}

// Runner executes a child task. The coordinator dispatches each created
// child to it on its own goroutine; implementations own the child's
// status transitions.
type Runner interface {
	Run(ctx context.Context, t *task.Task)
}

// Settings configures a Coordinator.
type Settings struct {
	PollInterval time.Duration
	WaitTimeout  time.Duration
}

// Coordinator creates child tasks and optionally blocks the parent's
// turn until they resolve. It is the only component that feeds
// outcomes into the circuit breaker.
type Coordinator struct {
	breaker      *breaker.Breaker
	policy       *policy.Policy
	store        task.Store
	runner       Runner
	pollInterval time.Duration
	waitTimeout  time.Duration
	log          *logging.Logger
}

// NewCoordinator creates a coordinator. runner may be nil when child
// execution is driven externally; the coordinator then only creates
// records and polls their status.
func NewCoordinator(b *breaker.Breaker, pol *policy.Policy, store task.Store, runner Runner, settings Settings, log *logging.Logger) *Coordinator {
	if settings.PollInterval <= 0 {
		settings.PollInterval = DefaultPollInterval
	}
	if settings.WaitTimeout <= 0 {
		settings.WaitTimeout = DefaultWaitTimeout
	}
	if log == nil {
		log = logging.New()
	}
	return &Coordinator{
		breaker:      b,
		policy:       pol,
		store:        store,
		runner:       runner,
		pollInterval: settings.PollInterval,
		waitTimeout:  settings.WaitTimeout,
		log:          log.WithComponent("delegate"),
	}
}

// SetRunner installs the child-task runner after construction. The
// coordinator and the runner reference each other, so one side has to
// be wired late.
func (c *Coordinator) SetRunner(r Runner) {
	c.runner = r
}

// Delegate runs the full delegation protocol for one request.
func (c *Coordinator) Delegate(ctx context.Context, parent *task.Task, req Request) Result {
	c.log.DelegationStart(req.Title, parent.Depth, req.Wait)

	// Breaker gate. A rejection here touches no counters and creates
	// no child.
	if !c.breaker.CanRun() {
		return Result{
			Message: "delegation rejected: circuit breaker is open after repeated subtask failures; " +
				"continue the work directly instead of delegating",
			IsError: true,
		}
	}

	siblings, err := c.store.CountChildren(parent.ID)
	if err != nil {
		return c.degrade(fmt.Sprintf("delegation failed: could not count existing subtasks: %v", err))
	}

	// Policy violations are not execution failures; the breaker is
	// left untouched.
	decision := c.policy.CanDelegate(parent.Depth, siblings)
	if !decision.Allowed {
		return Result{Message: decision.Detail, IsError: true}
	}

	child := task.NewChild(parent, req.Title, req.Description)
	if err := c.store.Save(child); err != nil {
		return c.degrade(fmt.Sprintf("delegation failed: could not create subtask: %v", err))
	}

	if c.runner != nil {
		go c.runner.Run(ctx, child)
	}

	if !req.Wait {
		return Result{
			ChildID: child.ID,
			Message: fmt.Sprintf("subtask %s created (depth %d), not waiting for completion", child.ID, child.Depth),
		}
	}

	return c.waitForChild(ctx, child.ID)
}

// waitForChild polls the child's status until it reaches a terminal
// state or the wait timeout elapses. Success and failure both feed the
// breaker here; timeout and explicit failure are reported distinctly.
func (c *Coordinator) waitForChild(ctx context.Context, childID string) Result {
	start := time.Now()
	deadline := start.Add(c.waitTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.breaker.RecordFailure()
			return c.delegationResult(childID, "cancelled", start, fmt.Sprintf("delegation cancelled while waiting for subtask %s: %v", childID, ctx.Err()))
		case <-ticker.C:
		}

		status, err := c.store.GetStatus(childID)
		if err != nil {
			c.breaker.RecordFailure()
			return c.delegationResult(childID, "poll_error", start, fmt.Sprintf("delegation failed: could not poll subtask %s: %v", childID, err))
		}

		switch status {
		case task.StatusDone:
			c.breaker.RecordSuccess()
			child, err := c.store.Get(childID)
			summary := ""
			if err == nil && child.Result != "" {
				summary = ": " + child.Result
			}
			c.log.DelegationResult(childID, "done", time.Since(start))
			return Result{
				ChildID: childID,
				Message: fmt.Sprintf("subtask %s completed successfully%s", childID, summary),
			}
		case task.StatusFailed:
			c.breaker.RecordFailure()
			child, err := c.store.Get(childID)
			reason := ""
			if err == nil && child.Error != "" {
				reason = ": " + child.Error
			}
			return c.delegationResult(childID, "failed", start, fmt.Sprintf("subtask %s failed%s", childID, reason))
		}

		if time.Now().After(deadline) {
			c.breaker.RecordFailure()
			return c.delegationResult(childID, "timeout", start,
				fmt.Sprintf("subtask %s did not finish within %s (still %s); it may complete later, but this turn is no longer waiting",
					childID, c.waitTimeout, status))
		}
	}
}

// degrade records a transport failure against the breaker and wraps
// the message as an error result.
func (c *Coordinator) degrade(msg string) Result {
	c.breaker.RecordFailure()
	c.log.Error(msg)
	return Result{Message: msg, IsError: true}
}

func (c *Coordinator) delegationResult(childID, outcome string, start time.Time, msg string) Result {
	c.log.DelegationResult(childID, outcome, time.Since(start))
	return Result{ChildID: childID, Message: msg, IsError: true}
}
