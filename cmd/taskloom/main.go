// Package main is the entry point for the taskloom agent CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/taskloom/taskloom/internal/breaker"
	"github.com/taskloom/taskloom/internal/config"
	"github.com/taskloom/taskloom/internal/credentials"
	"github.com/taskloom/taskloom/internal/delegate"
	"github.com/taskloom/taskloom/internal/llm"
	"github.com/taskloom/taskloom/internal/logging"
	"github.com/taskloom/taskloom/internal/policy"
	"github.com/taskloom/taskloom/internal/session"
	"github.com/taskloom/taskloom/internal/supervisor"
	"github.com/taskloom/taskloom/internal/task"
	"github.com/taskloom/taskloom/internal/tools"
)

const version = "0.1.0"

func init() {
	// Key resolution priority: env vars > .env > credentials.toml.
	if creds, _, err := credentials.Load(); err == nil && creds != nil {
		creds.Apply()
	}
	_ = godotenv.Load()
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "run":
		runTask(args)
	case "status":
		showStatus(args)
	case "version":
		fmt.Printf("taskloom version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: taskloom <command> [options]

Commands:
  run <title>           Run a task to completion
  status <task-id>      Show a task and its subtasks
  version               Show version
  help                  Show this help

Run Options:
  --description <text>  Task description
  --stage <stage>       Pipeline stage: pm, dev, qa, security, documentation (default: dev)
  --config <path>       Config file path (default: ./taskloom.toml)
  --workspace <path>    Workspace directory override`)
}

// loadConfig loads the configuration with an optional explicit path.
func loadConfig(configPath string) *config.Config {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func newLogger(cfg *config.Config) *logging.Logger {
	log := logging.New()
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		log.SetLevel(logging.LevelDebug)
	case "warn":
		log.SetLevel(logging.LevelWarn)
	case "error":
		log.SetLevel(logging.LevelError)
	}
	return log
}

// runTask creates a root task and drives it through the supervisor.
func runTask(args []string) {
	var title, description, stage, configPath, workspacePath string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--description" && i+1 < len(args):
			i++
			description = args[i]
		case strings.HasPrefix(arg, "--description="):
			description = strings.TrimPrefix(arg, "--description=")
		case arg == "--stage" && i+1 < len(args):
			i++
			stage = args[i]
		case strings.HasPrefix(arg, "--stage="):
			stage = strings.TrimPrefix(arg, "--stage=")
		case arg == "--config" && i+1 < len(args):
			i++
			configPath = args[i]
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--workspace" && i+1 < len(args):
			i++
			workspacePath = args[i]
		case strings.HasPrefix(arg, "--workspace="):
			workspacePath = strings.TrimPrefix(arg, "--workspace=")
		case !strings.HasPrefix(arg, "-") && title == "":
			title = arg
		}
	}

	if title == "" {
		fmt.Fprintln(os.Stderr, "error: a task title is required")
		fmt.Fprintln(os.Stderr, "usage: taskloom run <title> [options]")
		os.Exit(1)
	}

	cfg := loadConfig(configPath)
	if workspacePath != "" {
		cfg.Agent.Workspace = workspacePath
	}
	if cfg.Agent.Workspace == "" {
		cfg.Agent.Workspace, _ = os.Getwd()
	}

	log := newLogger(cfg)

	store, err := task.OpenSQLite(cfg.Store.TasksPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening task store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	var transcripts session.Store
	switch cfg.Store.Transcripts {
	case "sqlite":
		sqlStore, err := session.NewSQLiteStore(cfg.Store.TranscriptsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error opening transcript store: %v\n", err)
			os.Exit(1)
		}
		defer sqlStore.Close()
		transcripts = sqlStore
	case "file":
		transcripts = session.NewFileStore(cfg.Store.TranscriptsPath)
	}

	base, err := llm.NewProvider(llm.Config{
		Provider:  cfg.LLM.Provider,
		Model:     cfg.LLM.Model,
		APIKey:    cfg.GetAPIKey(),
		BaseURL:   cfg.LLM.BaseURL,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating LLM provider: %v\n", err)
		os.Exit(1)
	}
	retry := llm.DefaultRetryConfig()
	retry.RequestTimeout = cfg.LLMTimeout()
	provider := llm.NewResilientProvider(base, retry, log)

	executor, err := tools.NewExecutor(cfg.Agent.Workspace, cfg.CommandTimeout(), log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error preparing workspace: %v\n", err)
		os.Exit(1)
	}

	brk := breaker.New(breaker.Settings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.ResetTimeout(),
		OnStateChange: func(from, to breaker.State) {
			log.WithComponent("breaker").BreakerState(from.String(), to.String())
		},
	})
	pol := policy.New(cfg.Delegation.MaxDepth, cfg.Delegation.MaxSubtasksPerParent)

	coord := delegate.NewCoordinator(brk, pol, store, nil, delegate.Settings{
		PollInterval: cfg.PollInterval(),
		WaitTimeout:  cfg.WaitTimeout(),
	}, log)

	sup := supervisor.New(provider, executor, coord, pol, store, transcripts, supervisor.Settings{
		MaxIterations: cfg.Supervisor.MaxIterations,
		MaxTokens:     cfg.LLM.MaxTokens,
	}, log)
	coord.SetRunner(sup)

	root := task.NewRoot(title, description, task.Stage(stage))
	if err := store.Save(root); err != nil {
		fmt.Fprintf(os.Stderr, "error creating task: %v\n", err)
		os.Exit(1)
	}

	out := sup.Execute(context.Background(), root)
	fmt.Printf("task %s: %s after %d iteration(s)\n", root.ID, out.State, out.Iterations)
	fmt.Println(out.Summary)
	if out.State != supervisor.StateDone {
		os.Exit(1)
	}
}

// showStatus prints a task and its direct subtasks.
func showStatus(args []string) {
	var configPath, taskID string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config" && i+1 < len(args):
			i++
			configPath = args[i]
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
		case !strings.HasPrefix(arg, "-") && taskID == "":
			taskID = arg
		}
	}
	if taskID == "" {
		fmt.Fprintln(os.Stderr, "error: a task ID is required")
		os.Exit(1)
	}

	cfg := loadConfig(configPath)
	store, err := task.OpenSQLite(cfg.Store.TasksPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening task store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	t, err := store.Get(taskID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s  [%s/%s]  depth=%d  %s\n", t.ID, t.Stage, t.Status, t.Depth, t.Title)
	if t.Result != "" {
		fmt.Printf("  result: %s\n", t.Result)
	}
	if t.Error != "" {
		fmt.Printf("  error: %s\n", t.Error)
	}

	children, err := store.ListChildren(taskID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error listing subtasks: %v\n", err)
		os.Exit(1)
	}
	for _, c := range children {
		fmt.Printf("  └─ %s  [%s]  %s\n", c.ID, c.Status, c.Title)
	}
}
