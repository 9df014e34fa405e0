package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kylegalloway/taskloop/internal/agent"
	"github.com/kylegalloway/taskloop/internal/config"
	"github.com/kylegalloway/taskloop/internal/llm"
	"github.com/kylegalloway/taskloop/internal/locks"
	"github.com/kylegalloway/taskloop/internal/memory"
	"github.com/kylegalloway/taskloop/internal/orchestrator"
	"github.com/kylegalloway/taskloop/internal/state"
	"github.com/kylegalloway/taskloop/internal/tasks"
	"github.com/kylegalloway/taskloop/internal/telemetry"
	"github.com/kylegalloway/taskloop/internal/ui"
)

var (
	version = "dev"
)

const pollInterval = 200 * time.Millisecond

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "taskloop",
		Short:        "Autonomous task loop driven by a language model",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "taskloop.yaml", "path to taskloop.yaml config file")

	root.AddCommand(
		newRunCmd(&configPath),
		newSchemaCmd(&configPath),
		newHistoryCmd(&configPath),
		newCleanupCmd(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print version and exit",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("taskloop %s\n", version)
			},
		},
	)
	return root
}

type runOptions struct {
	objective     string
	decisionsFile string
	noApproval    bool
	dryRun        bool
}

func newRunCmd(configPath *string) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the task loop until the queue empties, max iterations, or interrupt",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(*configPath, opts)
		},
	}
	cmd.Flags().StringVar(&opts.objective, "objective", "", "override agent.objective from the config")
	cmd.Flags().StringVar(&opts.decisionsFile, "decisions-file", "", "path to decisions file for unattended runs")
	cmd.Flags().BoolVar(&opts.noApproval, "no-approval", false, "execute tasks without asking for approval")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "run the loop against canned model replies without calling any API")
	return cmd
}

func run(configPath string, opts runOptions) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.objective != "" {
		cfg.Agent.Objective = opts.objective
	}
	if opts.noApproval {
		cfg.Approval.Required = false
	}

	stateDir := cfg.Agent.StateDir
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := state.CheckDiskSpace(stateDir, state.MinDiskSpaceMB); err != nil {
		return fmt.Errorf("disk space check: %w", err)
	}

	// Cleanup takes and releases the lock itself, so it runs first.
	stateMgr := state.NewManager(stateDir)
	taskStore := tasks.NewTaskStore(cfg.Agent.TasksFile)
	cleanupResult, err := orchestrator.CleanupStaleState(stateDir, stateMgr, taskStore)
	if err != nil {
		if errors.Is(err, locks.ErrLocked) {
			return fmt.Errorf("another taskloop is running in %s: %w", stateDir, err)
		}
		log.Printf("Warning: startup cleanup: %v", err)
	}

	lock, err := locks.Acquire(stateDir, "taskloop-run")
	if err != nil {
		return fmt.Errorf("another taskloop is running in %s: %w", stateDir, err)
	}
	defer lock.Release()

	if cleanupResult != nil {
		msg := orchestrator.FormatCleanupResult(cleanupResult)
		if msg != "Clean startup, no stale state found." {
			fmt.Println(msg)
		}
	}

	// Choose prompter (before recovery check so it can prompt the user)
	var prompter ui.Prompter
	if opts.decisionsFile != "" {
		sp, err := ui.NewScriptedPrompterFromFile(opts.decisionsFile)
		if err != nil {
			return err
		}
		prompter = sp
	} else {
		prompter = ui.NewTerminalPrompter()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing, version)
	if err != nil {
		log.Printf("Warning: tracing disabled: %v", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Printf("Warning: tracing shutdown: %v", err)
		}
	}()

	var (
		completer agent.Completer
		embedder  agent.Embedder
		store     memory.Store
	)
	if opts.dryRun {
		completer = &agent.MockCompleter{Delay: 100 * time.Millisecond}
		embedder = &agent.MockEmbedder{Vector: make([]float64, cfg.Models.EmbeddingDimensions)}
		store = &memory.NoopStore{}
	} else {
		if cfg.LLM.APIKey() == "" {
			prompter.Warn(fmt.Sprintf("%s is not set; model calls will fail", cfg.LLM.APIKeyEnv))
		}
		client := llm.New(cfg)
		completer, embedder = client, client
		store = openStore(ctx, cfg, prompter)
	}
	defer store.Close()

	deps := orchestrator.Deps{
		Creator: &agent.Creator{
			LLM:      completer,
			Sampling: cfg.Sampling.Creation,
			MaxNew:   cfg.Agent.MaxNewTasks,
		},
		Prioritizer: &agent.Prioritizer{
			LLM:      completer,
			Sampling: cfg.Sampling.Prioritization,
		},
		Executor: &agent.Executor{
			LLM:            completer,
			Retriever:      &agent.Retriever{Embedder: embedder, Store: store},
			Sampling:       cfg.Sampling.Execution,
			ContextResults: cfg.Context.Results,
		},
		Embedder:  embedder,
		Store:     store,
		StateMgr:  stateMgr,
		TaskStore: taskStore,
		Logger:    log.Default(),
	}
	orch := orchestrator.New(cfg, deps)

	// Handle crash recovery prompt
	if cleanupResult != nil && cleanupResult.Recovery != nil {
		switch prompter.CrashRecoveryPrompt(cleanupResult.Recovery) {
		case ui.RecoveryResume:
			if err := orch.Restore(cleanupResult.Recovery, cleanupResult.RecoveredTasks); err != nil {
				return fmt.Errorf("restore: %w", err)
			}
		case ui.RecoveryFresh:
			stateMgr.Remove()
			taskStore.Remove()
		}
	}

	printBanner(cfg, orch.Status().Objective, opts)

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "\nReceived %s, stopping after the current step...\n", sig)
		orch.Stop()
		// If we get a second signal, force exit
		<-sigCh
		fmt.Fprintln(os.Stderr, "Force exit.")
		lock.Release()
		os.Exit(1)
	}()

	if !orch.Start(ctx) {
		return errors.New("agent did not start")
	}
	supervise(orch, prompter, cfg.Approval.Required)

	st := orch.Status()
	if n := len(st.Sessions); n > 0 {
		fmt.Print(ui.FormatSessionSummary(st.Sessions[n-1]))
	}
	if len(st.Queue) > 0 {
		fmt.Printf("%d task(s) left in %s\n", len(st.Queue), taskStore.Path())
	}
	return nil
}

// openStore connects the configured vector store, falling back to no
// storage when it cannot be reached so the loop can still run.
func openStore(ctx context.Context, cfg *config.Config, prompter ui.Prompter) memory.Store {
	store, err := memory.New(cfg)
	if err != nil {
		prompter.Warn(fmt.Sprintf("vector store disabled: %v", err))
		return &memory.NoopStore{}
	}
	if rs, ok := store.(*memory.RedisStore); ok {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rs.Ping(pctx); err != nil {
			rs.Close()
			prompter.Warn(fmt.Sprintf("redis at %s unreachable, results will not be stored: %v",
				cfg.Store.Redis.Addr, err))
			return &memory.NoopStore{}
		}
	}
	if cfg.Store.Backend == config.BackendSupabase && cfg.Store.Supabase.Key() == "" {
		prompter.Warn(fmt.Sprintf("%s is not set; supabase requests will be rejected", cfg.Store.Supabase.KeyEnv))
	}
	return store
}

// supervise follows the running loop until it exits: it prints progress
// once per iteration and, when approval is required, asks the prompter
// about each task waiting at the gate.
func supervise(orch *orchestrator.Orchestrator, prompter ui.Prompter, approval bool) {
	done := orch.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	lastIteration := -1
	var asked time.Time
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		st := orch.Status()
		if st.Iteration != lastIteration {
			lastIteration = st.Iteration
			prompter.Info(ui.FormatProgress(progressState(st)))
		}

		pa := st.PendingApproval
		if !approval || pa == nil || pa.Approved != nil || pa.RequestedAt.Equal(asked) {
			continue
		}
		asked = pa.RequestedAt

		// The terminal read can block past the end of the run, so the
		// question is asked off the supervising goroutine.
		req := ui.ApprovalRequest{
			Task:      pa.Task,
			Objective: st.Objective,
			Queued:    len(st.Queue),
			Iteration: st.Iteration,
		}
		go askApproval(orch, prompter, req)
	}
}

func askApproval(orch *orchestrator.Orchestrator, prompter ui.Prompter, req ui.ApprovalRequest) {
	var err error
	switch prompter.TaskApproval(req) {
	case ui.ApprovalApprove:
		err = orch.ApproveTask(req.Task.ID, true)
	case ui.ApprovalReject:
		err = orch.ApproveTask(req.Task.ID, false)
	case ui.ApprovalStop:
		orch.Stop()
	}
	if err != nil {
		// The gate timed out or moved on while we were asking.
		prompter.Warn(fmt.Sprintf("decision for task %s not applied: %v", req.Task.ID, err))
	}
}

func progressState(st orchestrator.Status) ui.ProgressState {
	ps := ui.ProgressState{
		RunState:      string(st.RunState),
		Iteration:     st.Iteration,
		MaxIterations: st.MaxIterations,
		Queued:        len(st.Queue),
		Stats:         st.Stats,
		StartTime:     st.StartTime,
	}
	if st.CurrentTask != nil {
		ps.CurrentTask = st.CurrentTask.Name
	}
	return ps
}

func printBanner(cfg *config.Config, objective string, opts runOptions) {
	fmt.Printf("taskloop %s\n", version)
	fmt.Printf("Objective: %s\n", objective)
	fmt.Printf("Model: %s (%s)\n", cfg.Models.Completion, cfg.LLM.BaseURL)
	fmt.Printf("Store: %s\n", cfg.Store.Backend)
	fmt.Printf("Max iterations: %d\n", cfg.Agent.MaxIterations)
	if cfg.Approval.Required {
		fmt.Printf("Approval: required (auto-approve after %v)\n", cfg.Approval.Timeout)
	} else {
		fmt.Println("Approval: off")
	}
	if opts.dryRun {
		fmt.Println("(Dry run: canned model replies, nothing is stored)")
	}
	fmt.Println()
}

func newSchemaCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the SQL that prepares a Supabase project for the supabase store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			fmt.Print(memory.SchemaSQL(cfg.Store.Supabase, cfg.Models.EmbeddingDimensions))
			return nil
		},
	}
}

func newHistoryCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List recorded sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			sessions, err := state.NewManager(cfg.Agent.StateDir).LoadSessions()
			if err != nil {
				return err
			}
			fmt.Print(ui.FormatHistory(sessions))
			return nil
		},
	}
}

func newCleanupCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove stale locks, temp files and recovery state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			stateDir := cfg.Agent.StateDir
			stateMgr := state.NewManager(stateDir)
			taskStore := tasks.NewTaskStore(cfg.Agent.TasksFile)

			fmt.Println("taskloop cleanup")
			fmt.Println()

			result, err := orchestrator.CleanupStaleState(stateDir, stateMgr, taskStore)
			if err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}
			fmt.Println(orchestrator.FormatCleanupResult(result))

			// Remove recovery state, under the lock so a run starting now
			// cannot lose its checkpoint.
			if result.Recovery != nil {
				lock, err := locks.Acquire(stateDir, "taskloop-cleanup")
				if err != nil {
					return fmt.Errorf("cleanup: %w", err)
				}
				if err := stateMgr.Remove(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
				} else {
					fmt.Println("Removed recovery state.")
				}
				lock.Release()
			}

			fmt.Println("\nCleanup complete.")
			return nil
		},
	}
}
