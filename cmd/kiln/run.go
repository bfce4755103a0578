package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentic-metallurgy/kiln/internal/adapters/github"
	"github.com/agentic-metallurgy/kiln/internal/config"
	"github.com/agentic-metallurgy/kiln/internal/executor"
	"github.com/agentic-metallurgy/kiln/internal/kiln/poller"
	"github.com/agentic-metallurgy/kiln/internal/kiln/workflow"
	"github.com/agentic-metallurgy/kiln/internal/logging"
	"github.com/agentic-metallurgy/kiln/internal/store"
	"github.com/agentic-metallurgy/kiln/internal/ticket"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the polling daemon",
		Long:  `Start the poller: watch every configured board and drive tickets through Research, Plan, Implement, and Validate.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
	return cmd
}

func runDaemon() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := logging.Init(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logging.WithComponent("kiln")

	client := github.NewClient(cfg.Adapters.GitHub.Token)
	adapter := github.New(client)

	identity, err := client.CurrentUser(context.Background())
	if err != nil {
		return fmt.Errorf("failed to resolve daemon identity: %w", err)
	}
	log.Info("resolved daemon identity", "login", identity)

	dataStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer dataStore.Close()

	backend, err := executor.NewBackend(cfg.Executor)
	if err != nil {
		return fmt.Errorf("failed to construct backend: %w", err)
	}
	if !backend.IsAvailable() {
		return fmt.Errorf("backend %q is not available on this machine", backend.Name())
	}

	resolver := config.NewProjectResolver(cfg)
	exec := workflow.New(backend, adapter, resolver, "", "", log)

	boards := make([]ticket.BoardRef, 0, len(cfg.Poller.Boards))
	for _, b := range cfg.Poller.Boards {
		boards = append(boards, ticket.BoardRef{Repo: b.Repo, Board: b.Board})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := poller.New(ctx, adapter, dataStore, exec, identity, boards,
		poller.WithLogger(log),
		poller.WithBaseInterval(cfg.PollIntervalDuration()),
		poller.WithMaxConcurrent(cfg.Poller.MaxConcurrentWorkflows),
		poller.WithStaleThreshold(cfg.StaleThresholdDuration()),
		poller.WithPRCloser(adapter),
		poller.WithAllowedActor(cfg.Poller.AllowedUsername),
		poller.WithDependencyChecker(github.NewDependencyChecker(client)),
		poller.WithWatchedStatuses(cfg.Poller.WatchedStatuses),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	return p.Run(ctx)
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.Store.PureGo {
		return store.NewPureGo(cfg.Store.Path)
	}
	return store.New(cfg.Store.Path)
}
