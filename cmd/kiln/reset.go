package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agentic-metallurgy/kiln/internal/adapters/github"
	"github.com/agentic-metallurgy/kiln/internal/config"
	"github.com/agentic-metallurgy/kiln/internal/kiln/reset"
	"github.com/agentic-metallurgy/kiln/internal/logging"
)

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <owner/repo> <issue-number>",
		Short: "Manually apply the reset sequence to one ticket",
		Long:  `Strip kiln's generated sections and labels from an issue and return it to Backlog, the same sequence the poller applies when it observes the reset control label.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(args[0], args[1])
		},
	}
}

func runReset(repo, idArg string) error {
	id, err := strconv.Atoi(idArg)
	if err != nil {
		return fmt.Errorf("invalid issue number %q: %w", idArg, err)
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logging.Init(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logging.WithComponent("kiln")

	client := github.NewClient(cfg.Adapters.GitHub.Token)
	adapter := github.New(client)

	ctx := context.Background()
	item, err := adapter.GetItem(ctx, repo, id)
	if err != nil {
		return fmt.Errorf("failed to fetch issue: %w", err)
	}

	controller := reset.New(adapter, adapter, log)
	controller.Apply(ctx, item)

	fmt.Printf("reset applied to %s#%d\n", repo, id)
	return nil
}
