package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-metallurgy/kiln/internal/config"
	"github.com/agentic-metallurgy/kiln/internal/executor"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and backend availability",
		Long:  `Run basic checks on the configuration file, GitHub token, board list, and the agent CLI backend.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor()
		},
	}
}

func runDoctor() error {
	fmt.Println()
	fmt.Println("kiln doctor")
	fmt.Println("===========")
	fmt.Println()

	cfg, err := config.Load(configPath())
	if err != nil {
		fmt.Printf("✗ config: failed to load: %v\n", err)
		return nil
	}
	fmt.Println("✓ config: loaded")

	if err := cfg.Validate(); err != nil {
		fmt.Printf("✗ config: %v\n", err)
	} else {
		fmt.Println("✓ config: valid")
	}

	if cfg.Adapters != nil && cfg.Adapters.GitHub != nil && cfg.Adapters.GitHub.Token != "" {
		fmt.Println("✓ github: token present")
	} else {
		fmt.Println("✗ github: no token configured (set adapters.github.token or GITHUB_TOKEN)")
	}

	if len(cfg.Poller.Boards) > 0 {
		fmt.Printf("✓ poller: %d board(s) configured\n", len(cfg.Poller.Boards))
	} else {
		fmt.Println("✗ poller: no boards configured")
	}

	backend, err := executor.NewBackend(cfg.Executor)
	if err != nil {
		fmt.Printf("✗ backend: %v\n", err)
	} else if backend.IsAvailable() {
		fmt.Printf("✓ backend: %s available\n", backend.Name())
	} else {
		fmt.Printf("✗ backend: %s not found on PATH\n", backend.Name())
	}

	if len(cfg.Projects) > 0 {
		fmt.Printf("✓ projects: %d registered\n", len(cfg.Projects))
	} else {
		fmt.Println("✗ projects: none registered (Implement/Validate have no checkout to run in)")
	}

	fmt.Println()
	return nil
}
