// Command kiln polls configured GitHub repos and drives tickets through
// Research, Plan, Implement, and Validate using labels as the state
// machine (see internal/kiln/poller).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-metallurgy/kiln/internal/config"
)

var (
	version = "0.1.0"
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kiln",
		Short: "Autonomous ticket pipeline driven by labels",
		Long:  `kiln polls configured boards and advances tickets through Research, Plan, Implement, and Validate, using issue labels as a distributed state machine.`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.kiln/config.yaml)")

	rootCmd.AddCommand(
		newRunCmd(),
		newDoctorCmd(),
		newResetCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the kiln version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("kiln %s\n", version)
			return nil
		},
	}
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}
