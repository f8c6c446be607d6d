package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfg    *Config
	client *Client
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "partyroom",
		Short: "CLI tool for the partyroom gateway API",
		Long: `partyroom is a CLI tool for the partyroom gateway.

It logs players into rooms, syncs and ends their sessions, lists rooms and
account statistics, and can watch a room's players live.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			client = NewClient(cfg.ServerURL)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Gateway URL (env: PARTYROOM_SERVER)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json (env: PARTYROOM_OUTPUT)")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(newNewGameCmd())
	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newEndGameCmd())
	rootCmd.AddCommand(newGameCmd())
	rootCmd.AddCommand(newRoomsCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newHealthCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
