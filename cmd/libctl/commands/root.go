// Package commands implements the libctl subcommands.
package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	skip  int
	limit int
	force bool
)

var rootCmd = &cobra.Command{
	Use:   "libctl",
	Short: "Admin CLI for the library backend",
	Long: `libctl manages the library backend from the command line: catalogue,
loans, accounts and system maintenance. It connects directly to the
database and cache configured through the environment (or a .env file
in the working directory).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
}

// Execute runs the root command. Exit code 0 on success, 1 on any
// handled error or user cancellation.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().IntVar(&skip, "skip", 0, "Number of records to skip")
	rootCmd.PersistentFlags().IntVar(&limit, "limit", 0, "Maximum records to return (default server-side)")
	rootCmd.PersistentFlags().BoolVar(&force, "force", false, "Skip confirmation prompts")
}
