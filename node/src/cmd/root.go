package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kvserver",
	Short: "A networked key-value store",
	Long: `A single-process key-value store served over TCP, with a line-based
text protocol or a JSON protocol and optional snapshot persistence.`,
}

func ExecuteServer() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "couldn't execute app,", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(startNodeCmd)
}
