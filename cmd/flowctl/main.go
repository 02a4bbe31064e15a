package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "flowctl",
		Short:        "Validate and dry-run chat flows",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		validateCmd(),
		runCmd(),
		tokenCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
