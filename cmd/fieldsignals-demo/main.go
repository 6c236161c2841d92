package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	// Database drivers for the demo host.
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// Version information - will be set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fieldsignals-demo",
		Short: "Demonstrates field-scoped change notifications over a SQL-backed host",
		Long: `fieldsignals-demo registers a sample model, connects change listeners and
runs a few saves, printing exactly which fields changed and their old/new values.`,
		RunE: runDemo,
	}

	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
