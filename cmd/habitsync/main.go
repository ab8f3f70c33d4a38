// Command habitsync keeps a local habit cache in sync with a remote
// spreadsheet-backed habit tracker.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "habitsync",
	Short: "Background sync engine for spreadsheet-backed habit tracking",
	Long: `habitsync keeps a local cache of habit records in sync with a
rate-limited, token-authenticated spreadsheet backend.

Habit data lives in one spreadsheet row per habit. habitsync caches rows
locally with TTL and schema-version invalidation, pushes create/update/
track/archive/delete operations to the backend, and reconciles drift in
the background with remote state as the authority.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "",
		"configuration directory (default: ~/.habitsync)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
