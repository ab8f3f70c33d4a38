package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KhanhRomVN/habitsync/internal/cache"
	"github.com/KhanhRomVN/habitsync/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write cached habits to a JSONL backup",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		result, err := export.ToJSONL(context.Background(), a.habits, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Exported %d habits to %s\n", result.HabitsProcessed, result.Path)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Restore cached habits from a JSONL backup",
	Long: `Replace the cached habit set with the contents of a JSONL backup.

The import is cache-only: it does not push rows to the remote sheet, and
the next reconcile will overwrite imports with remote state. Use it to
recover a warm cache, not to restore deleted remote data.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		result, err := export.FromJSONL(context.Background(), a.habits, args[0], cache.DefaultHabitTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Imported %d habits from %s", result.HabitsProcessed, result.Path)
		if result.LinesSkipped > 0 {
			fmt.Printf(" (%d invalid lines skipped)", result.LinesSkipped)
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
