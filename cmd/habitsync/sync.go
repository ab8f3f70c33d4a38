package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var syncForce bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the local cache with the remote sheet",
	Long: `Pull the authoritative remote state and make the local cache match it.

Remote wins for every habit present on both sides. Habits present only
remotely are added; cached habits whose rows vanished are removed. A
failed fetch leaves the cache untouched.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		result := a.engine.Reconcile(context.Background(), syncForce)
		if !result.Success {
			if result.NeedsAuth {
				fmt.Fprintf(os.Stderr, "Error: authentication required (refresh the token at %s)\n", a.cfg.TokenFile)
			} else {
				fmt.Fprintf(os.Stderr, "Error: sync failed: %v\n", result.Err)
			}
			os.Exit(1)
		}

		fmt.Printf("Sync complete: %d added, %d updated, %d deleted\n",
			result.Changes.Added, result.Changes.Updated, result.Changes.Deleted)
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncForce, "force", true,
		"fetch even when valid cached data exists")
	rootCmd.AddCommand(syncCmd)
}
