package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the local cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache contents and expiry",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		stats, err := a.habits.Store().Stats(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Entries: %d\n", stats.TotalItems)
		fmt.Printf("Size:    %d bytes\n", stats.TotalSize)
		if len(stats.Entries) == 0 {
			return
		}

		sort.Slice(stats.Entries, func(i, j int) bool {
			return stats.Entries[i].Key < stats.Entries[j].Key
		})
		fmt.Println()
		for _, entry := range stats.Entries {
			expiry := "never"
			if !entry.ExpiresAt.IsZero() {
				expiry = entry.ExpiresAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("  %-45s %8d bytes  v%-8s expires %s\n",
				entry.Key, entry.Size, entry.Version, expiry)
		}
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cache entry",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		if err := a.habits.Store().ClearAll(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Cache cleared")
	},
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Evict expired and version-stale entries",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		count, err := a.habits.Store().CleanupExpired(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Evicted %d stale entries\n", count)
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheCleanupCmd)
	rootCmd.AddCommand(cacheCmd)
}
