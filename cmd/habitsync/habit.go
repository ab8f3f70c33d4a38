package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/KhanhRomVN/habitsync/internal/engine"
	"github.com/KhanhRomVN/habitsync/internal/habit"
)

var habitCmd = &cobra.Command{
	Use:   "habit",
	Short: "Manage habits",
}

var (
	addType       string
	addGoal       int
	addLimit      int
	addDifficulty int
	addCategory   string
	addTags       []string
	addUnit       string
)

var habitAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a habit",
	Long: `Create a habit and append its row to the remote sheet.

A good habit needs --goal (daily target to reach); a bad habit needs
--limit (daily ceiling to stay under).`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		form := &habit.Habit{
			Name:       args[0],
			Type:       habit.Type(addType),
			Difficulty: addDifficulty,
			Goal:       addGoal,
			Limit:      addLimit,
			Category:   addCategory,
			Tags:       addTags,
			Unit:       addUnit,
		}

		result := a.engine.CreateHabit(context.Background(), form)
		exitOnFailure(result, a)
		fmt.Printf("Created habit %s (%s)\n", result.Habit.ID, result.Habit.Name)
	},
}

var listAll bool

var habitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached habits",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		habits, err := a.engine.CachedHabits(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(habits) == 0 {
			fmt.Println("No cached habits. Run 'habitsync sync' to pull from the sheet.")
			return
		}

		for _, h := range habits {
			if h.IsArchived && !listAll {
				continue
			}
			marker := " "
			if h.IsArchived {
				marker = "A"
			}
			fmt.Printf("%s %-36s %-25s %-4s streak:%d/%d target:%d\n",
				marker, h.ID, h.Name, h.Type, h.CurrentStreak, h.LongestStreak, h.Target())
		}
	},
}

var trackValue float64

var habitTrackCmd = &cobra.Command{
	Use:   "track <id> <day>",
	Short: "Record a value for one day of the current month",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		day, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: day must be a number, got %q\n", args[1])
			os.Exit(1)
		}

		a := mustApp()
		defer a.Close()

		result := a.engine.TrackDay(context.Background(), args[0], day, trackValue)
		exitOnFailure(result, a)

		h := result.Habit
		status := "missed"
		if h.Tracking[day].Completed {
			status = "completed"
		}
		fmt.Printf("Tracked %s day %d: %s (streak %d)\n", h.Name, day, status, h.CurrentStreak)
	},
}

var unarchive bool

var habitArchiveCmd = &cobra.Command{
	Use:   "archive <id>...",
	Short: "Archive habits (or restore them with --undo)",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		if len(args) == 1 {
			result := a.engine.ArchiveHabit(context.Background(), args[0], !unarchive)
			exitOnFailure(result, a)
			fmt.Printf("Archived %s\n", args[0])
			return
		}

		batch := a.engine.BatchArchiveHabits(context.Background(), args, !unarchive)
		reportBatch(batch)
	},
}

var habitDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete habits from the sheet and the cache",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		if len(args) == 1 {
			result := a.engine.DeleteHabit(context.Background(), args[0])
			exitOnFailure(result, a)
			fmt.Printf("Deleted %s\n", args[0])
			return
		}

		batch := a.engine.BatchDeleteHabits(context.Background(), args)
		reportBatch(batch)
	},
}

func mustApp() *app {
	a, err := newApp(false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return a
}

func exitOnFailure(result engine.OpResult, a *app) {
	if result.Success {
		return
	}
	if result.NeedsAuth {
		fmt.Fprintf(os.Stderr, "Error: authentication required (refresh the token at %s)\n", a.cfg.TokenFile)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", result.Err)
	}
	a.Close()
	os.Exit(1)
}

func reportBatch(batch engine.BatchResult) {
	fmt.Printf("%d succeeded, %d failed\n", batch.Succeeded, batch.Failed)
	for _, item := range batch.Items {
		if !item.Success {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", item.ID, item.Err)
		}
	}
	if batch.NeedsAuth {
		fmt.Fprintln(os.Stderr, "Authentication required; remaining habits were not touched remotely")
	}
	if batch.Failed > 0 {
		os.Exit(1)
	}
}

func init() {
	habitAddCmd.Flags().StringVar(&addType, "type", "good", "habit type: good or bad")
	habitAddCmd.Flags().IntVar(&addGoal, "goal", 0, "daily target (good habits)")
	habitAddCmd.Flags().IntVar(&addLimit, "limit", 0, "daily ceiling (bad habits)")
	habitAddCmd.Flags().IntVar(&addDifficulty, "difficulty", 3, "difficulty 1-5")
	habitAddCmd.Flags().StringVar(&addCategory, "category", "", "category label")
	habitAddCmd.Flags().StringSliceVar(&addTags, "tags", nil, "comma-separated tags")
	habitAddCmd.Flags().StringVar(&addUnit, "unit", "", "unit for quantifiable habits")

	habitListCmd.Flags().BoolVar(&listAll, "all", false, "include archived habits")
	habitTrackCmd.Flags().Float64Var(&trackValue, "value", 1, "recorded value for the day")
	habitArchiveCmd.Flags().BoolVar(&unarchive, "undo", false, "restore instead of archive")

	habitCmd.AddCommand(habitAddCmd)
	habitCmd.AddCommand(habitListCmd)
	habitCmd.AddCommand(habitTrackCmd)
	habitCmd.AddCommand(habitArchiveCmd)
	habitCmd.AddCommand(habitDeleteCmd)
	rootCmd.AddCommand(habitCmd)
}
