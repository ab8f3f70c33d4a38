package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KhanhRomVN/habitsync/internal/auth"
	"github.com/KhanhRomVN/habitsync/internal/dashboard"
	"github.com/KhanhRomVN/habitsync/internal/scheduler"
)

var (
	daemonDashboard bool
	daemonQuiet     bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync scheduler (foreground)",
	Long: `Run the adaptive background scheduler in the foreground.

The daemon:
  1. Periodically reconciles the cache with the remote sheet
  2. Watches the token file and resumes syncing after re-authentication
  3. Backs off when the backend keeps failing
  4. Optionally serves a WebSocket dashboard with live sync events

Press Ctrl+C to stop.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(daemonQuiet)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		schedConfig := &scheduler.Config{
			ActiveInterval:     a.cfg.ActiveInterval,
			BackgroundInterval: a.cfg.BackgroundInterval,
			IdleInterval:       a.cfg.IdleInterval,
			MinSyncGap:         a.cfg.MinSyncGap,
			FailureThreshold:   2,
			Logger:             a.logs.Component("scheduler"),
		}

		if daemonDashboard {
			server := dashboard.NewServer(&dashboard.Config{
				Port:   a.cfg.DashboardPort,
				Logger: a.logs.Component("dashboard"),
			})
			if err := server.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error starting dashboard: %v\n", err)
				os.Exit(1)
			}
			defer server.Stop()

			handler := dashboard.NewHandler(server, a.logs.Component("dashboard"))
			a.engine.SetEvents(handler)
			schedConfig.OnStatus = handler.SchedulerStatus
			fmt.Printf("Dashboard listening on %s\n", server.GetAddr())
		}

		sched := scheduler.New(a.engine, a.tokens, schedConfig)
		sched.Start()
		defer sched.Stop()

		// A rewritten token file means the user re-authenticated; wake
		// the scheduler instead of waiting out the idle interval.
		watcher, err := auth.NewTokenWatcher(a.cfg.TokenFile)
		if err == nil {
			err = watcher.Start()
		}
		if err != nil {
			a.logs.Component("daemon").Printf("Token watcher unavailable: %v", err)
		} else {
			defer watcher.Stop()
			go func() {
				for event := range watcher.Events() {
					if !event.Removed {
						sched.OnTokenRefreshed()
					}
				}
			}()
		}

		fmt.Println("habitsync daemon running, press Ctrl+C to stop")
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nShutting down")
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonDashboard, "dashboard", false,
		"serve the WebSocket status dashboard")
	daemonCmd.Flags().BoolVar(&daemonQuiet, "quiet", false,
		"log to file only, keep stderr silent")
	rootCmd.AddCommand(daemonCmd)
}
