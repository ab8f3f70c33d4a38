package main

import (
	"fmt"

	"github.com/KhanhRomVN/habitsync/internal/auth"
	"github.com/KhanhRomVN/habitsync/internal/cache"
	"github.com/KhanhRomVN/habitsync/internal/config"
	"github.com/KhanhRomVN/habitsync/internal/engine"
	"github.com/KhanhRomVN/habitsync/internal/kv"
	"github.com/KhanhRomVN/habitsync/internal/logging"
	"github.com/KhanhRomVN/habitsync/internal/remote"
	"github.com/KhanhRomVN/habitsync/internal/sheets"
)

// app is the composition root: every service constructed once, wired
// explicitly, no globals.
type app struct {
	cfg     *config.Config
	logs    *logging.Factory
	tokens  auth.TokenProvider
	store   kv.Store
	habits  *cache.Habits
	repo    *sheets.Repository
	engine  *engine.Engine
	onClose []func() error
}

// newApp builds the full service graph from configuration.
// quiet routes logs to the log file only (daemon mode).
func newApp(quiet bool) (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}

	logs, err := logging.NewFactory(logging.Options{File: cfg.LogFile, Quiet: quiet})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	var tokens auth.TokenProvider
	if cfg.Token != "" {
		tokens = auth.NewStaticProvider(cfg.Token)
	} else {
		tokens = auth.NewFileProvider(cfg.TokenFile)
	}

	store, err := kv.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logs:   logs,
		tokens: tokens,
		store:  store,
	}
	a.onClose = append(a.onClose, store.Close)

	habits := cache.NewHabits(cache.New(store, cfg.SchemaVersion, logs.Component("cache")))
	a.habits = habits

	client := remote.New(tokens, &remote.Config{
		Logger: logs.Component("remote"),
	})

	a.repo = sheets.New(client, &sheets.Config{
		BaseURL:      cfg.APIBaseURL,
		RootFolder:   cfg.RootFolder,
		SubFolder:    cfg.SubFolder,
		RequestDelay: cfg.RequestDelay,
		Logger:       logs.Component("sheets"),
	})

	a.engine = engine.New(habits, a.repo, &engine.Config{
		Logger: logs.Component("engine"),
	})

	return a, nil
}

func (a *app) Close() error {
	var first error
	for i := len(a.onClose) - 1; i >= 0; i-- {
		if err := a.onClose[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
