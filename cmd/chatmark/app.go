package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chatmark/internal/bus"
	"chatmark/internal/command"
	"chatmark/internal/config"
	"chatmark/internal/site"
	"chatmark/internal/store"
)

const (
	busBuffer      = 100
	commandTimeout = 30 * time.Second
)

// app is the in-process pipeline shared by every command: the chat store, the
// request bus, the coordinator serving it and the site registry.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store  *store.SQLiteStore
	bus    *bus.InMemoryBus
	events *bus.EventBus
	sites  *site.Registry
	// base is the built-in adapter set with config overrides, before the sites file.
	base       []site.Adapter
	background *command.Background
	client     *command.Client

	cancel context.CancelFunc
	done   chan struct{}
}

// openApp opens the store and starts the coordinator. Close stops it.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	sites, base, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	st, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("chat store: %w", err)
	}
	if err := st.Init(ctx); err != nil {
		st.Close()
		return nil, err
	}

	messageBus := bus.New(busBuffer, logger)
	events := bus.NewEventBus(logger)
	bg := command.NewBackground(command.BackgroundConfig{
		Bus:       messageBus,
		Chats:     st,
		Bookmarks: st,
		Sites:     sites,
		Events:    events,
		Logger:    logger,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	a := &app{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		bus:        messageBus,
		events:     events,
		sites:      sites,
		base:       base,
		background: bg,
		client:     command.NewClient(messageBus),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go func() {
		defer close(a.done)
		bg.Run(runCtx)
	}()
	return a, nil
}

// Close stops the coordinator, then the bus and the store.
func (a *app) Close() {
	a.cancel()
	<-a.done
	a.bus.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing chat store", "err", err)
	}
}

// buildRegistry assembles the built-in adapters with the config's selector
// overrides, then adds the descriptors from the sites file.
func buildRegistry(cfg *config.Config) (*site.Registry, []site.Adapter, error) {
	base := site.ApplyOverrides(site.Builtin(), cfg.Sites)
	reg := site.NewRegistry(base...)
	if cfg.SitesFile == "" {
		return reg, base, nil
	}
	if err := site.Reload(cfg.SitesFile, reg, base); err != nil {
		return nil, nil, fmt.Errorf("sites file: %w", err)
	}
	return reg, base, nil
}
