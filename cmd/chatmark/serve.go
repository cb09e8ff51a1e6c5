package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"chatmark/internal/browser"
	"chatmark/internal/panel"
	"chatmark/internal/scanner"
	"chatmark/internal/site"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var noBrowser bool
	cmd := &cobra.Command{
		Use:   "serve [url...]",
		Short: "Run the tracker: browser tabs, chat store and panel server",
		Long: `Starts the coordinator and the panel server, launches Chrome and opens one tab
per URL given. Every tab gets a tracker that follows navigation within the tab and
records the messages of supported chat sites. Press Ctrl+C to stop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), args, noBrowser)
		},
	}
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "serve the panel and store only, without launching Chrome")
	return cmd
}

func runServe(parent context.Context, urls []string, noBrowser bool) error {
	cfg, closer, err := loadConfig()
	if err != nil {
		return err
	}
	defer closer()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.SitesFile != "" {
		if err := site.Watch(ctx, cfg.SitesFile, a.sites, a.base, logger); err != nil {
			logger.Warn("sites file not watched", "path", cfg.SitesFile, "err", err)
		}
	}

	var wg sync.WaitGroup
	if cfg.Panel.Enabled {
		metricsPath := ""
		if cfg.Metrics.Enabled {
			metricsPath = cfg.Metrics.Endpoint
		}
		srv := panel.New(panel.Config{
			Host:        cfg.Panel.Host,
			Port:        cfg.Panel.Port,
			WSPath:      cfg.Panel.WSPath,
			RateLimit:   cfg.Panel.RateLimitPerSecond,
			Burst:       cfg.Panel.Burst,
			Client:      a.client,
			Events:      a.events,
			MetricsPath: metricsPath,
			Logger:      logger,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx); err != nil {
				logger.Error("panel server error", "err", err)
				stop()
			}
		}()
	} else {
		logger.Info("panel disabled")
	}

	var driver *browser.Driver
	if !noBrowser {
		driver, err = browser.Start(ctx, browser.DriverConfig{
			Bridge: browser.NewBridge(browser.BridgeConfig{
				ProfileDir: cfg.Browser.ProfileDir,
				Headless:   cfg.Browser.Headless,
				Logger:     logger,
			}),
			Events: a.background,
			Logger: logger,
		})
		if err != nil {
			return err
		}
		for _, u := range urls {
			if err := a.track(ctx, driver, u, &wg); err != nil {
				logger.Error("opening tab failed", "url", u, "err", err)
			}
		}
	} else if len(urls) > 0 {
		logger.Warn("URLs ignored without a browser", "count", len(urls))
	}

	logger.Info("chatmark running. Press Ctrl+C to stop.", "version", version)
	<-ctx.Done()
	logger.Info("shutting down...")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if driver != nil {
			driver.Shutdown()
		}
		wg.Wait()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out, forcing exit")
		return errors.New("shutdown timed out")
	}
}

// track opens url in a new tab and runs a tracker on it until ctx ends.
func (a *app) track(ctx context.Context, driver *browser.Driver, url string, wg *sync.WaitGroup) error {
	tab, err := driver.Open(ctx, url)
	if err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	tr := scanner.New(scanner.Config{
		TabID:        tab.ID(),
		Page:         tab,
		Sites:        a.sites,
		Publisher:    a.client.ForTab(tab.ID()),
		Bus:          a.bus,
		RetryDelay:   a.cfg.Scanner.RetryDelay(),
		SettleDelay:  a.cfg.Scanner.SettleDelay(),
		PollInterval: a.cfg.Scanner.PollInterval(),
		Logger:       logger,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tr.Run(ctx); err != nil {
			logger.Error("tracker stopped", "tab_id", tab.ID(), "err", err)
		}
	}()
	return nil
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login [url]",
		Short: "Open a visible browser to sign in to a chat site",
		Long:  "Opens Chrome on the given URL with the chatmark profile. Cookies are kept for later tracking sessions.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := loadConfig()
			if err != nil {
				return err
			}
			defer closer()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bridge := browser.NewBridge(browser.BridgeConfig{
				ProfileDir: cfg.Browser.ProfileDir,
				Logger:     logger,
			})
			return bridge.Login(ctx, args[0])
		},
	}
}
