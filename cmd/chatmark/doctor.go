package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"chatmark/internal/config"
	"chatmark/internal/site"
	"chatmark/internal/store"

	"github.com/spf13/cobra"
)

// chromeCandidates are the executable names chromedp looks for on PATH.
var chromeCandidates = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your chatmark installation",
		Long: `Verifies that chatmark's configuration, chat store, sites file, panel port and
browser are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context(), cmd.OutOrStdout(), resolveConfigPath())
		},
	}
}

type doctorReport struct {
	w                      io.Writer
	passed, failed, warned int
}

func (r *doctorReport) pass(check, detail string) {
	fmt.Fprint(r.w, passLine(check, detail))
	r.passed++
}

func (r *doctorReport) fail(check, detail string) {
	fmt.Fprint(r.w, failLine(check, detail))
	r.failed++
}

func (r *doctorReport) warn(check, detail string) {
	fmt.Fprint(r.w, warnLine(check, detail))
	r.warned++
}

func runDoctor(ctx context.Context, w io.Writer, cfgPath string) error {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("chatmark doctor v%s", version)))
	fmt.Fprintln(w)
	r := &doctorReport{w: w}

	var cfg *config.Config
	if _, err := os.Stat(config.ExpandPath(cfgPath)); err != nil {
		r.warn("Config file", fmt.Sprintf("not found at %s, using defaults (run 'chatmark init')", cfgPath))
		cfg, _ = config.LoadOrDefault(cfgPath)
	} else {
		r.pass("Config file", cfgPath)
		loaded, err := config.Load(cfgPath)
		if err != nil {
			r.fail("Config validation", err.Error())
			fmt.Fprintf(w, "\n%d passed, %d failed\n", r.passed, r.failed)
			return fmt.Errorf("config is invalid")
		}
		r.pass("Config validation", "valid")
		cfg = loaded
	}

	if err := checkDatabase(ctx, cfg.Store.DBPath); err != nil {
		r.fail("Chat store", err.Error())
	} else {
		r.pass("Chat store", cfg.Store.DBPath)
	}

	if cfg.SitesFile != "" {
		extra, err := site.LoadFile(cfg.SitesFile)
		switch {
		case err != nil:
			r.fail("Sites file", err.Error())
		case len(extra) == 0:
			r.warn("Sites file", fmt.Sprintf("%s has no sites, built-ins only", cfg.SitesFile))
		default:
			r.pass("Sites file", fmt.Sprintf("%d site(s) from %s", len(extra), cfg.SitesFile))
		}
	}
	if sites, _, err := buildRegistry(cfg); err == nil {
		r.pass("Supported hosts", fmt.Sprint(sites.Hostnames()))
	}

	if cfg.Panel.Enabled {
		if err := checkPort(cfg.Panel.Host, cfg.Panel.Port); err != nil {
			r.warn("Panel port", fmt.Sprintf("port %d may be in use: %v", cfg.Panel.Port, err))
		} else {
			r.pass("Panel port", fmt.Sprintf("%s:%d available", cfg.Panel.Host, cfg.Panel.Port))
		}
	}

	if path, ok := findChrome(); ok {
		r.pass("Browser", path)
	} else {
		r.warn("Browser", "no Chrome or Chromium found on PATH")
	}
	if err := os.MkdirAll(cfg.Browser.ProfileDir, 0o755); err != nil {
		r.fail("Browser profile", err.Error())
	} else {
		r.pass("Browser profile", cfg.Browser.ProfileDir)
	}

	if cfg.General.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
			r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
		} else {
			r.pass("Log file", cfg.General.LogFile)
		}
	}

	fmt.Fprintf(w, "\nResults: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	return nil
}

// checkDatabase opens the store and creates its collections.
func checkDatabase(ctx context.Context, dbPath string) error {
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := st.Init(ctx); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	_, err = st.GetAll(ctx)
	return err
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func findChrome() (string, bool) {
	for _, name := range chromeCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, true
		}
	}
	return "", false
}
