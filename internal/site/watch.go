package site

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the sites file into r whenever it changes, until ctx is done. base
// holds the adapters that are always present (built-ins with overrides applied).
// The directory is watched rather than the file so editors that replace the file
// on save are still seen.
func Watch(ctx context.Context, path string, r *Registry, base []Adapter, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
				} else {
					timer.Reset(reloadDebounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				reload(path, r, base, logger)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("sites watcher error", "err", err)
			}
		}
	}()
	return nil
}

// Reload replaces r's contents with base plus the adapters in path. On a parse
// error the registry keeps its previous contents.
func Reload(path string, r *Registry, base []Adapter) error {
	extra, err := LoadFile(path)
	if err != nil {
		return err
	}
	all := make([]Adapter, 0, len(base)+len(extra))
	all = append(all, base...)
	all = append(all, extra...)
	r.Replace(all...)
	return nil
}

func reload(path string, r *Registry, base []Adapter, logger *slog.Logger) {
	if err := Reload(path, r, base); err != nil {
		logger.Error("sites file reload failed, keeping previous adapters", "path", path, "err", err)
		return
	}
	logger.Info("sites file reloaded", "path", path, "hosts", len(r.Hostnames()))
}
