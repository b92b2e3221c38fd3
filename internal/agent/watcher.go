package agent

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// RosterWatcher hot-reloads the roster file and reconciles the registry
// when it changes.
type RosterWatcher struct {
	path     string
	registry *Registry
	onReload func(*Roster)
}

// NewRosterWatcher creates a watcher for the roster at path. onReload may be
// nil; when set it receives each successfully loaded roster (the autoscaler
// uses this to pick up new scaling bounds).
func NewRosterWatcher(path string, registry *Registry, onReload func(*Roster)) *RosterWatcher {
	return &RosterWatcher{
		path:     path,
		registry: registry,
		onReload: onReload,
	}
}

// Run watches until ctx is done. Watches the parent directory because
// editors replace files rather than writing in place.
func (w *RosterWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.reload(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("roster watcher error", "error", err)
		}
	}
}

func (w *RosterWatcher) reload(ctx context.Context) {
	roster, err := LoadRoster(w.path)
	if err != nil {
		slog.Error("roster reload failed, keeping previous roster", "path", w.path, "error", err)
		return
	}
	w.registry.Apply(roster)
	if w.onReload != nil {
		w.onReload(roster)
	}
	slog.InfoContext(ctx, "roster reloaded", "path", w.path, "roles", len(roster.Agents))
}
