package loader

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch hot-reloads pack files: it blocks, re-applying any .yaml/.yml
// file in dir that is created or written, until the context is
// canceled. A failed reload is logged and the previously registered
// rules stay in effect — the registry publishes a pack's rules
// atomically, so a half-edited file can never leave a domain in a mixed
// state.
func (l *Loader) Watch(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	l.logger.Info("watching pack directory", slog.String("dir", dir))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			ext := filepath.Ext(event.Name)
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			if err := l.Reload(event.Name); err != nil {
				l.logger.Error("pack reload failed; keeping previous rules",
					slog.String("path", event.Name),
					slog.Any("error", err))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.logger.Error("pack watcher error", slog.Any("error", err))
		}
	}
}
