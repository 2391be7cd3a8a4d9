package rules

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the rules file whenever it changes and hands the parsed result
// to onChange. A file that fails to parse is logged and skipped, leaving the
// previously synced rules in place. Runs until ctx is cancelled.
//
// The parent directory is watched rather than the file, so editors that save
// by writing a temp file and renaming it are still picked up.
func Watch(ctx context.Context, path string, onChange func(*File)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	slog.Info("watching rules file", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			f, err := Load(abs)
			if err != nil {
				slog.Error("rules reload failed, keeping previous rules", "path", abs, "error", err)
				continue
			}

			slog.Info("rules file reloaded", "path", abs, "rules", len(f.Rules))
			onChange(f)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("rules watcher error", "error", err)
		}
	}
}
