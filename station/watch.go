package station

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/benchtop-io/benchd/internal/log"
	"github.com/benchtop-io/benchd/internal/metrics"
)

const watchDebounce = 500 * time.Millisecond

// Watch reloads the station whenever the inventory file changes. It
// blocks until ctx is done. The parent directory is watched rather
// than the file itself: editors and renameio replace the file on
// save, which silently drops a file-level watch.
func (s *Station) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	s.logger.Info().
		Str(log.FieldEvent, "station.watcher_started").
		Str(log.FieldPath, path).
		Msg("watching inventory for changes")

	// Debounce so editors writing in several bursts trigger one
	// reload.
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().
				Str(log.FieldEvent, "station.watcher_stopped").
				Msg("inventory watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			s.logger.Debug().
				Str(log.FieldEvent, "station.inventory_changed").
				Str("op", event.Op.String()).
				Msg("inventory file changed")

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				s.reloadFromFile(ctx, path)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error().
				Err(err).
				Str(log.FieldEvent, "station.watcher_error").
				Msg("inventory watcher error")
		}
	}
}

// reloadFromFile loads the inventory and applies it. A file that no
// longer parses leaves the running station untouched.
func (s *Station) reloadFromFile(ctx context.Context, path string) {
	inv, err := Load(path)
	if err != nil {
		metrics.IncStationReload("watch", false)
		s.logger.Error().
			Err(err).
			Str(log.FieldEvent, "station.auto_reload_failed").
			Str(log.FieldPath, path).
			Msg("inventory no longer loads, keeping current station")
		return
	}
	if err := s.reload(ctx, inv, "watch"); err != nil {
		s.logger.Error().
			Err(err).
			Str(log.FieldEvent, "station.auto_reload_failed").
			Str(log.FieldPath, path).
			Msg("automatic reload failed")
		return
	}
	s.logger.Info().
		Str(log.FieldEvent, "station.auto_reload_success").
		Str(log.FieldPath, path).
		Msg("station reloaded from inventory")
}
