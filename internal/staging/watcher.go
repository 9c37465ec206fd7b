package staging

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ScanFunc is invoked after staging-directory activity settles.
type ScanFunc func()

// Watch starts an fsnotify watcher on the staging directory and runs
// until ctx is cancelled. Audio files appearing or disappearing outside
// a live session (a crashed helper, a manual copy-in) schedule a single
// debounced recovery scan rather than one scan per event.
func Watch(ctx context.Context, store *Store, logger *slog.Logger, scan ScanFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(store.Root()); err != nil {
		return err
	}

	logger.Info("staging watcher: started", slog.String("root", store.Root()))

	var scanTimer *time.Timer
	var scanCh <-chan time.Time

	schedule := func() {
		if scanTimer == nil {
			scanTimer = time.NewTimer(500 * time.Millisecond)
			scanCh = scanTimer.C
		} else {
			scanTimer.Reset(500 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if scanTimer != nil {
				scanTimer.Stop()
			}
			logger.Info("staging watcher: stopped")
			return nil

		case <-scanCh:
			scan()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, audioExt) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				logger.Debug("staging watcher: change",
					slog.String("path", ev.Name),
					slog.String("op", ev.Op.String()))
				schedule()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("staging watcher: error", slog.String("error", err.Error()))
		}
	}
}
