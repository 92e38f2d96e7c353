package templates

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
)

// rescanDebounce coalesces bursts of filesystem events into one rescan.
const rescanDebounce = 500 * time.Millisecond

// Watch rescans the registry whenever the templates directory changes.
// It blocks until ctx is cancelled.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(r.templatesDir()); err != nil {
		return err
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(rescanDebounce)
				timerC = timer.C
			} else {
				timer.Reset(rescanDebounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			if err := r.Scan(); err != nil {
				r.log.WithError(err).Warn("template rescan failed")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.log.WithError(err).Warn("template watcher error")
		}
	}
}
