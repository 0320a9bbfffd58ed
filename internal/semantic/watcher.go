package semantic

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/seanankenbruck/analytics-chat/internal/observability"
)

// Watcher reloads the resolver's vocabulary when the underlying file changes.
// Editors often write via rename-and-replace, so both Write and Create events
// on the watched file trigger a reload, debounced to absorb bursts.
type Watcher struct {
	resolver *Resolver
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *observability.Logger
	done     chan struct{}
}

// NewWatcher creates a watcher for the resolver's vocabulary file.
// The parent directory is watched rather than the file itself, so
// rename-and-replace saves keep working.
func NewWatcher(resolver *Resolver) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fw.Add(filepath.Dir(resolver.path)); err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{
		resolver: resolver,
		watcher:  fw,
		debounce: 500 * time.Millisecond,
		logger:   observability.NewLogger("vocabulary-watcher"),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine until the context is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Stop shuts the watcher down
func (w *Watcher) Stop() {
	close(w.done)
	w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	target := filepath.Clean(w.resolver.path)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				if err := w.resolver.Reload(ctx); err != nil {
					w.logger.Warn(ctx, "Vocabulary reload after file change failed", map[string]interface{}{
						"error": err.Error(),
					})
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "Vocabulary watcher error", map[string]interface{}{
				"error": err.Error(),
			})

		case <-ctx.Done():
			return
		case <-w.done:
			return
		}
	}
}
