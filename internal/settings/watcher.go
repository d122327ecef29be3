package settings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/scmhooks/jenkins-notifier/internal/logger"
)

// DefaultDebounce is how long the watcher waits for writes to settle before reloading
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a FileStore when its file changes
type Watcher struct {
	store    *FileStore
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onReload func(error)

	reloadCh chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// WatcherOption configures a Watcher
type WatcherOption func(*Watcher)

// WithDebounce overrides DefaultDebounce
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithReloadHook registers a callback run after every reload attempt
func WithReloadHook(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher creates a watcher for the store's backing file
func NewWatcher(store *FileStore, opts ...WatcherOption) (*Watcher, error) {
	if store.Path() == "" {
		return nil, fmt.Errorf("settings store has no backing file")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		store:    store,
		watcher:  fw,
		debounce: DefaultDebounce,
		reloadCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching. The directory is watched rather than the file so
// editors that replace the file on save are still seen.
func (w *Watcher) Start(ctx context.Context) error {
	abs, err := filepath.Abs(w.store.Path())
	if err != nil {
		return fmt.Errorf("failed to resolve settings path: %w", err)
	}
	dir := filepath.Dir(abs)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch settings directory %s: %w", dir, err)
	}

	logger.Get().Info("Watching settings file %s", abs)

	w.wg.Add(2)
	go w.watchLoop(ctx, filepath.Base(abs))
	go w.reloadLoop(ctx)
	return nil
}

// Stop stops watching and waits for the loops to exit
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) watchLoop(ctx context.Context, name string) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				logger.Get().Debug("Settings file change detected: %s", ev)
				w.trigger()
			} else if ev.Has(fsnotify.Remove) {
				logger.Get().Warn("Settings file removed: %s", ev.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Get().Error("Settings watcher error: %v", err)
		}
	}
}

func (w *Watcher) reloadLoop(ctx context.Context) {
	defer w.wg.Done()
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.reloadCh:
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			err := w.store.Reload()
			if err != nil {
				logger.Get().Error("Failed to reload settings, keeping previous: %v", err)
			} else {
				logger.Get().Info("Settings reloaded from %s", w.store.Path())
			}
			if w.onReload != nil {
				w.onReload(err)
			}
		}
	}
}

func (w *Watcher) trigger() {
	select {
	case w.reloadCh <- struct{}{}:
	default:
	}
}
