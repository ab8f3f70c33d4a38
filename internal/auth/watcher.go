package auth

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// TokenEvent signals a change to the watched token file.
type TokenEvent struct {
	// Path is the absolute path of the token file.
	Path string
	// Removed is true when the file was deleted or renamed away.
	Removed bool
}

// TokenWatcher watches the token file for rewrites by the external
// refresher. It watches the parent directory, not the file itself, so
// atomic replace (write temp, rename over) is still observed.
type TokenWatcher struct {
	watcher *fsnotify.Watcher
	events  chan TokenEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	path    string
}

// NewTokenWatcher creates a watcher for the given token file path.
// The watcher must be started with Start() before it will emit events.
func NewTokenWatcher(path string) (*TokenWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to resolve token path %s: %w", path, err)
	}

	return &TokenWatcher{
		watcher: watcher,
		events:  make(chan TokenEvent, 16),
		errors:  make(chan error, 4),
		done:    make(chan struct{}),
		path:    abs,
	}, nil
}

// Start begins watching the token file's directory.
// The directory must exist; the file itself may not yet.
func (tw *TokenWatcher) Start() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.running {
		return fmt.Errorf("watcher already running")
	}

	dir := filepath.Dir(tw.path)
	if err := tw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch token directory %s: %w", dir, err)
	}

	tw.running = true
	tw.wg.Add(1)
	go tw.processEvents()

	return nil
}

// Stop stops watching and cleans up resources. It blocks until the
// event processing goroutine has exited.
func (tw *TokenWatcher) Stop() error {
	tw.mu.Lock()
	if !tw.running {
		tw.mu.Unlock()
		return nil
	}
	tw.running = false
	tw.mu.Unlock()

	close(tw.done)

	if err := tw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	tw.wg.Wait()

	close(tw.events)
	close(tw.errors)

	return nil
}

// Events returns the channel that emits TokenEvent notifications.
// This channel is closed when the watcher is stopped.
func (tw *TokenWatcher) Events() <-chan TokenEvent {
	return tw.events
}

// Errors returns the channel that emits error notifications.
// This channel is closed when the watcher is stopped.
func (tw *TokenWatcher) Errors() <-chan error {
	return tw.errors
}

// IsRunning returns true if the watcher is currently running.
func (tw *TokenWatcher) IsRunning() bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.running
}

func (tw *TokenWatcher) processEvents() {
	defer tw.wg.Done()

	for {
		select {
		case <-tw.done:
			return

		case event, ok := <-tw.watcher.Events:
			if !ok {
				return
			}

			tokenEvent, ok := tw.convertEvent(event)
			if !ok {
				continue
			}
			select {
			case tw.events <- tokenEvent:
			case <-tw.done:
				return
			}

		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}

			select {
			case tw.errors <- err:
			case <-tw.done:
				return
			}
		}
	}
}

func (tw *TokenWatcher) convertEvent(event fsnotify.Event) (TokenEvent, bool) {
	abs, err := filepath.Abs(event.Name)
	if err != nil || abs != tw.path {
		return TokenEvent{}, false
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		return TokenEvent{Path: tw.path}, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return TokenEvent{Path: tw.path, Removed: true}, true
	default:
		return TokenEvent{}, false
	}
}
