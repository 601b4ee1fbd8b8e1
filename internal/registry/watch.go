package registry

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/opencode-ai/wagate/internal/logging"
	"github.com/opencode-ai/wagate/pkg/types"
)

// DefaultWatchDebounce coalesces bursts of writes (temp file + rename) into one reload.
const DefaultWatchDebounce = 150 * time.Millisecond

// Watcher reloads a registry file when it changes on disk and hands the
// new table to a callback. The gateway uses it to pick up sessions that an
// operator adds by editing the file.
type Watcher struct {
	watcher  *fsnotify.Watcher
	store    *FileStore
	onChange func([]types.SessionDescriptor)
	debounce time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	mu       sync.Mutex
}

// NewWatcher watches the directory that holds the store's file.
// The directory is watched rather than the file so that atomic renames
// are observed.
func NewWatcher(store *FileStore, onChange func([]types.SessionDescriptor)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(store.Path())); err != nil {
		w.Close()
		return nil, err
	}

	return &Watcher{
		watcher:  w,
		store:    store,
		onChange: onChange,
		debounce: DefaultWatchDebounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	target := filepath.Clean(w.store.Path())
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn().Err(err).Msg("registry watcher error")
		}
	}
}

func (w *Watcher) reload() {
	table, err := w.store.Load(context.Background())
	if err != nil {
		logging.Error().Err(err).Str("path", w.store.Path()).Msg("Failed to reload sessions file")
		return
	}
	logging.Debug().Int("sessions", len(table)).Msg("Sessions file changed")
	w.onChange(table)
}

// Stop stops watching and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.started = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}
