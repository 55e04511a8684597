package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const debounceWindow = 250 * time.Millisecond

// Watcher re-invokes a reload callback when the watched env file changes.
// Editors replace files rather than writing in place, so the parent
// directory is watched and events are filtered by name.
type Watcher struct {
	path     string
	onChange func()

	fsw      *fsnotify.Watcher
	stopOnce sync.Once
	doneCh   chan struct{}
}

// Watch starts watching path. The callback runs on the watcher goroutine
// and must not block.
func Watch(path string, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		fsw:      fsw,
		doneCh:   make(chan struct{}),
	}
	go w.run()
	log.Info().Str("file", path).Msg("Watching config file for changes")
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Debounce bursts of events from a single save.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			log.Info().Str("file", w.path).Msg("Config file changed, reloading")
			w.onChange()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

// Close stops the watcher. Idempotent.
func (w *Watcher) Close() {
	w.stopOnce.Do(func() {
		w.fsw.Close()
		<-w.doneCh
	})
}
