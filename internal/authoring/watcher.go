package authoring

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Faultbox/muscle-surface/internal/logger"
)

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads an authoring document whenever its file changes.
type Watcher struct {
	path     string
	fs       *fsnotify.Watcher
	onChange func(*Document, error)
	debounce time.Duration
	log      *zap.Logger

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewWatcher watches path and calls onChange with the reloaded document, or
// the load error, after each change. onChange runs on the watcher goroutine.
func NewWatcher(path string, onChange func(*Document, error)) (*Watcher, error) {
	return NewWatcherWithDebounce(path, DefaultDebounce, onChange)
}

// NewWatcherWithDebounce is NewWatcher with a custom debounce interval.
func NewWatcherWithDebounce(path string, debounce time.Duration, onChange func(*Document, error)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	if _, err := FormatFromPath(abs); err != nil {
		return nil, err
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	// Watch the directory so saves that replace the file are seen.
	if err := fs.Add(filepath.Dir(abs)); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:     abs,
		fs:       fs,
		onChange: onChange,
		debounce: debounce,
		log:      logger.Named("authoring").With(zap.String("path", abs)),
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Path returns the watched file.
func (w *Watcher) Path() string { return w.path }

func (w *Watcher) run() {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case e, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != w.path || e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			doc, err := Load(w.path)
			if err != nil {
				w.log.Warn("reload failed", zap.Error(err))
			} else {
				w.log.Info("authoring document reloaded", zap.String("name", doc.Name))
			}
			if w.onChange != nil {
				w.onChange(doc, err)
			}

		case <-w.done:
			return
		}
	}
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		err = w.fs.Close()
	})
	return err
}
