package classify

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// WatchedClassifier is a RuleClassifier that follows a rules file on disk.
// Reload failures keep the previous rules in force.
type WatchedClassifier struct {
	path    string
	log     *slog.Logger
	current atomic.Pointer[RuleClassifier]
	reloads chan struct{}
}

// Watch loads the rules file at path and reloads it whenever it changes,
// until ctx is done.
func Watch(ctx context.Context, path string, log *slog.Logger) (*WatchedClassifier, error) {
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve rules path: %w", err)
	}
	rc, err := LoadRules(abs)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Editors often replace files instead of writing them in place, so the
	// directory is watched and events are filtered by name.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch rules dir: %w", err)
	}

	wc := &WatchedClassifier{path: abs, log: log, reloads: make(chan struct{}, 1)}
	wc.current.Store(rc)
	go wc.run(ctx, w)
	return wc, nil
}

// Classify implements Classifier.
func (w *WatchedClassifier) Classify(line string) Severity {
	return w.current.Load().Classify(line)
}

// Reloaded signals after each reload attempt, successful or not.
func (w *WatchedClassifier) Reloaded() <-chan struct{} { return w.reloads }

func (w *WatchedClassifier) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer func() {
		_ = watcher.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.log.Debug("classify.watch.error", slog.String("err", err.Error()))
		}
	}
}

func (w *WatchedClassifier) reload() {
	defer func() {
		select {
		case w.reloads <- struct{}{}:
		default:
		}
	}()
	rc, err := LoadRules(w.path)
	if err != nil {
		w.log.Warn("classify.reload.fail", slog.String("path", w.path), slog.String("err", err.Error()))
		return
	}
	w.current.Store(rc)
	w.log.Info("classify.reload.ok", slog.String("path", w.path))
}
