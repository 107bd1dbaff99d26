package ml

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadableModel serves predictions from the current model artifact and
// swaps it in place when the file is rewritten on disk. Predictions already
// persisted keep the price computed by whichever artifact was live at insert
// time; nothing is ever recomputed.
type ReloadableModel struct {
	modelType string
	path      string

	mu      sync.RWMutex
	current Model

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewReloadableModel loads the artifact once. Call Watch to enable
// hot-reload.
func NewReloadableModel(modelType, path string) (*ReloadableModel, error) {
	current, err := LoadModel(modelType, path)
	if err != nil {
		return nil, err
	}
	return &ReloadableModel{
		modelType: modelType,
		path:      path,
		current:   current,
		done:      make(chan struct{}),
	}, nil
}

// Predict delegates to the currently loaded model.
func (r *ReloadableModel) Predict(features []float64) (float64, error) {
	r.mu.RLock()
	model := r.current
	r.mu.RUnlock()
	return model.Predict(features)
}

// Watch reloads the artifact whenever it changes. A failed reload keeps the
// previous model serving.
func (r *ReloadableModel) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(r.path); err != nil {
		watcher.Close()
		return err
	}
	r.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				model, err := LoadModel(r.modelType, r.path)
				if err != nil {
					zap.S().Warnw("model reload failed, keeping previous model",
						"path", r.path, "error", err)
					continue
				}
				r.mu.Lock()
				r.current = model
				r.mu.Unlock()
				zap.S().Infow("model reloaded", "path", r.path)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-r.done:
				return
			}
		}
	}()
	return nil
}

// Stop ends watching. Safe to call when Watch was never started.
func (r *ReloadableModel) Stop() {
	close(r.done)
	if r.watcher != nil {
		r.watcher.Close()
	}
}
