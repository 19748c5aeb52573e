// internal/catalog/file.go
package catalog

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"office-affinity/internal/common/logger"
	"office-affinity/internal/models"
	"office-affinity/pkg/roster"
)

const debounce = 100 * time.Millisecond

// FileCatalog serves profiles from a roster file. Watch reloads it when the
// file changes; editors that replace the file are handled by watching the
// parent directory.
type FileCatalog struct {
	path     string
	notifier Notifier
	logger   logger.Logger

	mu       sync.Mutex
	profiles []models.Profile
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

func NewFileCatalog(path string, log logger.Logger) *FileCatalog {
	return &FileCatalog{
		path:   filepath.Clean(path),
		logger: logger.ForComponent(log, "file-catalog"),
	}
}

func (c *FileCatalog) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.profiles == nil {
		r, err := roster.Load(c.path)
		if err != nil {
			return nil, err
		}
		profiles, err := r.ToProfiles()
		if err != nil {
			return nil, err
		}
		c.profiles = profiles
	}
	return append([]models.Profile(nil), c.profiles...), nil
}

func (c *FileCatalog) OnProfileChanged(fn func()) func() {
	return c.notifier.Subscribe(fn)
}

// Watch starts the file watcher. It returns immediately; the watcher stops
// when ctx ends or on Close.
func (c *FileCatalog) Watch(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watcher != nil {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(c.path)); err != nil {
		w.Close()
		return err
	}
	c.watcher = w
	c.done = make(chan struct{})
	go c.run(ctx, w, c.done)

	c.logger.Info("watching roster file", map[string]interface{}{"path": c.path})
	return nil
}

func (c *FileCatalog) run(ctx context.Context, w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != c.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			c.logger.Warn("roster watcher error", map[string]interface{}{"error": err})
		case <-timer.C:
			c.reload()
		}
	}
}

// reload drops the cached roster and notifies subscribers. A roster that
// fails to load is reported by the next ListProfiles.
func (c *FileCatalog) reload() {
	c.mu.Lock()
	c.profiles = nil
	c.mu.Unlock()
	c.logger.Info("roster file changed", map[string]interface{}{"path": c.path})
	c.notifier.Notify()
}

func (c *FileCatalog) Close() error {
	c.mu.Lock()
	w, done := c.watcher, c.done
	c.watcher = nil
	c.mu.Unlock()
	if w == nil {
		return nil
	}
	err := w.Close()
	<-done
	return err
}
