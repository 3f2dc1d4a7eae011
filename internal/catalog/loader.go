package catalog

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Loader reads a catalog file and reloads it when the file changes.
type Loader struct {
	path     string
	logger   zerolog.Logger
	mu       sync.RWMutex
	current  *Catalog
	onChange []func(*Catalog)
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string, logger zerolog.Logger) (*Loader, error) {
	l := &Loader{path: path, logger: logger}
	c, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = c
	return l, nil
}

// Catalog returns the latest successfully parsed catalog.
func (l *Loader) Catalog() *Catalog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback run after every successful reload.
func (l *Loader) OnChange(fn func(*Catalog)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch hot-reloads the catalog on file changes until stop is called. A file
// that fails to parse is logged and the previous catalog stays current.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("catalog watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("catalog watcher add %s: %w", l.path, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						l.logger.Warn().Err(err).Str("path", l.path).Msg("catalog reload failed, keeping previous version")
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warn().Err(err).Str("path", l.path).Msg("catalog watcher error")
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

// Reload re-reads the file now and notifies the callbacks.
func (l *Loader) Reload() (*Catalog, error) {
	c, err := l.load()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = c
	callbacks := make([]func(*Catalog), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()

	l.logger.Info().Str("path", l.path).Int("scenarios", len(c.Scenarios)).Msg("catalog loaded")
	for _, fn := range callbacks {
		fn(c)
	}
	return c, nil
}

func (l *Loader) load() (*Catalog, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", l.path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.path, err)
	}
	return c, nil
}
