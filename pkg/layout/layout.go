// Package layout loads the HTML templates of custom layouts. A DirSource
// reads <dir>/<name>.html on first use and caches it until fsnotify reports
// the file changed.
package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/cuemby/canopy/pkg/log"
)

// Extension is the file extension of template files
const Extension = ".html"

var (
	// ErrNotFound is returned for templates that do not exist
	ErrNotFound = errors.New("layout: template not found")

	// ErrInvalidName is returned for names that would escape the template
	// directory
	ErrInvalidName = errors.New("layout: invalid template name")
)

// ValidName reports whether name can be used as a template name
func ValidName(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}

// MapSource serves templates from memory
type MapSource map[string]string

func (m MapSource) Template(name string) (string, error) {
	text, ok := m[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return text, nil
}

// DirSource serves <name>.html files from a directory. Files are cached
// after the first read; Watch drops cached files when they change on disk.
type DirSource struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]string

	watcher *fsnotify.Watcher
	done    chan struct{}
	logger  zerolog.Logger
}

// NewDirSource creates a source reading from dir
func NewDirSource(dir string) *DirSource {
	return &DirSource{
		dir:    dir,
		cache:  make(map[string]string),
		logger: log.WithComponent("layout"),
	}
}

// Template returns the text of the named template
func (s *DirSource) Template(name string) (string, error) {
	if !ValidName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	s.mu.RLock()
	text, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return text, nil
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name+Extension))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read template %s: %w", name, err)
	}

	s.mu.Lock()
	s.cache[name] = string(data)
	s.mu.Unlock()
	return string(data), nil
}

// Cached returns the number of cached templates
func (s *DirSource) Cached() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// Invalidate drops name from the cache
func (s *DirSource) Invalidate(name string) {
	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()
}

// Watch starts dropping cached templates when their files change
func (s *DirSource) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}
	s.watcher = watcher
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				base := filepath.Base(event.Name)
				if !strings.HasSuffix(base, Extension) {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
					event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					name := strings.TrimSuffix(base, Extension)
					s.Invalidate(name)
					s.logger.Debug().Str("template", name).Str("op", event.Op.String()).Msg("Template changed")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn().Err(err).Msg("Template watcher error")
			}
		}
	}()

	s.logger.Info().Str("dir", s.dir).Msg("Watching layout templates")
	return nil
}

// Close stops watching
func (s *DirSource) Close() error {
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	<-s.done
	s.watcher = nil
	return err
}
