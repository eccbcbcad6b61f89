// Package file reads procedure definitions from YAML or JSON files and
// keeps session snapshots as JSON files on disk.
package file

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/neurosurgery/actionbridge/internal/logging"
	"github.com/neurosurgery/actionbridge/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Loader serves the procedures defined by a fixed set of files.
// Files are re-read on every Load so edits are picked up without restart.
type Loader struct {
	paths    []string
	debounce time.Duration
	logger   *slog.Logger

	mu  sync.Mutex
	ids map[string]string // procedure id -> path
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithDebounce sets how long Watch waits for writes to settle.
func WithDebounce(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.debounce = d
	}
}

// NewLoader creates a loader over paths. Each file holds one procedure.
func NewLoader(paths []string, opts ...LoaderOption) *Loader {
	l := &Loader{
		paths:    append([]string(nil), paths...),
		debounce: 500 * time.Millisecond,
		logger:   logging.NewNop(),
		ids:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ReadProcedure decodes a single definition file. The format is chosen by
// extension: .json is JSON, anything else is YAML.
func ReadProcedure(path string) (*domain.Procedure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read procedure file: %w", err)
	}
	return DecodeProcedure(data, filepath.Ext(path))
}

// DecodeProcedure decodes a definition in the format named by ext.
func DecodeProcedure(data []byte, ext string) (*domain.Procedure, error) {
	var def domain.Procedure
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("invalid procedure json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("invalid procedure yaml: %w", err)
		}
	}
	if def.Initial == "" && len(def.Steps) > 0 {
		def.Initial = def.Steps[0].ID
	}
	return &def, nil
}

// List implements ports.ProcedureLoader.
func (l *Loader) List(ctx context.Context) ([]string, error) {
	ids := make(map[string]string, len(l.paths))
	for _, path := range l.paths {
		def, err := ReadProcedure(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		id := def.ID
		if id == "" {
			id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		if existing, ok := ids[id]; ok {
			return nil, fmt.Errorf("collision detected: ID '%s' is defined in both '%s' and '%s'", id, existing, path)
		}
		ids[id] = path
	}

	l.mu.Lock()
	l.ids = ids
	l.mu.Unlock()

	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Load implements ports.ProcedureLoader.
func (l *Loader) Load(ctx context.Context, id string) (*domain.Procedure, error) {
	l.mu.Lock()
	path, ok := l.ids[id]
	l.mu.Unlock()

	if !ok {
		if _, err := l.List(ctx); err != nil {
			return nil, err
		}
		l.mu.Lock()
		path, ok = l.ids[id]
		l.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("procedure %q not found", id)
		}
	}

	def, err := ReadProcedure(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if def.ID == "" {
		def.ID = id
	}
	return def, nil
}

// Watch implements ports.Watchable. Bursts of writes are coalesced into
// one notification after the debounce interval.
func (l *Loader) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Editors often replace files, so watch the directories and filter by name.
	watched := make(map[string]bool, len(l.paths))
	dirs := make(map[string]bool)
	for _, p := range l.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("could not resolve %s: %w", p, err)
		}
		watched[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("could not watch %s: %w", dir, err)
		}
	}

	ch := make(chan struct{}, 1)

	go func() {
		defer close(ch)
		defer watcher.Close()

		timer := time.NewTimer(l.debounce)
		timer.Stop()
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !watched[filepath.Clean(event.Name)] {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				l.logger.Debug("Procedure file changed", "file", event.Name, "op", event.Op.String())
				timer.Reset(l.debounce)
			case <-timer.C:
				select {
				case ch <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Warn("Procedure watcher error", "err", err)
			}
		}
	}()

	return ch, nil
}
