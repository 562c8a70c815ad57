// Package registry keeps the decoded samples and impulse responses the
// generators refer to by virtual path, and pushes them to a runtime.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/casperleerink/circular-music/internal/wavio"
	"github.com/casperleerink/circular-music/render"
)

// ErrNotRegistered is returned for paths that were never registered or
// have been evicted.
var ErrNotRegistered = errors.New("sample not registered")

// Pruner is implemented by runtimes that can drop virtual files the
// current graph no longer references.
type Pruner interface {
	PruneVirtualFileSystem(keep map[string]bool) []string
}

// Registry is safe for concurrent use.
type Registry struct {
	sampleRate int
	logger     *slog.Logger

	mu      sync.RWMutex
	samples map[string][]float32
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for load and sync diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates an empty registry. Loaded files are resampled to sampleRate.
func New(sampleRate int, opts ...Option) *Registry {
	r := &Registry{
		sampleRate: sampleRate,
		logger:     slog.Default(),
		samples:    make(map[string][]float32),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SampleRate returns the rate registered data is expected to be at.
func (r *Registry) SampleRate() int { return r.sampleRate }

// Register stores a copy of data under path, replacing any earlier entry.
func (r *Registry) Register(path string, data []float32) error {
	if path == "" {
		return fmt.Errorf("register: empty path")
	}
	if len(data) == 0 {
		return fmt.Errorf("register %s: no samples", path)
	}
	cp := make([]float32, len(data))
	copy(cp, data)
	r.mu.Lock()
	r.samples[path] = cp
	r.mu.Unlock()
	return nil
}

// LoadWAV decodes file, downmixes it to mono, resamples it to the registry
// rate and registers it under path.
func (r *Registry) LoadWAV(path, file string) error {
	data, err := wavio.ReadMono(file, r.sampleRate)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	if err := r.Register(path, data); err != nil {
		return err
	}
	r.logger.Info("sample loaded", "path", path, "file", file, "samples", len(data))
	return nil
}

// Lookup returns the samples registered under path. The slice must not be
// modified.
func (r *Registry) Lookup(path string) ([]float32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, ok := r.samples[path]
	if !ok {
		return nil, fmt.Errorf("lookup %s: %w", path, ErrNotRegistered)
	}
	return data, nil
}

// Length returns the number of samples registered under path.
func (r *Registry) Length(path string) (int, error) {
	data, err := r.Lookup(path)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// Evict forgets path. It reports whether the path was registered.
func (r *Registry) Evict(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.samples[path]
	delete(r.samples, path)
	return ok
}

// Paths returns the registered paths in sorted order.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.samples))
	for p := range r.samples {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Sync uploads every registered sample to rt. When rt can prune, evicted
// files the current graph no longer references are dropped from it.
func (r *Registry) Sync(rt render.Runtime) error {
	r.mu.RLock()
	files := make(map[string][]float32, len(r.samples))
	keep := make(map[string]bool, len(r.samples))
	for p, d := range r.samples {
		files[p] = d
		keep[p] = true
	}
	r.mu.RUnlock()

	if len(files) > 0 {
		if err := rt.UpdateVirtualFileSystem(files); err != nil {
			return fmt.Errorf("sync samples: %w", err)
		}
	}
	if p, ok := rt.(Pruner); ok {
		if removed := p.PruneVirtualFileSystem(keep); len(removed) > 0 {
			r.logger.Debug("pruned virtual files", "paths", removed)
		}
	}
	return nil
}
