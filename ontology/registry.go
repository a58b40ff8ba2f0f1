package ontology

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Loader reads a Graph from a file of one or more formats.
type Loader interface {
	Load(ctx context.Context, path string) (*Graph, error)
	SupportedFormats() []string
}

// Registry maps file extensions (without the dot) to loaders.
type Registry struct {
	loaders map[string]Loader
}

func NewRegistry() *Registry {
	r := &Registry{loaders: make(map[string]Loader)}
	for _, l := range []Loader{&RDFLoader{}, &XLSXLoader{}, &YAMLLoader{}} {
		for _, f := range l.SupportedFormats() {
			r.loaders[f] = l
		}
	}
	return r
}

func (r *Registry) Get(format string) (Loader, error) {
	l, ok := r.loaders[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	return l, nil
}

func (r *Registry) Register(format string, l Loader) {
	r.loaders[strings.ToLower(format)] = l
}

// Load reads path with the loader registered for its extension.
func (r *Registry) Load(ctx context.Context, path string) (*Graph, error) {
	l, err := r.Get(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return nil, err
	}
	g, err := l.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", filepath.Base(path), err)
	}
	return g, nil
}

var defaultRegistry = NewRegistry()

// Load reads path with the built-in loaders, chosen by file extension.
func Load(ctx context.Context, path string) (*Graph, error) {
	return defaultRegistry.Load(ctx, path)
}
