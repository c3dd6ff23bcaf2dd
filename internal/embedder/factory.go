package embedder

import (
	"fmt"
	"strings"
)

// Backend selects the embedder implementation wired into a Pool.
type Backend string

const (
	// BackendStatic uses deterministic hash-based vectors (default).
	BackendStatic Backend = "static"
	// BackendStub uses fixed vectors, for tests.
	BackendStub Backend = "stub"
	// BackendOllama calls a local Ollama daemon for a real embedding model
	// and projects its output into each embedder's declared shape.
	BackendOllama Backend = "ollama"
)

// Pool is the full bank of embedder instances, one per logical embedder,
// addressable by Index. The fingerprint builder dispatches to every member
// of the pool in parallel.
type Pool struct {
	backend   Backend
	embedders [NumEmbedders]Embedder
}

// NewPool constructs a pool of embedders for the entire registry using the
// given backend.
func NewPool(backend Backend) (*Pool, error) {
	var manager *OllamaManager
	var model string
	if backend == BackendOllama {
		manager = NewOllamaManager()
		model = DefaultOllamaModel
	}

	p := &Pool{backend: backend}
	for i, spec := range Registry {
		e, err := newEmbedder(backend, spec, manager, model)
		if err != nil {
			return nil, fmt.Errorf("construct embedder %s: %w", spec.Index, err)
		}
		p.embedders[i] = e
	}
	return p, nil
}

func newEmbedder(backend Backend, spec Spec, manager *OllamaManager, model string) (Embedder, error) {
	switch backend {
	case BackendStatic:
		return NewStaticEmbedder(spec), nil
	case BackendStub:
		return NewStubEmbedder(spec), nil
	case BackendOllama:
		return NewOllamaEmbedder(spec, manager, model), nil
	default:
		return nil, fmt.Errorf("unknown embedder backend %q", backend)
	}
}

// ParseBackend converts a config string to a Backend, defaulting to static.
func ParseBackend(s string) Backend {
	switch strings.ToLower(s) {
	case "stub":
		return BackendStub
	case "ollama":
		return BackendOllama
	default:
		return BackendStatic
	}
}

// Get returns the embedder instance for idx.
func (p *Pool) Get(idx Index) Embedder {
	return p.embedders[idx]
}

// All returns every embedder instance in registry order.
func (p *Pool) All() [NumEmbedders]Embedder {
	return p.embedders
}

// Close releases every embedder in the pool, returning the first error
// encountered (if any) after attempting to close all of them.
func (p *Pool) Close() error {
	var firstErr error
	for _, e := range p.embedders {
		if e == nil {
			continue
		}
		if err := e.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
