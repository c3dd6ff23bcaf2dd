package search

import (
	"github.com/corvidmem/corvid/internal/classifier"
	"github.com/corvidmem/corvid/internal/profile"
	"github.com/corvidmem/corvid/internal/telemetry"
)

// EngineOption configures an Engine at construction via the functional
// options pattern.
type EngineOption func(*Engine)

// WithClassifier sets the cue-based classifier consulted when a search
// names neither an explicit profile nor explicit weights.
func WithClassifier(c *classifier.HybridClassifier) EngineOption {
	return func(e *Engine) {
		e.classifier = c
	}
}

// WithCustomProfiles wires a session-scoped custom profile store so
// SearchOptions.ProfileName can resolve names registered at runtime, not
// just the seven built-ins.
func WithCustomProfiles(store *profile.CustomStore) EngineOption {
	return func(e *Engine) {
		e.customProfiles = store
	}
}

// WithTelemetry records one QueryEvent per completed Search/Pipeline call
// against metrics, so query-pattern reporting can run without any caller
// having to instrument the call site itself.
func WithTelemetry(metrics *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) {
		e.telemetry = metrics
	}
}
