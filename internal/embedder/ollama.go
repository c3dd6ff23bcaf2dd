package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Ollama lifecycle constants, carried over from zero-config
// embedding-model setup.
const (
	DefaultOllamaHost          = "http://localhost:11434"
	DefaultOllamaModel         = "qwen3-embedding:0.6b"
	OllamaStartupTimeout       = 30 * time.Second
	ollamaReadyPollInterval    = 100 * time.Millisecond
	ollamaMaxReadyPollInterval = 2 * time.Second
)

// OllamaManager detects, starts, and health-checks a local Ollama daemon,
// and issues embedding calls against it. Adapted from // process-lifecycle manager: the chat/pull-progress surface is trimmed
// down to what an Embedder backend needs — detect, start, wait-for-ready,
// confirm the model is present, and call /api/embeddings.
type OllamaManager struct {
	host    string
	client  *http.Client
	timeout time.Duration

	execCommand func(name string, args ...string) *exec.Cmd
	lookPath    func(file string) (string, error)
	fileExists  func(path string) bool
}

// NewOllamaManager builds a manager against the default or
// CORVID_OLLAMA_HOST-overridden host.
func NewOllamaManager() *OllamaManager {
	host := DefaultOllamaHost
	if envHost := os.Getenv("CORVID_OLLAMA_HOST"); envHost != "" {
		host = envHost
	}
	return &OllamaManager{
		host:        host,
		client:      &http.Client{Timeout: 5 * time.Second},
		timeout:     OllamaStartupTimeout,
		execCommand: exec.Command,
		lookPath:    exec.LookPath,
		fileExists:  func(path string) bool { _, err := os.Stat(path); return err == nil },
	}
}

func (m *OllamaManager) Host() string { return m.host }

// IsInstalled checks for an ollama binary or macOS app bundle.
func (m *OllamaManager) IsInstalled() (bool, string, error) {
	if path, err := m.lookPath("ollama"); err == nil {
		return true, path, nil
	}

	if runtime.GOOS == "darwin" {
		for _, p := range []string{"/Applications/Ollama.app", filepath.Join(os.Getenv("HOME"), "Applications", "Ollama.app")} {
			if m.fileExists(p) {
				return true, p, nil
			}
		}
	}
	if runtime.GOOS == "linux" {
		for _, p := range []string{"/usr/local/bin/ollama", "/usr/bin/ollama", filepath.Join(os.Getenv("HOME"), ".local", "bin", "ollama")} {
			if m.fileExists(p) {
				return true, p, nil
			}
		}
	}
	return false, "", nil
}

// IsRunning reports whether the Ollama API answers at Host().
func (m *OllamaManager) IsRunning() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.host+"/api/tags", nil)
	if err != nil {
		return false, fmt.Errorf("build status request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false, nil
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// HasModel reports whether model (or its base name before ':') is pulled.
func (m *OllamaManager) HasModel(ctx context.Context, model string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.host+"/api/tags", nil)
	if err != nil {
		return false, fmt.Errorf("build tags request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("connect to ollama: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decode tags response: %w", err)
	}

	want := strings.ToLower(model)
	wantBase := strings.Split(want, ":")[0]
	for _, entry := range result.Models {
		got := strings.ToLower(entry.Name)
		if got == want || strings.Split(got, ":")[0] == wantBase {
			return true, nil
		}
	}
	return false, nil
}

// Start launches the Ollama daemon if it isn't already running.
func (m *OllamaManager) Start() error {
	installed, path, err := m.IsInstalled()
	if err != nil {
		return fmt.Errorf("check ollama installation: %w", err)
	}
	if !installed {
		return fmt.Errorf("ollama is not installed")
	}
	if running, _ := m.IsRunning(); running {
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		if strings.HasSuffix(path, ".app") || m.fileExists("/Applications/Ollama.app") {
			cmd := m.execCommand("open", "-a", "Ollama")
			if err := cmd.Start(); err != nil {
				return fmt.Errorf("open Ollama.app: %w", err)
			}
			return nil
		}
		return m.startServe(path)
	case "linux":
		return m.startServe(path)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

func (m *OllamaManager) startServe(path string) error {
	cmd := m.execCommand(path, "serve")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ollama serve: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// WaitForReady polls IsRunning with exponential backoff until it succeeds
// or timeout elapses.
func (m *OllamaManager) WaitForReady(ctx context.Context, timeout time.Duration) error {
	if timeout == 0 {
		timeout = OllamaStartupTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := ollamaReadyPollInterval
	for {
		if running, _ := m.IsRunning(); running {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for ollama to start: %w", ctx.Err())
		case <-time.After(interval):
		}
		interval *= 2
		if interval > ollamaMaxReadyPollInterval {
			interval = ollamaMaxReadyPollInterval
		}
	}
}

// PullModel blocks until model is present locally, issuing a streaming
// pull request if it is missing.
func (m *OllamaManager) PullModel(ctx context.Context, model string) error {
	has, err := m.HasModel(ctx, model)
	if err != nil {
		return fmt.Errorf("check model presence: %w", err)
	}
	if has {
		return nil
	}

	body, err := json.Marshal(struct {
		Name string `json:"name"`
	}{Name: model})
	if err != nil {
		return fmt.Errorf("encode pull request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.host+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build pull request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("pull model: %w", err)
	}
	defer resp.Body.Close()

	// Drain the newline-delimited status stream without reporting
	// progress; setup.go's ProgressBar is not driven from here.
	scanner := json.NewDecoder(resp.Body)
	for {
		var status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if err := scanner.Decode(&status); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read pull stream: %w", err)
		}
		if status.Error != "" {
			return fmt.Errorf("pull model: %s", status.Error)
		}
	}
}

// EmbedText calls Ollama's embeddings endpoint and returns the raw model
// vector for content.
func (m *OllamaManager) EmbedText(ctx context.Context, model, content string) ([]float32, error) {
	body, err := json.Marshal(struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}{Model: model, Prompt: content})
	if err != nil {
		return nil, fmt.Errorf("encode embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.host+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call embeddings endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embeddings endpoint returned %d: %s", resp.StatusCode, string(data))
	}

	var result struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("embeddings endpoint returned an empty vector")
	}
	return result.Embedding, nil
}

// OllamaEmbedder implements Embedder by calling one real model through
// OllamaManager and projecting its output vector into each slot's
// declared shape and dimension. A single live call covers every variant
// of an embedder, matching the static embedder's one-call-per-spec
// contract.
type OllamaEmbedder struct {
	spec    Spec
	manager *OllamaManager
	model   string

	mu     sync.RWMutex
	closed bool
}

// NewOllamaEmbedder returns an Ollama-backed embedder for spec, sharing
// manager and model across the whole pool (one daemon, one model, project
// down to each embedder's own dimension).
func NewOllamaEmbedder(spec Spec, manager *OllamaManager, model string) *OllamaEmbedder {
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaEmbedder{spec: spec, manager: manager, model: model}
}

func (e *OllamaEmbedder) Spec() Spec { return e.spec }

func (e *OllamaEmbedder) Embed(ctx context.Context, content string, hint *CausalHint) ([]Output, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, errClosed(e.spec.Index)
	}
	e.mu.RUnlock()

	raw, err := e.manager.EmbedText(ctx, e.model, content)
	if err != nil {
		return nil, fmt.Errorf("embedder %s: %w", e.spec.Index, err)
	}

	outputs := make([]Output, 0, len(e.spec.Variants))
	for _, v := range e.spec.Variants {
		out := Output{Slot: Slot{Index: e.spec.Index, Variant: v}}
		boost := asymmetryBoost(e.spec, v, hint)
		switch e.spec.Shape {
		case ShapeDense:
			out.Dense = projectDense(raw, e.spec, v, boost)
		case ShapeSparse:
			out.Sparse = projectSparse(content, raw, e.spec, v, boost)
		case ShapeToken:
			out.Tokens = projectTokens(content, raw, e.spec)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()
	running, _ := e.manager.IsRunning()
	return running
}

func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// projectDense hashes the model's raw vector down (or up) into spec's
// fixed dimension via a seeded random-projection sum, since each embedder
// slot's dimension is declared independently of the underlying model's
// native width.
func projectDense(raw []float32, spec Spec, v Variant, boost float64) []float32 {
	out := make([]float32, spec.Dimension)
	seed := spec.Index.String() + string(v)
	for i, val := range raw {
		idx := hashToIndex(fmt.Sprintf("%s:%d", seed, i), spec.Dimension)
		out[idx] += val
	}
	if boost > 0 {
		for i := range out {
			out[i] *= float32(1 + boost)
		}
	}
	return normalizeVector(out)
}

// projectSparse takes the content's own term weights (as the static
// embedder computes them) and scales every one by 1 plus the mean absolute
// value of the model vector, so the sparse substrate still reflects real
// lexical content rather than purely derived weights.
func projectSparse(content string, raw []float32, spec Spec, v Variant, boost float64) map[string]float32 {
	terms := sparseTerms(content, spec, v, boost)
	magnitude := float32(0)
	for _, val := range raw {
		if val < 0 {
			val = -val
		}
		magnitude += val
	}
	if magnitude == 0 || len(terms) == 0 {
		return terms
	}
	scale := magnitude / float32(len(raw))
	for k, w := range terms {
		terms[k] = w * (1 + scale)
	}
	return terms
}

// NotInstalledError indicates Ollama is not installed.
type NotInstalledError struct{}

func (e *NotInstalledError) Error() string { return "ollama is not installed" }

// NotRunningError indicates Ollama is installed but not reachable.
type NotRunningError struct{}

func (e *NotRunningError) Error() string { return "ollama is not running" }

// ModelNotFoundError indicates the configured embedding model is not pulled.
type ModelNotFoundError struct{ Model string }

func (e *ModelNotFoundError) Error() string { return fmt.Sprintf("model %s not found", e.Model) }

// InstallInstructions returns platform-specific install instructions for
// the Ollama embedding backend.
func InstallInstructions() string {
	switch runtime.GOOS {
	case "darwin":
		return `Ollama is required for the ollama embedder backend.

Install options:
  1. Download from: https://ollama.com/download
  2. Or via Homebrew: brew install ollama

After installation, run: corvidd setup`
	case "linux":
		return `Ollama is required for the ollama embedder backend.

Install:
  curl -fsSL https://ollama.com/install.sh | sh

After installation, run: corvidd setup`
	default:
		return `Ollama is required for the ollama embedder backend.

Download from: https://ollama.com/download

After installation, run: corvidd setup`
	}
}

// IsRemoteHost reports whether the configured host is not local.
func (m *OllamaManager) IsRemoteHost() bool {
	return !strings.Contains(m.host, "localhost") && !strings.Contains(m.host, "127.0.0.1")
}

func projectTokens(content string, raw []float32, spec Spec) [][]float32 {
	tokens := tokenize(content)
	if len(tokens) == 0 {
		return [][]float32{make([]float32, spec.Dimension)}
	}
	out := make([][]float32, 0, len(tokens))
	for i, tok := range tokens {
		vec := make([]float32, spec.Dimension)
		base := hashToIndex(spec.Index.String()+":"+tok, spec.Dimension)
		vec[base] = 1.0
		if len(raw) > 0 {
			vec[hashToIndex(fmt.Sprintf("%s:%d", tok, i), spec.Dimension)] += raw[i%len(raw)]
		}
		out = append(out, normalizeVector(vec))
	}
	return out
}
