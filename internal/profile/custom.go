package profile

import (
	"strconv"
	"sync"

	"github.com/corvidmem/corvid/internal/cerrors"
)

// MaxCustomProfiles bounds how many ad hoc profiles one session may
// register, the concrete cap for "unbounded collections"
// guard applied to custom profiles.
const MaxCustomProfiles = 64

// CustomStore holds a session's ad hoc named weight vectors, separate
// from the fixed builtins map so a session's overrides never mutate
// global state. Grounded on internal/compaction/progress.go's
// single-mutex guarded-struct shape used throughout runtime state.
type CustomStore struct {
	mu       sync.RWMutex
	profiles map[string]Weights
}

// NewCustomStore returns an empty session-scoped profile store.
func NewCustomStore() *CustomStore {
	return &CustomStore{profiles: make(map[string]Weights)}
}

// Register validates and stores a custom profile under name, rejecting
// both an invalid vector and registration past MaxCustomProfiles.
// Re-registering an existing name overwrites it without counting
// against the cap.
func (c *CustomStore) Register(name string, w Weights) error {
	if err := w.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.profiles[name]; !exists && len(c.profiles) >= MaxCustomProfiles {
		return cerrors.ValidationError("custom profile limit reached", nil).
			WithDetail("limit", strconv.Itoa(MaxCustomProfiles))
	}
	c.profiles[name] = w
	return nil
}

// Lookup returns the named custom profile, if registered.
func (c *CustomStore) Lookup(name string) (Weights, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.profiles[name]
	return w, ok
}

// Remove deletes a custom profile, freeing its slot against the cap.
func (c *CustomStore) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.profiles, name)
}

// Len reports how many custom profiles are currently registered.
func (c *CustomStore) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.profiles)
}
