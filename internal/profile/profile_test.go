package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidmem/corvid/internal/embedder"
)

func TestWeights_Validate_AcceptsAllBuiltins(t *testing.T) {
	for _, name := range Names() {
		w, ok := Lookup(name)
		require.True(t, ok, "builtin %q must be registered", name)
		assert.NoError(t, w.Validate(), "builtin %q must be valid", name)
	}
}

func TestWeights_Validate_RejectsOutOfRangeWeight(t *testing.T) {
	var w Weights
	w[embedder.E1] = 1.5
	w[embedder.E2] = -0.5
	assert.Error(t, w.Validate())
}

func TestWeights_Validate_RejectsSumFarFromOne(t *testing.T) {
	var w Weights
	w[embedder.E1] = 0.1
	assert.Error(t, w.Validate())
}

func TestWeights_Validate_AcceptsSumWithinTolerance(t *testing.T) {
	w := Default()
	w[embedder.E1] += sumTolerance / 2
	w[embedder.E2] -= sumTolerance / 2
	assert.NoError(t, w.Validate())
}

func TestLookup_UnknownNameReturnsFalse(t *testing.T) {
	_, ok := Lookup(Name("not_a_real_profile"))
	assert.False(t, ok)
}

func TestCustomStore_RegisterLookupRemove(t *testing.T) {
	s := NewCustomStore()
	w := Default()

	require.NoError(t, s.Register("mine", w))
	got, ok := s.Lookup("mine")
	require.True(t, ok)
	assert.Equal(t, w, got)

	s.Remove("mine")
	_, ok = s.Lookup("mine")
	assert.False(t, ok)
}

func TestCustomStore_Register_RejectsInvalidWeights(t *testing.T) {
	s := NewCustomStore()
	var bad Weights
	bad[embedder.E1] = 0.2
	assert.Error(t, s.Register("bad", bad))
	assert.Equal(t, 0, s.Len())
}

func TestCustomStore_Register_EnforcesCap(t *testing.T) {
	s := NewCustomStore()
	w := Default()
	for i := 0; i < MaxCustomProfiles; i++ {
		name := "p" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		require.NoError(t, s.Register(name, w))
	}
	assert.Equal(t, MaxCustomProfiles, s.Len())

	err := s.Register("one_too_many", w)
	assert.Error(t, err)
	assert.Equal(t, MaxCustomProfiles, s.Len())
}

func TestCustomStore_Register_OverwriteDoesNotCountAgainstCap(t *testing.T) {
	s := NewCustomStore()
	w := Default()
	require.NoError(t, s.Register("same", w))
	require.NoError(t, s.Register("same", w))
	assert.Equal(t, 1, s.Len())
}
