package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusInfo_Zero(t *testing.T) {
	info := StatusInfo{}

	assert.Empty(t, info.DataDir)
	assert.Equal(t, 0, info.TombstoneCount)
	assert.Empty(t, info.DegradedSlots)
	assert.Empty(t, info.ModelVersions)
}

func TestStatusInfo_JSONSerialization(t *testing.T) {
	info := StatusInfo{
		DataDir:         "/tmp/corvid-data",
		EmbedderBackend: "ollama",
		DegradedSlots:   []string{"E5"},
		TombstoneCount:  4,
		ModelVersions: []EmbedderVersionInfo{
			{Embedder: "E1", Model: "qwen3-embedding:0.6b", FirstSeen: time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)},
		},
	}

	data, err := json.Marshal(info)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))

	assert.Equal(t, "/tmp/corvid-data", parsed["data_dir"])
	assert.Equal(t, "ollama", parsed["embedder_backend"])
	assert.Equal(t, float64(4), parsed["tombstone_count"])
}

func TestStatusRenderer_Render_NoDegradedSlots(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	err := r.Render(StatusInfo{
		DataDir:         "/tmp/corvid-data",
		EmbedderBackend: "static",
		TombstoneCount:  3,
	})

	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "/tmp/corvid-data")
	assert.Contains(t, out, "static")
	assert.Contains(t, out, "Tombstones:       3")
	assert.Contains(t, out, "none")
}

func TestStatusRenderer_Render_ListsDegradedSlots(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	err := r.Render(StatusInfo{
		DataDir:         "/tmp/corvid-data",
		EmbedderBackend: "ollama",
		DegradedSlots:   []string{"E5", "E8.effect"},
	})

	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "E5")
	assert.Contains(t, out, "E8.effect")
}

func TestStatusRenderer_Render_ListsModelVersions(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	err := r.Render(StatusInfo{
		DataDir:         "/tmp/corvid-data",
		EmbedderBackend: "ollama",
		ModelVersions: []EmbedderVersionInfo{
			{Embedder: "E1", Model: "qwen3-embedding:0.6b", FirstSeen: time.Now()},
		},
	})

	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "qwen3-embedding:0.6b")
}

func TestStatusRenderer_Render_ZeroTimeShowsUnknown(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	err := r.Render(StatusInfo{
		DataDir: "/tmp/corvid-data",
		ModelVersions: []EmbedderVersionInfo{
			{Embedder: "E2", Model: "static-stub"},
		},
	})

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "unknown")
}

func TestStatusRenderer_NoColor(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	err := r.Render(StatusInfo{
		DataDir:         "/tmp/corvid-data",
		EmbedderBackend: "static",
	})

	require.NoError(t, err)
	output := buf.String()
	assert.NotContains(t, output, "\x1b[")
	assert.NotContains(t, output, "\033[")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, false)

	err := r.RenderJSON(StatusInfo{
		DataDir:        "/tmp/corvid-data",
		TombstoneCount: 1,
	})
	require.NoError(t, err)

	var parsed StatusInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, "/tmp/corvid-data", parsed.DataDir)
	assert.Equal(t, 1, parsed.TombstoneCount)
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{1024 * 1024 * 1024, "1.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatBytes(tt.bytes)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestIsTTY_NonFileWriter(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, IsTTY(&buf))
}

func TestIsTTY_NilCheck(t *testing.T) {
	assert.False(t, IsTTY(nil))
}
