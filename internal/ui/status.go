package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// DetectNoColor reports whether the NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// IsTTY reports whether w is a terminal, so callers can decide between
// styled and plain output.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// EmbedderVersionInfo reports the model identity last observed for one
// embedder slot.
type EmbedderVersionInfo struct {
	Embedder  string    `json:"embedder"`
	Model     string    `json:"model"`
	FirstSeen time.Time `json:"first_seen"`
}

// StatusInfo summarizes the health of a data directory's store and
// indexes for the status command.
type StatusInfo struct {
	DataDir         string                `json:"data_dir"`
	EmbedderBackend string                `json:"embedder_backend"`
	DegradedSlots   []string              `json:"degraded_slots,omitempty"`
	TombstoneCount  int                   `json:"tombstone_count"`
	ModelVersions   []EmbedderVersionInfo `json:"model_versions,omitempty"`
}

// StatusRenderer displays store status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render displays status info to the terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Store status: "+info.DataDir))

	_, _ = fmt.Fprintf(r.out, "  Embedder backend: %s\n", info.EmbedderBackend)
	_, _ = fmt.Fprintf(r.out, "  Tombstones:       %d\n", info.TombstoneCount)
	_, _ = fmt.Fprintln(r.out)

	if len(info.DegradedSlots) > 0 {
		_, _ = fmt.Fprintln(r.out, "  Degraded slots:")
		for _, slot := range info.DegradedSlots {
			_, _ = fmt.Fprintf(r.out, "    %s\n", r.styles.Warning.Render(slot))
		}
	} else {
		_, _ = fmt.Fprintf(r.out, "  Degraded slots:   %s\n", r.styles.Success.Render("none"))
	}
	_, _ = fmt.Fprintln(r.out)

	if len(info.ModelVersions) > 0 {
		_, _ = fmt.Fprintln(r.out, "  Model versions:")
		for _, v := range info.ModelVersions {
			_, _ = fmt.Fprintf(r.out, "    %-5s %-30s first seen %s\n", v.Embedder, v.Model, formatTime(v.FirstSeen))
		}
	}

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
