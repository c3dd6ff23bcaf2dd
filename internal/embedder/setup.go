package embedder

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// SetupChoice is the operator's answer when the configured backend can't
// be reached at startup.
type SetupChoice int

const (
	// SetupShowInstall prints install instructions, then the caller retries.
	SetupShowInstall SetupChoice = iota + 1
	// SetupFallbackStatic drops to BackendStatic for this run.
	SetupFallbackStatic
	// SetupCancel aborts startup.
	SetupCancel
)

// PromptNoBackend asks the operator how to proceed when the ollama
// backend is configured but Ollama isn't installed or reachable.
func PromptNoBackend(w io.Writer, r io.Reader) (SetupChoice, error) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "The ollama embedder backend is configured but Ollama is not reachable.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  [1] Show install instructions (then retry)")
	fmt.Fprintln(w, "  [2] Fall back to the static backend for this run")
	fmt.Fprintln(w, "  [3] Cancel")
	fmt.Fprintln(w, "")
	fmt.Fprint(w, "Choice [1]: ")

	input, err := readChoice(r)
	if err != nil {
		return SetupCancel, err
	}
	switch input {
	case "1", "":
		return SetupShowInstall, nil
	case "2":
		return SetupFallbackStatic, nil
	case "3":
		return SetupCancel, nil
	default:
		return SetupCancel, fmt.Errorf("invalid choice: %s", input)
	}
}

// ShowInstallInstructions writes platform-specific install instructions to w.
func ShowInstallInstructions(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, InstallInstructions())
	fmt.Fprintln(w, "")
}

// PromptPullModel asks whether to pull a missing embedding model now.
func PromptPullModel(w io.Writer, r io.Reader, model string) (bool, error) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Embedding model %q is not installed.\n", model)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  [1] Pull model now (recommended)")
	fmt.Fprintln(w, "  [2] Cancel")
	fmt.Fprintln(w, "")
	fmt.Fprint(w, "Choice [1]: ")

	input, err := readChoice(r)
	if err != nil {
		return false, err
	}
	return input == "1" || input == "", nil
}

func readChoice(r io.Reader) (string, error) {
	reader := bufio.NewReader(r)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(input), nil
}

// ProgressBar renders a simple terminal progress bar for a model pull.
type ProgressBar struct {
	w     io.Writer
	width int
}

// NewProgressBar returns a bar of the given character width (default 40).
func NewProgressBar(w io.Writer, width int) *ProgressBar {
	if width <= 0 {
		width = 40
	}
	return &ProgressBar{w: w, width: width}
}

// Update redraws the bar at percent (0-100) with a trailing message.
func (p *ProgressBar) Update(percent float64, message string) {
	filled := int(percent / 100 * float64(p.width))
	if filled > p.width {
		filled = p.width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)
	fmt.Fprintf(p.w, "\r[%s] %.0f%% %s", bar, percent, message)
}

// Finish terminates the bar's line.
func (p *ProgressBar) Finish() { fmt.Fprintln(p.w) }

// FormatBytes renders n in human-readable units.
func FormatBytes(n int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.1f GB", float64(n)/float64(gb))
	case n >= mb:
		return fmt.Sprintf("%.1f MB", float64(n)/float64(mb))
	case n >= kb:
		return fmt.Sprintf("%.1f KB", float64(n)/float64(kb))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
