package pairing

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// TerminalDisplay renders the passkey in a bordered box.
type TerminalDisplay struct {
	Out io.Writer

	box    lipgloss.Style
	digits lipgloss.Style
	muted  lipgloss.Style
}

// NewTerminalDisplay writes to out, or stdout when out is nil.
func NewTerminalDisplay(out io.Writer) *TerminalDisplay {
	if out == nil {
		out = os.Stdout
	}
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}

	return &TerminalDisplay{
		Out: out,
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlight).
			Padding(0, 2),
		digits: lipgloss.NewStyle().
			Bold(true).
			Foreground(highlight),
		muted: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}),
	}
}

func (d *TerminalDisplay) ShowPasskey(ev Event, prompt string) {
	body := lipgloss.JoinVertical(lipgloss.Center,
		d.muted.Render(prompt),
		d.digits.Render(FormatPasskey(ev.Passkey)),
		d.muted.Render(fmt.Sprintf("connection %d", ev.Conn)),
	)
	fmt.Fprintln(d.Out, d.box.Render(body))
}
