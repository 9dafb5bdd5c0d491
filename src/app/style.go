package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	comment = lipgloss.Color("#6272a4")
	cyan    = lipgloss.Color("#8be9fd")
	green   = lipgloss.Color("#50fa7b")
	purple  = lipgloss.Color("#bd93f9")
	red     = lipgloss.Color("#ff5555")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(purple).
			Bold(true)

	keyStyle = lipgloss.NewStyle().
			Foreground(comment)

	pathStyle = lipgloss.NewStyle().
			Foreground(cyan)

	okStyle = lipgloss.NewStyle().
		Foreground(green)

	errorStyle = lipgloss.NewStyle().
			Foreground(red)
)

// isTerminal reports whether w is a terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printer writes key/value listings, styled when the output is a terminal
type printer struct {
	w      io.Writer
	styled bool
}

func (p printer) render(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p printer) title(text string) {
	fmt.Fprintln(p.w, p.render(titleStyle, text))
}

func (p printer) field(key string, value any) {
	fmt.Fprintf(p.w, "  %s %v\n", p.render(keyStyle, fmt.Sprintf("%-15s", key+":")), value)
}

func (p printer) path(prefix, value string) {
	fmt.Fprintf(p.w, "  %s%s\n", prefix, p.render(pathStyle, value))
}

func (p printer) status(ok bool, text string) string {
	if ok {
		return p.render(okStyle, text)
	}
	return p.render(errorStyle, text)
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
