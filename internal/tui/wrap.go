package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// cell is one prompt rune after styling.
type cell struct {
	s       string
	width   int
	isSpace bool
}

// styleCells colors the prompt: typed runes by correctness, the rune under
// the cursor underlined, the rest dimmed. A mistyped space shows as a dot.
func styleCells(target, input []rune) []cell {
	out := make([]cell, len(target))
	for i, want := range target {
		shown := want
		style := pendingStyle
		if i < len(input) {
			style = correctStyle
			if input[i] != want {
				style = incorrectStyle
				if want == ' ' {
					shown = '•'
				}
			}
		} else if i == len(input) {
			style = cursorStyle
		}
		out[i] = cell{
			s:       style.Render(string(shown)),
			width:   runewidth.RuneWidth(shown),
			isSpace: want == ' ',
		}
	}
	return out
}

// wrapCells breaks lines at spaces so no line exceeds width. Words longer
// than width are split. The breaking space is dropped.
func wrapCells(cells []cell, width int) string {
	if width <= 0 {
		return join(cells)
	}
	var lines []string
	start, lineWidth, lastSpace := 0, 0, -1
	for i := 0; i < len(cells); i++ {
		c := cells[i]
		if lineWidth+c.width > width && i > start {
			end, next := i, i
			if lastSpace >= start {
				end, next = lastSpace, lastSpace+1
			}
			lines = append(lines, join(cells[start:end]))
			start, lastSpace = next, -1
			lineWidth = 0
			for _, rest := range cells[start:i] {
				lineWidth += rest.width
			}
		}
		lineWidth += c.width
		if c.isSpace {
			lastSpace = i
		}
	}
	lines = append(lines, join(cells[start:]))
	return strings.Join(lines, "\n")
}

func join(cells []cell) string {
	var b strings.Builder
	for _, c := range cells {
		b.WriteString(c.s)
	}
	return b.String()
}

var (
	correctStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	incorrectStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cursorStyle    = pendingStyle.Underline(true)
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#C89A3A"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
)
