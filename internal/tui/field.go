package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// textField is a minimal single-line input. Masked fields render asterisks
// for secrets.
type textField struct {
	label  string
	value  string
	masked bool
}

// handleKey applies a key press; it reports whether the key was consumed.
func (f *textField) handleKey(msg tea.KeyMsg) bool {
	switch msg.Type {
	case tea.KeyRunes:
		f.value += string(msg.Runes)
		return true
	case tea.KeySpace:
		f.value += " "
		return true
	case tea.KeyBackspace:
		if f.value != "" {
			runes := []rune(f.value)
			f.value = string(runes[:len(runes)-1])
		}
		return true
	case tea.KeyCtrlU:
		f.value = ""
		return true
	}
	return false
}

func (f *textField) display() string {
	if f.masked {
		return strings.Repeat("*", len([]rune(f.value)))
	}
	return f.value
}

// render draws "label: value" with a cursor when focused.
func (f *textField) render(s Styles, focused bool) string {
	cursor := ""
	if focused {
		cursor = "█"
	}
	line := f.label + ": " + f.display() + cursor
	if focused {
		return s.title.Render(line)
	}
	return s.label.Render(line)
}
