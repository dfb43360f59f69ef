package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// Menu lists the key hints of the current page in columns.
type Menu struct {
	*tview.TextView
	theme *Theme
	rows  int
}

// NewMenu creates a hint menu that wraps into columns of rows lines.
func NewMenu(theme *Theme, rows int) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)

	return &Menu{
		TextView: tv,
		theme:    theme,
		rows:     max(rows, 1),
	}
}

// Update renders hints top to bottom, then left to right.
func (m *Menu) Update(hints []MenuHint) {
	m.SetText(m.layout(hints))
}

func (m *Menu) layout(hints []MenuHint) string {
	keyColor := ColorName(m.theme.MenuKeyColor)
	numColor := ColorName(m.theme.NumericKeyColor)

	cols := (len(hints) + m.rows - 1) / m.rows
	lines := make([]strings.Builder, m.rows)
	for i, h := range hints {
		kc := keyColor
		if h.Numeric {
			kc = numColor
		}
		cell := fmt.Sprintf("[%s::b]<%s>[-:-:-] %-12s", kc, tview.Escape(h.Key), h.Description)
		lines[i%m.rows].WriteString(cell)
		if i/m.rows < cols-1 {
			lines[i%m.rows].WriteString(" ")
		}
	}
	out := make([]string, 0, m.rows)
	for i := range lines {
		if lines[i].Len() > 0 {
			out = append(out, lines[i].String())
		}
	}
	return strings.Join(out, "\n")
}
