package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// Logo is the small wordmark in the top-right corner.
type Logo struct {
	*tview.TextView
}

// NewLogo creates the logo.
func NewLogo(theme *Theme) *Logo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignRight)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 0, 1)

	title := ColorName(theme.TitleColor)
	_, _ = fmt.Fprintf(tv,
		"[%s::b]╻┏┓╻┏┓ ┏━┓╻ ╻[-:-:-]\n"+
			"[%s::b]┃┃┗┫┣┻┓┃ ┃┏╋┛[-:-:-]\n"+
			"[%s::b]╹╹ ╹┗━┛┗━┛╹ ╹[-:-:-]\n"+
			"[%s]admin messages[-:-:-]",
		title, title, title, ColorName(theme.FgColor),
	)
	return &Logo{TextView: tv}
}
