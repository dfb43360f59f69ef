package views

import (
	"fmt"

	"github.com/matheus3301/inbox/internal/tui/ui"
	"github.com/rivo/tview"
)

// SignedOut replaces every page while no authenticated session is live.
type SignedOut struct {
	*tview.TextView
}

// NewSignedOut creates the signed-out page.
func NewSignedOut(theme *ui.Theme) *SignedOut {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Signed out ")
	tv.SetTitleColor(theme.TitleColor)
	return &SignedOut{TextView: tv}
}

// Name implements ui.Component.
func (so *SignedOut) Name() string { return "Signed out" }

// Show explains why the session is not active and how to get one.
func (so *SignedOut) Show(reason, tokenHint string) {
	so.SetText(fmt.Sprintf("\n\n[::b]%s[-:-:-]\n\nSave an admin token to %s\nor set INBOX_TOKEN, then restart.\n\nPress q to quit.",
		tview.Escape(reason), tview.Escape(tokenHint)))
}
