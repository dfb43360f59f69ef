package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/inbox/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays the key and command reference.
type HelpView struct {
	*tview.TextView
}

// NewHelpView creates the help page.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)
	tv.SetText(helpText(ui.Tag(theme.MenuKeyColor)))

	return &HelpView{TextView: tv}
}

// Name implements ui.Component.
func (hv *HelpView) Name() string { return "Help" }

var helpSections = []struct {
	title string
	rows  [][2]string
}{
	{"Global", [][2]string{
		{":", "Command prompt"},
		{"?", "This help"},
		{"n", "Notifications"},
		{"Esc", "Back"},
		{"q", "Back, or quit from the user list"},
		{"Ctrl-C", "Quit immediately"},
	}},
	{"Users", [][2]string{
		{"Enter", "Open conversation"},
		{"1-9", "Open the Nth user"},
		{"/", "Filter by name, email or id"},
		{"d", "Details"},
		{"r", "Refresh unread counts now"},
	}},
	{"Thread", [][2]string{
		{"i", "Focus the composer"},
		{"d", "Details"},
		{"Enter", "Send (in the composer)"},
	}},
	{"Composer", [][2]string{
		{"/attach <path>", "Queue a file (PDF or image, 10 MiB max)"},
		{"/detach", "Drop queued files"},
		{"/subject <text>", "Set the subject of the next message"},
		{"/retry", "Resend the last failed message"},
		{"//text", "Send text starting with a slash"},
	}},
	{"Notifications", [][2]string{
		{"Enter", "Mark the selected notification read"},
		{"R", "Mark all read"},
	}},
	{"Commands", [][2]string{
		{":open <name>", "Open a conversation by name, email or id"},
		{":download <n>", "Save attachment #n of the open thread"},
		{":notifications", "Notifications"},
		{":read-all", "Mark all notifications read"},
		{":refresh", "Refresh unread counts now"},
		{":logout", "End the session"},
		{":quit, :q", "Quit"},
	}},
}

func helpText(key string) string {
	var b strings.Builder
	for _, s := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, r := range s.rows {
			fmt.Fprintf(&b, "  %s%-18s[-] %s\n", key, tview.Escape(r[0]), r[1])
		}
	}
	return b.String()
}
