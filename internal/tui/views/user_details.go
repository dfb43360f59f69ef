package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/inbox/internal/conversation"
	"github.com/matheus3301/inbox/internal/outbox"
	"github.com/matheus3301/inbox/internal/tui/ui"
	"github.com/rivo/tview"
)

// Details is what the details page knows about one counterpart.
type Details struct {
	User     conversation.User
	Unread   int
	Loaded   int
	Pending  int
	Failures []outbox.Failure
}

// UserDetails shows a counterpart's profile and the state of sends to them.
type UserDetails struct {
	*tview.TextView
	theme *ui.Theme
	name  string
}

// NewUserDetails creates the details page.
func NewUserDetails(theme *ui.Theme) *UserDetails {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &UserDetails{TextView: tv, theme: theme}
}

// Name implements ui.Component.
func (ud *UserDetails) Name() string { return "Details" }

// Update renders d.
func (ud *UserDetails) Update(d Details) {
	label := ui.ColorName(ud.theme.FgColor)
	value := ui.ColorName(ud.theme.CounterColor)
	dash := func(s string) string {
		if s == "" {
			return "-"
		}
		return tview.Escape(singleLine(s))
	}

	var b strings.Builder
	row := func(name, v string) {
		fmt.Fprintf(&b, " [%s::b]%-15s[-:-:-] [%s]%s[-]\n", label, name+":", value, v)
	}
	b.WriteString("\n")
	row("Name", dash(d.User.Name))
	row("Email", dash(d.User.Email))
	row("ID", dash(d.User.ID))
	row("Unread", fmt.Sprint(d.Unread))
	row("Loaded", fmt.Sprint(d.Loaded))
	row("Sending", fmt.Sprint(d.Pending))
	row("Failed sends", fmt.Sprint(len(d.Failures)))
	for _, f := range d.Failures {
		text := f.Draft.Content
		if text == "" {
			text = fmt.Sprintf("%d file(s)", len(f.Draft.Files))
		}
		fmt.Fprintf(&b, "   %s✗[-] %s %s[::d]%s[-:-:-]\n",
			ui.Tag(ud.theme.FlashErrColor), tview.Escape(singleLine(text)),
			ui.Tag(ud.theme.StaleColor), tview.Escape(singleLine(f.Err.Error())))
	}
	if len(d.Failures) > 0 {
		b.WriteString("\n [::d]Type /retry in the composer to resend the latest one.[-:-:-]\n")
	}
	ud.SetText(b.String())
	ud.SetTitle(fmt.Sprintf(" %s ", tview.Escape(d.User.DisplayName())))
}
