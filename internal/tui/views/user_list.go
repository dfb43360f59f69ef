package views

import (
	"fmt"
	"strconv"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/inbox/internal/conversation"
	"github.com/matheus3301/inbox/internal/tui/model"
	"github.com/matheus3301/inbox/internal/tui/ui"
	"github.com/matheus3301/inbox/internal/unread"
	"github.com/rivo/tview"
)

// UserList is the root page: every counterpart with a per-user unread badge.
// It is one of the surfaces fed by the unread hub.
type UserList struct {
	*tview.Table
	theme  *ui.Theme
	roster model.Roster
	rows   []model.Row
	loaded bool
}

// NewUserList creates the user table.
func NewUserList(theme *ui.Theme) *UserList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	ul := &UserList{Table: table, theme: theme}
	ul.render()
	return ul
}

// Name implements ui.Component.
func (ul *UserList) Name() string { return "Users" }

// SetUsers replaces the directory.
func (ul *UserList) SetUsers(users []conversation.User) {
	ul.roster.SetUsers(users)
	ul.loaded = true
	ul.render()
}

// ApplyUnread takes a snapshot from the hub and re-sorts the badges.
func (ul *UserList) ApplyUnread(s unread.Snapshot) {
	ul.roster.Apply(s)
	ul.render()
}

// SetFilter narrows the list; an empty filter clears it.
func (ul *UserList) SetFilter(text string) {
	ul.roster.SetFilter(text)
	ul.render()
}

// Roster exposes the list state for prompt lookups.
func (ul *UserList) Roster() *model.Roster {
	return &ul.roster
}

// Selected returns the user under the cursor.
func (ul *UserList) Selected() (conversation.User, bool) {
	row, _ := ul.GetSelection()
	return ul.At(row)
}

// At returns the nth visible user, 1-based.
func (ul *UserList) At(n int) (conversation.User, bool) {
	if n < 1 || n > len(ul.rows) {
		return conversation.User{}, false
	}
	return ul.rows[n-1].User, true
}

// Badge returns the badge shown next to userID, 0 if none.
func (ul *UserList) Badge(userID string) int {
	for _, r := range ul.rows {
		if r.User.ID == userID {
			return r.Unread
		}
	}
	return 0
}

func (ul *UserList) render() {
	selected, hadSelection := ul.Selected()

	ul.Clear()
	headers := []struct {
		text string
		exp  int
	}{
		{" #", 0},
		{" NAME", 2},
		{" EMAIL", 2},
		{" UNREAD", 0},
	}
	for col, h := range headers {
		ul.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(ul.theme.TableHeaderFg).
			SetBackgroundColor(ul.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	ul.rows = ul.roster.Rows()
	cursor := 1
	for i, r := range ul.rows {
		row := i + 1
		fg := ul.theme.FgColor
		attrs := tcell.AttrNone
		badge := ""
		if r.Unread > 0 {
			badge = strconv.Itoa(r.Unread)
			attrs = tcell.AttrBold
		}
		index := ""
		if row <= 9 {
			index = strconv.Itoa(row)
		}
		ul.SetCell(row, 0, tview.NewTableCell(" "+index).SetTextColor(ul.theme.NumericKeyColor))
		ul.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(singleLine(r.User.DisplayName()))).
			SetExpansion(2).SetTextColor(fg).SetAttributes(attrs))
		ul.SetCell(row, 2, tview.NewTableCell(" "+tview.Escape(singleLine(r.User.Email))).
			SetExpansion(2).SetTextColor(fg))
		ul.SetCell(row, 3, tview.NewTableCell(badge).
			SetAlign(tview.AlignRight).SetTextColor(ul.theme.BadgeColor).SetAttributes(tcell.AttrBold))
		if hadSelection && r.User.ID == selected.ID {
			cursor = row
		}
	}
	if len(ul.rows) > 0 {
		ul.Select(cursor, 0)
	}
	ul.SetTitle(ul.title())
}

func (ul *UserList) title() string {
	if !ul.loaded {
		return " Users (loading) "
	}
	title := fmt.Sprintf(" Users (%d) ", ul.roster.Len())
	if f := ul.roster.Filter(); f != "" {
		title = fmt.Sprintf(" Users (%d/%d) filter: %s ", len(ul.rows), ul.roster.Len(), tview.Escape(f))
	}
	counts := ul.roster.Counts()
	if counts.Freshness != "" && counts.Freshness != unread.Fresh {
		title += "· " + string(counts.Freshness) + " "
	}
	return title
}
