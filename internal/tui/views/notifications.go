package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/inbox/internal/backend"
	"github.com/matheus3301/inbox/internal/tui/ui"
	"github.com/rivo/tview"
)

// NotificationList shows generic notifications, newest first.
type NotificationList struct {
	*tview.Table
	theme *ui.Theme
	items []backend.Notification
	now   func() time.Time
}

// NewNotificationList creates the notifications page.
func NewNotificationList(theme *ui.Theme) *NotificationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	nl := &NotificationList{Table: table, theme: theme, now: time.Now}
	nl.Update(nil)
	return nl
}

// Name implements ui.Component.
func (nl *NotificationList) Name() string { return "Notifications" }

// Update renders items in the order given.
func (nl *NotificationList) Update(items []backend.Notification) {
	nl.items = items
	nl.Clear()
	for col, h := range []string{"  ", " TITLE", " MESSAGE", " TYPE", " TIME"} {
		nl.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(nl.theme.TableHeaderFg).
			SetAttributes(tcell.AttrBold))
	}
	now := nl.now()
	unreadCount := 0
	for i, n := range items {
		row := i + 1
		mark := ""
		attrs := tcell.AttrNone
		if !n.IsRead {
			mark = "●"
			attrs = tcell.AttrBold
			unreadCount++
		}
		nl.SetCell(row, 0, tview.NewTableCell(" "+mark).SetTextColor(nl.theme.BadgeColor))
		nl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(singleLine(n.Title))).
			SetExpansion(1).SetTextColor(nl.theme.FgColor).SetAttributes(attrs))
		nl.SetCell(row, 2, tview.NewTableCell(" "+tview.Escape(singleLine(n.Message))).
			SetExpansion(3).SetTextColor(nl.theme.FgColor))
		nl.SetCell(row, 3, tview.NewTableCell(" "+tview.Escape(n.Type)).SetTextColor(nl.theme.FgColor))
		nl.SetCell(row, 4, tview.NewTableCell(" "+formatTimestamp(n.CreatedAt, now)).
			SetAlign(tview.AlignRight).SetTextColor(nl.theme.FgColor))
	}
	if len(items) > 0 {
		nl.Select(1, 0)
	}
	nl.SetTitle(fmt.Sprintf(" Notifications (%d unread / %d) ", unreadCount, len(items)))
}

// Selected returns the notification under the cursor.
func (nl *NotificationList) Selected() (backend.Notification, bool) {
	row, _ := nl.GetSelection()
	if row < 1 || row > len(nl.items) {
		return backend.Notification{}, false
	}
	return nl.items[row-1], true
}
