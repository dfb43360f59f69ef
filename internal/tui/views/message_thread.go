package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/inbox/internal/attachment"
	"github.com/matheus3301/inbox/internal/conversation"
	"github.com/matheus3301/inbox/internal/tui/ui"
	"github.com/matheus3301/inbox/internal/unread"
	"github.com/rivo/tview"
)

// AttachmentRef locates a downloadable attachment shown in the thread.
type AttachmentRef struct {
	MessageID    string
	AttachmentID string
	Name         string
}

// MessageThread shows one conversation above a composer. It is one of the
// surfaces fed by the unread hub: the title counts unread messages waiting in
// other conversations.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField

	me        string
	peer      conversation.User
	subject   string
	files     []attachment.File
	refs      []AttachmentRef
	elsewhere int
	onSubmit  func(text string)
	now       func() time.Time
}

// NewMessageThread creates the thread page.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
		now:      time.Now,
	}

	// Enter always submits so queued files can go out without text.
	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && mt.onSubmit != nil {
			text := composer.GetText()
			composer.SetText("")
			mt.onSubmit(text)
		}
	})
	mt.renderTitles()
	return mt
}

// Name implements ui.Component.
func (mt *MessageThread) Name() string {
	if mt.peer.ID != "" {
		return mt.peer.DisplayName()
	}
	return "Thread"
}

// SetOnSubmit sets the callback for composer lines.
func (mt *MessageThread) SetOnSubmit(fn func(text string)) {
	mt.onSubmit = fn
}

// Open switches the thread to peer and resets the draft.
func (mt *MessageThread) Open(me string, peer conversation.User) {
	mt.me = me
	mt.peer = peer
	mt.subject = ""
	mt.files = nil
	mt.refs = nil
	mt.messages.SetText("[::d]Loading…[-:-:-]")
	mt.renderTitles()
}

// Peer returns the counterpart of the open conversation.
func (mt *MessageThread) Peer() conversation.User {
	return mt.peer
}

// ApplyUnread takes a snapshot from the hub.
func (mt *MessageThread) ApplyUnread(s unread.Snapshot) {
	mt.elsewhere = s.Total - s.For(mt.peer.ID)
	mt.renderTitles()
}

// Elsewhere returns the unread count outside the open conversation.
func (mt *MessageThread) Elsewhere() int {
	return mt.elsewhere
}

// Update renders msgs, oldest first.
func (mt *MessageThread) Update(msgs []conversation.Message) {
	now := mt.now()
	mt.refs = mt.refs[:0]
	var b strings.Builder
	for _, m := range msgs {
		mt.writeMessage(&b, m, now)
	}
	if len(msgs) == 0 {
		b.WriteString("[::d]No messages yet. Press i to write one.[-:-:-]")
	}
	mt.messages.SetText(b.String())
	mt.messages.ScrollToEnd()
}

func (mt *MessageThread) writeMessage(b *strings.Builder, m conversation.Message, now time.Time) {
	sender := tview.Escape(sanitizeForTerminal(m.Sender.DisplayName()))
	color := ui.Tag(mt.theme.FgColor)
	if m.Sender.ID == mt.me {
		sender = "You"
		color = ui.Tag(mt.theme.OwnMessageColor)
	}
	fmt.Fprintf(b, "%s[::b]%s[-:-:-] [::d]%s[-:-:-]", color, sender, formatTimestamp(m.CreatedAt, now))
	switch m.State {
	case conversation.Pending:
		fmt.Fprintf(b, " %ssending…[-]", ui.Tag(mt.theme.PendingColor))
	case conversation.Failed:
		fmt.Fprintf(b, " %sfailed[-]", ui.Tag(mt.theme.FlashErrColor))
	}
	b.WriteString("\n")
	if m.Subject != "" {
		fmt.Fprintf(b, "[::u]%s[-:-:-]\n", tview.Escape(sanitizeForTerminal(m.Subject)))
	}
	if m.Content != "" {
		b.WriteString(tview.Escape(sanitizeForTerminal(m.Content)))
		b.WriteString("\n")
	}
	for _, a := range m.Attachments {
		name := tview.Escape(sanitizeForTerminal(a.Name))
		msgID, confirmed := m.ServerID()
		attID, stored := a.ID.(conversation.ServerID)
		if !confirmed || !stored {
			fmt.Fprintf(b, "  [::d]📎 %s (%s)[-:-:-]\n", name, formatSize(a.Size))
			continue
		}
		mt.refs = append(mt.refs, AttachmentRef{MessageID: string(msgID), AttachmentID: string(attID), Name: a.Name})
		fmt.Fprintf(b, "  %s#%d[-] 📎 %s (%s)\n", ui.Tag(mt.theme.NumericKeyColor), len(mt.refs), name, formatSize(a.Size))
	}
	b.WriteString("\n")
}

// Attachment returns the nth numbered attachment of the thread, 1-based.
func (mt *MessageThread) Attachment(n int) (AttachmentRef, bool) {
	if n < 1 || n > len(mt.refs) {
		return AttachmentRef{}, false
	}
	return mt.refs[n-1], true
}

// Queue adds a file to the draft.
func (mt *MessageThread) Queue(f attachment.File) {
	mt.files = append(mt.files, f)
	mt.renderTitles()
}

// ClearFiles drops every queued file.
func (mt *MessageThread) ClearFiles() {
	mt.files = nil
	mt.renderTitles()
}

// SetSubject sets the subject of the next message.
func (mt *MessageThread) SetSubject(s string) {
	mt.subject = s
	mt.renderTitles()
}

// Draft returns the queued subject and files.
func (mt *MessageThread) Draft() (subject string, files []attachment.File) {
	return mt.subject, mt.files
}

// ResetDraft clears subject and files after a send was accepted.
func (mt *MessageThread) ResetDraft() {
	mt.subject = ""
	mt.files = nil
	mt.renderTitles()
}

// Messages returns the history view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}

func (mt *MessageThread) renderTitles() {
	title := fmt.Sprintf(" %s ", tview.Escape(mt.Name()))
	if mt.peer.Email != "" {
		title = fmt.Sprintf(" %s <%s> ", tview.Escape(mt.Name()), tview.Escape(mt.peer.Email))
	}
	if mt.elsewhere > 0 {
		title += fmt.Sprintf("%s+%d unread elsewhere[-] ", ui.Tag(mt.theme.BadgeColor), mt.elsewhere)
	}
	mt.messages.SetTitle(title)

	parts := []string{" Compose (i)"}
	if mt.subject != "" {
		parts = append(parts, "subject: "+tview.Escape(mt.subject))
	}
	if len(mt.files) > 0 {
		names := make([]string, len(mt.files))
		for i, f := range mt.files {
			names[i] = tview.Escape(f.Name)
		}
		parts = append(parts, fmt.Sprintf("%d file(s): %s", len(mt.files), strings.Join(names, ", ")))
	}
	mt.composer.SetTitle(strings.Join(parts, " · ") + " ")
}
