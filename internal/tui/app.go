// Package tui is the terminal client. It hosts the sync core in-process and
// renders three surfaces fed by the unread hub: the header badge, the user
// list and the open thread.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/inbox/internal/attachment"
	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/conversation"
	"github.com/matheus3301/inbox/internal/logging"
	"github.com/matheus3301/inbox/internal/messenger"
	"github.com/matheus3301/inbox/internal/outbox"
	"github.com/matheus3301/inbox/internal/status"
	"github.com/matheus3301/inbox/internal/tui/keys"
	"github.com/matheus3301/inbox/internal/tui/ui"
	"github.com/matheus3301/inbox/internal/tui/views"
	"github.com/matheus3301/inbox/internal/unread"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

// Page names.
const (
	pageUsers         = "users"
	pageThread        = "thread"
	pageDetails       = "details"
	pageNotifications = "notifications"
	pageHelp          = "help"
	pageSignedOut     = "signed-out"
)

// Deps groups what the App needs from the core.
type Deps struct {
	SessionName string
	// TokenHint tells a signed-out user where the token is read from.
	TokenHint string
	Messenger *messenger.Messenger
	Machine   *status.Machine
	Bus       *bus.Bus
	Logger    *zap.Logger
}

// surface is a view fed by its own hub subscription.
type surface interface {
	ApplyUnread(unread.Snapshot)
}

// App is the main TUI application shell. Widgets are only touched from the
// event loop: key handlers run there, and background work hands results back
// through queue.
type App struct {
	app       *tview.Application
	theme     *ui.Theme
	pages     *ui.Pages
	header    *ui.Header
	menu      *ui.Menu
	crumbs    *ui.Crumbs
	prompt    *ui.Prompt
	flash     *ui.FlashModel
	flashBar  *ui.FlashBar
	body      *tview.Flex
	users     *views.UserList
	thread    *views.MessageThread
	details   *views.UserDetails
	notices   *views.NotificationList
	help      *views.HelpView
	signedOut *views.SignedOut
	registry  *keys.Registry

	m         *messenger.Messenger
	machine   *status.Machine
	bus       *bus.Bus
	logger    *zap.Logger
	tokenHint string

	// queue runs f on the event loop.
	queue func(f func())

	// openID is the counterpart shown in the thread page, shownID the one
	// whose history has been rendered there.
	openID  string
	shownID string
	want    chan string

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewApp builds the widgets. Nothing runs until Run.
func NewApp(d Deps) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()
	a := &App{
		app:       tview.NewApplication(),
		theme:     theme,
		pages:     ui.NewPages(),
		header:    ui.NewHeader(theme, d.SessionName),
		menu:      ui.NewMenu(theme, 4),
		crumbs:    ui.NewCrumbs(theme),
		prompt:    ui.NewPrompt(theme),
		flash:     ui.NewFlashModel(),
		flashBar:  ui.NewFlashBar(theme),
		users:     views.NewUserList(theme),
		thread:    views.NewMessageThread(theme),
		details:   views.NewUserDetails(theme),
		notices:   views.NewNotificationList(theme),
		help:      views.NewHelpView(theme),
		signedOut: views.NewSignedOut(theme),
		registry:  keys.NewRegistry(),
		m:         d.Messenger,
		machine:   d.Machine,
		bus:       d.Bus,
		logger:    logging.OrNop(d.Logger),
		tokenHint: d.TokenHint,
		want:      make(chan string, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
	a.queue = a.draw

	if me := a.m.Me(); me.ID != "" {
		a.header.SetUser(me.DisplayName())
	}
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

// draw queues f on the event loop. QueueUpdateDraw returns only after the
// loop ran f, which never happens once Run has returned.
func (a *App) draw(f func()) {
	done := make(chan struct{})
	go func() {
		a.app.QueueUpdateDraw(f)
		close(done)
	}()
	select {
	case <-done:
	case <-a.ctx.Done():
	}
}

func (a *App) setupBindings() {
	r := a.registry
	r.Global(keys.Rune(':', "Command", func() { a.showPrompt(ui.PromptCommand) }))
	r.Global(keys.Rune('?', "Help", func() { a.push(pageHelp) }))
	r.Global(keys.Rune('n', "Notifications", a.showNotifications))
	r.Global(keys.Rune('q', "Back/Quit", func() {
		if a.pages.Current() == pageUsers || a.pages.Current() == pageSignedOut {
			a.app.Stop()
			return
		}
		a.back()
	}))

	r.Page(pageUsers, keys.Special(tcell.KeyEnter, "Open", func() {
		if u, ok := a.users.Selected(); ok {
			a.openConversation(u)
		}
	}))
	for n := 1; n <= 9; n++ {
		r.Page(pageUsers, &keys.Action{
			Key: tcell.KeyRune, Rune: rune('0' + n), Label: "1-9", Help: "Jump",
			Numeric: true, Hidden: n > 1,
			Handler: func() {
				if u, ok := a.users.At(n); ok {
					a.openConversation(u)
				}
			},
		})
	}
	r.Page(pageUsers, keys.Rune('/', "Filter", func() { a.showPrompt(ui.PromptFilter) }))
	r.Page(pageUsers, keys.Rune('d', "Details", func() {
		if u, ok := a.users.Selected(); ok {
			a.showDetails(u)
		}
	}))
	r.Page(pageUsers, keys.Rune('r', "Refresh", a.refresh))

	r.Page(pageThread, keys.Rune('i', "Compose", func() { a.app.SetFocus(a.thread.Composer()) }))
	r.Page(pageThread, keys.Rune('d', "Details", func() { a.showDetails(a.thread.Peer()) }))

	r.Page(pageNotifications, keys.Special(tcell.KeyEnter, "Mark read", func() {
		if n, ok := a.notices.Selected(); ok && !n.IsRead {
			a.markNotificationsRead(n.ID)
		}
	}))
	r.Page(pageNotifications, keys.Rune('R', "Read all", func() { a.markNotificationsRead("") }))
}

func (a *App) setupCallbacks() {
	a.thread.SetOnSubmit(a.submit)

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		case ui.PromptFilter:
			a.users.SetFilter(text)
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)

	a.pages.SetOnChange(func(stack []string) {
		names := make([]string, 0, len(stack))
		for _, p := range stack {
			if c, ok := a.component(p); ok {
				names = append(names, c.Name())
			}
		}
		a.crumbs.Update(names)
		a.menu.Update(a.registry.Hints(a.pages.Current()))
	})
}

func (a *App) component(page string) (ui.Component, bool) {
	switch page {
	case pageUsers:
		return a.users, true
	case pageThread:
		return a.thread, true
	case pageDetails:
		return a.details, true
	case pageNotifications:
		return a.notices, true
	case pageHelp:
		return a.help, true
	case pageSignedOut:
		return a.signedOut, true
	}
	return nil, false
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageUsers, a.users, true, false)
	a.pages.AddPage(pageThread, a.thread, true, false)
	a.pages.AddPage(pageDetails, a.details, true, false)
	a.pages.AddPage(pageNotifications, a.notices, true, false)
	a.pages.AddPage(pageHelp, a.help, true, false)
	a.pages.AddPage(pageSignedOut, a.signedOut, true, false)

	top := tview.NewFlex().
		AddItem(a.header, 0, 2, false).
		AddItem(a.menu, 0, 3, false).
		AddItem(ui.NewLogo(a.theme), 16, 0, false)

	a.body = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(top, 5, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flashBar, 1, 0, false)

	a.app.SetRoot(a.body, true)
	a.app.SetInputCapture(a.handleKey)
	a.pages.Reset(pageUsers)
}

func (a *App) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	switch a.app.GetFocus() {
	case a.prompt, a.prompt.InputField:
		return ev
	case a.thread.Composer():
		if ev.Key() == tcell.KeyEscape {
			a.app.SetFocus(a.thread.Messages())
			return nil
		}
		return ev
	}
	if ev.Key() == tcell.KeyEscape {
		a.back()
		return nil
	}
	if a.registry.Handle(a.pages.Current(), ev) {
		return nil
	}
	return ev
}

// Run starts the background surfaces and blocks until the user quits.
func (a *App) Run() error {
	a.start()
	err := a.app.Run()
	a.Stop()
	return err
}

// start subscribes the surfaces and starts the workers.
func (a *App) start() {
	events, unsub := a.bus.Subscribe("", 64)
	a.goDo(func(ctx context.Context) {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-events:
				a.handleEvent(evt)
			}
		}
	})

	// Each surface holds its own subscription; the hub still polls once per cycle.
	for _, s := range []surface{a.header, a.users, a.thread} {
		a.watch(s)
	}

	a.goDo(a.conversationWorker)
	a.goDo(a.flashLoop)

	a.queue(func() { a.applyState(a.machine.Current()) })
}

// Stop ends background work and the event loop. It is safe to call twice.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		a.cancel()
		a.wg.Wait()
		a.app.Stop()
	})
}

func (a *App) goDo(fn func(ctx context.Context)) {
	if a.ctx.Err() != nil {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn(a.ctx)
	}()
}

func (a *App) watch(s surface) {
	ch, unsub := a.m.Subscribe()
	a.goDo(func(ctx context.Context) {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-ch:
				a.queue(func() { s.ApplyUnread(snap) })
			}
		}
	})
}

func (a *App) handleEvent(evt bus.Event) {
	switch p := evt.Payload.(type) {
	case status.StatusChange:
		a.queue(func() { a.applyState(p.To) })
	case conversation.Change:
		a.queue(func() {
			if a.shownID != "" && p.Key == a.m.KeyFor(a.shownID) {
				a.thread.Update(a.m.Conversation(a.shownID))
			}
		})
	case outbox.Failure:
		a.flash.Err(fmt.Errorf("send to %s failed: %w; type /retry to resend", p.Draft.To.DisplayName(), p.Err))
	case outbox.Ack:
		a.flash.Info("Message sent")
	case outbox.Progress:
		if p.Total > 0 {
			a.flash.Info(fmt.Sprintf("Uploading %s %d%%", p.File, p.Sent*100/p.Total))
		}
	}
}

func (a *App) flashLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.flash.Watch():
		case <-ticker.C:
		}
		a.queue(func() {
			a.flashBar.Update(a.flash.Current())
			a.header.SetState(string(a.machine.Current()), a.machine.Since())
		})
	}
}

func (a *App) applyState(s status.State) {
	a.header.SetState(string(s), a.machine.Since())
	switch s {
	case status.Active:
		if a.pages.Current() == pageSignedOut {
			a.pages.Reset(pageUsers)
		}
		if a.pages.Current() == pageUsers {
			a.app.SetFocus(a.users)
		}
		a.loadUsers()
	case status.SignedOut, status.Ended:
		a.leaveConversation()
		a.signedOut.Show("No active session", a.tokenHint)
		a.pages.Reset(pageSignedOut)
		a.app.SetFocus(a.signedOut)
	}
}

func (a *App) loadUsers() {
	a.goDo(func(ctx context.Context) {
		users, err := a.m.Users(ctx)
		if err != nil {
			if !errors.Is(err, messenger.ErrSessionInactive) {
				a.flash.Err(err)
			}
			return
		}
		a.queue(func() { a.users.SetUsers(users) })
	})
}

func (a *App) refresh() {
	a.m.RefreshNow()
	a.loadUsers()
	a.flash.Info("Refreshing")
}

func (a *App) push(page string) {
	a.pages.Push(page)
	if c, ok := a.component(page); ok {
		if p, ok := c.(tview.Primitive); ok {
			a.app.SetFocus(p)
		}
	}
}

func (a *App) back() {
	if a.pages.Pop() == "" {
		return
	}
	if !a.pages.Contains(pageThread) {
		a.leaveConversation()
	}
	switch a.pages.Current() {
	case pageThread:
		a.app.SetFocus(a.thread.Messages())
	default:
		a.push(a.pages.Current())
	}
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.body.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.body.ResizeItem(a.prompt, 0, 0)
	a.push(a.pages.Current())
	if a.pages.Current() == pageThread {
		a.app.SetFocus(a.thread.Messages())
	}
}

// openConversation shows u's thread; history loads in the background.
func (a *App) openConversation(u conversation.User) {
	if a.openID != u.ID {
		a.thread.Open(a.m.Me().ID, u)
		a.shownID = ""
	}
	a.openID = u.ID
	a.thread.ApplyUnread(a.users.Roster().Counts())
	a.pages.Push(pageThread)
	a.app.SetFocus(a.thread.Messages())
	a.setWant(u.ID)
}

func (a *App) leaveConversation() {
	if a.openID == "" {
		return
	}
	a.openID = ""
	a.shownID = ""
	a.setWant("")
}

// setWant posts the conversation the UI wants held open. Only the latest
// request matters, so a pending one is replaced.
func (a *App) setWant(id string) {
	select {
	case <-a.want:
	default:
	}
	a.want <- id
}

// conversationWorker holds at most one conversation open in the messenger,
// serializing Open and Close so the reference count stays balanced.
func (a *App) conversationWorker(ctx context.Context) {
	held := ""
	defer func() {
		if held != "" {
			a.m.Close(held)
		}
	}()
	for {
		var want string
		select {
		case <-ctx.Done():
			return
		case want = <-a.want:
		}
		if want != held && held != "" {
			a.m.Close(held)
			held = ""
		}
		if want == "" {
			continue
		}
		if want != held {
			if _, err := a.m.Open(ctx, want); err != nil {
				a.logger.Warn("open conversation failed", zap.String("user_id", want), zap.Error(err))
				a.flash.Err(err)
				continue
			}
			held = want
		}
		a.queue(func() {
			if a.openID == want {
				a.shownID = want
				a.thread.Update(a.m.Conversation(want))
			}
		})
	}
}

// submit handles one composer line.
func (a *App) submit(line string) {
	peer := a.thread.Peer()
	if peer.ID == "" {
		return
	}
	in := ParseCompose(line)
	switch in.Kind {
	case ComposeAttach:
		f, err := attachment.FromPath(in.Arg)
		if err != nil {
			a.flash.Err(err)
			return
		}
		a.thread.Queue(f)
		a.flash.Info("Attached " + f.Name)
	case ComposeDetach:
		a.thread.ClearFiles()
	case ComposeSubject:
		a.thread.SetSubject(in.Arg)
	case ComposeRetry:
		a.retryLast(peer)
	case ComposeUnknown:
		a.flash.Warn(in.Arg)
	case ComposeText:
		subject, files := a.thread.Draft()
		if strings.TrimSpace(in.Arg) == "" && len(files) == 0 {
			return
		}
		ticket, err := a.m.Send(peer.ID, subject, in.Arg, files)
		if err != nil {
			// The draft stays queued so it can be fixed and resent.
			a.flash.Err(err)
			return
		}
		a.thread.ResetDraft()
		if len(ticket.Rejected) > 0 {
			a.flash.Warn(rejectionSummary(ticket.Rejected))
		}
	}
}

func rejectionSummary(rejected []*attachment.Rejection) string {
	parts := make([]string, len(rejected))
	for i, r := range rejected {
		parts[i] = r.Error()
	}
	return "Not attached: " + strings.Join(parts, "; ")
}

// retryLast resends the most recent failed message to peer.
func (a *App) retryLast(peer conversation.User) {
	key := a.m.KeyFor(peer.ID)
	failures := a.m.Failures()
	for i := len(failures) - 1; i >= 0; i-- {
		if failures[i].Key != key {
			continue
		}
		if _, err := a.m.Retry(failures[i].LocalID); err != nil {
			a.flash.Err(err)
			return
		}
		a.flash.Info("Retrying")
		return
	}
	a.flash.Warn("Nothing to retry in this conversation")
}

func (a *App) showDetails(u conversation.User) {
	if u.ID == "" {
		return
	}
	key := a.m.KeyFor(u.ID)
	d := views.Details{User: u, Unread: a.users.Roster().Counts().For(u.ID)}
	if a.shownID == u.ID {
		for _, msg := range a.m.Conversation(u.ID) {
			d.Loaded++
			if msg.IsPending() {
				d.Pending++
			}
		}
	}
	for _, f := range a.m.Failures() {
		if f.Key == key {
			d.Failures = append(d.Failures, f)
		}
	}
	a.details.Update(d)
	a.push(pageDetails)
}

func (a *App) showNotifications() {
	a.push(pageNotifications)
	a.loadNotifications()
}

func (a *App) loadNotifications() {
	a.goDo(func(ctx context.Context) {
		items, err := a.m.Notifications(ctx)
		if err != nil {
			a.flash.Err(err)
			return
		}
		a.queue(func() { a.notices.Update(items) })
	})
}

func (a *App) markNotificationsRead(id string) {
	a.goDo(func(ctx context.Context) {
		if _, err := a.m.MarkNotificationRead(ctx, id); err != nil {
			a.flash.Err(err)
			return
		}
		items, err := a.m.Notifications(ctx)
		if err != nil {
			a.flash.Err(err)
			return
		}
		a.queue(func() { a.notices.Update(items) })
	})
}

func (a *App) download(n int) {
	ref, ok := a.thread.Attachment(n)
	if !ok {
		a.flash.Warn(fmt.Sprintf("No attachment #%d in this thread", n))
		return
	}
	a.flash.Info("Downloading " + ref.Name)
	a.goDo(func(ctx context.Context) {
		path, err := a.m.Download(ctx, ref.MessageID, ref.AttachmentID)
		if err != nil {
			a.flash.Err(err)
			return
		}
		a.flash.Info("Saved " + path)
	})
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "q", "quit":
		a.app.Stop()
	case "h", "help":
		a.push(pageHelp)
	case "users", "u":
		a.leaveConversation()
		a.pages.Reset(pageUsers)
		a.app.SetFocus(a.users)
	case "open", "o":
		u, ok := a.users.Roster().Lookup(cmd.Args)
		if !ok {
			a.flash.Warn(fmt.Sprintf("No single user matches %q", cmd.Args))
			return
		}
		a.openConversation(u)
	case "notifications", "n":
		a.showNotifications()
	case "read-all":
		a.markNotificationsRead("")
	case "download", "dl":
		n, err := strconv.Atoi(cmd.Args)
		if err != nil || a.pages.Current() != pageThread {
			a.flash.Warn("Usage: open a thread, then :download <n>")
			return
		}
		a.download(n)
	case "refresh", "r":
		a.refresh()
	case "logout":
		if err := a.m.Logout(); err != nil {
			a.flash.Err(err)
		}
	default:
		a.flash.Warn("Unknown command: " + cmd.Name)
	}
}
