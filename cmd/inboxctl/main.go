package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/matheus3301/inbox/internal/api"
	"github.com/matheus3301/inbox/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Usage = printUsage
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	socketPath := session.SocketPath(sessionName)
	c, err := api.Dial(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	out := printer{json: *jsonFlag}

	// watch runs until interrupted; everything else is a single bounded call.
	if args[0] == "watch" {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		cmdWatch(ctx, c, out)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, out)
	case "unread":
		cmdUnread(ctx, c, out)
	case "users":
		cmdUsers(ctx, c, out)
	case "open":
		if len(args) < 2 {
			fail("usage: inboxctl open <user-id>")
		}
		cmdOpen(ctx, c, args[1], out)
	case "send":
		cmdSend(ctx, c, args[1:], out)
	case "failures":
		cmdFailures(ctx, c, out)
	case "retry":
		if len(args) < 2 {
			fail("usage: inboxctl retry <local-id>")
		}
		result, err := c.Retry(ctx, args[1])
		check(err)
		out.send(result)
	case "download":
		if len(args) < 3 {
			fail("usage: inboxctl download <message-id> <attachment-id>")
		}
		path, err := c.Download(ctx, args[1], args[2])
		check(err)
		fmt.Println(path)
	case "notifications":
		cmdNotifications(ctx, c, out)
	case "mark-read":
		id := ""
		if len(args) >= 2 {
			id = args[1]
		}
		snap, err := c.MarkNotificationsRead(ctx, id)
		check(err)
		out.unread(snap)
	case "logout":
		check(c.Logout(ctx))
		fmt.Println("Signed out.")
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: inboxctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                               Show session status")
	fmt.Fprintln(os.Stderr, "  unread                               Show unread counts")
	fmt.Fprintln(os.Stderr, "  users                                List users with unread badges")
	fmt.Fprintln(os.Stderr, "  open <user-id>                       Show a conversation and mark it read")
	fmt.Fprintln(os.Stderr, "  send [-s subject] [-f file]... [-wait] <user-id> <text>")
	fmt.Fprintln(os.Stderr, "                                       Send a message")
	fmt.Fprintln(os.Stderr, "  failures                             List sends that failed")
	fmt.Fprintln(os.Stderr, "  retry <local-id>                     Resend a failed message")
	fmt.Fprintln(os.Stderr, "  download <message-id> <attachment-id>")
	fmt.Fprintln(os.Stderr, "                                       Save an attachment")
	fmt.Fprintln(os.Stderr, "  notifications                        List notifications")
	fmt.Fprintln(os.Stderr, "  mark-read [notification-id]          Mark one or all notifications read")
	fmt.Fprintln(os.Stderr, "  watch                                Stream unread counts")
	fmt.Fprintln(os.Stderr, "  logout                               End the session")
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func cmdStatus(ctx context.Context, c *api.Client, out printer) {
	st, err := c.Status(ctx)
	check(err)
	if out.json {
		outputJSON(st)
		return
	}
	fmt.Printf("Session:  %v\n", st["session"])
	fmt.Printf("Status:   %v\n", st["state"])
	fmt.Printf("User:     %v\n", st["user_id"])
	fmt.Printf("Uptime:   %vms\n", st["uptime_ms"])
	fmt.Printf("Polling:  %v\n", st["polling"])
	fmt.Printf("Failures: %v\n", st["failures"])
}

func cmdUnread(ctx context.Context, c *api.Client, out printer) {
	snap, err := c.Unread(ctx)
	check(err)
	out.unread(snap)
}

func cmdUsers(ctx context.Context, c *api.Client, out printer) {
	res, err := c.Users(ctx)
	check(err)
	if out.json {
		outputJSON(res)
		return
	}
	users, _ := res["users"].([]any)
	if len(users) == 0 {
		fmt.Println("No users.")
		return
	}
	for _, v := range users {
		u, _ := v.(map[string]any)
		badge := ""
		if n, _ := u["unread"].(float64); n > 0 {
			badge = fmt.Sprintf(" (%d)", int(n))
		}
		fmt.Printf("%-12v %v%s\n", u["id"], u["name"], badge)
	}
}

func cmdOpen(ctx context.Context, c *api.Client, userID string, out printer) {
	res, err := c.Open(ctx, userID)
	check(err)
	if out.json {
		outputJSON(res)
		return
	}
	msgs, _ := res["messages"].([]any)
	if len(msgs) == 0 {
		fmt.Println("No messages.")
		return
	}
	for _, v := range msgs {
		printMessage(v.(map[string]any))
	}
}

func cmdSend(ctx context.Context, c *api.Client, args []string, out printer) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	subject := fs.String("s", "", "subject")
	wait := fs.Bool("wait", false, "wait until the server has recorded the message")
	var files fileList
	fs.Var(&files, "f", "attach a file (repeatable)")
	_ = fs.Parse(args)
	if fs.NArg() < 1 {
		fail("usage: inboxctl send [-s subject] [-f file]... [-wait] <user-id> <text>")
	}

	// The daemon resolves paths from its own working directory.
	paths := make([]string, 0, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		check(err)
		paths = append(paths, abs)
	}

	res, err := c.Send(ctx, api.SendRequest{
		To:      fs.Arg(0),
		Subject: *subject,
		Content: strings.Join(fs.Args()[1:], " "),
		Files:   paths,
		Wait:    *wait,
	})
	check(err)
	out.send(res)
}

func cmdFailures(ctx context.Context, c *api.Client, out printer) {
	res, err := c.Failures(ctx)
	check(err)
	if out.json {
		outputJSON(res)
		return
	}
	list, _ := res["failures"].([]any)
	if len(list) == 0 {
		fmt.Println("No failed sends.")
		return
	}
	for _, v := range list {
		f := v.(map[string]any)
		fmt.Printf("%v  to %v  %q  %v\n", f["local_id"], f["to"], f["content"], f["error"])
	}
}

func cmdNotifications(ctx context.Context, c *api.Client, out printer) {
	res, err := c.Notifications(ctx)
	check(err)
	if out.json {
		outputJSON(res)
		return
	}
	list, _ := res["notifications"].([]any)
	if len(list) == 0 {
		fmt.Println("No notifications.")
		return
	}
	for _, v := range list {
		n := v.(map[string]any)
		mark := " "
		if read, _ := n["is_read"].(bool); !read {
			mark = "*"
		}
		fmt.Printf("%s %-36v %v: %v\n", mark, n["id"], n["title"], n["message"])
	}
}

func cmdWatch(ctx context.Context, c *api.Client, out printer) {
	err := c.WatchUnread(ctx, func(snap map[string]any) error {
		out.unread(snap)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		check(err)
	}
}

type printer struct {
	json bool
}

func (p printer) unread(snap map[string]any) {
	if p.json {
		outputJSON(snap)
		return
	}
	fmt.Printf("Unread: %v  Notifications: %v  (%v)\n", snap["total"], snap["notifications"], snap["freshness"])
	perUser, _ := snap["per_user"].(map[string]any)
	ids := make([]string, 0, len(perUser))
	for id := range perUser {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("  %-12s %v\n", id, perUser[id])
	}
}

func (p printer) send(res map[string]any) {
	if p.json {
		outputJSON(res)
		return
	}
	fmt.Printf("%v %v\n", res["local_id"], res["state"])
	if e, ok := res["error"]; ok {
		fmt.Printf("  error: %v\n", e)
	}
	rejected, _ := res["rejected"].([]any)
	for _, v := range rejected {
		r := v.(map[string]any)
		fmt.Printf("  skipped %v: %v\n", r["file"], r["detail"])
	}
}

func printMessage(m map[string]any) {
	sender, _ := m["sender"].(map[string]any)
	name := sender["name"]
	if name == "" {
		name = sender["id"]
	}
	state := ""
	if m["state"] != "sent" {
		state = fmt.Sprintf(" [%v]", m["state"])
	}
	fmt.Printf("%v  %v%s\n", m["created_at"], name, state)
	if s, _ := m["subject"].(string); s != "" {
		fmt.Printf("  Subject: %s\n", s)
	}
	if s, _ := m["content"].(string); s != "" {
		fmt.Printf("  %s\n", s)
	}
	atts, _ := m["attachments"].([]any)
	for _, v := range atts {
		a := v.(map[string]any)
		fmt.Printf("  📎 %v (%v, id %v)\n", a["name"], a["mime_type"], a["id"])
	}
}

type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
