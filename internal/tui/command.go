package tui

import (
	"os"
	"path/filepath"
	"strings"
)

// Command is a parsed ":" prompt line.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string, with or without the leading ':'.
func ParseCommand(input string) Command {
	input = strings.TrimPrefix(strings.TrimSpace(input), ":")
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

// ComposeKind classifies a line typed in the composer.
type ComposeKind int

const (
	ComposeText ComposeKind = iota
	ComposeAttach
	ComposeDetach
	ComposeSubject
	ComposeRetry
	ComposeUnknown
)

// ComposeInput is a parsed composer line.
type ComposeInput struct {
	Kind ComposeKind
	Arg  string
}

// ParseCompose splits composer directives from message text:
//
//	/attach <path>   queue a file for the next message
//	/detach          drop queued files
//	/subject [text]  set or clear the subject
//	/retry           resend the last failed message of this conversation
//
// A line starting with "//" is sent as text with one slash removed.
func ParseCompose(line string) ComposeInput {
	if strings.HasPrefix(line, "//") {
		return ComposeInput{Kind: ComposeText, Arg: line[1:]}
	}
	if !strings.HasPrefix(line, "/") {
		return ComposeInput{Kind: ComposeText, Arg: line}
	}
	name, arg, _ := strings.Cut(strings.TrimSpace(line[1:]), " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case "attach", "a":
		if arg == "" {
			return ComposeInput{Kind: ComposeUnknown, Arg: "attach needs a path"}
		}
		return ComposeInput{Kind: ComposeAttach, Arg: expandHome(arg)}
	case "detach":
		return ComposeInput{Kind: ComposeDetach}
	case "subject", "s":
		return ComposeInput{Kind: ComposeSubject, Arg: arg}
	case "retry", "r":
		return ComposeInput{Kind: ComposeRetry}
	default:
		return ComposeInput{Kind: ComposeUnknown, Arg: "unknown directive /" + name}
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
