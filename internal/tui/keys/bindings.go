// Package keys maps key events to actions, globally and per page.
package keys

import (
	"slices"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/inbox/internal/tui/ui"
)

// Action is one key binding.
type Action struct {
	Key     tcell.Key
	Rune    rune
	Label   string // shown in the menu, e.g. "Enter" or "n"
	Help    string
	Handler func()
	Hidden  bool
	Numeric bool
}

// Matches reports whether ev triggers the action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Registry holds bindings in registration order so hints render stably.
// Page bindings shadow global ones.
type Registry struct {
	global []*Action
	pages  map[string][]*Action
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pages: make(map[string][]*Action)}
}

// Global registers a binding active on every page.
func (r *Registry) Global(a *Action) {
	r.global = append(r.global, a)
}

// Page registers a binding active on one page.
func (r *Registry) Page(page string, a *Action) {
	r.pages[page] = append(r.pages[page], a)
}

// Hints returns the visible bindings of page, page bindings first.
func (r *Registry) Hints(page string) []ui.MenuHint {
	var hints []ui.MenuHint
	for _, a := range slices.Concat(r.pages[page], r.global) {
		if !a.Hidden {
			hints = append(hints, ui.MenuHint{Key: a.Label, Description: a.Help, Numeric: a.Numeric})
		}
	}
	return hints
}

// Handle runs the first binding of page, then of the global set, matching ev.
// It reports whether one ran.
func (r *Registry) Handle(page string, ev *tcell.EventKey) bool {
	for _, set := range [][]*Action{r.pages[page], r.global} {
		for _, a := range set {
			if a.Matches(ev) {
				a.Handler()
				return true
			}
		}
	}
	return false
}

// Rune is shorthand for a printable-key binding.
func Rune(r rune, help string, fn func()) *Action {
	return &Action{Key: tcell.KeyRune, Rune: r, Label: string(r), Help: help, Handler: fn}
}

// Special is shorthand for a binding on a non-printable key.
func Special(k tcell.Key, help string, fn func()) *Action {
	return &Action{Key: k, Label: tcell.KeyNames[k], Help: help, Handler: fn}
}
