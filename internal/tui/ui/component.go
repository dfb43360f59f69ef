// Package ui holds the chrome shared by every page: header, menu, crumbs,
// prompt and flash bar.
package ui

// MenuHint describes a keyboard shortcut for display in the menu.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // 1-9 jumps, drawn in a different color
}

// Component is a page that can be pushed on the page stack. Its name is
// shown in the breadcrumb trail.
type Component interface {
	Name() string
}
