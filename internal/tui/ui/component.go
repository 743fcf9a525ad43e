package ui

// MenuHint is one key shown in the menu bar.
type MenuHint struct {
	Key         string
	Description string
	// Numeric marks the jump keys, drawn in their own color.
	Numeric bool
}

// Component is a page of the interface. Init runs once when the app is
// built, Start when the page enters the navigation stack and Stop when it
// leaves it. Hints feed the menu bar while the page is on top.
type Component interface {
	Name() string
	Init()
	Start()
	Stop()
	Hints() []MenuHint
}
