package tui

import (
	"slices"
	"strings"

	"github.com/matheus3301/chatsync/internal/tui/views"
)

// commandHelp documents the ":" commands handled by App.runCommand.
var commandHelp = []views.HelpEntry{
	{Key: ":chat <name>", Description: "Open the first conversation whose title contains name"},
	{Key: ":new <user> [user...] [as <name>]", Description: "Start a conversation, optionally named"},
	{Key: ":help, :h", Description: "Show this help"},
	{Key: ":quit, :q", Description: "Quit"},
}

// Command represents a parsed ":" command.
type Command struct {
	Name string
	Args []string
}

// ParseCommand parses a command string (without the leading ':'). Arguments
// are split on whitespace and commas, so ":new ana, bo" has two.
func ParseCommand(input string) Command {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return Command{}
	}
	return Command{Name: strings.ToLower(fields[0]), Args: fields[1:]}
}

// Arg returns the arguments joined by single spaces.
func (c Command) Arg() string {
	return strings.Join(c.Args, " ")
}

// Named splits the arguments at the first "as": the words before it are
// recipients and the words after it form a name.
func (c Command) Named() (recipients []string, name string) {
	i := slices.Index(c.Args, "as")
	if i < 0 {
		return c.Args, ""
	}
	return c.Args[:i], strings.Join(c.Args[i+1:], " ")
}
