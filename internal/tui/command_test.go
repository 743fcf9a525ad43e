package tui

import (
	"reflect"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  Command
	}{
		{"", Command{}},
		{"q", Command{Name: "q", Args: []string{}}},
		{"  HELP ", Command{Name: "help", Args: []string{}}},
		{"new ana, bo", Command{Name: "new", Args: []string{"ana", "bo"}}},
		{"chat  team  sync", Command{Name: "chat", Args: []string{"team", "sync"}}},
	}
	for _, tt := range tests {
		got := ParseCommand(tt.input)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

func TestCommandArg(t *testing.T) {
	if got := ParseCommand("chat team  sync").Arg(); got != "team sync" {
		t.Errorf("Arg() = %q, want %q", got, "team sync")
	}
}

func TestCommandNamed(t *testing.T) {
	tests := []struct {
		input      string
		recipients []string
		name       string
	}{
		{"new ana bo", []string{"ana", "bo"}, ""},
		{"new ana, bo as book  club", []string{"ana", "bo"}, "book club"},
		{"new ana as", []string{"ana"}, ""},
	}
	for _, tt := range tests {
		recipients, name := ParseCommand(tt.input).Named()
		if !reflect.DeepEqual(recipients, tt.recipients) || name != tt.name {
			t.Errorf("Named(%q) = %v, %q, want %v, %q", tt.input, recipients, name, tt.recipients, tt.name)
		}
	}
}
