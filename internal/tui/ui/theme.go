package ui

import (
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
)

// Theme is the interface palette.
type Theme struct {
	Bg     tcell.Color
	Fg     tcell.Color
	Border tcell.Color
	Title  tcell.Color
	// Value colors field values next to their labels.
	Value tcell.Color

	Header   tcell.Color
	HeaderBg tcell.Color
	Cursor   tcell.Color
	CursorBg tcell.Color

	Key        tcell.Color
	NumericKey tcell.Color

	ActiveCrumb   tcell.Color
	ActiveCrumbBg tcell.Color
	Crumb         tcell.Color
	CrumbBg       tcell.Color

	// Own, Peer and Pending color message senders in a thread.
	Own     tcell.Color
	Peer    tcell.Color
	Pending tcell.Color

	Info  tcell.Color
	Warn  tcell.Color
	Error tcell.Color
}

// DefaultTheme returns the dark palette.
func DefaultTheme() *Theme {
	return &Theme{
		Bg:     tcell.ColorBlack,
		Fg:     tcell.ColorLightGray,
		Border: tcell.ColorSteelBlue,
		Title:  tcell.ColorMediumSpringGreen,
		Value:  tcell.ColorWhite,

		Header:   tcell.ColorWhite,
		HeaderBg: tcell.ColorBlack,
		Cursor:   tcell.ColorBlack,
		CursorBg: tcell.ColorMediumSpringGreen,

		Key:        tcell.ColorSteelBlue,
		NumericKey: tcell.ColorMediumPurple,

		ActiveCrumb:   tcell.ColorBlack,
		ActiveCrumbBg: tcell.ColorMediumSpringGreen,
		Crumb:         tcell.ColorBlack,
		CrumbBg:       tcell.ColorSteelBlue,

		Own:     tcell.ColorMediumSpringGreen,
		Peer:    tcell.ColorSkyblue,
		Pending: tcell.ColorGray,

		Info:  tcell.ColorLightGray,
		Warn:  tcell.ColorGold,
		Error: tcell.ColorTomato,
	}
}

var colorNames = sync.OnceValue(func() map[tcell.Color]string {
	names := make(map[tcell.Color]string, len(tcell.ColorNames))
	for name, c := range tcell.ColorNames {
		// Several names share a color; keep the smallest for stable output.
		if cur, ok := names[c]; !ok || name < cur {
			names[c] = name
		}
	}
	return names
})

// ColorName returns the tview tag name of c.
func ColorName(c tcell.Color) string {
	if name, ok := colorNames()[c]; ok {
		return name
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
