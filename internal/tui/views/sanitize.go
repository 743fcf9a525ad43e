package views

import (
	"strings"
	"unicode"

	"github.com/rivo/tview"
)

// joiners are the emoji modifier codepoints tcell measures wrong: skin tone
// modifiers, the zero width joiner and variation selectors. Dropping them
// leaves the base emoji, which renders two cells wide.
var joiners = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200d, Hi: 0x200d, Stride: 1},
		{Lo: 0xfe00, Hi: 0xfe0f, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1f3fb, Hi: 0x1f3ff, Stride: 1},
		{Lo: 0xe0100, Hi: 0xe01ef, Stride: 1},
	},
}

// inline prepares server text for a single row: line breaks and tabs
// become spaces and tview tags are escaped.
func inline(s string) string {
	return tview.Escape(clean(s, false))
}

// block prepares server text for a text view, keeping line breaks.
func block(s string) string {
	return tview.Escape(clean(s, true))
}

func clean(s string, keepNewlines bool) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' && keepNewlines:
			return r
		case r == '\n' || r == '\t':
			return ' '
		case unicode.IsControl(r), unicode.Is(joiners, r):
			return -1
		default:
			return r
		}
	}, s)
}
