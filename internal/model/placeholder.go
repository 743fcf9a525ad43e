package model

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// PlaceholderPrefix marks client-generated message IDs for sends the server
// has not acknowledged yet. Server IDs never start with it.
const PlaceholderPrefix = "temp:"

const previewLen = 100

// NewPlaceholderID returns a fresh placeholder message ID.
func NewPlaceholderID() string {
	return PlaceholderPrefix + uuid.New().String()
}

// IsPlaceholder reports whether id was produced by NewPlaceholderID.
func IsPlaceholder(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}

// Preview returns the conversation preview for a message text.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLen])
}
