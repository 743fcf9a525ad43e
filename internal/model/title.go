package model

import (
	"strings"

	"github.com/samber/lo"
)

// Title returns the name shown for c: its own name, or the display names of
// the members other than me. name may be nil, in which case IDs are shown.
func (c Conversation) Title(me string, name func(userID string) string) string {
	if c.Name != "" {
		return c.Name
	}
	others := lo.Without(c.RecipientIDs, me)
	if len(others) == 0 {
		return c.ID
	}
	if name != nil {
		others = lo.Map(others, func(id string, _ int) string { return name(id) })
	}
	return strings.Join(others, ", ")
}
