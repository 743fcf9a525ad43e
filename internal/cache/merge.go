package cache

import (
	"cmp"
	"slices"
	"time"

	"github.com/matheus3301/chatsync/internal/model"
	"github.com/samber/lo"
)

// DefaultPlaceholderTolerance is how far apart the timestamps of a
// placeholder and its server-acknowledged message may be and still pair.
const DefaultPlaceholderTolerance = 5 * time.Second

// MergeMessages upserts incoming messages by ID and keeps the list sorted
// ascending by timestamp. A real message that was not in the list before
// supersedes at most one placeholder with the same sender and text whose
// timestamp is within tolerance.
func MergeMessages(tolerance time.Duration) MergeFunc[[]model.Message] {
	return func(current []model.Message, found bool, incoming []model.Message) ([]model.Message, bool) {
		return upsertMessages(current, found, incoming, tolerance, "")
	}
}

// SupersedePlaceholder merges the authoritative result of a send. It behaves
// like MergeMessages and additionally always drops placeholderID, whatever
// the timestamp skew between the placeholder and the server's message.
func SupersedePlaceholder(placeholderID string, tolerance time.Duration) MergeFunc[[]model.Message] {
	return func(current []model.Message, found bool, incoming []model.Message) ([]model.Message, bool) {
		return upsertMessages(current, found, incoming, tolerance, placeholderID)
	}
}

// RemoveMessage drops the message with the given ID. Used to roll back a
// placeholder whose send failed.
func RemoveMessage(id string) MergeFunc[[]model.Message] {
	return func(current []model.Message, _ bool, _ []model.Message) ([]model.Message, bool) {
		i := slices.IndexFunc(current, func(m model.Message) bool { return m.ID == id })
		if i < 0 {
			return current, false
		}
		return slices.Delete(slices.Clone(current), i, i+1), true
	}
}

func upsertMessages(current []model.Message, found bool, incoming []model.Message, tolerance time.Duration, supersede string) ([]model.Message, bool) {
	out := slices.Clone(current)
	changed := !found

	if supersede != "" {
		if i := indexOfMessage(out, supersede); i >= 0 {
			out = slices.Delete(out, i, i+1)
			changed = true
		}
	}

	for _, m := range incoming {
		if i := indexOfMessage(out, m.ID); i >= 0 {
			if !out[i].Equal(m) {
				out[i] = m
				changed = true
			}
			continue
		}
		if !m.IsPending() {
			if j := matchPlaceholder(out, m, tolerance); j >= 0 {
				out = slices.Delete(out, j, j+1)
			}
		}
		out = append(out, m)
		changed = true
	}

	if !changed {
		return current, false
	}
	sortMessages(out)
	return out, true
}

func indexOfMessage(msgs []model.Message, id string) int {
	return slices.IndexFunc(msgs, func(m model.Message) bool { return m.ID == id })
}

// matchPlaceholder returns the index of the placeholder closest in time to
// real that has the same sender and text, or -1.
func matchPlaceholder(msgs []model.Message, real model.Message, tolerance time.Duration) int {
	best, bestDelta := -1, int64(0)
	limit := tolerance.Milliseconds()
	for i, m := range msgs {
		if !m.IsPending() || m.SenderID != real.SenderID || m.Text != real.Text {
			continue
		}
		delta := m.Timestamp - real.Timestamp
		if delta < 0 {
			delta = -delta
		}
		if delta > limit {
			continue
		}
		if best < 0 || delta < bestDelta {
			best, bestDelta = i, delta
		}
	}
	return best
}

// sortMessages orders by timestamp, then ID, so the result does not depend
// on arrival order.
func sortMessages(msgs []model.Message) {
	slices.SortStableFunc(msgs, func(a, b model.Message) int {
		if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// MergeConversation merges a conversation field by field. Name and
// recipients overwrite when present. The last-message fields move forward
// only: an incoming timestamp older than the cached one is ignored, and on
// equal timestamps only non-empty preview and sender overwrite.
func MergeConversation(current model.Conversation, found bool, incoming model.Conversation) (model.Conversation, bool) {
	if !found {
		next := incoming
		next.RecipientIDs = lo.Uniq(incoming.RecipientIDs)
		return next, true
	}

	next := current
	if incoming.Name != "" {
		next.Name = incoming.Name
	}
	if len(incoming.RecipientIDs) > 0 && !sameMembers(current.RecipientIDs, incoming.RecipientIDs) {
		next.RecipientIDs = lo.Uniq(incoming.RecipientIDs)
	}
	switch {
	case incoming.LastMessageTimestamp > current.LastMessageTimestamp:
		next.LastMessageTimestamp = incoming.LastMessageTimestamp
		next.LastMessagePreview = incoming.LastMessagePreview
		next.LastMessageSenderID = incoming.LastMessageSenderID
	case incoming.LastMessageTimestamp == current.LastMessageTimestamp:
		if incoming.LastMessagePreview != "" {
			next.LastMessagePreview = incoming.LastMessagePreview
		}
		if incoming.LastMessageSenderID != "" {
			next.LastMessageSenderID = incoming.LastMessageSenderID
		}
	}

	if next.Equal(current) {
		return current, false
	}
	return next, true
}

func sameMembers(a, b []string) bool {
	ua, ub := lo.Uniq(a), lo.Uniq(b)
	if len(ua) != len(ub) {
		return false
	}
	return lo.Every(ua, ub)
}

// MergeConversationList upserts conversations by ID with MergeConversation
// and orders the list by last message, newest first.
func MergeConversationList(current []model.Conversation, found bool, incoming []model.Conversation) ([]model.Conversation, bool) {
	out := slices.Clone(current)
	changed := !found
	for _, c := range incoming {
		i := slices.IndexFunc(out, func(x model.Conversation) bool { return x.ID == c.ID })
		if i < 0 {
			merged, _ := MergeConversation(model.Conversation{}, false, c)
			out = append(out, merged)
			changed = true
			continue
		}
		if merged, ok := MergeConversation(out[i], true, c); ok {
			out[i] = merged
			changed = true
		}
	}
	if !changed {
		return current, false
	}
	slices.SortStableFunc(out, func(a, b model.Conversation) int {
		if c := cmp.Compare(b.LastMessageTimestamp, a.LastMessageTimestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, true
}

// AddRecipients adds ids to the recipients of a cached conversation. An
// absent conversation stays absent.
func AddRecipients(ids []string) MergeFunc[model.Conversation] {
	return func(current model.Conversation, found bool, _ model.Conversation) (model.Conversation, bool) {
		if !found {
			return current, false
		}
		union := lo.Union(current.RecipientIDs, ids)
		if len(union) == len(lo.Uniq(current.RecipientIDs)) {
			return current, false
		}
		next := current
		next.RecipientIDs = union
		return next, true
	}
}

// AddRecipientsToList applies AddRecipients to one conversation of a list.
func AddRecipientsToList(conversationID string, ids []string) MergeFunc[[]model.Conversation] {
	add := AddRecipients(ids)
	return func(current []model.Conversation, found bool, _ []model.Conversation) ([]model.Conversation, bool) {
		i := slices.IndexFunc(current, func(c model.Conversation) bool { return c.ID == conversationID })
		if !found || i < 0 {
			return current, false
		}
		next, changed := add(current[i], true, model.Conversation{})
		if !changed {
			return current, false
		}
		out := slices.Clone(current)
		out[i] = next
		return out, true
	}
}

// MergeUser overwrites the display name by ID.
func MergeUser(current model.User, found bool, incoming model.User) (model.User, bool) {
	if !found {
		return incoming, true
	}
	if incoming.DisplayName == "" || incoming.DisplayName == current.DisplayName {
		return current, false
	}
	next := current
	next.DisplayName = incoming.DisplayName
	return next, true
}
