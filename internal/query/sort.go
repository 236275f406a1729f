package query

import (
	"cmp"
	"slices"

	"github.com/chirino/conversation-cache/internal/model"
)

// Compare orders conversations canonically: unread count descending, then
// timestamped records before cold ones, then last message time descending,
// then id ascending so equal keys still have one fixed order.
func Compare(a, b *model.Conversation) int {
	if c := cmp.Compare(b.UnreadCount, a.UnreadCount); c != 0 {
		return c
	}
	switch {
	case a.LastMessageTime != nil && b.LastMessageTime == nil:
		return -1
	case a.LastMessageTime == nil && b.LastMessageTime != nil:
		return 1
	case a.LastMessageTime != nil:
		if c := cmp.Compare(*b.LastMessageTime, *a.LastMessageTime); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.ID, b.ID)
}

// Sort orders records in place using Compare.
func Sort(records []model.Conversation) {
	slices.SortStableFunc(records, func(a, b model.Conversation) int {
		return Compare(&a, &b)
	})
}
