package messaging

import (
	"sort"

	"chatterbox/api"
)

// SortChats orders chats pinned first, then newest first within each
// group. The sort is stable so chats with equal timestamps keep the
// server's order.
func SortChats(chats []api.Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		a, b := chats[i], chats[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		return a.Timestamp().After(b.Timestamp())
	})
}
