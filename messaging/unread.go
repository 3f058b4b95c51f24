package messaging

import (
	"context"

	"chatterbox/notifier"
)

// UnreadSummaries lists the chats with unread messages, in display order.
func (s *Synchronizer) UnreadSummaries() []notifier.UnreadSummary {
	var summaries []notifier.UnreadSummary
	for _, chat := range s.Chats() {
		if chat.UnreadCount == 0 {
			continue
		}
		summaries = append(summaries, notifier.UnreadSummary{
			ChatID:    chat.ID,
			Chat:      chat.Name,
			Preview:   chat.LastMessage,
			Unread:    chat.UnreadCount,
			Timestamp: chat.Timestamp(),
		})
	}
	return summaries
}

// PollUnread refreshes the chat list once and reports unread chats.
func (c *Client) PollUnread(ctx context.Context) ([]notifier.UnreadSummary, error) {
	if err := c.sync.RefreshChats(ctx); err != nil {
		return nil, err
	}
	return c.sync.UnreadSummaries(), nil
}
