package notifier

import (
	"fmt"
	"io"
	"time"

	"chatterbox/api"
)

// UnreadSummary is one chat with messages the user has not seen.
type UnreadSummary struct {
	ChatID    int64
	Chat      string
	Preview   string
	Unread    int
	Timestamp time.Time
}

func PrintSummaries(w io.Writer, summaries []UnreadSummary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No new messages.")
		return
	}

	total := 0
	for _, s := range summaries {
		total += s.Unread
	}
	fmt.Fprintf(w, "You have %d new message(s):\n", total)
	for _, s := range summaries {
		fmt.Fprintf(w, "- %s (%d) [%s]: %s\n", s.Chat, s.Unread, s.Timestamp.Format(time.RFC3339), s.Preview)
	}
}

// PrintChats lists chats in the order given.
func PrintChats(w io.Writer, chats []api.Chat) {
	if len(chats) == 0 {
		fmt.Fprintln(w, "No chats.")
		return
	}
	for _, c := range chats {
		marker := " "
		if c.Pinned {
			marker = "^"
		}
		kind := ""
		if c.IsGroup {
			kind = fmt.Sprintf(" [group, %d]", c.MemberCount)
		}
		unread := ""
		if c.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d unread)", c.UnreadCount)
		}
		fmt.Fprintf(w, "%s %6d  %s%s%s\n", marker, c.ID, c.Name, kind, unread)
		if c.LastMessage != "" {
			fmt.Fprintf(w, "          %s  %s\n", FormatTime(c.Timestamp(), time.Now()), c.LastMessage)
		}
	}
}

// PrintMessages prints a chat history, marking the viewer's own messages.
func PrintMessages(w io.Writer, messages []api.Message, selfID int64) {
	if len(messages) == 0 {
		fmt.Fprintln(w, "No messages yet.")
		return
	}
	for _, m := range messages {
		sender := m.Name
		if m.SenderID == selfID {
			sender = "you"
		} else if sender == "" {
			sender = fmt.Sprintf("user %d", m.SenderID)
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), sender, m.Text)
	}
}

// PrintUsers lists search results.
func PrintUsers(w io.Writer, users []api.User) {
	if len(users) == 0 {
		fmt.Fprintln(w, "No users found.")
		return
	}
	for _, u := range users {
		status := ""
		if u.Online {
			status = " (online)"
		}
		fmt.Fprintf(w, "%6d  @%s  %s%s\n", u.ID, u.Username, u.Name, status)
	}
}

// PrintProfile shows a user's profile fields.
func PrintProfile(w io.Writer, u api.User) {
	fmt.Fprintf(w, "%s (@%s)\n", u.Name, u.Username)
	fmt.Fprintf(w, "  id:     %d\n", u.ID)
	fmt.Fprintf(w, "  avatar: %s\n", u.Avatar)
	if u.Banner != "" {
		fmt.Fprintf(w, "  banner: %s\n", u.Banner)
	}
	if u.Bio != "" {
		fmt.Fprintf(w, "  bio:    %s\n", u.Bio)
	}
}

// FormatTime renders a chat-list timestamp relative to now.
func FormatTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "now"
	case diff < time.Hour:
		return fmt.Sprintf("%d min", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%d h", int(diff.Hours()))
	default:
		return t.In(now.Location()).Format("2 Jan")
	}
}
