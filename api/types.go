package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// User is a messenger account as returned by the auth endpoint.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Banner   string `json:"banner,omitempty"`
	Bio      string `json:"bio,omitempty"`
	Online   bool   `json:"online,omitempty"`
}

// Chat is a 1:1 or group conversation from the viewer's perspective.
// For 1:1 chats the server substitutes the peer's name, avatar and
// online flag, and sets OtherUserID.
type Chat struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Avatar          string    `json:"avatar"`
	IsGroup         bool      `json:"is_group"`
	LastMessage     string    `json:"last_message,omitempty"`
	LastMessageTime Timestamp `json:"last_message_time"`
	UpdatedAt       Timestamp `json:"updated_at"`
	Pinned          bool      `json:"pinned"`
	UnreadCount     int       `json:"unread_count"`
	Online          bool      `json:"online,omitempty"`
	OtherUserID     int64     `json:"other_user_id,omitempty"`
	MemberCount     int       `json:"member_count,omitempty"`
	MemberIDs       []int64   `json:"member_ids,omitempty"`
}

// Timestamp is the time a chat sorts by: its last message, or its last
// update when it has no messages yet.
func (c Chat) Timestamp() time.Time {
	if !c.LastMessageTime.IsZero() {
		return c.LastMessageTime.Time
	}
	return c.UpdatedAt.Time
}

// Message is a single chat message. Username, Name and Avatar are the
// sender's, joined in by the server when listing history.
type Message struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chat_id"`
	SenderID  int64     `json:"sender_id"`
	Text      string    `json:"text"`
	Read      bool      `json:"read"`
	CreatedAt Timestamp `json:"created_at"`
	Username  string    `json:"username,omitempty"`
	Name      string    `json:"name,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// ProfileUpdate carries the fields to change; nil fields are left alone.
type ProfileUpdate struct {
	Name     *string `json:"name,omitempty"`
	Username *string `json:"username,omitempty"`
	Bio      *string `json:"bio,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`
	Banner   *string `json:"banner,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (p ProfileUpdate) IsEmpty() bool {
	return p.Name == nil && p.Username == nil && p.Bio == nil && p.Avatar == nil && p.Banner == nil
}

// Timestamp decodes the timestamp formats the backend emits: RFC 3339
// and the zone-less form produced by serializing database timestamps.
// JSON null and "" decode to the zero time.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", raw)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
