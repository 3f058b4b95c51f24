package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// GetChats lists the chats userID is a member of.
func (c *Client) GetChats(ctx context.Context, userID int64) ([]Chat, error) {
	body, err := c.do(ctx, request{
		op:       "get_chats",
		method:   http.MethodGet,
		endpoint: c.messagesURL,
		query:    url.Values{"user_id": {strconv.FormatInt(userID, 10)}},
		fallback: "Failed to get chats",
	})
	if err != nil {
		return nil, err
	}
	var res struct {
		Chats []Chat `json:"chats"`
	}
	if err := decode("get_chats", body, &res); err != nil {
		return nil, err
	}
	return res.Chats, nil
}

// GetMessages returns a chat's history, oldest first.
func (c *Client) GetMessages(ctx context.Context, chatID int64) ([]Message, error) {
	body, err := c.do(ctx, request{
		op:       "get_messages",
		method:   http.MethodGet,
		endpoint: c.messagesURL,
		query:    url.Values{"chat_id": {strconv.FormatInt(chatID, 10)}},
		fallback: "Failed to get messages",
	})
	if err != nil {
		return nil, err
	}
	var res struct {
		Messages []Message `json:"messages"`
	}
	if err := decode("get_messages", body, &res); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

// SendMessage posts text to chatID as senderID and returns the stored
// message. Blank text is rejected without contacting the server.
func (c *Client) SendMessage(ctx context.Context, chatID, senderID int64, text string) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, &RequestError{Op: "send", Message: "Failed to send message", Err: ErrEmptyText}
	}
	body, err := c.do(ctx, request{
		op:       "send",
		method:   http.MethodPost,
		endpoint: c.messagesURL,
		body: map[string]any{
			"action":    "send",
			"chat_id":   chatID,
			"sender_id": senderID,
			"text":      text,
		},
		fallback: "Failed to send message",
	})
	if err != nil {
		return Message{}, err
	}
	var res struct {
		Message Message `json:"message"`
	}
	if err := decode("send", body, &res); err != nil {
		return Message{}, err
	}
	return res.Message, nil
}

// CreateChat creates a chat with the given members and returns its id.
// The first member becomes the group admin. name is optional.
func (c *Client) CreateChat(ctx context.Context, memberIDs []int64, name string, isGroup bool) (int64, error) {
	payload := map[string]any{
		"action":   "create_chat",
		"user_ids": memberIDs,
		"is_group": isGroup,
	}
	if name != "" {
		payload["name"] = name
	}
	body, err := c.do(ctx, request{
		op:       "create_chat",
		method:   http.MethodPost,
		endpoint: c.messagesURL,
		body:     payload,
		fallback: "Failed to create chat",
	})
	if err != nil {
		return 0, err
	}
	id := gjson.GetBytes(body, "chat_id")
	if !id.Exists() || id.Int() == 0 {
		return 0, &RequestError{Op: "create_chat", Message: "Malformed response"}
	}
	if gjson.GetBytes(body, "exists").Bool() {
		c.log.Debug().Int64("chat_id", id.Int()).Msg("Server returned existing chat")
	}
	return id.Int(), nil
}

// MarkMessagesAsRead marks every message in chatID not sent by userID
// as read.
func (c *Client) MarkMessagesAsRead(ctx context.Context, chatID, userID int64) error {
	_, err := c.do(ctx, request{
		op:       "mark_read",
		method:   http.MethodPut,
		endpoint: c.messagesURL,
		body: map[string]any{
			"action":  "mark_read",
			"chat_id": chatID,
			"user_id": userID,
		},
		fallback: "Failed to mark messages as read",
	})
	return err
}

// PinChat sets userID's pin flag on chatID.
func (c *Client) PinChat(ctx context.Context, chatID, userID int64, pinned bool) error {
	_, err := c.do(ctx, request{
		op:       "pin_chat",
		method:   http.MethodPut,
		endpoint: c.messagesURL,
		body: map[string]any{
			"action":  "pin_chat",
			"chat_id": chatID,
			"user_id": userID,
			"pinned":  pinned,
		},
		fallback: "Failed to pin chat",
	})
	return err
}
