package devserver

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"chatterbox/api"
)

const (
	searchLimit = 20
	listLimit   = 50
)

// statusError is a failure with the HTTP status and message to report.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	return e.message
}

func badRequest(format string, args ...any) error {
	return &statusError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

type userRecord struct {
	api.User
	hash []byte
}

type chatRecord struct {
	id        int64
	name      string
	avatar    string
	isGroup   bool
	admin     int64
	members   []int64
	createdAt time.Time
	updatedAt time.Time
}

func (c *chatRecord) hasMember(userID int64) bool {
	for _, id := range c.members {
		if id == userID {
			return true
		}
	}
	return false
}

type settingKey struct {
	chatID int64
	userID int64
}

func userAvatar(username string) string {
	return "https://api.dicebear.com/7.x/avataaars/svg?seed=" + url.QueryEscape(username)
}

func chatAvatar(name string) string {
	if name == "" {
		name = "chat"
	}
	return "https://api.dicebear.com/7.x/shapes/svg?seed=" + url.QueryEscape(name)
}

func (s *Server) userByUsernameLocked(username string) *userRecord {
	for _, u := range s.users {
		if u.Username == username {
			return u
		}
	}
	return nil
}

func (s *Server) issueTokenLocked(userID int64) string {
	token := uuid.NewString()
	s.tokens[token] = userID
	return token
}

func (s *Server) register(username, name, password string) (api.AuthResult, error) {
	username, name = strings.TrimSpace(username), strings.TrimSpace(name)
	if username == "" || name == "" || password == "" {
		return api.AuthResult{}, badRequest("All fields are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return api.AuthResult{}, fmt.Errorf("failed to hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userByUsernameLocked(username) != nil {
		return api.AuthResult{}, badRequest("User with this username already exists")
	}
	s.nextUserID++
	u := &userRecord{
		User: api.User{
			ID:       s.nextUserID,
			Username: username,
			Name:     name,
			Avatar:   userAvatar(username),
			Online:   true,
		},
		hash: hash,
	}
	s.users[u.ID] = u
	return api.AuthResult{User: u.User, Token: s.issueTokenLocked(u.ID)}, nil
}

func (s *Server) login(username, password string) (api.AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return api.AuthResult{}, badRequest("Username and password are required")
	}
	invalid := &statusError{status: http.StatusUnauthorized, message: "Invalid username or password"}

	s.mu.Lock()
	u := s.userByUsernameLocked(username)
	var hash []byte
	if u != nil {
		hash = u.hash
	}
	s.mu.Unlock()
	if u == nil || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return api.AuthResult{}, invalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u.Online = true
	return api.AuthResult{User: u.User, Token: s.issueTokenLocked(u.ID)}, nil
}

// profileChange holds the fields present in an update request. Empty
// name and username are ignored; the other fields may be cleared.
type profileChange struct {
	name, username      string
	bio, avatar, banner *string
}

func (p profileChange) empty() bool {
	return p.name == "" && p.username == "" && p.bio == nil && p.avatar == nil && p.banner == nil
}

func (s *Server) updateProfile(token string, userID int64, change profileChange) (api.User, error) {
	if userID == 0 {
		return api.User{}, badRequest("user_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.tokens[token]; !ok || owner != userID {
		return api.User{}, &statusError{status: http.StatusUnauthorized, message: "Invalid token"}
	}
	u, ok := s.users[userID]
	if !ok {
		return api.User{}, &statusError{status: http.StatusNotFound, message: "User not found"}
	}
	if change.empty() {
		return api.User{}, badRequest("No data to update")
	}
	if change.username != "" && change.username != u.Username {
		if s.userByUsernameLocked(change.username) != nil {
			return api.User{}, badRequest("User with this username already exists")
		}
		u.Username = change.username
	}
	if change.name != "" {
		u.Name = change.name
	}
	if change.bio != nil {
		u.Bio = *change.bio
	}
	if change.avatar != nil {
		u.Avatar = *change.avatar
	}
	if change.banner != nil {
		u.Banner = *change.banner
	}
	return u.User, nil
}

func (s *Server) searchUsers(query string) []api.User {
	query = strings.ToLower(strings.TrimSpace(query))
	limit := searchLimit
	if query == "" {
		limit = listLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	users := []api.User{}
	for _, id := range ids {
		u := s.users[id].User
		if query != "" &&
			!strings.Contains(strings.ToLower(u.Username), query) &&
			!strings.Contains(strings.ToLower(u.Name), query) {
			continue
		}
		u.Banner = ""
		users = append(users, u)
		if len(users) == limit {
			break
		}
	}
	return users
}

func (s *Server) sendMessage(chatID, senderID int64, text string) (api.Message, error) {
	text = strings.TrimSpace(text)
	if chatID == 0 || senderID == 0 || text == "" {
		return api.Message{}, badRequest("chat_id, sender_id and text are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return api.Message{}, &statusError{status: http.StatusNotFound, message: "Chat not found"}
	}
	if !chat.hasMember(senderID) {
		return api.Message{}, &statusError{status: http.StatusForbidden, message: "Sender is not a member of this chat"}
	}
	now := s.clock.Now().UTC()
	s.nextMessageID++
	msg := &api.Message{
		ID:        s.nextMessageID,
		ChatID:    chatID,
		SenderID:  senderID,
		Text:      text,
		CreatedAt: api.Timestamp{Time: now},
	}
	s.messages = append(s.messages, msg)
	chat.updatedAt = now
	return *msg, nil
}

// createChat returns the new chat's id, or the id of the existing 1:1
// chat between the two members with exists set.
func (s *Server) createChat(memberIDs []int64, name string, isGroup bool) (chatID int64, exists bool, err error) {
	if len(memberIDs) < 2 {
		return 0, false, badRequest("At least 2 members are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range memberIDs {
		if _, ok := s.users[id]; !ok {
			return 0, false, badRequest("Unknown user %d", id)
		}
	}
	if !isGroup && len(memberIDs) == 2 {
		for _, chat := range s.chats {
			if !chat.isGroup && chat.hasMember(memberIDs[0]) && chat.hasMember(memberIDs[1]) {
				return chat.id, true, nil
			}
		}
	}

	now := s.clock.Now().UTC()
	s.nextChatID++
	chat := &chatRecord{
		id:        s.nextChatID,
		name:      name,
		avatar:    chatAvatar(name),
		isGroup:   isGroup,
		members:   append([]int64(nil), memberIDs...),
		createdAt: now,
		updatedAt: now,
	}
	if isGroup {
		chat.admin = memberIDs[0]
	}
	s.chats[chat.id] = chat
	return chat.id, false, nil
}

// chatsFor lists userID's chats as that user sees them, most recently
// active first.
func (s *Server) chatsFor(userID int64) []api.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()

	type entry struct {
		chat api.Chat
		key  time.Time
	}
	var entries []entry
	for _, rec := range s.chats {
		if !rec.hasMember(userID) {
			continue
		}
		chat := api.Chat{
			ID:          rec.id,
			Name:        rec.name,
			Avatar:      rec.avatar,
			IsGroup:     rec.isGroup,
			UpdatedAt:   api.Timestamp{Time: rec.updatedAt},
			Pinned:      s.pinned[settingKey{chatID: rec.id, userID: userID}],
			MemberCount: len(rec.members),
		}
		if rec.isGroup {
			chat.MemberIDs = append([]int64(nil), rec.members...)
		}
		for _, msg := range s.messages {
			if msg.ChatID != rec.id {
				continue
			}
			chat.LastMessage = msg.Text
			chat.LastMessageTime = msg.CreatedAt
			if msg.SenderID != userID && !msg.Read {
				chat.UnreadCount++
			}
		}
		if !rec.isGroup {
			for _, id := range rec.members {
				if id == userID {
					continue
				}
				if peer, ok := s.users[id]; ok {
					chat.Name = peer.Name
					chat.Avatar = peer.Avatar
					chat.Online = peer.Online
					chat.OtherUserID = peer.ID
				}
				break
			}
		}
		key := rec.createdAt
		if !chat.LastMessageTime.IsZero() {
			key = chat.LastMessageTime.Time
		}
		entries = append(entries, entry{chat: chat, key: key})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].key.Equal(entries[j].key) {
			return entries[i].key.After(entries[j].key)
		}
		return entries[i].chat.ID > entries[j].chat.ID
	})
	chats := make([]api.Chat, len(entries))
	for i, e := range entries {
		chats[i] = e.chat
	}
	return chats
}

// messagesIn returns chatID's history oldest first, with sender details.
func (s *Server) messagesIn(chatID int64) []api.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	messages := []api.Message{}
	for _, msg := range s.messages {
		if msg.ChatID != chatID {
			continue
		}
		m := *msg
		if sender, ok := s.users[m.SenderID]; ok {
			m.Username, m.Name, m.Avatar = sender.Username, sender.Name, sender.Avatar
		}
		messages = append(messages, m)
	}
	return messages
}

func (s *Server) markRead(chatID, userID int64) (int, error) {
	if chatID == 0 || userID == 0 {
		return 0, badRequest("chat_id and user_id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, msg := range s.messages {
		if msg.ChatID == chatID && msg.SenderID != userID && !msg.Read {
			msg.Read = true
			n++
		}
	}
	return n, nil
}

func (s *Server) pinChat(chatID, userID int64, pinned bool) error {
	if chatID == 0 || userID == 0 {
		return badRequest("chat_id and user_id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned[settingKey{chatID: chatID, userID: userID}] = pinned
	return nil
}
