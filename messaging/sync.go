package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatterbox/api"
	"chatterbox/clock"
	"chatterbox/notifier"
)

// API is the subset of the remote client the synchronizer drives.
type API interface {
	GetChats(ctx context.Context, userID int64) ([]api.Chat, error)
	GetMessages(ctx context.Context, chatID int64) ([]api.Message, error)
	SendMessage(ctx context.Context, chatID, senderID int64, text string) (api.Message, error)
	CreateChat(ctx context.Context, memberIDs []int64, name string, isGroup bool) (int64, error)
	MarkMessagesAsRead(ctx context.Context, chatID, userID int64) error
	PinChat(ctx context.Context, chatID, userID int64, pinned bool) error
	SearchUsers(ctx context.Context, query string) ([]api.User, error)
}

// Options tunes a Synchronizer. Zero fields take defaults.
type Options struct {
	PollInterval     time.Duration
	ChatWaitInterval time.Duration
	ChatWaitAttempts int

	Clock    clock.Clock
	Notifier notifier.Notifier
	Logger   zerolog.Logger
}

const (
	DefaultPollInterval     = 5 * time.Second
	DefaultChatWaitInterval = 250 * time.Millisecond
	DefaultChatWaitAttempts = 8

	ackTimeout = 10 * time.Second
)

// Synchronizer owns the local chat list, the per-chat message caches and
// the selection, and keeps them in step with the server.
//
// Network calls are made without holding the lock. Results are applied
// only if the session they were issued under is still current, and a
// chat list fetched before a later local change is discarded, so the
// server wins on the next refresh rather than on a stale one.
type Synchronizer struct {
	api          API
	clock        clock.Clock
	notifier     notifier.Notifier
	log          zerolog.Logger
	pollInterval time.Duration
	waitInterval time.Duration
	waitAttempts int

	mu       sync.Mutex
	userID   int64
	epoch    uint64
	seq      uint64 // last sequence number handed out for a chat-list change
	applied  uint64 // sequence number of the last chat-list change applied
	chats    []api.Chat
	messages map[int64][]api.Message
	selected int64

	pollCancel context.CancelFunc
	pollDone   chan struct{}

	acks    sync.WaitGroup
	updates chan struct{}
}

func NewSynchronizer(client API, opts Options) *Synchronizer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ChatWaitInterval <= 0 {
		opts.ChatWaitInterval = DefaultChatWaitInterval
	}
	if opts.ChatWaitAttempts < 1 {
		opts.ChatWaitAttempts = DefaultChatWaitAttempts
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Notifier == nil {
		opts.Notifier = notifier.Discard
	}
	return &Synchronizer{
		api:          client,
		clock:        opts.Clock,
		notifier:     opts.Notifier,
		log:          opts.Logger.With().Str("component", "sync").Logger(),
		pollInterval: opts.PollInterval,
		waitInterval: opts.ChatWaitInterval,
		waitAttempts: opts.ChatWaitAttempts,
		messages:     make(map[int64][]api.Message),
		updates:      make(chan struct{}, 1),
	}
}

// Attach binds the synchronizer to a logged-in user, discarding any
// previous user's state.
func (s *Synchronizer) Attach(userID int64) {
	s.Stop()
	s.mu.Lock()
	s.resetLocked()
	s.userID = userID
	s.mu.Unlock()
	s.log.Debug().Int64("user_id", userID).Msg("Attached")
	s.signal()
}

// Detach stops polling and clears all chat and message state. Requests
// still in flight are ignored when they complete.
func (s *Synchronizer) Detach() {
	s.Stop()
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	s.log.Debug().Msg("Detached")
	s.signal()
}

func (s *Synchronizer) resetLocked() {
	s.epoch++
	s.userID = 0
	s.chats = nil
	s.messages = make(map[int64][]api.Message)
	s.selected = 0
}

// Wait blocks until background read acknowledgements have finished.
func (s *Synchronizer) Wait() {
	s.acks.Wait()
}

// Updates delivers a value after local state changes. Notifications are
// coalesced; read the projections to see the current state.
func (s *Synchronizer) Updates() <-chan struct{} {
	return s.updates
}

func (s *Synchronizer) signal() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// UserID returns the attached user, or 0.
func (s *Synchronizer) UserID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Chats returns a sorted copy of the chat list.
func (s *Synchronizer) Chats() []api.Chat {
	s.mu.Lock()
	chats := make([]api.Chat, len(s.chats))
	copy(chats, s.chats)
	s.mu.Unlock()
	SortChats(chats)
	return chats
}

// Chat looks up a chat in the local list.
func (s *Synchronizer) Chat(chatID int64) (api.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(chatID); i >= 0 {
		return s.chats[i], true
	}
	return api.Chat{}, false
}

// Messages returns a copy of a chat's cached history and whether the
// cache exists.
func (s *Synchronizer) Messages(chatID int64) ([]api.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cached, ok := s.messages[chatID]
	if !ok {
		return nil, false
	}
	out := make([]api.Message, len(cached))
	copy(out, cached)
	return out, true
}

// SelectedID returns the selected chat id, or 0.
func (s *Synchronizer) SelectedID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Selected returns the selected chat if it is in the local list.
func (s *Synchronizer) Selected() (api.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == 0 {
		return api.Chat{}, false
	}
	if i := s.indexLocked(s.selected); i >= 0 {
		return s.chats[i], true
	}
	return api.Chat{}, false
}

func (s *Synchronizer) indexLocked(chatID int64) int {
	for i := range s.chats {
		if s.chats[i].ID == chatID {
			return i
		}
	}
	return -1
}

// bumpLocked records a local chat-list change.
func (s *Synchronizer) bumpLocked() {
	s.seq++
	s.applied = s.seq
}

// identity returns the attached user and session epoch.
func (s *Synchronizer) identity() (userID int64, epoch uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == 0 {
		return 0, 0, ErrNotAuthenticated
	}
	return s.userID, s.epoch, nil
}

// fail logs err and raises an error notice, unless ctx was canceled in
// which case the failure is the caller's doing.
func (s *Synchronizer) fail(ctx context.Context, title string, err error) error {
	if ctx.Err() != nil {
		return err
	}
	s.log.Warn().Err(err).Msg(title)
	s.notifier.Notify(notifier.Notice{
		Level: notifier.LevelError,
		Title: title,
		Text:  api.ErrorText(err),
		At:    s.clock.Now(),
	})
	return err
}

func (s *Synchronizer) info(title string) {
	s.notifier.Notify(notifier.Notice{Level: notifier.LevelInfo, Title: title, At: s.clock.Now()})
}

// RefreshChats replaces the chat list with the server's.
func (s *Synchronizer) RefreshChats(ctx context.Context) error {
	s.mu.Lock()
	userID, epoch := s.userID, s.epoch
	if userID == 0 {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	s.seq++
	ticket := s.seq
	s.mu.Unlock()

	chats, err := s.api.GetChats(ctx, userID)
	if err != nil {
		return s.fail(ctx, "Failed to load chats", err)
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return ErrSessionChanged
	}
	if s.applied > ticket {
		s.mu.Unlock()
		s.log.Debug().Uint64("ticket", ticket).Msg("Discarding stale chat list")
		return nil
	}
	s.chats = chats
	s.applied = ticket
	s.mu.Unlock()
	s.signal()
	return nil
}

// SelectChat makes chatID the active chat, loading its history first if
// it has never been loaded, then acknowledges its messages as read in
// the background. The selection and the acknowledgement stand even when
// the load fails.
func (s *Synchronizer) SelectChat(ctx context.Context, chatID int64) error {
	s.mu.Lock()
	userID := s.userID
	if userID == 0 {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	s.selected = chatID
	_, cached := s.messages[chatID]
	s.mu.Unlock()
	s.signal()

	var err error
	if !cached {
		err = s.LoadMessages(ctx, chatID)
	}
	if errors.Is(err, ErrSessionChanged) || errors.Is(err, ErrNotAuthenticated) {
		return err
	}
	s.acknowledge(chatID, userID)
	return err
}

// acknowledge marks chatID read without blocking the caller. Failures
// are logged and otherwise ignored; the unread count catches up on the
// next refresh.
func (s *Synchronizer) acknowledge(chatID, userID int64) {
	s.acks.Add(1)
	go func() {
		defer s.acks.Done()
		ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
		defer cancel()
		if err := s.api.MarkMessagesAsRead(ctx, chatID, userID); err != nil {
			s.log.Debug().Err(err).Int64("chat_id", chatID).Msg("Failed to mark messages as read")
		}
	}()
}

// LoadMessages replaces chatID's cached history with the server's.
func (s *Synchronizer) LoadMessages(ctx context.Context, chatID int64) error {
	_, epoch, err := s.identity()
	if err != nil {
		return err
	}
	messages, err := s.api.GetMessages(ctx, chatID)
	if err != nil {
		return s.fail(ctx, "Failed to load messages", err)
	}
	if messages == nil {
		messages = []api.Message{}
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return ErrSessionChanged
	}
	s.messages[chatID] = messages
	s.mu.Unlock()
	s.signal()
	return nil
}

// SendMessage sends text to the selected chat. On success the returned
// message is appended to the cache and becomes the chat's preview; on
// failure nothing changes locally.
func (s *Synchronizer) SendMessage(ctx context.Context, text string) (api.Message, error) {
	s.mu.Lock()
	userID, epoch, chatID := s.userID, s.epoch, s.selected
	s.mu.Unlock()
	if userID == 0 {
		return api.Message{}, ErrNotAuthenticated
	}
	if chatID == 0 {
		return api.Message{}, ErrNoChatSelected
	}
	if strings.TrimSpace(text) == "" {
		return api.Message{}, ErrEmptyMessage
	}

	msg, err := s.api.SendMessage(ctx, chatID, userID, text)
	if err != nil {
		return api.Message{}, s.fail(ctx, "Failed to send message", err)
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return msg, ErrSessionChanged
	}
	s.messages[chatID] = append(s.messages[chatID], msg)
	if i := s.indexLocked(chatID); i >= 0 {
		s.chats[i].LastMessage = msg.Text
		s.chats[i].LastMessageTime = msg.CreatedAt
		if msg.CreatedAt.IsZero() {
			s.chats[i].LastMessageTime = api.Timestamp{Time: s.clock.Now()}
		}
		s.bumpLocked()
	}
	s.mu.Unlock()
	s.signal()
	return msg, nil
}

// TogglePin flips chatID's pin flag once the server has accepted it.
func (s *Synchronizer) TogglePin(ctx context.Context, chatID int64) error {
	s.mu.Lock()
	userID, epoch := s.userID, s.epoch
	if userID == 0 {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	i := s.indexLocked(chatID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrChatNotFound, chatID)
	}
	pinned := !s.chats[i].Pinned
	s.mu.Unlock()

	if err := s.api.PinChat(ctx, chatID, userID, pinned); err != nil {
		return s.fail(ctx, "Failed to pin chat", err)
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return ErrSessionChanged
	}
	if i := s.indexLocked(chatID); i >= 0 {
		s.chats[i].Pinned = pinned
		s.bumpLocked()
	}
	s.mu.Unlock()
	s.signal()
	return nil
}

// ClearChat empties chatID's local history. The server keeps it, so a
// later LoadMessages brings it back.
func (s *Synchronizer) ClearChat(chatID int64) {
	s.mu.Lock()
	s.messages[chatID] = []api.Message{}
	s.mu.Unlock()
	s.signal()
}

// DeleteChat drops chatID from the local list. There is no server-side
// delete, so the chat reappears on the next refresh.
func (s *Synchronizer) DeleteChat(chatID int64) {
	s.mu.Lock()
	if i := s.indexLocked(chatID); i >= 0 {
		s.chats = append(s.chats[:i:i], s.chats[i+1:]...)
		s.bumpLocked()
	}
	if s.selected == chatID {
		s.selected = 0
	}
	s.mu.Unlock()
	s.signal()
}

// CreateGroup creates a group of the current user and memberIDs, then
// refreshes the chat list to pick it up.
func (s *Synchronizer) CreateGroup(ctx context.Context, name string, memberIDs []int64) (int64, error) {
	userID, _, err := s.identity()
	if err != nil {
		return 0, err
	}
	name = strings.TrimSpace(name)
	members := withoutDuplicates(userID, memberIDs)
	if name == "" || len(members) == 0 {
		return 0, ErrInvalidGroup
	}

	chatID, err := s.api.CreateChat(ctx, append([]int64{userID}, members...), name, true)
	if err != nil {
		return 0, s.fail(ctx, "Failed to create group", err)
	}
	s.log.Info().Int64("chat_id", chatID).Int("members", len(members)+1).Msg("Created group")
	if err := s.RefreshChats(ctx); err != nil {
		return chatID, err
	}
	s.info("Group created")
	return chatID, nil
}

// withoutDuplicates drops self and repeated ids, keeping order.
func withoutDuplicates(self int64, ids []int64) []int64 {
	seen := map[int64]bool{self: true}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// SearchUsers finds other users matching query.
func (s *Synchronizer) SearchUsers(ctx context.Context, query string) ([]api.User, error) {
	users, err := s.api.SearchUsers(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, s.fail(ctx, "Failed to search users", err)
	}
	self := s.UserID()
	out := users[:0:0]
	for _, u := range users {
		if u.ID != self {
			out = append(out, u)
		}
	}
	return out, nil
}

// StartChat opens a 1:1 chat with peerID and selects it once the chat
// list shows it.
func (s *Synchronizer) StartChat(ctx context.Context, peerID int64) (int64, error) {
	userID, _, err := s.identity()
	if err != nil {
		return 0, err
	}
	if peerID == userID {
		return 0, ErrSelfChat
	}

	chatID, err := s.api.CreateChat(ctx, []int64{userID, peerID}, "", false)
	if err != nil {
		return 0, s.fail(ctx, "Failed to create chat", err)
	}
	if err := s.awaitChat(ctx, chatID); err != nil {
		return chatID, err
	}
	return chatID, s.SelectChat(ctx, chatID)
}

// awaitChat refreshes the chat list until chatID shows up in it.
func (s *Synchronizer) awaitChat(ctx context.Context, chatID int64) error {
	for attempt := 0; attempt < s.waitAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.clock.After(s.waitInterval):
			}
		}
		if err := s.RefreshChats(ctx); err != nil {
			if errors.Is(err, ErrSessionChanged) || errors.Is(err, ErrNotAuthenticated) || ctx.Err() != nil {
				return err
			}
			continue
		}
		if _, ok := s.Chat(chatID); ok {
			return nil
		}
	}
	return s.fail(ctx, "Chat did not appear", fmt.Errorf("%w: %d", ErrChatNotFound, chatID))
}
