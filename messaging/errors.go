package messaging

import (
	"errors"

	"chatterbox/session"
)

var (
	ErrNotAuthenticated   = session.ErrNoSession
	ErrNoChatSelected     = errors.New("no chat selected")
	ErrChatNotFound       = errors.New("chat not found")
	ErrEmptyMessage       = errors.New("message is empty")
	ErrSessionChanged     = errors.New("session changed while request was in flight")
	ErrInvalidGroup       = errors.New("group needs a name and at least one other member")
	ErrSelfChat           = errors.New("cannot start a chat with yourself")
	ErrMissingCredentials = errors.New("username and password are required")
	ErrNothingToUpdate    = errors.New("no profile fields to update")
)
