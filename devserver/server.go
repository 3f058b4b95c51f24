// Package devserver is an in-memory implementation of the auth and
// messaging endpoints, for local development and end-to-end tests.
// Nothing is persisted.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/crypto/bcrypt"

	"chatterbox/api"
	"chatterbox/clock"
)

const (
	AuthPath     = "/auth"
	MessagesPath = "/messages"

	maxBodySize = 1 << 20
)

type Options struct {
	Logger zerolog.Logger
	Clock  clock.Clock
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

type Server struct {
	log   zerolog.Logger
	clock clock.Clock
	cost  int

	mu            sync.Mutex
	nextUserID    int64
	nextChatID    int64
	nextMessageID int64
	users         map[int64]*userRecord
	tokens        map[string]int64
	chats         map[int64]*chatRecord
	messages      []*api.Message
	pinned        map[settingKey]bool
}

func New(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Server{
		log:    opts.Logger.With().Str("component", "devserver").Logger(),
		clock:  opts.Clock,
		cost:   opts.BcryptCost,
		users:  make(map[int64]*userRecord),
		tokens: make(map[string]int64),
		chats:  make(map[int64]*chatRecord),
		pinned: make(map[settingKey]bool),
	}
}

// Handler serves the auth endpoint at AuthPath and the messaging
// endpoint at MessagesPath.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get(AuthPath, s.handleSearch)
	r.Post(AuthPath, s.handleAuth)
	r.Put(AuthPath, s.handleProfile)

	r.Get(MessagesPath, s.handleList)
	r.Post(MessagesPath, s.handleMessagesPost)
	r.Put(MessagesPath, s.handleMessagesPut)

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "Not found")
	})
	return r
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("Shutdown failed")
		}
	}()

	s.log.Info().Str("addr", listener.Addr().String()).Msg("Dev server listening")
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-shutdownDone
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("Handled request")
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respond(w, status, errorResponse{Error: message})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var se *statusError
	if errors.As(err, &se) {
		respondError(w, se.status, se.message)
		return
	}
	s.log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("Request failed")
	respondError(w, http.StatusInternalServerError, err.Error())
}

// readBody parses the JSON request body. An empty body reads as {}.
func readBody(r *http.Request) (gjson.Result, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return gjson.Result{}, badRequest("Failed to read body")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return gjson.Parse("{}"), nil
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, badRequest("Invalid JSON")
	}
	return gjson.ParseBytes(data), nil
}

func queryID(r *http.Request, key string) (int64, bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, badRequest("%s must be a number", key)
	}
	return id, true, nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	users := s.searchUsers(r.URL.Query().Get("search"))
	respond(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var res api.AuthResult
	switch body.Get("action").String() {
	case "register":
		res, err = s.register(body.Get("username").String(), body.Get("name").String(), body.Get("password").String())
	case "login":
		res, err = s.login(body.Get("username").String(), body.Get("password").String())
	default:
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info().Int64("user_id", res.User.ID).Str("username", res.User.Username).Msg("Issued token")
	respond(w, http.StatusOK, res)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	optional := func(key string) *string {
		if v := body.Get(key); v.Exists() {
			str := v.String()
			return &str
		}
		return nil
	}
	change := profileChange{
		name:     body.Get("name").String(),
		username: strings.TrimSpace(body.Get("username").String()),
		bio:      optional("bio"),
		avatar:   optional("avatar"),
		banner:   optional("banner"),
	}

	user, err := s.updateProfile(r.Header.Get("X-User-Token"), body.Get("user_id").Int(), change)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	chatID, hasChat, err := queryID(r, "chat_id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if hasChat {
		respond(w, http.StatusOK, map[string]any{"messages": s.messagesIn(chatID)})
		return
	}

	userID, hasUser, err := queryID(r, "user_id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !hasUser {
		respondError(w, http.StatusBadRequest, "user_id or chat_id is required")
		return
	}
	chats := s.chatsFor(userID)
	if chats == nil {
		chats = []api.Chat{}
	}
	respond(w, http.StatusOK, map[string]any{"chats": chats})
}

func (s *Server) handleMessagesPost(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	switch body.Get("action").String() {
	case "send":
		msg, err := s.sendMessage(body.Get("chat_id").Int(), body.Get("sender_id").Int(), body.Get("text").String())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		respond(w, http.StatusOK, map[string]any{"message": msg})
	case "create_chat":
		var memberIDs []int64
		for _, v := range body.Get("user_ids").Array() {
			memberIDs = append(memberIDs, v.Int())
		}
		chatID, exists, err := s.createChat(memberIDs, body.Get("name").String(), body.Get("is_group").Bool())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if exists {
			respond(w, http.StatusOK, map[string]any{"chat_id": chatID, "exists": true})
			return
		}
		s.log.Info().Int64("chat_id", chatID).Ints64("members", memberIDs).Msg("Created chat")
		respond(w, http.StatusOK, map[string]any{"chat_id": chatID})
	default:
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleMessagesPut(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	chatID, userID := body.Get("chat_id").Int(), body.Get("user_id").Int()
	switch body.Get("action").String() {
	case "mark_read":
		n, err := s.markRead(chatID, userID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.log.Debug().Int64("chat_id", chatID).Int("count", n).Msg("Marked messages read")
	case "pin_chat":
		pinned := body.Get("pinned")
		if err := s.pinChat(chatID, userID, !pinned.Exists() || pinned.Bool()); err != nil {
			s.fail(w, r, err)
			return
		}
	default:
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	respond(w, http.StatusOK, map[string]any{"success": true})
}
