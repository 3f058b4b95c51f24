package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chatterbox/api"
	"chatterbox/config"
	"chatterbox/messaging"
	"chatterbox/notifier"
	"chatterbox/session"
	"chatterbox/tui"
)

var (
	configPath string
	storePath  string
	logLevel   string
)

var errNotLoggedIn = errors.New("not logged in; run `chatterbox login` first")

// env is what a command needs to talk to the backend.
type env struct {
	cfg     *config.Config
	log     zerolog.Logger
	client  *messaging.Client
	closeFn func()
}

func (e *env) Close() {
	e.client.Close()
	if e.closeFn != nil {
		e.closeFn()
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("store") {
		cfg.SessionPath = storePath
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// newLogger writes human-readable logs to w, or to the configured log file
// when toFile is set.
func newLogger(cfg *config.Config, w io.Writer, toFile bool) (zerolog.Logger, func(), error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	closeFn := func() {}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	if toFile {
		if cfg.LogFile == "" {
			return zerolog.Nop(), closeFn, nil
		}
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o700); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = zerolog.ConsoleWriter{Out: f, NoColor: true, TimeFormat: "2006-01-02 15:04:05"}
		closeFn = func() { _ = f.Close() }
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), closeFn, nil
}

func openStore(path string) (session.Store, error) {
	if path == "" {
		return session.NewMemoryStore(), nil
	}
	store, err := session.NewFileStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return store, nil
}

// newEnv wires config, logging, the session store and the client. Notices
// go to n, or to stderr when n is nil.
func newEnv(cmd *cobra.Command, n notifier.Notifier, logToFile bool) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, closeLog, err := newLogger(cfg, cmd.ErrOrStderr(), logToFile)
	if err != nil {
		return nil, err
	}
	store, err := openStore(cfg.SessionPath)
	if err != nil {
		closeLog()
		return nil, err
	}
	if n == nil {
		n = notifier.NewWriter(cmd.ErrOrStderr())
	}

	backend := api.NewClient(cfg.AuthURL, cfg.MessagesURL,
		api.WithTimeout(cfg.RequestTimeout),
		api.WithLogger(log),
	)
	client := messaging.NewClient(backend, session.NewManager(store, log), messaging.Options{
		PollInterval:     cfg.PollInterval,
		ChatWaitInterval: cfg.ChatWaitInterval,
		ChatWaitAttempts: cfg.ChatWaitAttempts,
		Notifier:         n,
		Logger:           log,
	})
	return &env{cfg: cfg, log: log, client: client, closeFn: closeLog}, nil
}

// withSession runs fn with a restored session, refusing to run without one.
func withSession(cmd *cobra.Command, fn func(e *env, user api.User) error) error {
	e, err := newEnv(cmd, nil, false)
	if err != nil {
		return err
	}
	defer e.Close()

	user, ok := e.client.Restore()
	if !ok {
		return errNotLoggedIn
	}
	return fn(e, user)
}

func parseID(kind, s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", kind, s)
	}
	return id, nil
}

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chatterbox",
		Short:         "Terminal messenger client",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			queue := notifier.NewQueue(32)
			e, err := newEnv(cmd, queue, true)
			if err != nil {
				return err
			}
			defer func() {
				if e.closeFn != nil {
					e.closeFn()
				}
			}()
			return tui.Run(cmd.Context(), e.client, queue, tui.Options{Logger: e.log})
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default "+config.DefaultPath()+")")
	cmd.PersistentFlags().StringVar(&storePath, "store", "", "Path to the session file (\"\" for in-memory)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newRegisterCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newChatsCmd(),
		newReadCmd(),
		newSendMessageCmd(),
		newPinCmd(),
		newGroupCmd(),
		newSearchCmd(),
		newStartChatCmd(),
		newProfileCmd(),
		newCallCmd(),
		newCheckMessagesCmd(),
		newServeDevCmd(),
	)
	return cmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
