package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"chatterbox/devserver"
)

type cli struct {
	t      *testing.T
	config string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	srv := httptest.NewServer(devserver.New(devserver.Options{BcryptCost: bcrypt.MinCost}).Handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := fmt.Sprintf(`auth_url: %s%s
messages_url: %s%s
chat_wait_interval: 10ms
session_path: %s
log_level: error
`, srv.URL, devserver.AuthPath, srv.URL, devserver.MessagesPath, filepath.Join(dir, "session.json"))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return &cli{t: t, config: path}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetArgs(append(args, "--config", c.config))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(""))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, "chatterbox %s", strings.Join(args, " "))
	return out
}

func TestCommandsAgainstDevServer(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("register", "bob", "Bob", "--password", "pw-bob")
	assert.Contains(t, out, "@bob")
	out = c.mustRun("register", "anna", "Anna", "--password", "pw-anna")
	assert.Contains(t, out, "Welcome, Anna!")

	assert.Contains(t, c.mustRun("whoami"), "Anna (@anna)")
	assert.Contains(t, c.mustRun("search", "bo"), "@bob")

	out = c.mustRun("start-chat", "1")
	assert.Contains(t, out, "Chat 1 with Bob is open.")
	assert.Contains(t, out, "No messages yet.")

	out = c.mustRun("send", "--chat", "1", "hello", "there")
	assert.Contains(t, out, "Sent to Bob")
	assert.Contains(t, c.mustRun("read", "1"), "you: hello there")

	out = c.mustRun("chats")
	assert.Contains(t, out, "Bob")
	assert.Contains(t, out, "hello there")

	assert.Contains(t, c.mustRun("pin", "1"), "Pinned Bob.")
	assert.True(t, strings.HasPrefix(c.mustRun("chats"), "^"), "pinned chat is marked")

	assert.Contains(t, c.mustRun("group", "create", "--name", "Team", "1"), `Created group "Team" (chat 2).`)

	out = c.mustRun("profile", "update", "--bio", "hi there")
	assert.Contains(t, out, "bio:    hi there")

	c.mustRun("login", "bob", "--password", "pw-bob")
	out = c.mustRun("check-messages")
	assert.Contains(t, out, "You have 1 new message(s):")
	assert.Contains(t, out, "- Anna (1)")

	assert.Contains(t, c.mustRun("read", "1"), "Anna: hello there")
	assert.Contains(t, c.mustRun("check-messages"), "No new messages.")

	assert.Contains(t, c.mustRun("logout"), "Logged out.")
	_, err := c.run("whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestLoginFailureIsReported(t *testing.T) {
	c := newCLI(t)
	c.mustRun("register", "anna", "Anna", "--password", "pw")

	_, err := c.run("login", "anna", "--password", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid username or password")
}

func TestCommandValidation(t *testing.T) {
	c := newCLI(t)
	c.mustRun("register", "anna", "Anna", "--password", "pw")

	_, err := c.run("send", "hi")
	assert.ErrorContains(t, err, "--chat")

	_, err = c.run("read", "abc")
	assert.ErrorContains(t, err, `invalid chat id "abc"`)

	_, err = c.run("pin", "99")
	assert.ErrorContains(t, err, "chat not found")

	_, err = c.run("profile", "update")
	assert.ErrorContains(t, err, "nothing to update")

	_, err = c.run("login", "anna")
	assert.ErrorContains(t, err, "password is required")
}

func TestCall(t *testing.T) {
	c := newCLI(t)
	c.mustRun("register", "bob", "Bob", "--password", "pw")
	c.mustRun("register", "anna", "Anna", "--password", "pw")
	c.mustRun("start-chat", "1")

	out := c.mustRun("call", "1", "--duration", "1ms")
	assert.Contains(t, out, "Calling Bob...")
	assert.Contains(t, out, "Call ended 00:00")
}
