// Package callsim simulates an audio call. There is no media transport:
// the call connects after a fixed delay and then counts its duration.
package callsim

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatterbox/api"
	"chatterbox/clock"
)

// ConnectDelay is how long a call stays in the connecting phase.
const ConnectDelay = 2 * time.Second

type Status int

const (
	Connecting Status = iota
	Connected
	Ended
)

func (s Status) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Call is one simulated call with a peer. All state is derived from the
// clock, so a Call needs no goroutine of its own.
type Call struct {
	ID   uuid.UUID
	Peer api.User

	clock   clock.Clock
	started time.Time

	mu      sync.Mutex
	muted   bool
	endedAt time.Time
}

// Start places a call to peer.
func Start(peer api.User, clk clock.Clock) *Call {
	if clk == nil {
		clk = clock.Real()
	}
	return &Call{ID: uuid.New(), Peer: peer, clock: clk, started: clk.Now()}
}

// PeerFromChat builds the callee from a chat's display fields.
func PeerFromChat(chat api.Chat) api.User {
	return api.User{ID: chat.OtherUserID, Name: chat.Name, Avatar: chat.Avatar, Online: chat.Online}
}

func (c *Call) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.endedAt.IsZero() {
		return c.endedAt
	}
	return c.clock.Now()
}

func (c *Call) Status() Status {
	c.mu.Lock()
	ended := !c.endedAt.IsZero()
	c.mu.Unlock()
	if ended {
		return Ended
	}
	if c.clock.Now().Sub(c.started) < ConnectDelay {
		return Connecting
	}
	return Connected
}

// Duration is the connected time in whole seconds. It is zero while
// connecting and frozen once the call ends.
func (c *Call) Duration() time.Duration {
	elapsed := c.now().Sub(c.started) - ConnectDelay
	if elapsed < 0 {
		return 0
	}
	return elapsed.Truncate(time.Second)
}

// ToggleMute flips the microphone state and returns the new value.
func (c *Call) ToggleMute() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = !c.muted
	return c.muted
}

func (c *Call) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// End hangs up. Ending twice is a no-op.
func (c *Call) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.endedAt.IsZero() {
		c.endedAt = c.clock.Now()
	}
}

// Label is the status line shown under the peer's name.
func (c *Call) Label() string {
	switch c.Status() {
	case Connecting:
		return "Connecting..."
	case Connected:
		return FormatDuration(c.Duration())
	default:
		return "Call ended " + FormatDuration(c.Duration())
	}
}

// FormatDuration renders d as mm:ss. Minutes keep counting past 59.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
