// Package notifier carries transient user-facing notices (toasts) from
// the synchronizer to whichever front-end is running, and renders chat
// data as plain text for the CLI.
package notifier

import (
	"fmt"
	"io"
	"sync"
	"time"
)

type Level int

const (
	LevelInfo Level = iota
	LevelError
)

func (l Level) String() string {
	if l == LevelError {
		return "error"
	}
	return "info"
}

// Notice is a short message shown to the user and then forgotten.
type Notice struct {
	Level Level
	Title string
	Text  string
	At    time.Time
}

func (n Notice) String() string {
	if n.Text == "" {
		return n.Title
	}
	return n.Title + ": " + n.Text
}

// Notifier receives notices. Implementations must not block.
type Notifier interface {
	Notify(Notice)
}

// Func adapts a function to Notifier.
type Func func(Notice)

func (f Func) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Notifier = Func(func(Notice) {})

// Writer prints notices to w, one per line.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Notify(n Notice) {
	w.mu.Lock()
	defer w.mu.Unlock()
	prefix := "*"
	if n.Level == LevelError {
		prefix = "!"
	}
	fmt.Fprintf(w.w, "%s %s\n", prefix, n)
}

// Queue buffers notices for a front-end that drains them on its own
// schedule. When full, the oldest notice is dropped.
type Queue struct {
	ch chan Notice
}

func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan Notice, size)}
}

func (q *Queue) Notify(n Notice) {
	for {
		select {
		case q.ch <- n:
			return
		default:
		}
		select {
		case <-q.ch:
		default:
		}
	}
}

// C delivers queued notices.
func (q *Queue) C() <-chan Notice {
	return q.ch
}
