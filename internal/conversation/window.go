// Package conversation keeps a bounded, idle-expiring message history per
// user session.
package conversation

import (
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/kanit/internal/models"
)

// Defaults.
const (
	DefaultMaxMessages     = 20
	DefaultIdleTimeout     = 2 * time.Hour
	DefaultContextMessages = 12
)

type sessionKey struct {
	user    string
	session string
}

type session struct {
	messages     []models.Message
	createdAt    time.Time
	lastActivity time.Time
}

// Window stores recent messages per (user, session). All operations share a
// single mutex, so concurrent appends to one session are never lost.
type Window struct {
	maxMessages int
	idleTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]*session
}

// Option configures a Window.
type Option func(*Window)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Window) { w.now = now }
}

// WithMaxMessages caps how many messages a session keeps.
func WithMaxMessages(n int) Option {
	return func(w *Window) {
		if n > 0 {
			w.maxMessages = n
		}
	}
}

// WithIdleTimeout sets how long a session may stay inactive before it is
// reset.
func WithIdleTimeout(d time.Duration) Option {
	return func(w *Window) {
		if d > 0 {
			w.idleTimeout = d
		}
	}
}

// NewWindow creates an empty window.
func NewWindow(opts ...Option) *Window {
	w := &Window{
		maxMessages: DefaultMaxMessages,
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		sessions:    make(map[sessionKey]*session),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// get returns the session for key, creating it or resetting it when idle.
// Callers hold w.mu.
func (w *Window) get(key sessionKey, now time.Time) *session {
	s, ok := w.sessions[key]
	if !ok || now.Sub(s.lastActivity) > w.idleTimeout {
		s = &session{createdAt: now, lastActivity: now}
		w.sessions[key] = s
	}
	return s
}

// Append adds a message to the session, dropping the oldest beyond the cap.
func (w *Window) Append(user, sessionID string, role models.Role, content string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	s := w.get(sessionKey{user, sessionID}, now)
	s.messages = append(s.messages, models.Message{Role: role, Content: content, Timestamp: now})
	s.lastActivity = now
	if over := len(s.messages) - w.maxMessages; over > 0 {
		s.messages = append([]models.Message(nil), s.messages[over:]...)
	}
}

// Context renders the last maxMessages messages oldest first, one per line,
// labelled "USER:" or "ASSISTANT:". maxMessages <= 0 renders all of them.
// Reading does not count as activity.
func (w *Window) Context(user, sessionID string, maxMessages int) string {
	msgs := w.Messages(user, sessionID)
	if len(msgs) == 0 {
		return ""
	}
	if maxMessages > 0 && len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = label(m.Role) + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

// Messages returns a copy of the session's messages, oldest first.
func (w *Window) Messages(user, sessionID string) []models.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.get(sessionKey{user, sessionID}, w.now())
	return append([]models.Message(nil), s.messages...)
}

// UserMessages returns the content of the session's user messages, oldest
// first.
func (w *Window) UserMessages(user, sessionID string) []string {
	var out []string
	for _, m := range w.Messages(user, sessionID) {
		if m.Role == models.RoleUser {
			out = append(out, m.Content)
		}
	}
	return out
}

// Clear forgets the session.
func (w *Window) Clear(user, sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.sessions, sessionKey{user, sessionID})
}

// Prune drops every idle session and returns how many were removed.
func (w *Window) Prune() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	n := 0
	for k, s := range w.sessions {
		if now.Sub(s.lastActivity) > w.idleTimeout {
			delete(w.sessions, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked sessions.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sessions)
}

func label(r models.Role) string {
	if r == models.RoleUser {
		return "USER"
	}
	return "ASSISTANT"
}
