package conversation

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/kanit/internal/models"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func TestWindow_Cap(t *testing.T) {
	w := NewWindow()
	for i := 0; i < 25; i++ {
		w.Append("u", "s", models.RoleUser, fmt.Sprintf("m%d", i))
	}
	msgs := w.Messages("u", "s")
	if len(msgs) != 20 {
		t.Fatalf("len = %d, want 20", len(msgs))
	}
	if msgs[0].Content != "m5" || msgs[19].Content != "m24" {
		t.Errorf("kept %q..%q, want m5..m24", msgs[0].Content, msgs[19].Content)
	}
}

func TestWindow_Context(t *testing.T) {
	w := NewWindow()
	if got := w.Context("u", "s", DefaultContextMessages); got != "" {
		t.Errorf("empty Context = %q", got)
	}
	w.Append("u", "s", models.RoleUser, "merhaba")
	w.Append("u", "s", models.RoleAssistant, "selam")
	w.Append("u", "s", models.RoleUser, "nasılsın")

	if got, want := w.Context("u", "s", 12), "USER: merhaba\nASSISTANT: selam\nUSER: nasılsın"; got != want {
		t.Errorf("Context = %q, want %q", got, want)
	}
	if got, want := w.Context("u", "s", 2), "ASSISTANT: selam\nUSER: nasılsın"; got != want {
		t.Errorf("Context(2) = %q, want %q", got, want)
	}
	if got := w.Context("u", "s", 0); strings.Count(got, "\n") != 2 {
		t.Errorf("Context(0) should render everything, got %q", got)
	}
	if got := w.UserMessages("u", "s"); len(got) != 2 || got[1] != "nasılsın" {
		t.Errorf("UserMessages = %q", got)
	}
}

func TestWindow_SessionsIsolated(t *testing.T) {
	w := NewWindow()
	w.Append("u", "a", models.RoleUser, "one")
	w.Append("u", "b", models.RoleUser, "two")
	w.Append("v", "a", models.RoleUser, "three")
	if got := w.Context("u", "a", 12); got != "USER: one" {
		t.Errorf("Context(u,a) = %q", got)
	}
	w.Clear("u", "a")
	if got := w.Context("u", "a", 12); got != "" {
		t.Errorf("after Clear = %q", got)
	}
	if got := w.Context("v", "a", 12); got != "USER: three" {
		t.Errorf("Clear touched another user: %q", got)
	}
}

func TestWindow_IdleReset(t *testing.T) {
	clk := newClock()
	w := NewWindow(WithClock(clk.Now))
	w.Append("u", "s", models.RoleUser, "eski")
	w.Append("u", "s", models.RoleAssistant, "cevap")

	clk.Advance(2 * time.Hour)
	if got := w.Context("u", "s", 12); got == "" {
		t.Fatal("exactly 2h idle should not reset")
	}

	clk.Advance(time.Second)
	if got := w.Context("u", "s", 12); got != "" {
		t.Errorf("Context after 2h+1s = %q, want empty", got)
	}
	w.Append("u", "s", models.RoleUser, "yeni")
	if msgs := w.Messages("u", "s"); len(msgs) != 1 || msgs[0].Content != "yeni" {
		t.Errorf("messages after reset = %+v", msgs)
	}
}

func TestWindow_Prune(t *testing.T) {
	clk := newClock()
	w := NewWindow(WithClock(clk.Now), WithIdleTimeout(time.Minute))
	w.Append("u", "old", models.RoleUser, "x")
	clk.Advance(2 * time.Minute)
	w.Append("u", "new", models.RoleUser, "y")
	if n := w.Prune(); n != 1 {
		t.Errorf("Prune = %d, want 1", n)
	}
	if w.Len() != 1 {
		t.Errorf("Len = %d, want 1", w.Len())
	}
}

func TestWindow_Options(t *testing.T) {
	w := NewWindow(WithMaxMessages(3), WithMaxMessages(-1), WithIdleTimeout(0))
	if w.maxMessages != 3 || w.idleTimeout != DefaultIdleTimeout {
		t.Errorf("options = %d, %v", w.maxMessages, w.idleTimeout)
	}
}

func TestWindow_ConcurrentAppend(t *testing.T) {
	w := NewWindow(WithMaxMessages(1000))
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w.Append("u", "s", models.RoleUser, fmt.Sprint(i))
		}(i)
	}
	wg.Wait()
	if got := len(w.Messages("u", "s")); got != 100 {
		t.Errorf("len = %d, want 100; appends were lost", got)
	}
}
