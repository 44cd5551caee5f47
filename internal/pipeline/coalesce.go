package pipeline

import (
	"sync"
	"time"

	"github.com/nextlevelbuilder/wapipe/internal/wa"
)

// flushFunc receives a conversation's quiet-period batch in arrival order.
type flushFunc func(chatJID string, msgs []wa.Message)

// Coalescer debounces messages per conversation: every enqueue restarts the
// conversation's timer, so a flush only happens after a quiet period. At
// most one live timer exists per conversation.
type Coalescer struct {
	mu      sync.Mutex
	windows map[string]*window

	delayFor func(chatJID string) time.Duration
	flush    flushFunc
}

type window struct {
	msgs  []wa.Message
	timer *time.Timer
	gen   uint64 // bumps on every restart so stale timers abort
}

func NewCoalescer(delayFor func(chatJID string) time.Duration, flush flushFunc) *Coalescer {
	return &Coalescer{
		windows:  make(map[string]*window),
		delayFor: delayFor,
		flush:    flush,
	}
}

// Enqueue adds a message to the conversation's window and restarts its
// timer. The delay is resolved fresh on every call so a SET_RESPONSE_TIME
// issued mid-window takes effect immediately.
func (c *Coalescer) Enqueue(msg wa.Message) {
	delay := c.delayFor(msg.ChatJID)

	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[msg.ChatJID]
	if !ok {
		w = &window{}
		c.windows[msg.ChatJID] = w
	} else {
		w.timer.Stop()
	}

	w.msgs = append(w.msgs, msg)
	w.gen++
	gen := w.gen
	chatJID := msg.ChatJID

	w.timer = time.AfterFunc(delay, func() {
		c.fire(chatJID, gen)
	})
}

// fire takes the window atomically and invokes the flush target. A timer
// whose generation no longer matches lost a race with a restart and must
// not flush.
func (c *Coalescer) fire(chatJID string, gen uint64) {
	c.mu.Lock()
	w, ok := c.windows[chatJID]
	if !ok || w.gen != gen {
		c.mu.Unlock()
		return
	}
	msgs := w.msgs
	delete(c.windows, chatJID)
	c.mu.Unlock()

	c.flush(chatJID, msgs)
}

// Stop cancels every pending timer. Pending messages are dropped; windows
// are in-memory only and survive neither restart nor shutdown.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for jid, w := range c.windows {
		w.timer.Stop()
		delete(c.windows, jid)
	}
}
