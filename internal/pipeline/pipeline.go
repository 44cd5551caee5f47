// Package pipeline is the message-processing core: idempotent ingestion,
// command handling, media resolution, persistence, conversation upkeep and
// debounced agent dispatch.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/wapipe/internal/langgraph"
	"github.com/nextlevelbuilder/wapipe/internal/store"
	"github.com/nextlevelbuilder/wapipe/internal/wa"
	"github.com/nextlevelbuilder/wapipe/internal/webhook"
)

// mediaProcessor resolves a media message into a text surrogate.
type mediaProcessor interface {
	Process(ctx context.Context, msg wa.Message) (string, error)
}

// agent is the external agent service: assistant discovery, thread creation
// and blocking runs.
type agent interface {
	SearchAssistants(ctx context.Context, limit int) ([]langgraph.Assistant, error)
	CreateThread(ctx context.Context) (string, error)
	RunWait(ctx context.Context, threadID, assistantID, input string) (string, error)
}

// hook delivers rendered context downstream.
type hook interface {
	Send(ctx context.Context, payload webhook.Payload) error
}

// notifier reports operator-facing events. Implementations never fail the
// caller.
type notifier interface {
	Notify(ctx context.Context, text string)
	Error(ctx context.Context, component string, err error)
}

// Config tunes the pipeline.
type Config struct {
	BotJID        string
	TriggerToken  string
	DefaultDelay  time.Duration
	ContextLength int
}

// Pipeline wires the processing stages together. One Pipeline serves one
// WhatsApp session.
type Pipeline struct {
	client   wa.Client
	stores   *store.Stores
	media    mediaProcessor
	agent    agent
	hook     hook
	notifier notifier
	cfg      Config

	queue  *Coalescer
	groups *groupCache
}

func New(client wa.Client, stores *store.Stores, media mediaProcessor, agentClient agent, hookSender hook, notify notifier, cfg Config) *Pipeline {
	p := &Pipeline{
		client:   client,
		stores:   stores,
		media:    media,
		agent:    agentClient,
		hook:     hookSender,
		notifier: notify,
		cfg:      cfg,
		groups:   newGroupCache(client, groupCacheTTL),
	}
	p.queue = NewCoalescer(p.delayFor, p.flush)
	return p
}

// Run consumes the transport's event stream until it closes or the context
// is canceled. Each batch is handled in its own goroutine so one slow batch
// never stalls ingestion of unrelated conversations.
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.queue.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-p.client.Events():
			if !ok {
				return nil
			}
			if ev.Kind != wa.EventAppend && ev.Kind != wa.EventNotify {
				continue
			}
			go p.handleBatch(ctx, ev)
		}
	}
}

// handleBatch processes one batch: messages sequentially, failures isolated
// per message.
func (p *Pipeline) handleBatch(ctx context.Context, ev wa.Event) {
	p.markReadAsync(ev.Messages)

	for _, msg := range ev.Messages {
		if err := p.processMessage(ctx, msg); err != nil {
			slog.Error("message processing failed",
				"message_id", msg.ID, "chat_jid", msg.ChatJID, "error", err)
		}
	}
}

// markReadAsync acknowledges non-self messages at the transport without
// blocking the batch.
func (p *Pipeline) markReadAsync(msgs []wa.Message) {
	var keys []wa.Key
	for _, msg := range msgs {
		if !msg.FromMe {
			keys = append(keys, msg.Key())
		}
	}
	if len(keys) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := p.client.MarkRead(ctx, keys); err != nil {
			slog.Warn("mark read failed", "count", len(keys), "error", err)
		}
	}()
}

// processMessage runs one message through the full stage sequence. Every
// return is a terminal outcome; there is no retry.
func (p *Pipeline) processMessage(ctx context.Context, msg wa.Message) error {
	if msg.Content.Empty() {
		return nil
	}

	// Reactions mutate an existing record and are never stored themselves.
	if msg.Content.Kind == wa.KindReaction {
		return p.applyReaction(ctx, msg)
	}

	// The transport redelivers on reconnect; the stored record is the
	// idempotency key.
	existing, err := p.stores.Messages.Get(ctx, msg.ChatJID, msg.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		slog.Debug("duplicate message skipped", "message_id", msg.ID)
		return nil
	}

	if handled, err := p.interceptCommand(ctx, msg); handled || err != nil {
		return err
	}

	var surrogate string
	if msg.Content.IsMedia() {
		surrogate, err = p.media.Process(ctx, msg)
		if err != nil {
			// Degraded, not fatal: the message is stored without a
			// text surrogate.
			slog.Error("media processing failed",
				"message_id", msg.ID, "kind", msg.Content.Kind, "error", err)
			p.notifier.Error(ctx, "media", err)
			surrogate = ""
		}
	}

	if err := p.record(ctx, msg, surrogate); err != nil {
		return err
	}

	if err := p.touchChat(ctx, msg); err != nil {
		slog.Warn("conversation upsert failed", "chat_jid", msg.ChatJID, "error", err)
	}

	if !msg.FromMe {
		p.queue.Enqueue(msg)
	}
	return nil
}

// delayFor resolves the conversation's debounce delay, preferring the
// per-chat override.
func (p *Pipeline) delayFor(chatJID string) time.Duration {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := p.stores.UserConfigs.Get(ctx, chatJID)
	if err != nil {
		slog.Warn("user config lookup failed", "chat_jid", chatJID, "error", err)
		return p.cfg.DefaultDelay
	}
	if cfg == nil || cfg.ResponseDelayMS <= 0 {
		return p.cfg.DefaultDelay
	}
	return time.Duration(cfg.ResponseDelayMS) * time.Millisecond
}
