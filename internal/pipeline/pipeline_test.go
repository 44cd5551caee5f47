package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/wapipe/internal/langgraph"
	"github.com/nextlevelbuilder/wapipe/internal/store"
	"github.com/nextlevelbuilder/wapipe/internal/wa"
	"github.com/nextlevelbuilder/wapipe/internal/webhook"
)

// --- in-memory stores ---

type memMessages struct {
	mu   sync.Mutex
	rows map[string]*store.StoredMessage
}

func newMemMessages() *memMessages {
	return &memMessages{rows: make(map[string]*store.StoredMessage)}
}

func msgKey(chatJID, id string) string { return chatJID + "/" + id }

func (m *memMessages) Get(ctx context.Context, chatJID, id string) (*store.StoredMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[msgKey(chatJID, id)]; ok {
		cp := *row
		return &cp, nil
	}
	return nil, nil
}

func (m *memMessages) Put(ctx context.Context, msg *store.StoredMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.rows[msgKey(msg.ChatJID, msg.ID)] = &cp
	return nil
}

func (m *memMessages) ApplyReaction(ctx context.Context, chatJID, targetID, senderJID, emoji string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[msgKey(chatJID, targetID)]
	if !ok {
		return nil
	}
	if emoji == "" {
		delete(row.Reactions, senderJID)
		return nil
	}
	if row.Reactions == nil {
		row.Reactions = make(map[string]store.Reaction)
	}
	row.Reactions[senderJID] = store.Reaction{Emoji: emoji, Timestamp: ts}
	return nil
}

func (m *memMessages) DeleteByChat(ctx context.Context, chatJID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, row := range m.rows {
		if row.ChatJID == chatJID {
			delete(m.rows, key)
			n++
		}
	}
	return n, nil
}

func (m *memMessages) ListByChat(ctx context.Context, chatJID string, limit int) ([]store.StoredMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var msgs []store.StoredMessage
	for _, row := range m.rows {
		if row.ChatJID == chatJID {
			msgs = append(msgs, *row)
		}
	}
	for i := 0; i < len(msgs); i++ {
		for j := i + 1; j < len(msgs); j++ {
			if msgs[j].Timestamp.Before(msgs[i].Timestamp) {
				msgs[i], msgs[j] = msgs[j], msgs[i]
			}
		}
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (m *memMessages) count(chatJID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.rows {
		if row.ChatJID == chatJID {
			n++
		}
	}
	return n
}

type memChats struct {
	mu   sync.Mutex
	rows map[string]*store.ChatSummary
}

func newMemChats() *memChats { return &memChats{rows: make(map[string]*store.ChatSummary)} }

func (m *memChats) Get(ctx context.Context, jid string) (*store.ChatSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[jid]; ok {
		cp := *row
		return &cp, nil
	}
	return nil, nil
}

func (m *memChats) Upsert(ctx context.Context, chat *store.ChatSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.rows[chat.JID]
	if !ok {
		cp := *chat
		m.rows[chat.JID] = &cp
		return nil
	}
	if chat.Name != "" {
		existing.Name = chat.Name
	}
	if chat.Description != "" {
		existing.Description = chat.Description
	}
	if len(chat.Participants) > 0 {
		existing.Participants = chat.Participants
	}
	if !chat.GroupCreatedAt.IsZero() {
		existing.GroupCreatedAt = chat.GroupCreatedAt
	}
	if chat.LastMessageAt.After(existing.LastMessageAt) {
		existing.LastMessageAt = chat.LastMessageAt
	}
	if chat.LastSenderJID != "" {
		existing.LastSenderJID = chat.LastSenderJID
	}
	return nil
}

type memThreads struct {
	mu   sync.Mutex
	rows map[string]*store.ThreadBinding
}

func newMemThreads() *memThreads { return &memThreads{rows: make(map[string]*store.ThreadBinding)} }

func (m *memThreads) Get(ctx context.Context, chatJID string) (*store.ThreadBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[chatJID]; ok {
		cp := *row
		return &cp, nil
	}
	return nil, nil
}

func (m *memThreads) Put(ctx context.Context, b *store.ThreadBinding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[b.ChatJID]; !ok {
		cp := *b
		m.rows[b.ChatJID] = &cp
	}
	return nil
}

type memConfigs struct {
	mu   sync.Mutex
	rows map[string]int
}

func newMemConfigs() *memConfigs { return &memConfigs{rows: make(map[string]int)} }

func (m *memConfigs) Get(ctx context.Context, chatJID string) (*store.UserConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if delay, ok := m.rows[chatJID]; ok {
		return &store.UserConfig{ChatJID: chatJID, ResponseDelayMS: delay}, nil
	}
	return nil, nil
}

func (m *memConfigs) SetResponseDelay(ctx context.Context, chatJID string, delayMS int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[chatJID] = delayMS
	return nil
}

type memTasks struct {
	mu   sync.Mutex
	rows []store.Task
}

func (m *memTasks) Put(ctx context.Context, task *store.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *task)
	return nil
}

func (m *memTasks) ListByChat(ctx context.Context, chatJID string, limit int) ([]store.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Task
	for _, t := range m.rows {
		if t.ChatJID == chatJID {
			out = append(out, t)
		}
	}
	return out, nil
}

// --- fake collaborators ---

type fakeTransport struct {
	mu       sync.Mutex
	events   chan wa.Event
	sent     []string
	sentTo   []string
	presence []string
	read     [][]wa.Key
	media    []byte
	mediaErr error
	group    *wa.GroupInfo
	groupErr error
	groupGot int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan wa.Event, 16)}
}

func (c *fakeTransport) Events() <-chan wa.Event { return c.events }

func (c *fakeTransport) SendText(ctx context.Context, jid, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	c.sentTo = append(c.sentTo, jid)
	return nil
}

func (c *fakeTransport) SendPresence(ctx context.Context, jid string, state wa.PresenceState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presence = append(c.presence, string(state))
	return nil
}

func (c *fakeTransport) MarkRead(ctx context.Context, keys []wa.Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.read = append(c.read, keys)
	return nil
}

func (c *fakeTransport) Download(ctx context.Context, msg wa.Message) ([]byte, error) {
	return c.media, c.mediaErr
}

func (c *fakeTransport) GroupMetadata(ctx context.Context, jid string) (*wa.GroupInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groupGot++
	return c.group, c.groupErr
}

func (c *fakeTransport) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type fakeMedia struct {
	result string
	err    error
	calls  int
}

func (m *fakeMedia) Process(ctx context.Context, msg wa.Message) (string, error) {
	m.calls++
	return m.result, m.err
}

type fakeAgent struct {
	mu            sync.Mutex
	threadsMade   int
	runs          []string
	reply         string
	runErr        error
	searchErr     error
	noAssistants  bool
	lastThreadRun string
}

func (a *fakeAgent) SearchAssistants(ctx context.Context, limit int) ([]langgraph.Assistant, error) {
	if a.searchErr != nil {
		return nil, a.searchErr
	}
	if a.noAssistants {
		return nil, nil
	}
	return []langgraph.Assistant{{AssistantID: "asst-1"}}, nil
}

func (a *fakeAgent) CreateThread(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.threadsMade++
	return fmt.Sprintf("th-%d", a.threadsMade), nil
}

func (a *fakeAgent) RunWait(ctx context.Context, threadID, assistantID, input string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runs = append(a.runs, input)
	a.lastThreadRun = threadID
	if a.runErr != nil {
		return "", a.runErr
	}
	return a.reply, nil
}

type fakeHook struct {
	mu       sync.Mutex
	payloads []webhook.Payload
}

func (h *fakeHook) Send(ctx context.Context, payload webhook.Payload) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.payloads = append(h.payloads, payload)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	errors []error
}

func (n *fakeNotifier) Notify(ctx context.Context, text string) {}

func (n *fakeNotifier) Error(ctx context.Context, component string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, err)
}

// --- fixture ---

type fixture struct {
	pipe     *Pipeline
	client   *fakeTransport
	messages *memMessages
	chats    *memChats
	threads  *memThreads
	configs  *memConfigs
	media    *fakeMedia
	agent    *fakeAgent
	hook     *fakeHook
	notifier *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		client:   newFakeTransport(),
		messages: newMemMessages(),
		chats:    newMemChats(),
		threads:  newMemThreads(),
		configs:  newMemConfigs(),
		media:    &fakeMedia{result: "a sunset photo"},
		agent:    &fakeAgent{reply: "agent says hi"},
		hook:     &fakeHook{},
		notifier: &fakeNotifier{},
	}
	stores := &store.Stores{
		Messages:    f.messages,
		Chats:       f.chats,
		Threads:     f.threads,
		UserConfigs: f.configs,
		Tasks:       &memTasks{},
	}
	f.pipe = New(f.client, stores, f.media, f.agent, f.hook, f.notifier, Config{
		BotJID:        "490000000@s.whatsapp.net",
		TriggerToken:  "heyai",
		DefaultDelay:  20 * time.Millisecond,
		ContextLength: 25,
	})
	return f
}

func textMessage(id, chatJID, text string) wa.Message {
	return wa.Message{
		ID:        id,
		ChatJID:   chatJID,
		SenderJID: "111@s.whatsapp.net",
		PushName:  "Ana",
		Timestamp: time.Now().Unix(),
		Content:   wa.Content{Kind: wa.KindText, Text: text},
		BatchKind: wa.EventNotify,
	}
}

// --- orchestrator tests ---

const directChat = "111@s.whatsapp.net"

func TestProcessMessageStoresText(t *testing.T) {
	f := newFixture(t)

	msg := textMessage("M1", directChat, "hello")
	if err := f.pipe.processMessage(context.Background(), msg); err != nil {
		t.Fatalf("processMessage: %v", err)
	}

	stored, err := f.messages.Get(context.Background(), directChat, "M1")
	if err != nil || stored == nil {
		t.Fatalf("message not stored: %v", err)
	}
	if stored.Body != "hello" || stored.MessageType != "conversation" || stored.IsMedia {
		t.Errorf("unexpected stored message: %+v", stored)
	}
	if stored.UpsertType != "notify" {
		t.Errorf("upsert type = %q", stored.UpsertType)
	}
}

func TestProcessMessageDeduplicates(t *testing.T) {
	f := newFixture(t)

	msg := textMessage("M1", directChat, "hello")
	for i := 0; i < 3; i++ {
		if err := f.pipe.processMessage(context.Background(), msg); err != nil {
			t.Fatalf("processMessage: %v", err)
		}
	}

	if n := f.messages.count(directChat); n != 1 {
		t.Errorf("stored %d messages, want 1", n)
	}
}

func TestProcessMessageSkipsEmpty(t *testing.T) {
	f := newFixture(t)

	msg := wa.Message{ID: "M1", ChatJID: directChat, Content: wa.Content{Kind: wa.KindUnknown}}
	if err := f.pipe.processMessage(context.Background(), msg); err != nil {
		t.Fatalf("processMessage: %v", err)
	}
	if n := f.messages.count(directChat); n != 0 {
		t.Errorf("empty message was stored")
	}
}

func TestProcessMessageMediaDegradedOnFailure(t *testing.T) {
	f := newFixture(t)
	f.media.err = errors.New("vision provider down")

	msg := wa.Message{
		ID:        "M1",
		ChatJID:   directChat,
		SenderJID: "111@s.whatsapp.net",
		Timestamp: time.Now().Unix(),
		Content:   wa.Content{Kind: wa.KindImage, MimeType: "image/jpeg", MediaRef: "r"},
		BatchKind: wa.EventNotify,
	}
	if err := f.pipe.processMessage(context.Background(), msg); err != nil {
		t.Fatalf("processMessage should not fail on media error: %v", err)
	}

	stored, _ := f.messages.Get(context.Background(), directChat, "M1")
	if stored == nil {
		t.Fatal("degraded media message must still be stored")
	}
	if stored.ProcessResult != "" {
		t.Errorf("process result = %q, want empty", stored.ProcessResult)
	}
	if len(f.notifier.errors) == 0 {
		t.Error("operator was not notified of the media failure")
	}
}

func TestProcessMessageSelfNotEnqueued(t *testing.T) {
	f := newFixture(t)

	msg := textMessage("M1", directChat, "note to self")
	msg.FromMe = true
	if err := f.pipe.processMessage(context.Background(), msg); err != nil {
		t.Fatalf("processMessage: %v", err)
	}

	// No flush may happen no matter how long we wait.
	time.Sleep(80 * time.Millisecond)
	f.agent.mu.Lock()
	runs := len(f.agent.runs)
	f.agent.mu.Unlock()
	if runs != 0 {
		t.Errorf("self message triggered %d agent runs", runs)
	}
}

func TestBatchFailureIsolation(t *testing.T) {
	f := newFixture(t)
	f.media.err = errors.New("provider down")

	ev := wa.Event{Kind: wa.EventNotify, Messages: []wa.Message{
		{ID: "M1", ChatJID: directChat, SenderJID: directChat, Timestamp: time.Now().Unix(),
			Content: wa.Content{Kind: wa.KindImage, MimeType: "image/jpeg", MediaRef: "r"}},
		textMessage("M2", directChat, "still here"),
	}}
	f.pipe.handleBatch(context.Background(), ev)

	if stored, _ := f.messages.Get(context.Background(), directChat, "M2"); stored == nil {
		t.Error("failure of first message aborted the second")
	}
}

func TestReactionUpsertAndRetract(t *testing.T) {
	f := newFixture(t)

	if err := f.pipe.processMessage(context.Background(), textMessage("M1", directChat, "react to me")); err != nil {
		t.Fatal(err)
	}

	react := func(sender, emoji string) wa.Message {
		return wa.Message{
			ID: "R-" + sender + emoji, ChatJID: directChat, SenderJID: sender,
			Timestamp: time.Now().Unix(),
			Content:   wa.Content{Kind: wa.KindReaction, Reaction: &wa.Reaction{TargetID: "M1", Emoji: emoji}},
		}
	}

	if err := f.pipe.processMessage(context.Background(), react("a@s.whatsapp.net", "👍")); err != nil {
		t.Fatal(err)
	}
	if err := f.pipe.processMessage(context.Background(), react("b@s.whatsapp.net", "❤️")); err != nil {
		t.Fatal(err)
	}
	// Sender a replaces their reaction; last write wins.
	if err := f.pipe.processMessage(context.Background(), react("a@s.whatsapp.net", "😂")); err != nil {
		t.Fatal(err)
	}

	stored, _ := f.messages.Get(context.Background(), directChat, "M1")
	if stored.Reactions["a@s.whatsapp.net"].Emoji != "😂" || stored.Reactions["b@s.whatsapp.net"].Emoji != "❤️" {
		t.Errorf("reactions = %v", stored.Reactions)
	}
	if stored.Reactions["b@s.whatsapp.net"].Timestamp.IsZero() {
		t.Error("reaction timestamp not recorded")
	}

	// Empty emoji retracts.
	if err := f.pipe.processMessage(context.Background(), react("a@s.whatsapp.net", "")); err != nil {
		t.Fatal(err)
	}
	stored, _ = f.messages.Get(context.Background(), directChat, "M1")
	if _, ok := stored.Reactions["a@s.whatsapp.net"]; ok {
		t.Errorf("retracted reaction still present: %v", stored.Reactions)
	}
	if len(stored.Reactions) != 1 {
		t.Errorf("reactions = %v", stored.Reactions)
	}
}

func TestReactionToUnknownTargetIsNoop(t *testing.T) {
	f := newFixture(t)

	msg := wa.Message{
		ID: "R1", ChatJID: directChat, SenderJID: "a@s.whatsapp.net",
		Content: wa.Content{Kind: wa.KindReaction, Reaction: &wa.Reaction{TargetID: "NEVER-STORED", Emoji: "👍"}},
	}
	if err := f.pipe.processMessage(context.Background(), msg); err != nil {
		t.Fatalf("reaction to unknown target must not error: %v", err)
	}
	if n := f.messages.count(directChat); n != 0 {
		t.Errorf("reaction event was stored as a message")
	}
}

func TestTouchChatGroupUsesCachedMetadata(t *testing.T) {
	f := newFixture(t)
	const groupJID = "777@g.us"
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f.client.group = &wa.GroupInfo{
		JID: groupJID, Subject: "Family", Description: "the family group",
		Participants: []string{"a", "b"}, CreatedAt: created,
	}

	for i := 0; i < 3; i++ {
		msg := textMessage(fmt.Sprintf("M%d", i), groupJID, "hi all")
		if err := f.pipe.processMessage(context.Background(), msg); err != nil {
			t.Fatal(err)
		}
	}

	if f.client.groupGot != 1 {
		t.Errorf("group metadata fetched %d times, want 1 (cached)", f.client.groupGot)
	}
	chat, _ := f.chats.Get(context.Background(), groupJID)
	if chat == nil || chat.Name != "Family" || !chat.IsGroup {
		t.Errorf("chat summary = %+v", chat)
	}
	if chat.Description != "the family group" || !chat.GroupCreatedAt.Equal(created) {
		t.Errorf("group metadata not persisted: %+v", chat)
	}
}
