package wa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	handshakeTimeout = 10 * time.Second
	maxBackoff       = 30 * time.Second
	httpTimeout      = 60 * time.Second
	maxMediaBytes    = 64 << 20 // bridge caps media at 64 MiB
)

// Bridge connects to a WhatsApp bridge process over WebSocket for events and
// sends, and over HTTP for media downloads and group metadata. The bridge
// (Baileys based) owns the WhatsApp protocol; this client only speaks the
// bridge's JSON framing.
type Bridge struct {
	wsURL    string
	httpURL  string
	clientID string

	mu   sync.Mutex
	conn *websocket.Conn

	events  chan Event
	limiter *rate.Limiter
	http    *http.Client

	ctx    context.Context
	cancel context.CancelFunc

	// OnQR is invoked with the pairing QR payload whenever the bridge asks
	// for a new device link. Optional.
	OnQR func(code string)
}

// NewBridge creates a bridge client. Call Start to begin the event stream.
func NewBridge(wsURL, httpURL, clientID string) *Bridge {
	return &Bridge{
		wsURL:    wsURL,
		httpURL:  httpURL,
		clientID: clientID,
		events:   make(chan Event, 64),
		// WhatsApp throttles aggressive senders; stay well under the radar.
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
		http:    &http.Client{Timeout: httpTimeout},
	}
}

// Start connects to the bridge and begins the read loop. A failed initial
// dial is not fatal; the loop keeps retrying with backoff.
func (b *Bridge) Start(ctx context.Context) error {
	slog.Info("starting whatsapp bridge client", "ws_url", b.wsURL, "client_id", b.clientID)

	b.ctx, b.cancel = context.WithCancel(ctx)

	if err := b.connect(); err != nil {
		slog.Warn("initial bridge connection failed, will retry", "error", err)
	}

	go b.listenLoop()
	return nil
}

// Stop closes the connection and the event stream.
func (b *Bridge) Stop() {
	if b.cancel != nil {
		b.cancel()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
}

// Events implements Client.
func (b *Bridge) Events() <-chan Event {
	return b.events
}

func (b *Bridge) connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, _, err := dialer.Dial(b.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial bridge %s: %w", b.wsURL, err)
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	slog.Info("whatsapp bridge connected", "url", b.wsURL)
	return nil
}

// listenLoop reads frames from the bridge with automatic reconnection.
func (b *Bridge) listenLoop() {
	defer close(b.events)

	backoff := time.Second

	for {
		select {
		case <-b.ctx.Done():
			return
		default:
		}

		b.mu.Lock()
		conn := b.conn
		b.mu.Unlock()

		if conn == nil {
			slog.Info("attempting bridge reconnect", "backoff", backoff)

			select {
			case <-b.ctx.Done():
				return
			case <-time.After(backoff):
			}

			if err := b.connect(); err != nil {
				slog.Warn("bridge reconnect failed", "error", err)
				backoff = min(backoff*2, maxBackoff)
				continue
			}

			backoff = time.Second
			continue
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("bridge read error, will reconnect", "error", err)

			b.mu.Lock()
			if b.conn != nil {
				_ = b.conn.Close()
				b.conn = nil
			}
			b.mu.Unlock()

			continue
		}

		b.handleFrame(raw)
	}
}

// bridgeFrame is the envelope for every frame the bridge sends.
type bridgeFrame struct {
	Type     string    `json:"type"`
	Kind     EventKind `json:"kind,omitempty"`
	Messages []Message `json:"messages,omitempty"`
	QR       string    `json:"qr,omitempty"`
}

func (b *Bridge) handleFrame(raw []byte) {
	var frame bridgeFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		slog.Warn("invalid bridge frame", "error", err)
		return
	}

	switch frame.Type {
	case "messages.upsert":
		if len(frame.Messages) == 0 {
			return
		}
		kind := frame.Kind
		if kind != EventAppend {
			kind = EventNotify
		}
		for i := range frame.Messages {
			frame.Messages[i].BatchKind = kind
			frame.Messages[i].SenderJID = NormalizeJID(frame.Messages[i].SenderJID)
		}

		select {
		case b.events <- Event{Kind: kind, Messages: frame.Messages}:
		case <-b.ctx.Done():
		}

	case "qr":
		slog.Info("bridge requested device pairing")
		if b.OnQR != nil {
			go b.OnQR(frame.QR)
		}

	case "ready":
		slog.Info("whatsapp session ready", "client_id", b.clientID)

	default:
		slog.Debug("ignoring bridge frame", "type", frame.Type)
	}
}

// writeFrame marshals and sends one frame over the socket, rate limited.
func (b *Bridge) writeFrame(ctx context.Context, payload any) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal bridge frame: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return fmt.Errorf("bridge not connected")
	}
	if err := b.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write bridge frame: %w", err)
	}
	return nil
}

// SendText implements Client.
func (b *Bridge) SendText(ctx context.Context, jid, text string) error {
	return b.writeFrame(ctx, map[string]any{
		"type": "send",
		"to":   jid,
		"text": text,
	})
}

// SendPresence implements Client.
func (b *Bridge) SendPresence(ctx context.Context, jid string, state PresenceState) error {
	return b.writeFrame(ctx, map[string]any{
		"type":     "presence",
		"to":       jid,
		"presence": string(state),
	})
}

// MarkRead implements Client.
func (b *Bridge) MarkRead(ctx context.Context, keys []Key) error {
	if len(keys) == 0 {
		return nil
	}
	return b.writeFrame(ctx, map[string]any{
		"type": "read",
		"keys": keys,
	})
}

// Download implements Client. Media bytes come from the bridge's HTTP
// sidecar; the WebSocket stays free for events.
func (b *Bridge) Download(ctx context.Context, msg Message) ([]byte, error) {
	if msg.Content.MediaRef == "" {
		return nil, fmt.Errorf("message %s has no media reference", msg.ID)
	}

	u := fmt.Sprintf("%s/media/%s", b.httpURL, url.PathEscape(msg.Content.MediaRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build media request: %w", err)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media %s: %w", msg.Content.MediaRef, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("download media %s: status %d: %s", msg.Content.MediaRef, resp.StatusCode, bytes.TrimSpace(body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return nil, fmt.Errorf("read media body: %w", err)
	}
	return data, nil
}

// GroupMetadata implements Client.
func (b *Bridge) GroupMetadata(ctx context.Context, jid string) (*GroupInfo, error) {
	u := fmt.Sprintf("%s/groups/%s", b.httpURL, url.PathEscape(jid))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build group metadata request: %w", err)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch group metadata %s: %w", jid, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch group metadata %s: status %d", jid, resp.StatusCode)
	}

	var info GroupInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode group metadata: %w", err)
	}
	return &info, nil
}
