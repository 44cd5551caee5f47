// Package httpapi is the hosting-process HTTP surface: outbound sends,
// meeting-bot callbacks and task creation.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nextlevelbuilder/wapipe/internal/store"
)

// sender delivers text into a conversation.
type sender interface {
	SendText(ctx context.Context, jid, text string) error
}

// TaskExtractor derives tasks from a message plus context.
type TaskExtractor interface {
	Extract(ctx context.Context, msg store.StoredMessage, history []store.StoredMessage) ([]store.Task, error)
}

// Server exposes the HTTP API. All routes require bearer authentication.
type Server struct {
	client    sender
	stores    *store.Stores
	extractor TaskExtractor // optional
	authKey   string
}

func NewServer(client sender, stores *store.Stores, taskExtractor TaskExtractor, authKey string) *Server {
	return &Server{
		client:    client,
		stores:    stores,
		extractor: taskExtractor,
		authKey:   authKey,
	}
}

// Handler builds the route table wrapped in the auth middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sendMessage", s.handleSendMessage)
	mux.HandleFunc("POST /meetingWebhook", s.handleMeetingWebhook)
	mux.HandleFunc("POST /tasks", s.handleCreateTasks)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.requireAuth(mux)
}

// Listen serves the API until the context is canceled.
func (s *Server) Listen(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("http api listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http api: %w", err)
	}
	return nil
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health stays open for liveness checks.
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || token != s.authKey {
			writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type sendMessageRequest struct {
	JID      string   `json:"jid"`
	Messages []string `json:"messages"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.JID == "" || len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "jid and messages are required")
		return
	}

	for i, text := range req.Messages {
		if err := s.client.SendText(r.Context(), req.JID, text); err != nil {
			slog.Error("outbound send failed", "jid", req.JID, "index", i, "error", err)
			writeError(w, http.StatusBadGateway, fmt.Sprintf("send failed after %d messages", i))
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]int{"sent": len(req.Messages)})
}

type meetingWebhookRequest struct {
	ChatJID    string `json:"chat_jid"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	Transcript string `json:"transcript"`
}

// handleMeetingWebhook relays meeting-bot status into the chat and, when a
// transcript is attached, extracts tasks from it.
func (s *Server) handleMeetingWebhook(w http.ResponseWriter, r *http.Request) {
	var req meetingWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ChatJID == "" || req.Status == "" {
		writeError(w, http.StatusBadRequest, "chat_jid and status are required")
		return
	}

	note := fmt.Sprintf("📅 Meeting %q: %s", req.Title, req.Status)
	if err := s.client.SendText(r.Context(), req.ChatJID, note); err != nil {
		slog.Warn("meeting status relay failed", "chat_jid", req.ChatJID, "error", err)
	}

	created := 0
	if req.Transcript != "" && s.extractor != nil {
		msg := store.StoredMessage{
			ChatJID:   req.ChatJID,
			Body:      req.Transcript,
			Timestamp: time.Now().UTC(),
		}
		tasks, err := s.extractor.Extract(r.Context(), msg, nil)
		if err != nil {
			slog.Error("meeting task extraction failed", "chat_jid", req.ChatJID, "error", err)
		} else {
			for i := range tasks {
				if err := s.stores.Tasks.Put(r.Context(), &tasks[i]); err != nil {
					slog.Error("persist meeting task failed", "error", err)
					continue
				}
				created++
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]int{"tasks_created": created})
}

type createTasksRequest struct {
	ChatJID   string `json:"chat_jid"`
	MessageID string `json:"message_id"`
}

// handleCreateTasks extracts tasks from one stored message with its recent
// chat history as context.
func (s *Server) handleCreateTasks(w http.ResponseWriter, r *http.Request) {
	if s.extractor == nil {
		writeError(w, http.StatusServiceUnavailable, "task extraction not configured")
		return
	}

	var req createTasksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ChatJID == "" || req.MessageID == "" {
		writeError(w, http.StatusBadRequest, "chat_jid and message_id are required")
		return
	}

	msg, err := s.stores.Messages.Get(r.Context(), req.ChatJID, req.MessageID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "message lookup failed")
		return
	}
	if msg == nil {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}

	history, err := s.stores.Messages.ListByChat(r.Context(), req.ChatJID, 25)
	if err != nil {
		slog.Warn("history load for task extraction failed", "chat_jid", req.ChatJID, "error", err)
	}

	tasks, err := s.extractor.Extract(r.Context(), *msg, history)
	if err != nil {
		writeError(w, http.StatusBadGateway, "task extraction failed")
		return
	}

	for i := range tasks {
		if err := s.stores.Tasks.Put(r.Context(), &tasks[i]); err != nil {
			writeError(w, http.StatusInternalServerError, "persist task failed")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
