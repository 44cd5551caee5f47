package langgraph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchAssistants(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/assistants/search" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("X-Api-Key"); got != "lg-key" {
			t.Errorf("api key header = %q", got)
		}
		w.Write([]byte(`[{"assistant_id":"asst-1","graph_id":"agent","name":"agent"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "lg-key")
	assistants, err := c.SearchAssistants(context.Background(), 1)
	if err != nil {
		t.Fatalf("SearchAssistants: %v", err)
	}
	if len(assistants) != 1 || assistants[0].AssistantID != "asst-1" {
		t.Errorf("unexpected assistants: %+v", assistants)
	}
}

func TestCreateThread(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/threads" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"thread_id":"th-42"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "lg-key")
	id, err := c.CreateThread(context.Background())
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if id != "th-42" {
		t.Errorf("thread id = %q", id)
	}
}

func TestRunWaitExtractsAssistantReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/threads/th-42/runs/wait" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["assistant_id"] != "asst-1" {
			t.Errorf("assistant_id = %v", payload["assistant_id"])
		}
		w.Write([]byte(`{"messages":[
			{"type":"human","content":"hi"},
			{"type":"ai","content":"hello there"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "lg-key")
	reply, err := c.RunWait(context.Background(), "th-42", "asst-1", "hi")
	if err != nil {
		t.Fatalf("RunWait: %v", err)
	}
	if reply != "hello there" {
		t.Errorf("reply = %q", reply)
	}
}

func TestRunWaitContentBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"messages":[
			{"type":"ai","content":[{"type":"text","text":"part one "},{"type":"text","text":"part two"}]}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "lg-key")
	reply, err := c.RunWait(context.Background(), "th-1", "asst-1", "hi")
	if err != nil {
		t.Fatalf("RunWait: %v", err)
	}
	if reply != "part one part two" {
		t.Errorf("reply = %q", reply)
	}
}

func TestRunWaitUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"run failed"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "lg-key")
	if _, err := c.RunWait(context.Background(), "th-1", "asst-1", "hi"); err == nil {
		t.Fatal("expected error on upstream failure")
	}
}
