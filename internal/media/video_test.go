package media

import (
	"context"
	"strings"
	"testing"
	"time"

	"google.golang.org/genai"
)

func newPollSummarizer(attempts int, getFile func(ctx context.Context, name string) (*genai.File, error)) *VideoSummarizer {
	return &VideoSummarizer{
		prompt:       "summarize",
		pollAttempts: attempts,
		pollDelay:    time.Millisecond,
		getFile:      getFile,
	}
}

func TestWaitActiveReturnsProcessedFile(t *testing.T) {
	polls := 0
	s := newPollSummarizer(5, func(ctx context.Context, name string) (*genai.File, error) {
		polls++
		state := genai.FileStateProcessing
		if polls >= 2 {
			state = genai.FileStateActive
		}
		return &genai.File{Name: name, URI: "files/clip", State: state}, nil
	})

	file, err := s.waitActive(context.Background(), &genai.File{Name: "clip", State: genai.FileStateProcessing})
	if err != nil {
		t.Fatalf("waitActive: %v", err)
	}
	if file.State != genai.FileStateActive {
		t.Errorf("state = %v, want active", file.State)
	}
	if polls != 2 {
		t.Errorf("polls = %d, want 2", polls)
	}
}

func TestWaitActiveExhaustsAttemptBound(t *testing.T) {
	polls := 0
	s := newPollSummarizer(3, func(ctx context.Context, name string) (*genai.File, error) {
		polls++
		return &genai.File{Name: name, State: genai.FileStateProcessing}, nil
	})

	_, err := s.waitActive(context.Background(), &genai.File{Name: "clip", State: genai.FileStateProcessing})
	if err == nil || !strings.Contains(err.Error(), "not processed after 3 attempts") {
		t.Fatalf("expected attempt exhaustion, got %v", err)
	}
	if polls != 3 {
		t.Errorf("polls = %d, want 3", polls)
	}
}

func TestWaitActiveFailedStateShortCircuits(t *testing.T) {
	s := newPollSummarizer(5, func(ctx context.Context, name string) (*genai.File, error) {
		t.Fatal("failed upload must not be polled")
		return nil, nil
	})

	_, err := s.waitActive(context.Background(), &genai.File{Name: "clip", State: genai.FileStateFailed})
	if err == nil || !strings.Contains(err.Error(), "processing failed") {
		t.Fatalf("expected processing failure, got %v", err)
	}
}
