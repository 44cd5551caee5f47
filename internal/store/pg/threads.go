package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/wapipe/internal/store"
)

// ThreadStore implements store.ThreadStore backed by Postgres.
type ThreadStore struct {
	db *sql.DB
}

func NewThreadStore(db *sql.DB) *ThreadStore {
	return &ThreadStore{db: db}
}

func (s *ThreadStore) Get(ctx context.Context, chatJID string) (*store.ThreadBinding, error) {
	var b store.ThreadBinding
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_jid, thread_id, assistant_id, created_at
		 FROM threads WHERE chat_jid = $1`,
		chatJID,
	).Scan(&b.ChatJID, &b.ThreadID, &b.AssistantID, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get thread binding %s: %w", chatJID, err)
	}
	return &b, nil
}

// Put records a binding. A chat binds to exactly one thread; a concurrent
// duplicate insert keeps the first binding.
func (s *ThreadStore) Put(ctx context.Context, b *store.ThreadBinding) error {
	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (chat_jid, thread_id, assistant_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (chat_jid) DO NOTHING`,
		b.ChatJID, b.ThreadID, b.AssistantID, createdAt,
	)
	if err != nil {
		return fmt.Errorf("put thread binding %s: %w", b.ChatJID, err)
	}
	return nil
}
