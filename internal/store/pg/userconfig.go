package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/wapipe/internal/store"
)

// UserConfigStore implements store.UserConfigStore backed by Postgres.
type UserConfigStore struct {
	db *sql.DB
}

func NewUserConfigStore(db *sql.DB) *UserConfigStore {
	return &UserConfigStore{db: db}
}

func (s *UserConfigStore) Get(ctx context.Context, chatJID string) (*store.UserConfig, error) {
	var cfg store.UserConfig
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_jid, response_delay_ms, updated_at
		 FROM user_configs WHERE chat_jid = $1`,
		chatJID,
	).Scan(&cfg.ChatJID, &cfg.ResponseDelayMS, &cfg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user config %s: %w", chatJID, err)
	}
	return &cfg, nil
}

func (s *UserConfigStore) SetResponseDelay(ctx context.Context, chatJID string, delayMS int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_configs (chat_jid, response_delay_ms, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (chat_jid) DO UPDATE SET
		   response_delay_ms = EXCLUDED.response_delay_ms,
		   updated_at        = EXCLUDED.updated_at`,
		chatJID, delayMS, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set response delay %s: %w", chatJID, err)
	}
	return nil
}
