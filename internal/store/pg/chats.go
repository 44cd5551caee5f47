package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/wapipe/internal/store"
)

// ChatStore implements store.ChatStore backed by Postgres. Participants are
// a jsonb array; the whole snapshot is replaced whenever a fresh one arrives.
type ChatStore struct {
	db *sql.DB
}

func NewChatStore(db *sql.DB) *ChatStore {
	return &ChatStore{db: db}
}

func (s *ChatStore) Get(ctx context.Context, jid string) (*store.ChatSummary, error) {
	var (
		chat             store.ChatSummary
		name             sql.NullString
		description      sql.NullString
		groupCreatedAt   sql.NullTime
		lastSender       sql.NullString
		participantsJSON []byte
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT jid, name, description, is_group, participants, group_created_at,
		        last_message_at, last_sender_jid, created_at, updated_at
		 FROM chats WHERE jid = $1`,
		jid,
	).Scan(&chat.JID, &name, &description, &chat.IsGroup, &participantsJSON,
		&groupCreatedAt, &chat.LastMessageAt, &lastSender, &chat.CreatedAt, &chat.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chat %s: %w", jid, err)
	}

	chat.Name = name.String
	chat.Description = description.String
	chat.GroupCreatedAt = groupCreatedAt.Time
	chat.LastSenderJID = lastSender.String
	if len(participantsJSON) > 0 {
		if err := json.Unmarshal(participantsJSON, &chat.Participants); err != nil {
			return nil, fmt.Errorf("unmarshal participants: %w", err)
		}
	}
	return &chat, nil
}

// Upsert merges the incoming summary into the stored row. COALESCE with
// NULLIF keeps existing values wherever the incoming summary is empty.
func (s *ChatStore) Upsert(ctx context.Context, chat *store.ChatSummary) error {
	now := time.Now().UTC()

	var participantsJSON []byte
	if len(chat.Participants) > 0 {
		var err error
		participantsJSON, err = json.Marshal(chat.Participants)
		if err != nil {
			return fmt.Errorf("marshal participants: %w", err)
		}
	}

	var groupCreatedAt *time.Time
	if !chat.GroupCreatedAt.IsZero() {
		groupCreatedAt = &chat.GroupCreatedAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (jid, name, description, is_group, participants,
		                    group_created_at, last_message_at, last_sender_jid,
		                    created_at, updated_at)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, NULLIF($8, ''), $9, $9)
		 ON CONFLICT (jid) DO UPDATE SET
		   name             = COALESCE(NULLIF(EXCLUDED.name, ''), chats.name),
		   description      = COALESCE(NULLIF(EXCLUDED.description, ''), chats.description),
		   participants     = COALESCE(EXCLUDED.participants, chats.participants),
		   group_created_at = COALESCE(EXCLUDED.group_created_at, chats.group_created_at),
		   last_message_at  = GREATEST(EXCLUDED.last_message_at, chats.last_message_at),
		   last_sender_jid  = COALESCE(NULLIF(EXCLUDED.last_sender_jid, ''), chats.last_sender_jid),
		   updated_at       = EXCLUDED.updated_at`,
		chat.JID, chat.Name, chat.Description, chat.IsGroup, participantsJSON,
		groupCreatedAt, chat.LastMessageAt, chat.LastSenderJID, now,
	)
	if err != nil {
		return fmt.Errorf("upsert chat %s: %w", chat.JID, err)
	}
	return nil
}
