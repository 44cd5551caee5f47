package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/wapipe/internal/store"
)

// MessageStore implements store.MessageStore backed by Postgres. Reactions
// live in a jsonb column keyed by sender JID so concurrent reaction updates
// from different senders never clobber each other.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

const messageColumns = `id, chat_jid, sender_jid, from_me, push_name, ts,
	message_type, mime_type, file_name, body, process_result, is_media,
	upsert_type, reactions, created_at`

func (s *MessageStore) Get(ctx context.Context, chatJID, id string) (*store.StoredMessage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE chat_jid = $1 AND id = $2`,
		chatJID, id,
	)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message %s/%s: %w", chatJID, id, err)
	}
	return msg, nil
}

func (s *MessageStore) Put(ctx context.Context, msg *store.StoredMessage) error {
	reactions := msg.Reactions
	if reactions == nil {
		reactions = map[string]store.Reaction{}
	}
	reactionsJSON, err := json.Marshal(reactions)
	if err != nil {
		return fmt.Errorf("marshal reactions: %w", err)
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (chat_jid, id) DO UPDATE SET
		   body = EXCLUDED.body,
		   process_result = EXCLUDED.process_result,
		   upsert_type = EXCLUDED.upsert_type`,
		msg.ID, msg.ChatJID, msg.SenderJID, msg.FromMe, msg.PushName, msg.Timestamp,
		msg.MessageType, msg.MimeType, msg.FileName, msg.Body, msg.ProcessResult,
		msg.IsMedia, msg.UpsertType, reactionsJSON, createdAt,
	)
	if err != nil {
		return fmt.Errorf("put message %s/%s: %w", msg.ChatJID, msg.ID, err)
	}
	return nil
}

func (s *MessageStore) ApplyReaction(ctx context.Context, chatJID, targetID, senderJID, emoji string, ts time.Time) error {
	var err error
	if emoji == "" {
		_, err = s.db.ExecContext(ctx,
			`UPDATE messages SET reactions = reactions - $3
			 WHERE chat_jid = $1 AND id = $2`,
			chatJID, targetID, senderJID,
		)
	} else {
		entryJSON, merr := json.Marshal(store.Reaction{Emoji: emoji, Timestamp: ts})
		if merr != nil {
			return fmt.Errorf("marshal reaction: %w", merr)
		}
		_, err = s.db.ExecContext(ctx,
			`UPDATE messages
			 SET reactions = jsonb_set(reactions, ARRAY[$3], $4::jsonb, true)
			 WHERE chat_jid = $1 AND id = $2`,
			chatJID, targetID, senderJID, entryJSON,
		)
	}
	if err != nil {
		return fmt.Errorf("apply reaction on %s/%s: %w", chatJID, targetID, err)
	}
	return nil
}

func (s *MessageStore) DeleteByChat(ctx context.Context, chatJID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE chat_jid = $1`, chatJID)
	if err != nil {
		return 0, fmt.Errorf("delete messages of %s: %w", chatJID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (s *MessageStore) ListByChat(ctx context.Context, chatJID string, limit int) ([]store.StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE chat_jid = $1
		 ORDER BY ts DESC, created_at DESC
		 LIMIT $2`,
		chatJID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages of %s: %w", chatJID, err)
	}
	defer rows.Close()

	var msgs []store.StoredMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msgs = append(msgs, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}

	// Query is newest-first for the LIMIT; callers want chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*store.StoredMessage, error) {
	var (
		msg           store.StoredMessage
		pushName      sql.NullString
		mimeType      sql.NullString
		fileName      sql.NullString
		body          sql.NullString
		processResult sql.NullString
		reactionsJSON []byte
	)

	err := row.Scan(
		&msg.ID, &msg.ChatJID, &msg.SenderJID, &msg.FromMe, &pushName, &msg.Timestamp,
		&msg.MessageType, &mimeType, &fileName, &body, &processResult,
		&msg.IsMedia, &msg.UpsertType, &reactionsJSON, &msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	msg.PushName = pushName.String
	msg.MimeType = mimeType.String
	msg.FileName = fileName.String
	msg.Body = body.String
	msg.ProcessResult = processResult.String

	if len(reactionsJSON) > 0 {
		if err := json.Unmarshal(reactionsJSON, &msg.Reactions); err != nil {
			return nil, fmt.Errorf("unmarshal reactions: %w", err)
		}
	}
	return &msg, nil
}
