package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/wapipe/internal/store"
)

// TaskStore implements store.TaskStore backed by Postgres.
type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

func (s *TaskStore) Put(ctx context.Context, task *store.Task) error {
	if task.ID == "" {
		task.ID = uuid.Must(uuid.NewV7()).String()
	}
	if task.Status == "" {
		task.Status = store.TaskOpen
	}
	createdAt := task.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, chat_jid, message_id, title, description, due_at, status, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   title       = EXCLUDED.title,
		   description = EXCLUDED.description,
		   due_at      = EXCLUDED.due_at,
		   status      = EXCLUDED.status`,
		task.ID, task.ChatJID, task.MessageID, task.Title, task.Description,
		task.DueAt, task.Status, createdAt,
	)
	if err != nil {
		return fmt.Errorf("put task %s: %w", task.ID, err)
	}
	return nil
}

func (s *TaskStore) ListByChat(ctx context.Context, chatJID string, limit int) ([]store.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_jid, message_id, title, description, due_at, status, created_at
		 FROM tasks WHERE chat_jid = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		chatJID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks of %s: %w", chatJID, err)
	}
	defer rows.Close()

	var tasks []store.Task
	for rows.Next() {
		var (
			t           store.Task
			messageID   sql.NullString
			description sql.NullString
			dueAt       sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.ChatJID, &messageID, &t.Title, &description,
			&dueAt, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		t.MessageID = messageID.String
		t.Description = description.String
		if dueAt.Valid {
			due := dueAt.Time
			t.DueAt = &due
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}
	return tasks, nil
}
