package pg

import (
	"database/sql"

	"github.com/nextlevelbuilder/wapipe/internal/store"
)

// NewStores creates all stores backed by a shared Postgres pool.
func NewStores(db *sql.DB) *store.Stores {
	return &store.Stores{
		Messages:    NewMessageStore(db),
		Chats:       NewChatStore(db),
		Threads:     NewThreadStore(db),
		UserConfigs: NewUserConfigStore(db),
		Tasks:       NewTaskStore(db),
	}
}
