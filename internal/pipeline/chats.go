package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nextlevelbuilder/wapipe/internal/store"
	"github.com/nextlevelbuilder/wapipe/internal/wa"
)

// Group metadata barely changes; a short cache keeps chatty groups from
// hammering the transport.
const groupCacheTTL = 5 * time.Minute

type groupCache struct {
	client wa.Client
	ttl    time.Duration

	mu      sync.Mutex
	entries map[string]groupCacheEntry
}

type groupCacheEntry struct {
	info    *wa.GroupInfo
	fetched time.Time
}

func newGroupCache(client wa.Client, ttl time.Duration) *groupCache {
	return &groupCache{
		client:  client,
		ttl:     ttl,
		entries: make(map[string]groupCacheEntry),
	}
}

func (c *groupCache) get(ctx context.Context, jid string) (*wa.GroupInfo, error) {
	c.mu.Lock()
	entry, ok := c.entries[jid]
	c.mu.Unlock()

	if ok && time.Since(entry.fetched) < c.ttl {
		return entry.info, nil
	}

	info, err := c.client.GroupMetadata(ctx, jid)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[jid] = groupCacheEntry{info: info, fetched: time.Now()}
	c.mu.Unlock()
	return info, nil
}

// touchChat merge-upserts the conversation summary for an inbound message.
func (p *Pipeline) touchChat(ctx context.Context, msg wa.Message) error {
	summary := &store.ChatSummary{
		JID:           msg.ChatJID,
		IsGroup:       wa.IsGroupJID(msg.ChatJID),
		LastMessageAt: msg.Time(),
		LastSenderJID: msg.SenderJID,
	}

	if summary.IsGroup {
		info, err := p.groups.get(ctx, msg.ChatJID)
		if err != nil {
			// Upsert activity anyway; metadata fills in on a later message.
			if uerr := p.stores.Chats.Upsert(ctx, summary); uerr != nil {
				return uerr
			}
			return fmt.Errorf("group metadata: %w", err)
		}
		summary.Name = info.Subject
		summary.Description = info.Description
		summary.Participants = info.Participants
		summary.GroupCreatedAt = info.CreatedAt
	} else if !msg.FromMe {
		summary.Name = msg.PushName
	}

	return p.stores.Chats.Upsert(ctx, summary)
}
