package store

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/medichat/chatmodel"
	"github.com/effective-security/medichat/pkg/llms"
)

type inMemory struct {
	mu      sync.RWMutex
	storage map[string][]llms.Message
	chats   map[string]*ChatInfo
}

func NewMemoryStore() MessageStoreManager {
	return &inMemory{}
}

func (m *inMemory) Messages(ctx context.Context) []llms.Message {
	chatID, err := chatmodel.GetChatID(ctx)
	if err != nil {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.storage == nil {
		return nil
	}
	return m.storage[chatID]
}

func (m *inMemory) Add(ctx context.Context, msg llms.Message) error {
	chatID, err := chatmodel.GetChatID(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage == nil {
		// create on first use
		m.storage = make(map[string][]llms.Message)
	}
	m.storage[chatID] = append(m.storage[chatID], msg)
	m.touchChat(chatID)
	return nil
}

func (m *inMemory) Reset(ctx context.Context) error {
	chatID, err := chatmodel.GetChatID(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage != nil {
		delete(m.storage, chatID)
	}
	if m.chats != nil {
		delete(m.chats, chatID)
	}
	return nil
}

// touchChat ensures a ChatInfo exists and bumps its update time.
// Callers must hold the write lock.
func (m *inMemory) touchChat(chatID string) *ChatInfo {
	if m.chats == nil {
		m.chats = make(map[string]*ChatInfo)
	}
	chat, ok := m.chats[chatID]
	if !ok {
		chat = &ChatInfo{
			ChatID:    chatID,
			Title:     "New Chat",
			CreatedAt: time.Now(),
			Metadata:  make(map[string]any),
		}
		m.chats[chatID] = chat
	}
	chat.UpdatedAt = time.Now()
	return chat
}

func (m *inMemory) UpdateChat(ctx context.Context, title string, metadata map[string]any) (*ChatInfo, error) {
	chatID, err := chatmodel.GetChatID(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	chat := m.touchChat(chatID)
	if title != "" {
		chat.Title = title
	}
	for k, v := range metadata {
		chat.Metadata[k] = v
	}
	return chat, nil
}

func (m *inMemory) GetChatInfo(ctx context.Context, id string) (*ChatInfo, error) {
	chatID, err := chatmodel.GetChatID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = chatID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[id]
	if !ok {
		chat = m.touchChat(id)
	}
	out := *chat
	out.Messages = m.storage[id]
	return &out, nil
}

func (m *inMemory) ListChats(ctx context.Context) ([]string, error) {
	if _, err := chatmodel.GetChatID(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.chats))
	for id := range m.chats {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *inMemory) Cleanup(ctx context.Context, olderThan time.Duration) (uint32, error) {
	if olderThan < 0 {
		return 0, errors.New("olderThan must not be negative")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	deleted := uint32(0)
	for id, chat := range m.chats {
		if chat.UpdatedAt.Before(cutoff) {
			delete(m.chats, id)
			delete(m.storage, id)
			deleted++
		}
	}
	return deleted, nil
}
