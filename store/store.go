// Package store persists conversation history keyed by chat ID. The chat ID
// is taken from the chatmodel context.
package store

import (
	"context"
	"time"

	"github.com/effective-security/medichat/pkg/llms"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/medichat", "store")

// MessageStore keeps the message history of a chat.
type MessageStore interface {
	// Messages returns the stored history. Failures are logged and return
	// an empty history, so a broken store degrades to a fresh conversation.
	Messages(ctx context.Context) []llms.Message
	Add(ctx context.Context, msg llms.Message) error
	Reset(ctx context.Context) error
}

// ChatInfo holds metadata about one chat.
type ChatInfo struct {
	ChatID    string         `json:"chat_id"`
	Title     string         `json:"title"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	Messages []llms.Message `json:"messages,omitempty"`
}

// MessageStoreManager extends MessageStore with chat management.
type MessageStoreManager interface {
	MessageStore

	UpdateChat(ctx context.Context, title string, metadata map[string]any) (*ChatInfo, error)
	GetChatInfo(ctx context.Context, id string) (*ChatInfo, error)
	ListChats(ctx context.Context) ([]string, error)
	Cleanup(ctx context.Context, olderThan time.Duration) (uint32, error)
}
