// ABOUTME: Store interface and conversation model
// ABOUTME: Title derivation for lazily named conversations

package store

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/2389/coven-chat/internal/chat"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateTurn is returned when a turn ID is saved twice
var ErrDuplicateTurn = errors.New("turn already exists")

// maxTitleRunes bounds derived conversation titles.
const maxTitleRunes = 60

// Conversation is the durable side of a room.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists conversations and turns.
type Store interface {
	// SaveTurn appends turn to conversationID, creating the conversation if
	// needed and naming it from the first user turn.
	SaveTurn(ctx context.Context, conversationID string, turn chat.Turn) error

	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversations returns the most recently active conversations first.
	ListConversations(ctx context.Context, limit int) ([]*Conversation, error)

	// ListTurns returns up to limit of the latest turns in chronological
	// order. limit <= 0 returns all of them.
	ListTurns(ctx context.Context, conversationID string, limit int) ([]chat.Turn, error)

	Close() error
}

// Title derives a conversation title from user content: the first non-blank
// line, trimmed and cut to maxTitleRunes.
func Title(content string) string {
	for line := range strings.SplitSeq(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > maxTitleRunes {
			line = strings.TrimSpace(string([]rune(line)[:maxTitleRunes]))
		}
		return line
	}
	return ""
}
