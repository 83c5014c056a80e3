// ABOUTME: Turn and Role types for room-scoped chat messages
// ABOUTME: Turn IDs are UUIDv7 so they sort in creation order

package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser           Role = "user"
	RoleSystem         Role = "system"
	RoleAssistant      Role = "assistant"
	RoleToolResult     Role = "tool-result"
	RoleFunctionResult Role = "function-result"
	RoleGenericChat    Role = "generic-chat"
)

// Roles lists every accepted role in declaration order.
var Roles = []Role{
	RoleUser,
	RoleSystem,
	RoleAssistant,
	RoleToolResult,
	RoleFunctionResult,
	RoleGenericChat,
}

// Valid reports whether r is one of the six known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleSystem, RoleAssistant, RoleToolResult, RoleFunctionResult, RoleGenericChat:
		return true
	}
	return false
}

// ParseRole normalizes a wire role tag. Unknown or empty values become RoleUser.
func ParseRole(s string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if r.Valid() {
		return r
	}
	return RoleUser
}

// Turn is one message in a room's ordered log.
type Turn struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	Role         Role      `json:"role"`
	Timestamp    time.Time `json:"timestamp"`
	AudioPayload string    `json:"audioPayload,omitempty"`
	Name         string    `json:"name,omitempty"`
	SubRole      string    `json:"subRole,omitempty"`
}

// NewTurn creates a turn with a fresh time-ordered ID and the current time.
func NewTurn(role Role, content string) Turn {
	return Turn{
		ID:        newID(),
		Content:   content,
		Role:      role,
		Timestamp: time.Now().UTC(),
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does.
		return uuid.New().String()
	}
	return id.String()
}
