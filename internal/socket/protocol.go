// ABOUTME: Wire envelope and payloads for the real-time channel
// ABOUTME: Room IDs are accepted as a bare string or as {roomId}

package socket

import (
	"encoding/json"
	"strings"

	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/toolgw"
)

// Client to server events.
const (
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventSendMessage = "send-message"
	EventTestPrompt  = "test-prompt"
	EventInvokeTool  = "invoke-tool"
)

// Server to client events not owned by the room manager.
const (
	EventTestPromptResult = "test-prompt-result"
	EventTestPromptError  = "test-prompt-error"
)

// Envelope is an inbound frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// TestPromptResult is the body of test-prompt-result.
type TestPromptResult struct {
	Content string `json:"content"`
}

// SendMessageRequest is the body of send-message. A non-empty
// ClientMessageID makes resends of the same frame from the same sender to the
// same room no-ops. SenderID identifies an unauthenticated sender across
// reconnects; it is ignored when the connection carries a principal.
type SendMessageRequest struct {
	conversation.SendRequest
	ClientMessageID string `json:"clientMessageId,omitempty"`
	SenderID        string `json:"senderId,omitempty"`
}

// InvokeToolRequest is the body of invoke-tool.
type InvokeToolRequest struct {
	RoomID string `json:"roomId"`
	toolgw.CallRequest
}

func encode(event string, data any) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: data})
}

func parseRoomID(data json.RawMessage) string {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var obj struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return strings.TrimSpace(obj.RoomID)
	}
	return ""
}
