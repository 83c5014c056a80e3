// ABOUTME: Builds the ordered provider input for a single user turn
// ABOUTME: Optional skills context becomes one leading system message

// Package compose turns room turns into provider messages. Everything here is
// pure: no I/O, no shared state.
package compose

import (
	"strings"

	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/llm"
)

const (
	contextHeader    = "The following skills context has been provided for this conversation:\n\n"
	contextSeparator = "\n\n---"
)

// Compose returns [system(skills)] + user. The system message is present only
// when skillsContext is non-blank.
func Compose(userContent, skillsContext string) []llm.Message {
	user := llm.UserMessage{Content: userContent}
	if strings.TrimSpace(skillsContext) == "" {
		return []llm.Message{user}
	}
	return []llm.Message{
		llm.SystemMessage{Content: contextHeader + skillsContext + contextSeparator},
		user,
	}
}

// FromRole builds the message for one role-tagged entry. name applies to
// function-result and subRole to generic-chat; both are ignored otherwise.
func FromRole(role chat.Role, content, name, subRole string) llm.Message {
	switch role {
	case chat.RoleSystem:
		return llm.SystemMessage{Content: content}
	case chat.RoleAssistant:
		return llm.AssistantMessage{Content: content}
	case chat.RoleToolResult:
		return llm.ToolResultMessage{Content: content}
	case chat.RoleFunctionResult:
		return llm.FunctionResultMessage{Content: content, Name: name}
	case chat.RoleGenericChat:
		return llm.GenericChatMessage{Content: content, SubRole: subRole}
	case chat.RoleUser:
		return llm.UserMessage{Content: content}
	default:
		return llm.UserMessage{Content: content}
	}
}
