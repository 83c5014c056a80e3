// ABOUTME: Sealed message sum type covering the six chat roles
// ABOUTME: Vendor adapters switch over these concrete types exhaustively

package llm

import "github.com/2389/coven-chat/internal/chat"

// Message is one entry in the ordered input sent to a backend.
// Only the types in this file implement it.
type Message interface {
	Role() chat.Role
	Text() string
	sealed()
}

type UserMessage struct{ Content string }

type SystemMessage struct{ Content string }

type AssistantMessage struct{ Content string }

type ToolResultMessage struct{ Content string }

// FunctionResultMessage carries the output of a named function.
type FunctionResultMessage struct {
	Content string
	Name    string
}

// GenericChatMessage is a chat turn whose speaker is described by SubRole.
type GenericChatMessage struct {
	Content string
	SubRole string
}

func (UserMessage) Role() chat.Role           { return chat.RoleUser }
func (SystemMessage) Role() chat.Role         { return chat.RoleSystem }
func (AssistantMessage) Role() chat.Role      { return chat.RoleAssistant }
func (ToolResultMessage) Role() chat.Role     { return chat.RoleToolResult }
func (FunctionResultMessage) Role() chat.Role { return chat.RoleFunctionResult }
func (GenericChatMessage) Role() chat.Role    { return chat.RoleGenericChat }

func (m UserMessage) Text() string           { return m.Content }
func (m SystemMessage) Text() string         { return m.Content }
func (m AssistantMessage) Text() string      { return m.Content }
func (m ToolResultMessage) Text() string     { return m.Content }
func (m FunctionResultMessage) Text() string { return m.Content }
func (m GenericChatMessage) Text() string    { return m.Content }

func (UserMessage) sealed()           {}
func (SystemMessage) sealed()         {}
func (AssistantMessage) sealed()      {}
func (ToolResultMessage) sealed()     {}
func (FunctionResultMessage) sealed() {}
func (GenericChatMessage) sealed()    {}
