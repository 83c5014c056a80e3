// ABOUTME: Session-less test prompt path: one provider call, reply returned directly
// ABOUTME: No room, no broadcast, no persistence

package conversation

import (
	"context"
	"strings"

	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/compose"
	"github.com/2389/coven-chat/internal/llm"
)

// TestMessage is one role-tagged entry of a test prompt.
type TestMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
	SubRole string `json:"subRole,omitempty"`
}

// TestRequest is either an explicit message list or a single prompt and role.
// Messages win when both are present.
type TestRequest struct {
	Messages []TestMessage `json:"messages,omitempty"`
	Prompt   string        `json:"prompt,omitempty"`
	Role     string        `json:"role,omitempty"`
	Provider string        `json:"provider,omitempty"`
}

// messages converts the request into provider input.
func (r TestRequest) messages() ([]llm.Message, error) {
	if len(r.Messages) > 0 {
		out := make([]llm.Message, 0, len(r.Messages))
		for _, m := range r.Messages {
			out = append(out, compose.FromRole(chat.ParseRole(m.Role), m.Content, m.Name, m.SubRole))
		}
		return out, nil
	}
	if strings.TrimSpace(r.Prompt) == "" || strings.TrimSpace(r.Role) == "" {
		return nil, &ValidationError{Message: "messages array or prompt and role are required"}
	}
	return []llm.Message{compose.FromRole(chat.ParseRole(r.Role), r.Prompt, "", "")}, nil
}

// TestPrompt invokes the provider once and returns the reply text.
func (o *Orchestrator) TestPrompt(ctx context.Context, req TestRequest) (string, error) {
	messages, err := req.messages()
	if err != nil {
		return "", err
	}

	sel := llm.ParseSelection(req.Provider)
	resp, err := o.provider.Invoke(ctx, sel, messages)
	if err != nil {
		o.logger.Warn("test prompt failed", "provider", sel, "error", err)
		return "", err
	}
	return resp.Text()
}
