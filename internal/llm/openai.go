// ABOUTME: OpenAI-compatible chat completions backend
// ABOUTME: Streaming replies are aggregated from SSE deltas into one Response

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/2389/coven-chat/internal/chat"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

type openAIBackend struct {
	cfg Config
	url string
}

func newOpenAI(cfg Config) *openAIBackend {
	return &openAIBackend{
		cfg: cfg,
		url: baseURL(cfg.BaseURL, defaultOpenAIBaseURL) + "/chat/completions",
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (b *openAIBackend) Complete(ctx context.Context, messages []Message) (*Response, error) {
	payload := openAIRequest{
		Model:       b.cfg.Model,
		Messages:    convertOpenAIMessages(messages),
		Temperature: b.cfg.Temperature,
		MaxTokens:   b.cfg.MaxTokens,
		Stream:      b.cfg.Streaming,
	}
	headers := map[string]string{}
	if b.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + b.cfg.APIKey
	}

	body, err := postJSON(ctx, b.cfg.HTTPClient, "openai", b.url, headers, payload)
	if err != nil {
		return nil, err
	}

	if !b.cfg.Streaming {
		var resp openAIResponse
		if err := decodeBody(body, "openai", &resp); err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil {
			return nil, fmt.Errorf("openai: %w", ErrEmptyResponse)
		}
		return &Response{Content: *resp.Choices[0].Message.Content, Model: resp.Model}, nil
	}

	var text strings.Builder
	model := b.cfg.Model
	err = readSSE(body, func(data string) (bool, error) {
		if data == "[DONE]" {
			return true, nil
		}
		var chunk openAIChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return false, fmt.Errorf("openai: decoding stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return false, fmt.Errorf("openai: stream error: %s", chunk.Error.Message)
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		for _, c := range chunk.Choices {
			text.WriteString(c.Delta.Content)
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return &Response{Content: text.String(), Model: model}, nil
}

func convertOpenAIMessages(messages []Message) []openAIMessage {
	out := make([]openAIMessage, 0, len(messages))
	for _, m := range messages {
		msg := openAIMessage{Content: m.Text()}
		switch m := m.(type) {
		case UserMessage:
			msg.Role = "user"
		case SystemMessage:
			msg.Role = "system"
		case AssistantMessage:
			msg.Role = "assistant"
		case ToolResultMessage:
			msg.Role = "function"
			msg.Name = "tool"
		case FunctionResultMessage:
			msg.Role = "function"
			msg.Name = m.Name
			if msg.Name == "" {
				msg.Name = "function"
			}
		case GenericChatMessage:
			msg.Role = chatSubRole(m.SubRole)
		}
		out = append(out, msg)
	}
	return out
}

// chatSubRole maps a generic-chat speaker onto a role every vendor accepts.
func chatSubRole(subRole string) string {
	switch chat.Role(strings.ToLower(strings.TrimSpace(subRole))) {
	case chat.RoleAssistant:
		return "assistant"
	case chat.RoleSystem:
		return "system"
	default:
		return "user"
	}
}
