// ABOUTME: Anthropic messages API backend
// ABOUTME: System turns are hoisted into the top-level system prompt

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
	defaultMaxTokens        = 4096
)

type anthropicBackend struct {
	cfg Config
	url string
}

func newAnthropic(cfg Config) *anthropicBackend {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &anthropicBackend{
		cfg: cfg,
		url: baseURL(cfg.BaseURL, defaultAnthropicBaseURL) + "/messages",
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Model   string           `json:"model"`
	Content []map[string]any `json:"content"`
}

type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (b *anthropicBackend) Complete(ctx context.Context, messages []Message) (*Response, error) {
	system, converted := convertAnthropicMessages(messages)
	payload := anthropicRequest{
		Model:       b.cfg.Model,
		MaxTokens:   b.cfg.MaxTokens,
		System:      system,
		Messages:    converted,
		Temperature: b.cfg.Temperature,
		Stream:      b.cfg.Streaming,
	}
	headers := map[string]string{"anthropic-version": anthropicVersion}
	if b.cfg.APIKey != "" {
		headers["x-api-key"] = b.cfg.APIKey
	}

	body, err := postJSON(ctx, b.cfg.HTTPClient, "anthropic", b.url, headers, payload)
	if err != nil {
		return nil, err
	}

	if !b.cfg.Streaming {
		var resp anthropicResponse
		if err := decodeBody(body, "anthropic", &resp); err != nil {
			return nil, err
		}
		if len(resp.Content) == 0 {
			return nil, fmt.Errorf("anthropic: %w", ErrEmptyResponse)
		}
		return &Response{Content: anthropicContent(resp.Content), Model: resp.Model}, nil
	}

	var text strings.Builder
	err = readSSE(body, func(data string) (bool, error) {
		var ev anthropicEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return false, fmt.Errorf("anthropic: decoding stream event: %w", err)
		}
		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Type == "text_delta" {
				text.WriteString(ev.Delta.Text)
			}
		case "error":
			msg := "unknown error"
			if ev.Error != nil {
				msg = ev.Error.Message
			}
			return false, fmt.Errorf("anthropic: stream error: %s", msg)
		case "message_stop":
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return &Response{Content: text.String(), Model: b.cfg.Model}, nil
}

// anthropicContent flattens all-text replies to a string and keeps any reply
// with non-text blocks as the structured block list.
func anthropicContent(blocks []map[string]any) any {
	var text strings.Builder
	for _, block := range blocks {
		if block["type"] != "text" {
			return blocks
		}
		s, _ := block["text"].(string)
		text.WriteString(s)
	}
	return text.String()
}

// convertAnthropicMessages splits out system text and merges consecutive
// turns from the same side so the conversation alternates.
func convertAnthropicMessages(messages []Message) (string, []anthropicMessage) {
	var system []string
	out := make([]anthropicMessage, 0, len(messages))
	for _, m := range messages {
		var role string
		switch m := m.(type) {
		case SystemMessage:
			system = append(system, m.Content)
			continue
		case AssistantMessage:
			role = "assistant"
		case UserMessage, ToolResultMessage, FunctionResultMessage:
			role = "user"
		case GenericChatMessage:
			role = chatSubRole(m.SubRole)
			if role == "system" {
				system = append(system, m.Content)
				continue
			}
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + m.Text()
			continue
		}
		out = append(out, anthropicMessage{Role: role, Content: m.Text()})
	}
	return strings.Join(system, "\n\n"), out
}
