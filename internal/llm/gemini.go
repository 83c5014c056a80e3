// ABOUTME: Google Gemini generateContent backend
// ABOUTME: Streaming uses streamGenerateContent with alt=sse

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type geminiBackend struct {
	cfg Config
	url string
}

func newGemini(cfg Config) *geminiBackend {
	return &geminiBackend{
		cfg: cfg,
		url: baseURL(cfg.BaseURL, defaultGeminiBaseURL) + "/models/" + url.PathEscape(cfg.Model),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	ModelVersion string `json:"modelVersion"`
}

// text joins the parts of the first candidate.
func (r *geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func (b *geminiBackend) Complete(ctx context.Context, messages []Message) (*Response, error) {
	payload := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			Temperature:     b.cfg.Temperature,
			MaxOutputTokens: b.cfg.MaxTokens,
		},
	}
	var system []geminiPart
	for _, m := range messages {
		role := "user"
		switch m := m.(type) {
		case SystemMessage:
			system = append(system, geminiPart{Text: m.Content})
			continue
		case AssistantMessage:
			role = "model"
		case UserMessage, ToolResultMessage, FunctionResultMessage:
		case GenericChatMessage:
			switch chatSubRole(m.SubRole) {
			case "system":
				system = append(system, geminiPart{Text: m.Content})
				continue
			case "assistant":
				role = "model"
			}
		}
		payload.Contents = append(payload.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Text()}},
		})
	}
	if len(system) > 0 {
		payload.SystemInstruction = &geminiContent{Parts: system}
	}

	headers := map[string]string{}
	if b.cfg.APIKey != "" {
		headers["x-goog-api-key"] = b.cfg.APIKey
	}

	endpoint := b.url + ":generateContent"
	if b.cfg.Streaming {
		endpoint = b.url + ":streamGenerateContent?alt=sse"
	}
	body, err := postJSON(ctx, b.cfg.HTTPClient, "gemini", endpoint, headers, payload)
	if err != nil {
		return nil, err
	}

	if !b.cfg.Streaming {
		var resp geminiResponse
		if err := decodeBody(body, "gemini", &resp); err != nil {
			return nil, err
		}
		if len(resp.Candidates) == 0 {
			return nil, fmt.Errorf("gemini: %w", ErrEmptyResponse)
		}
		return &Response{Content: resp.text(), Model: b.cfg.Model}, nil
	}

	var text strings.Builder
	err = readSSE(body, func(data string) (bool, error) {
		var chunk geminiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return false, fmt.Errorf("gemini: decoding stream chunk: %w", err)
		}
		text.WriteString(chunk.text())
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return &Response{Content: text.String(), Model: b.cfg.Model}, nil
}
