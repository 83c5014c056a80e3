// ABOUTME: Backend configuration, factory, and shared HTTP/SSE plumbing
// ABOUTME: Vendor adapters live in openai.go, anthropic.go and gemini.go

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Kind names a vendor wire protocol.
type Kind string

const (
	KindOpenAI    Kind = "openai"
	KindAnthropic Kind = "anthropic"
	KindGemini    Kind = "gemini"
)

// ErrUnknownKind is returned by New for an unsupported backend kind.
var ErrUnknownKind = errors.New("unknown backend kind")

// Config describes one concrete backend.
type Config struct {
	Kind        Kind
	Model       string
	Temperature *float64 // nil leaves the vendor default
	Streaming   bool
	BaseURL     string
	APIKey      string
	MaxTokens   int
	HTTPClient  *http.Client
}

// New builds a Backend for cfg.Kind.
func New(cfg Config) (Backend, error) {
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	switch cfg.Kind {
	case KindOpenAI:
		return newOpenAI(cfg), nil
	case KindAnthropic:
		return newAnthropic(cfg), nil
	case KindGemini:
		return newGemini(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// CriticConfig derives the critic variant of cfg: fixed low temperature,
// never streaming.
func CriticConfig(cfg Config) Config {
	t := 0.1
	cfg.Temperature = &t
	cfg.Streaming = false
	return cfg
}

func baseURL(configured, fallback string) string {
	if configured == "" {
		return fallback
	}
	return strings.TrimRight(configured, "/")
}

// postJSON sends payload and returns the response body for a 2xx reply.
// The caller closes the body.
func postJSON(ctx context.Context, client *http.Client, vendor, url string, headers map[string]string, payload any) (io.ReadCloser, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("%s: marshal payload: %w", vendor, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, buf)
	if err != nil {
		return nil, fmt.Errorf("%s: building request: %w", vendor, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", vendor, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s: %s: %s", vendor, resp.Status, bytes.TrimSpace(data))
	}
	return resp.Body, nil
}

// decodeBody decodes a non-streaming JSON reply and closes body.
func decodeBody(body io.ReadCloser, vendor string, v any) error {
	defer body.Close()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%s: decoding response: %w", vendor, err)
	}
	return nil
}

// readSSE calls fn with the payload of every "data:" line until fn reports
// done, the stream ends, or an error occurs. body is always closed.
func readSSE(body io.ReadCloser, fn func(data string) (done bool, err error)) error {
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 512*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		done, err := fn(data)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return scanner.Err()
}
