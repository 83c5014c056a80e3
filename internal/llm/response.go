// ABOUTME: Aggregated backend response and its string coercion
// ABOUTME: Structured payloads are serialized to JSON text on demand

package llm

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned when a backend produced no usable content.
var ErrEmptyResponse = errors.New("empty response from model")

// Response is the final message returned by a backend.
// Content is either a string or a structured payload.
type Response struct {
	Content any
	Model   string
}

// Text returns Content as a string, serializing structured payloads as JSON.
func (r *Response) Text() (string, error) {
	if r == nil || r.Content == nil {
		return "", ErrEmptyResponse
	}
	switch c := r.Content.(type) {
	case string:
		return c, nil
	case []byte:
		return string(c), nil
	case fmt.Stringer:
		return c.String(), nil
	}
	data, err := json.Marshal(r.Content)
	if err != nil {
		return "", fmt.Errorf("serializing response content: %w", err)
	}
	return string(data), nil
}
