// ABOUTME: Wire-level tests for the OpenAI, Anthropic and Gemini backends
// ABOUTME: Each vendor is faked with an httptest server in both reply modes

package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleMessages = []Message{
	SystemMessage{Content: "be brief"},
	UserMessage{Content: "Hello"},
	FunctionResultMessage{Content: "42", Name: "lookup"},
	GenericChatMessage{Content: "earlier reply", SubRole: "assistant"},
}

func newBackend(t *testing.T, kind Kind, srv *httptest.Server, streaming bool) Backend {
	t.Helper()
	temp := 0.2
	b, err := New(Config{
		Kind:        kind,
		Model:       "test-model",
		Temperature: &temp,
		Streaming:   streaming,
		BaseURL:     srv.URL,
		APIKey:      "secret",
		HTTPClient:  srv.Client(),
	})
	require.NoError(t, err)
	return b
}

func writeSSE(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, ev := range events {
		fmt.Fprintf(w, "data: %s\n\n", ev)
	}
}

func TestOpenAI_NonStreaming(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"model":"test-model","choices":[{"message":{"content":"Hi there"}}]}`)
	}))
	defer srv.Close()

	resp, err := newBackend(t, KindOpenAI, srv, false).Complete(t.Context(), sampleMessages)
	require.NoError(t, err)

	text, err := resp.Text()
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "function", got.Messages[2].Role)
	assert.Equal(t, "lookup", got.Messages[2].Name)
	assert.Equal(t, "assistant", got.Messages[3].Role)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.2, *got.Temperature, 1e-9)
}

func TestOpenAI_StreamingAggregates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		writeSSE(w,
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`[DONE]`,
		)
	}))
	defer srv.Close()

	resp, err := newBackend(t, KindOpenAI, srv, true).Complete(t.Context(), sampleMessages)
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Content)
}

func TestOpenAI_HTTPErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newBackend(t, KindOpenAI, srv, false).Complete(t.Context(), sampleMessages)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "overloaded")
}

func TestOpenAI_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	_, err := newBackend(t, KindOpenAI, srv, false).Complete(t.Context(), sampleMessages)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestAnthropic_NonStreaming(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"model":"test-model","content":[{"type":"text","text":"Hi "},{"type":"text","text":"there"}]}`)
	}))
	defer srv.Close()

	resp, err := newBackend(t, KindAnthropic, srv, false).Complete(t.Context(), sampleMessages)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", resp.Content)

	assert.Equal(t, "be brief", got.System)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 2, "consecutive user-side turns merge")
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "Hello\n\n42", got.Messages[0].Content)
	assert.Equal(t, "assistant", got.Messages[1].Role)
}

func TestAnthropic_StructuredContentSerializes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"content":[{"type":"tool_use","id":"t1","name":"search","input":{"q":"go"}}]}`)
	}))
	defer srv.Close()

	resp, err := newBackend(t, KindAnthropic, srv, false).Complete(t.Context(), sampleMessages)
	require.NoError(t, err)

	text, err := resp.Text()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"tool_use","id":"t1","name":"search","input":{"q":"go"}}]`, text)
}

func TestAnthropic_StreamingAggregates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeSSE(w,
			`{"type":"message_start"}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"Hel"}}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"lo"}}`,
			`{"type":"message_stop"}`,
		)
	}))
	defer srv.Close()

	resp, err := newBackend(t, KindAnthropic, srv, true).Complete(t.Context(), sampleMessages)
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Content)
}

func TestAnthropic_StreamErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeSSE(w, `{"type":"error","error":{"message":"overloaded_error"}}`)
	}))
	defer srv.Close()

	_, err := newBackend(t, KindAnthropic, srv, true).Complete(t.Context(), sampleMessages)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded_error")
}

func TestGemini_NonStreaming(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Hi"},{"text":" there"}]}}]}`)
	}))
	defer srv.Close()

	resp, err := newBackend(t, KindGemini, srv, false).Complete(t.Context(), sampleMessages)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", resp.Content)

	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "be brief", got.SystemInstruction.Parts[0].Text)
	require.Len(t, got.Contents, 3)
	assert.Equal(t, "user", got.Contents[0].Role)
	assert.Equal(t, "model", got.Contents[2].Role)
}

func TestGemini_StreamingAggregates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/test-model:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		writeSSE(w,
			`{"candidates":[{"content":{"parts":[{"text":"Hel"}]}}]}`,
			`{"candidates":[{"content":{"parts":[{"text":"lo"}]}}]}`,
		)
	}))
	defer srv.Close()

	resp, err := newBackend(t, KindGemini, srv, true).Complete(t.Context(), sampleMessages)
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Content)
}
