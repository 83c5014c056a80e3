// ABOUTME: End-to-end tests for the WebSocket channel over httptest
// ABOUTME: Uses a real orchestrator and room manager with fake provider and tools

package socket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/2389/coven-chat/internal/auth"
	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/llm"
	"github.com/2389/coven-chat/internal/room"
	"github.com/2389/coven-chat/internal/toolgw"
	"github.com/gorilla/websocket"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	reply string
	err   error
}

func (f fakeProvider) Invoke(_ context.Context, _ llm.Selection, _ []llm.Message) (*llm.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.reply}, nil
}

type fakeTools struct {
	result *mcp.CallToolResult
	err    error
	calls  atomic.Int32
}

func (f *fakeTools) InvokeCapability(_ context.Context, target toolgw.Target, name string, _ map[string]any) (*mcp.CallToolResult, error) {
	f.calls.Add(1)
	if strings.TrimSpace(name) == "" {
		return nil, &toolgw.ValidationError{Message: "capabilityName is required"}
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type harness struct {
	srv   *Server
	rooms *room.Manager
	orch  *conversation.Orchestrator
	url   string
}

func newHarness(t *testing.T, provider conversation.Invoker, tools ToolInvoker) *harness {
	t.Helper()

	rooms := room.NewManager(nil)
	orch := conversation.NewOrchestrator(rooms, provider)
	srv := NewServer(rooms, orch, tools, Config{}, nil)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		orch.Wait()
		ts.Close()
	})

	return &harness{
		srv:   srv,
		rooms: rooms,
		orch:  orch,
		url:   "ws" + strings.TrimPrefix(ts.URL, "http"),
	}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (h *harness) joined(t *testing.T, roomID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(h.rooms.Members(roomID)) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func emit(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(outbound{Event: event, Data: data}))
}

func next(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func nextTurn(t *testing.T, conn *websocket.Conn) chat.Turn {
	t.Helper()
	env := next(t, conn)
	require.Equal(t, room.EventReceiveMessage, env.Event)
	var turn chat.Turn
	require.NoError(t, json.Unmarshal(env.Data, &turn))
	return turn
}

func nextMessage(t *testing.T, conn *websocket.Conn, event string) string {
	t.Helper()
	env := next(t, conn)
	require.Equal(t, event, env.Event)
	var payload room.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	return payload.Message
}

func assertSilent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "expected no frame")
}

func TestServer_SendMessageEchoThenReply(t *testing.T) {
	h := newHarness(t, fakeProvider{reply: "hello back"}, nil)
	conn := h.dial(t)

	emit(t, conn, EventJoinRoom, "r1")
	emit(t, conn, EventSendMessage, map[string]string{
		"roomId": "r1", "content": "hello", "role": "user",
	})

	echo := nextTurn(t, conn)
	assert.Equal(t, chat.RoleUser, echo.Role)
	assert.Equal(t, "hello", echo.Content)
	assert.NotEmpty(t, echo.ID)

	reply := nextTurn(t, conn)
	assert.Equal(t, chat.RoleAssistant, reply.Role)
	assert.Equal(t, "hello back", reply.Content)
}

func TestServer_JoinAcceptsObjectPayload(t *testing.T) {
	h := newHarness(t, fakeProvider{reply: "ok"}, nil)
	conn := h.dial(t)

	emit(t, conn, EventJoinRoom, map[string]string{"roomId": "r1"})
	h.joined(t, "r1", 1)
}

func TestServer_RoomFanOut(t *testing.T) {
	h := newHarness(t, fakeProvider{reply: "unused"}, nil)
	a := h.dial(t)
	b := h.dial(t)
	outsider := h.dial(t)

	emit(t, a, EventJoinRoom, "r1")
	emit(t, b, EventJoinRoom, "r1")
	emit(t, outsider, EventJoinRoom, "r2")
	h.joined(t, "r1", 2)
	h.joined(t, "r2", 1)

	emit(t, a, EventSendMessage, map[string]string{
		"roomId": "r1", "content": "be brief", "role": "system",
	})

	for _, conn := range []*websocket.Conn{a, b} {
		turn := nextTurn(t, conn)
		assert.Equal(t, chat.RoleSystem, turn.Role)
		assert.Equal(t, "be brief", turn.Content)
	}
	assertSilent(t, outsider)
}

func TestServer_ResentMessageIsDropped(t *testing.T) {
	h := newHarness(t, fakeProvider{reply: "unused"}, nil)
	conn := h.dial(t)

	emit(t, conn, EventJoinRoom, "r1")
	emit(t, conn, EventJoinRoom, "r2")
	h.joined(t, "r1", 1)
	h.joined(t, "r2", 1)

	frame := map[string]string{
		"roomId": "r1", "content": "note", "role": "system", "clientMessageId": "m-1",
	}
	emit(t, conn, EventSendMessage, frame)
	assert.Equal(t, "note", nextTurn(t, conn).Content)

	// the same id in another room is a different message
	frame["roomId"] = "r2"
	emit(t, conn, EventSendMessage, frame)
	assert.Equal(t, "note", nextTurn(t, conn).Content)

	// frames without an id are never deduplicated
	for range 2 {
		emit(t, conn, EventSendMessage, map[string]string{
			"roomId": "r1", "content": "again", "role": "system",
		})
		assert.Equal(t, "again", nextTurn(t, conn).Content)
	}

	// last, since a read timeout ends the connection; the room id is
	// trimmed before matching, as the orchestrator trims it
	frame["roomId"] = " r1 "
	emit(t, conn, EventSendMessage, frame)
	assertSilent(t, conn)
}

func TestServer_ClientMessageIDIsScopedToSender(t *testing.T) {
	h := newHarness(t, fakeProvider{reply: "unused"}, nil)
	a := h.dial(t)
	b := h.dial(t)

	emit(t, a, EventJoinRoom, "r1")
	emit(t, b, EventJoinRoom, "r1")
	h.joined(t, "r1", 2)

	send := func(conn *websocket.Conn, content string) {
		emit(t, conn, EventSendMessage, map[string]string{
			"roomId": "r1", "content": content, "role": "system", "clientMessageId": "1",
		})
		for _, member := range []*websocket.Conn{a, b} {
			assert.Equal(t, content, nextTurn(t, member).Content)
		}
	}

	send(a, "from A")
	// b counts its ids from 1 as well
	send(b, "from B")
	// same id and content from another connection is still a new message
	send(b, "from A")
	// a reusing an id for a different message is not a resend
	send(a, "from A, edited")

	emit(t, a, EventSendMessage, map[string]string{
		"roomId": "r1", "content": "from A", "role": "system", "clientMessageId": "1",
	})
	assertSilent(t, b)
}

func TestServer_ResendAfterReconnectMatchesSenderID(t *testing.T) {
	h := newHarness(t, fakeProvider{reply: "unused"}, nil)
	frame := map[string]string{
		"roomId": "r1", "content": "note", "role": "system",
		"clientMessageId": "m-1", "senderId": "browser-7",
	}

	first := h.dial(t)
	emit(t, first, EventJoinRoom, "r1")
	h.joined(t, "r1", 1)
	emit(t, first, EventSendMessage, frame)
	assert.Equal(t, "note", nextTurn(t, first).Content)
	require.NoError(t, first.Close())
	h.joined(t, "r1", 0)

	second := h.dial(t)
	emit(t, second, EventJoinRoom, "r1")
	h.joined(t, "r1", 1)

	other := map[string]string{}
	for k, v := range frame {
		other[k] = v
	}
	other["senderId"] = "browser-8"
	emit(t, second, EventSendMessage, other)
	assert.Equal(t, "note", nextTurn(t, second).Content)

	emit(t, second, EventSendMessage, frame)
	assertSilent(t, second)
}

func TestServer_ValidationErrorIsUnicast(t *testing.T) {
	h := newHarness(t, fakeProvider{reply: "unused"}, nil)
	a := h.dial(t)
	b := h.dial(t)

	emit(t, a, EventJoinRoom, "r1")
	emit(t, b, EventJoinRoom, "r1")
	h.joined(t, "r1", 2)

	emit(t, a, EventSendMessage, map[string]string{"roomId": "r1", "content": "  "})

	assert.Equal(t, "content is required", nextMessage(t, a, room.EventError))
	assertSilent(t, b)
}

func TestServer_ProviderFailureBroadcastsError(t *testing.T) {
	h := newHarness(t, fakeProvider{err: errors.New("upstream down")}, nil)
	a := h.dial(t)
	b := h.dial(t)

	emit(t, a, EventJoinRoom, "r1")
	emit(t, b, EventJoinRoom, "r1")
	h.joined(t, "r1", 2)

	emit(t, a, EventSendMessage, map[string]string{"roomId": "r1", "content": "hi", "role": "user"})

	for _, conn := range []*websocket.Conn{a, b} {
		nextTurn(t, conn)
		assert.Equal(t, conversation.FailureMessage, nextMessage(t, conn, room.EventError))
	}
}

func TestServer_TestPrompt(t *testing.T) {
	h := newHarness(t, fakeProvider{reply: "direct answer"}, nil)
	conn := h.dial(t)

	emit(t, conn, EventTestPrompt, map[string]string{"prompt": "2+2?", "role": "user"})

	env := next(t, conn)
	require.Equal(t, EventTestPromptResult, env.Event)
	var result TestPromptResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "direct answer", result.Content)
}

func TestServer_TestPromptErrors(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		h := newHarness(t, fakeProvider{reply: "unused"}, nil)
		conn := h.dial(t)

		emit(t, conn, EventTestPrompt, map[string]string{})
		assert.Equal(t, "messages array or prompt and role are required",
			nextMessage(t, conn, EventTestPromptError))
	})

	t.Run("provider", func(t *testing.T) {
		h := newHarness(t, fakeProvider{err: errors.New("rate limited")}, nil)
		conn := h.dial(t)

		emit(t, conn, EventTestPrompt, map[string]any{
			"messages": []map[string]string{{"role": "user", "content": "hi"}},
		})
		assert.Equal(t, "rate limited", nextMessage(t, conn, EventTestPromptError))
	})
}

func TestServer_TestPromptDoesNotTouchRooms(t *testing.T) {
	h := newHarness(t, fakeProvider{reply: "direct"}, nil)
	tester := h.dial(t)
	member := h.dial(t)

	emit(t, member, EventJoinRoom, "r1")
	emit(t, tester, EventJoinRoom, "r1")
	h.joined(t, "r1", 2)

	emit(t, tester, EventTestPrompt, map[string]string{"prompt": "hi", "role": "user"})
	assert.Equal(t, EventTestPromptResult, next(t, tester).Event)
	assertSilent(t, member)
}

func TestServer_InvokeToolInjectsResult(t *testing.T) {
	tools := &fakeTools{result: &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent("42")},
	}}
	h := newHarness(t, fakeProvider{reply: "unused"}, tools)
	a := h.dial(t)
	b := h.dial(t)

	emit(t, a, EventJoinRoom, "r1")
	emit(t, b, EventJoinRoom, "r1")
	h.joined(t, "r1", 2)

	emit(t, a, EventInvokeTool, map[string]any{
		"roomId":         "r1",
		"url":            "http://tools.example/mcp",
		"capabilityName": "answer",
	})

	for _, conn := range []*websocket.Conn{a, b} {
		turn := nextTurn(t, conn)
		assert.Equal(t, chat.RoleToolResult, turn.Role)
		assert.Equal(t, "42", turn.Content)
		assert.Equal(t, "answer", turn.Name)
	}
	// tool-result turns are never dispatched to a provider
	assertSilent(t, b)
}

func TestServer_InvokeToolBlankResultIsStillInjected(t *testing.T) {
	tools := &fakeTools{result: &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent("")},
	}}
	h := newHarness(t, fakeProvider{reply: "unused"}, tools)
	conn := h.dial(t)

	emit(t, conn, EventJoinRoom, "r1")
	h.joined(t, "r1", 1)

	emit(t, conn, EventInvokeTool, map[string]any{
		"roomId":         "r1",
		"url":            "http://tools.example/mcp",
		"capabilityName": "noop",
	})

	turn := nextTurn(t, conn)
	assert.Equal(t, chat.RoleToolResult, turn.Role)
	assert.Equal(t, "noop", turn.Name)
	assert.Contains(t, turn.Content, `"content"`)
	// no "content is required" error follows
	assertSilent(t, conn)
}

func TestServer_InvokeToolErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		err     error
		want    string
		invoked bool
	}{
		{
			name:    "missing room",
			payload: map[string]any{"url": "http://tools.example/mcp", "capabilityName": "x"},
			want:    "roomId is required",
		},
		{
			name:    "missing capability",
			payload: map[string]any{"roomId": "r1", "url": "http://tools.example/mcp"},
			want:    "capabilityName is required",
			invoked: true,
		},
		{
			name:    "bad target",
			payload: map[string]any{"roomId": "r1", "url": "ftp://tools.example", "capabilityName": "x"},
			want:    "URL must use http or https",
			invoked: true,
		},
		{
			name:    "server failure",
			payload: map[string]any{"roomId": "r1", "url": "http://tools.example/mcp", "capabilityName": "x"},
			err:     toolgw.ErrInvokeFailed,
			want:    toolgw.ErrInvokeFailed.Error(),
			invoked: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tools := &fakeTools{err: tt.err}
			h := newHarness(t, fakeProvider{reply: "unused"}, tools)
			a := h.dial(t)
			b := h.dial(t)

			emit(t, a, EventJoinRoom, "r1")
			emit(t, b, EventJoinRoom, "r1")
			h.joined(t, "r1", 2)

			emit(t, a, EventInvokeTool, tt.payload)
			assert.Equal(t, tt.want, nextMessage(t, a, room.EventError))
			assertSilent(t, b)
			assert.Equal(t, tt.invoked, tools.calls.Load() > 0)
		})
	}
}

func TestServer_InvokeToolWithoutGateway(t *testing.T) {
	h := newHarness(t, fakeProvider{reply: "unused"}, nil)
	conn := h.dial(t)

	emit(t, conn, EventInvokeTool, map[string]any{
		"roomId": "r1", "url": "http://tools.example/mcp", "capabilityName": "x",
	})
	assert.Equal(t, "tool gateway is not available", nextMessage(t, conn, room.EventError))
}

func TestServer_LeaveRoomStopsDelivery(t *testing.T) {
	h := newHarness(t, fakeProvider{reply: "unused"}, nil)
	a := h.dial(t)
	b := h.dial(t)

	emit(t, a, EventJoinRoom, "r1")
	emit(t, b, EventJoinRoom, "r1")
	h.joined(t, "r1", 2)

	emit(t, b, EventLeaveRoom, "r1")
	emit(t, b, EventLeaveRoom, "r1")
	h.joined(t, "r1", 1)

	emit(t, a, EventSendMessage, map[string]string{"roomId": "r1", "content": "note", "role": "system"})
	nextTurn(t, a)
	assertSilent(t, b)
}

func TestServer_DisconnectLeavesAllRooms(t *testing.T) {
	h := newHarness(t, fakeProvider{reply: "unused"}, nil)
	conn := h.dial(t)

	emit(t, conn, EventJoinRoom, "r1")
	emit(t, conn, EventJoinRoom, "r2")
	h.joined(t, "r1", 1)
	h.joined(t, "r2", 1)
	assert.Equal(t, 1, h.srv.Connections())

	require.NoError(t, conn.Close())

	h.joined(t, "r1", 0)
	h.joined(t, "r2", 0)
	require.Eventually(t, func() bool { return h.srv.Connections() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestServer_MalformedFrames(t *testing.T) {
	h := newHarness(t, fakeProvider{reply: "unused"}, nil)
	conn := h.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, "invalid message", nextMessage(t, conn, room.EventError))

	emit(t, conn, "dance", nil)
	assert.Equal(t, "unknown event: dance", nextMessage(t, conn, room.EventError))

	emit(t, conn, EventJoinRoom, "  ")
	assert.Equal(t, "roomId is required", nextMessage(t, conn, room.EventError))
}

func TestServer_CloseRejectsNewConnections(t *testing.T) {
	h := newHarness(t, fakeProvider{reply: "unused"}, nil)
	conn := h.dial(t)

	h.srv.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	_, resp, err := websocket.DefaultDialer.Dial(h.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_PrincipalFromAuthMiddleware(t *testing.T) {
	rooms := room.NewManager(nil)
	orch := conversation.NewOrchestrator(rooms, fakeProvider{reply: "ok"})
	srv := NewServer(rooms, orch, nil, Config{}, nil)
	verifier := auth.NewJWTVerifier([]byte("0123456789abcdef0123456789abcdef"))
	ts := httptest.NewServer(auth.Middleware(verifier)(srv))
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	url := "ws" + strings.TrimPrefix(ts.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := verifier.Generate("alice", time.Hour)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		var principals []string
		for _, c := range srv.clients {
			principals = append(principals, c.principal)
		}
		return len(principals) == 1 && principals[0] == "alice"
	}, 2*time.Second, 10*time.Millisecond)
}
