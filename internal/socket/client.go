// ABOUTME: One WebSocket connection: read and write pumps plus event handlers
// ABOUTME: Implements room.Member with a bounded, non-blocking send queue

package socket

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/room"
	"github.com/2389/coven-chat/internal/toolgw"
	"github.com/gorilla/websocket"
)

type client struct {
	srv       *Server
	conn      *websocket.Conn
	id        string
	principal string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

func newClient(srv *Server, conn *websocket.Conn, id, principal string) *client {
	return &client{
		srv:       srv,
		conn:      conn,
		id:        id,
		principal: principal,
		send:      make(chan []byte, srv.cfg.SendBuffer),
		done:      make(chan struct{}),
		logger:    srv.logger.With("conn_id", id, "principal", principal),
	}
}

func (c *client) ID() string { return c.id }

// Send queues ev for the write pump. It never blocks: a full queue or a
// closed connection drops the event.
func (c *client) Send(ev room.Event) bool {
	return c.emit(ev.Name, ev.Payload)
}

func (c *client) emit(event string, data any) bool {
	frame, err := encode(event, data)
	if err != nil {
		c.logger.Error("encoding event", "event", event, "error", err)
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn("send queue full, dropping event", "event", event)
		return false
	}
}

func (c *client) sendError(message string) {
	c.emit(room.EventError, room.ErrorPayload{Message: message})
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *client) readPump(ctx context.Context) {
	pongWait := 2 * c.srv.cfg.PingInterval
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			c.sendError("invalid message")
			continue
		}
		c.handle(ctx, env)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.srv.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *client) handle(ctx context.Context, env Envelope) {
	switch env.Event {
	case EventJoinRoom:
		roomID := parseRoomID(env.Data)
		if roomID == "" {
			c.sendError("roomId is required")
			return
		}
		c.srv.rooms.Join(c, roomID)
	case EventLeaveRoom:
		roomID := parseRoomID(env.Data)
		if roomID == "" {
			c.sendError("roomId is required")
			return
		}
		c.srv.rooms.Leave(c.id, roomID)
	case EventSendMessage:
		var req SendMessageRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			c.sendError("invalid send-message payload")
			return
		}
		if req.ClientMessageID != "" && c.srv.seen.Seen(c.resendKey(req)) {
			c.logger.Debug("dropping resent message", "room_id", req.RoomID, "client_message_id", req.ClientMessageID)
			return
		}
		c.sendMessage(ctx, req.SendRequest)
	case EventTestPrompt:
		var req conversation.TestRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			c.emit(EventTestPromptError, room.ErrorPayload{Message: "invalid test-prompt payload"})
			return
		}
		go c.testPrompt(ctx, req)
	case EventInvokeTool:
		var req InvokeToolRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			c.sendError("invalid invoke-tool payload")
			return
		}
		if strings.TrimSpace(req.RoomID) == "" {
			c.sendError("roomId is required")
			return
		}
		if c.srv.tools == nil {
			c.sendError("tool gateway is not available")
			return
		}
		go c.invokeTool(ctx, req)
	default:
		c.sendError("unknown event: " + env.Event)
	}
}

// resendKey identifies a send-message frame for resend suppression. It is
// scoped to the sender and includes a digest of the turn, so two different
// messages never share a key even when their clientMessageIds collide.
func (c *client) resendKey(req SendMessageRequest) string {
	sender := c.principal
	if sender == "" {
		sender = strings.TrimSpace(req.SenderID)
	}
	if sender == "" {
		sender = "conn:" + c.id
	}
	digest := sha256.Sum256([]byte(req.Role + "\x00" + req.Name + "\x00" + req.Content))
	return strings.Join([]string{
		sender,
		strings.TrimSpace(req.RoomID),
		req.ClientMessageID,
		hex.EncodeToString(digest[:]),
	}, "\x00")
}

func (c *client) sendMessage(ctx context.Context, req conversation.SendRequest) {
	if _, err := c.srv.orch.Send(ctx, req); err != nil {
		var verr *conversation.ValidationError
		if errors.As(err, &verr) {
			c.sendError(verr.Message)
			return
		}
		c.logger.Error("send-message failed", "room_id", req.RoomID, "error", err)
		c.sendError(conversation.FailureMessage)
	}
}

func (c *client) testPrompt(ctx context.Context, req conversation.TestRequest) {
	content, err := c.srv.orch.TestPrompt(ctx, req)
	if err != nil {
		c.emit(EventTestPromptError, room.ErrorPayload{Message: err.Error()})
		return
	}
	c.emit(EventTestPromptResult, TestPromptResult{Content: content})
}

// invokeTool calls the capability and injects the result into the room as
// a tool-result turn. Failures go to the requester only.
func (c *client) invokeTool(ctx context.Context, req InvokeToolRequest) {
	result, err := c.srv.tools.InvokeCapability(ctx, req.Target(), req.CapabilityName, req.CapabilityArgs)
	if err != nil {
		// Gateway errors are either validation messages or opaque.
		c.sendError(err.Error())
		return
	}

	c.sendMessage(ctx, conversation.SendRequest{
		RoomID:  req.RoomID,
		Content: toolgw.ResultText(result),
		Role:    string(chat.RoleToolResult),
		Name:    req.CapabilityName,
	})
}
