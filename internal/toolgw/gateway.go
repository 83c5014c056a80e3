// ABOUTME: Connect-per-call tool gateway: list capabilities and invoke one
// ABOUTME: Sessions are always closed before an operation returns

package toolgw

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Opaque errors returned to callers. Details go to the log only.
var (
	ErrListFailed   = errors.New("failed to list capabilities")
	ErrInvokeFailed = errors.New("failed to invoke capability")
)

// Capability is one tool advertised by a server.
type Capability struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"inputSchema,omitempty"`
}

// ServerInfo identifies the tool server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Listing is the result of ListCapabilities.
type Listing struct {
	Capabilities []Capability `json:"capabilities"`
	ServerInfo   *ServerInfo  `json:"serverInfo,omitempty"`
}

// Session is one live connection to a tool server.
type Session interface {
	Initialize(ctx context.Context) (*ServerInfo, error)
	ListTools(ctx context.Context) ([]Capability, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	Close() error
}

// Dialer opens sessions. Dial must not return a session that needs closing
// together with an error.
type Dialer interface {
	Dial(ctx context.Context, target Target) (Session, error)
}

// Gateway runs single list or call operations against tool servers.
type Gateway struct {
	dialer Dialer
	logger *slog.Logger
}

// New creates a gateway. A nil dialer uses the MCP transports.
func New(dialer Dialer, logger *slog.Logger) *Gateway {
	if dialer == nil {
		dialer = &MCPDialer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		dialer: dialer,
		logger: logger.With("component", "toolgw"),
	}
}

// ListCapabilities connects to target, lists its tools and disconnects.
func (g *Gateway) ListCapabilities(ctx context.Context, target Target) (*Listing, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	sess, err := g.dialer.Dial(ctx, target)
	if err != nil {
		g.logFailure("connect", target, "", err)
		return nil, ErrListFailed
	}
	defer g.closeSession(sess, target)

	info, err := sess.Initialize(ctx)
	if err != nil {
		g.logFailure("initialize", target, "", err)
		return nil, ErrListFailed
	}

	caps, err := sess.ListTools(ctx)
	if err != nil {
		g.logFailure("list", target, "", err)
		return nil, ErrListFailed
	}
	if caps == nil {
		caps = []Capability{}
	}

	g.logger.Debug("listed capabilities",
		"transport", target.Transport(),
		"target", target.String(),
		"count", len(caps))
	return &Listing{Capabilities: caps, ServerInfo: info}, nil
}

// InvokeCapability connects to target, calls the named tool and disconnects.
// The name is checked before any connection is made.
func (g *Gateway) InvokeCapability(ctx context.Context, target Target, name string, args map[string]any) (*mcp.CallToolResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Message: "capabilityName is required"}
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	sess, err := g.dialer.Dial(ctx, target)
	if err != nil {
		g.logFailure("connect", target, name, err)
		return nil, ErrInvokeFailed
	}
	defer g.closeSession(sess, target)

	if _, err := sess.Initialize(ctx); err != nil {
		g.logFailure("initialize", target, name, err)
		return nil, ErrInvokeFailed
	}

	result, err := sess.CallTool(ctx, name, args)
	if err != nil {
		g.logFailure("call", target, name, err)
		return nil, ErrInvokeFailed
	}
	if result == nil {
		result = &mcp.CallToolResult{}
	}
	return result, nil
}

func (g *Gateway) closeSession(sess Session, target Target) {
	if err := sess.Close(); err != nil {
		g.logger.Warn("closing tool session",
			"transport", target.Transport(),
			"target", target.String(),
			"error", err)
	}
}

func (g *Gateway) logFailure(stage string, target Target, capability string, err error) {
	g.logger.Error("tool gateway operation failed",
		"stage", stage,
		"transport", target.Transport(),
		"target", target.String(),
		"capability", capability,
		"error", err)
}

// ResultText flattens a call result into text. All-text results are joined
// with newlines; anything else, including text that is entirely blank, is
// serialized as JSON so a successful call never flattens to "".
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	if text, ok := textOnly(result.Content); ok && strings.TrimSpace(text) != "" {
		return text
	}
	data, err := json.Marshal(result)
	if err != nil {
		return ""
	}
	return string(data)
}

func textOnly(content []mcp.Content) (string, bool) {
	if len(content) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch tc := c.(type) {
		case mcp.TextContent:
			parts = append(parts, tc.Text)
		case *mcp.TextContent:
			parts = append(parts, tc.Text)
		default:
			return "", false
		}
	}
	return strings.Join(parts, "\n"), true
}
