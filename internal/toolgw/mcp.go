// ABOUTME: MCP-backed Dialer using mcp-go's stdio and streamable HTTP clients
// ABOUTME: Adapts client.Client to the Session interface

package toolgw

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	clientName    = "coven-chat"
	clientVersion = "0.1.0"
)

// MCPDialer opens MCP sessions over streamable HTTP or stdio.
type MCPDialer struct {
	// Env is appended to the environment of stdio servers.
	Env []string
}

// Dial starts the transport for target. On error nothing is left running.
func (d *MCPDialer) Dial(ctx context.Context, target Target) (Session, error) {
	if target.Transport() == TransportHTTP {
		c, err := client.NewStreamableHttpClient(strings.TrimSpace(target.URL))
		if err != nil {
			return nil, fmt.Errorf("creating http client: %w", err)
		}
		if err := c.Start(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("starting http transport: %w", err)
		}
		return &mcpSession{c: c}, nil
	}

	// The stdio client starts its subprocess on construction.
	c, err := client.NewStdioMCPClient(strings.TrimSpace(target.Command), d.Env, target.Args...)
	if err != nil {
		return nil, fmt.Errorf("starting stdio server: %w", err)
	}
	return &mcpSession{c: c}, nil
}

type mcpSession struct {
	c *client.Client
}

func (s *mcpSession) Initialize(ctx context.Context) (*ServerInfo, error) {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}
	res, err := s.c.Initialize(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.ServerInfo.Name == "" && res.ServerInfo.Version == "" {
		return nil, nil
	}
	return &ServerInfo{Name: res.ServerInfo.Name, Version: res.ServerInfo.Version}, nil
}

func (s *mcpSession) ListTools(ctx context.Context) ([]Capability, error) {
	res, err := s.c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	caps := make([]Capability, 0, len(res.Tools))
	for _, tool := range res.Tools {
		c := Capability{Name: tool.Name, Description: tool.Description}
		if len(tool.RawInputSchema) > 0 {
			c.InputSchema = tool.RawInputSchema
		} else if tool.InputSchema.Type != "" {
			c.InputSchema = tool.InputSchema
		}
		caps = append(caps, c)
	}
	return caps, nil
}

func (s *mcpSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return s.c.CallTool(ctx, req)
}

func (s *mcpSession) Close() error {
	return s.c.Close()
}
