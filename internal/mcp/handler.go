package mcp

import (
	"context"
	"encoding/json"

	"bbmcp/server/internal/jsonrpc"
	"bbmcp/server/internal/modules"
)

const (
	serverName      = "bitbucket-dc-mcp"
	serverVersion   = "0.1.0"
	protocolVersion = "2025-03-26"
)

// Handler routes MCP protocol methods to the module registry.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// ProcessRequest routes a JSON-RPC request to the appropriate handler.
// Called by the transport layer (HTTP middleware or stdio loop).
func (h *Handler) ProcessRequest(ctx context.Context, req *jsonrpc.Request) (interface{}, *jsonrpc.Error) {
	switch req.Method {
	case "initialize":
		return h.handleInitialize(), nil
	case "initialized", "notifications/initialized":
		return nil, nil
	case "tools/list":
		return h.handleToolsList(), nil
	case "tools/call":
		return h.handleToolCall(ctx, req)
	case "ping":
		return map[string]any{}, nil
	default:
		return nil, &jsonrpc.Error{Code: MethodNotFound, Message: "Method not found"}
	}
}

func (h *Handler) handleInitialize() *InitializeResult {
	return &InitializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{},
		},
		ServerInfo: ServerInfo{
			Name:    serverName,
			Version: serverVersion,
		},
	}
}

func (h *Handler) handleToolsList() *ToolsListResult {
	return &ToolsListResult{Tools: modules.AllTools()}
}

func (h *Handler) handleToolCall(ctx context.Context, req *jsonrpc.Request) (*ToolCallResult, *jsonrpc.Error) {
	paramsBytes, err := json.Marshal(req.Params)
	if err != nil {
		return nil, &jsonrpc.Error{Code: InvalidParams, Message: "Invalid params"}
	}

	var params ToolCallParams
	if err := json.Unmarshal(paramsBytes, &params); err != nil {
		return nil, &jsonrpc.Error{Code: InvalidParams, Message: "Invalid params structure"}
	}
	if params.Name == "" {
		return nil, &jsonrpc.Error{Code: InvalidParams, Message: "name is required"}
	}

	if params.Name == "batch" {
		commands, _ := params.Arguments["commands"].(string)
		if commands == "" {
			return nil, &jsonrpc.Error{Code: InvalidParams, Message: "commands is required"}
		}
		result, err := modules.Batch(ctx, commands)
		if err != nil {
			return nil, &jsonrpc.Error{Code: InternalError, Message: err.Error()}
		}
		return result, nil
	}

	result, err := modules.Run(ctx, params.Name, params.Arguments)
	if err != nil {
		return nil, &jsonrpc.Error{Code: InternalError, Message: err.Error()}
	}
	return result, nil
}
