package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"

	"bbmcp/server/internal/jsonrpc"
	"bbmcp/server/internal/middleware"
)

// maxLineSize bounds a single JSON-RPC message on stdio (10 MB).
const maxLineSize = 10 * 1024 * 1024

// ServeStdio runs a line-delimited JSON-RPC loop: one request per line on
// in, one response per line on out. Operational logging must go to stderr —
// stdout carries protocol frames only. Returns when in reaches EOF or ctx
// is cancelled.
func ServeStdio(ctx context.Context, h *Handler, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	encoder := json.NewEncoder(out)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req jsonrpc.Request
		if err := json.Unmarshal(line, &req); err != nil {
			resp := jsonrpc.Response{JSONRPC: "2.0", Error: &jsonrpc.Error{Code: ParseError, Message: "Parse error"}}
			if err := encoder.Encode(resp); err != nil {
				return err
			}
			continue
		}

		reqCtx := middleware.WithRequestID(ctx, middleware.NewRequestID())
		result, rpcErr := h.ProcessRequest(reqCtx, &req)

		// Notifications (no ID) get no response
		if req.ID == nil && rpcErr == nil {
			continue
		}

		resp := jsonrpc.Response{JSONRPC: "2.0", ID: req.ID}
		if rpcErr != nil {
			resp.Error = rpcErr
		} else {
			resp.Result = result
		}
		if err := encoder.Encode(resp); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		log.Printf("stdio transport: read error: %v", err)
		return err
	}
	return nil
}
