package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/mpryc/nbp-mcp-server/internal/tools"
	"github.com/tidwall/gjson"
)

const serverName = "nbp-mcp-server"

const serverInstructions = `Exchange rates and gold prices published by Narodowy Bank Polski (NBP).
All prices are in PLN. Dates use YYYY-MM-DD. Table A holds mid rates of common
currencies, table B mid rates of other currencies (published weekly) and table C
bid/ask rates. No data is published on weekends and Polish public holidays.
History tools accept any range; ranges longer than 93 days are fetched in parts.`

// toolHandler adapts MCP tool calls to the dispatcher. With sequential set,
// at most one call is in flight for the whole server.
type toolHandler struct {
	dispatcher *tools.Dispatcher
	sequential bool
	mu         sync.Mutex
}

func newMCPServer(dispatcher *tools.Dispatcher, version string, sequential bool) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{Name: serverName, Version: version},
		&mcp.ServerOptions{Instructions: serverInstructions},
	)

	handler := &toolHandler{dispatcher: dispatcher, sequential: sequential}
	for _, spec := range dispatcher.Registry().Specs() {
		server.AddTool(&mcp.Tool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.InputSchema(),
			Annotations: &mcp.ToolAnnotations{
				ReadOnlyHint:   true,
				IdempotentHint: true,
			},
		}, handler.handle(spec.Name))
	}

	server.AddReceivingMiddleware(handler.unknownTools)

	return server
}

func (h *toolHandler) handle(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return h.call(ctx, name, req), nil
	}
}

// unknownTools answers tools/call for unregistered names with an
// unknown_tool result instead of the SDK's protocol error.
func (h *toolHandler) unknownTools(next mcp.MethodHandler) mcp.MethodHandler {
	return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
		call, ok := req.(*mcp.CallToolRequest)
		if !ok || method != "tools/call" || call.Params == nil {
			return next(ctx, method, req)
		}
		if _, err := h.dispatcher.Registry().Lookup(call.Params.Name); err == nil {
			return next(ctx, method, req)
		}
		return h.call(ctx, call.Params.Name, call), nil
	}
}

func (h *toolHandler) call(ctx context.Context, name string, req *mcp.CallToolRequest) *mcp.CallToolResult {
	args, err := decodeArguments(req.Params.Arguments)
	if err != nil {
		return errorResult(&tools.Error{Kind: tools.KindInvalidArgument, Message: err.Error()})
	}

	if h.sequential {
		h.mu.Lock()
		defer h.mu.Unlock()
	}

	call := tools.Call{Name: name, Arguments: args}
	if req.Session != nil {
		call.Session = req.Session.ID()
	}

	return callToolResult(h.dispatcher.Call(ctx, call))
}

// decodeArguments keeps numbers as json.Number so counts are not rounded.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]any{}, nil
	}
	if !gjson.ValidBytes(trimmed) || !gjson.ParseBytes(trimmed).IsObject() {
		return nil, errors.New("arguments must be a JSON object")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	args := map[string]any{}
	if err := decoder.Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}

	return args, nil
}

func callToolResult(result tools.Result) *mcp.CallToolResult {
	if result.Err != nil {
		return errorResult(result.Err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: result.Text}},
	}
}

func errorResult(err *tools.Error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
		StructuredContent: map[string]any{
			"error": map[string]any{
				"kind":    string(err.Kind),
				"message": err.Message,
			},
		},
		IsError: true,
	}
}
