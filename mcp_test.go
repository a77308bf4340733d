package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/mpryc/nbp-mcp-server/internal/nbp"
	"github.com/mpryc/nbp-mcp-server/internal/tools"
)

const goldToday = `[{"data":"2024-01-02","cena":245.67}]`

func newFakeNBP(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, ok := routes[r.URL.Path]
		if !ok {
			http.Error(w, "404 NotFound - Not Found - Brak danych", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T, routes map[string]string) *app {
	t.Helper()

	client, err := nbp.New(newFakeNBP(t, routes).URL, "", 5*time.Second)
	require.NoError(t, err)

	return &app{
		logger:     zap.NewNop(),
		client:     client,
		dispatcher: tools.NewDispatcher(tools.NewRegistry(), client, tools.Options{}),
	}
}

func connectInMemory(t *testing.T, server *mcp.Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func TestListToolsExposesRegistry(t *testing.T) {
	a := newTestApp(t, nil)
	session := connectInMemory(t, newMCPServer(a.dispatcher, "test", true))

	listed, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(listed.Tools))
	schemas := map[string][]byte{}
	for _, tool := range listed.Tools {
		names = append(names, tool.Name)
		raw, err := json.Marshal(tool.InputSchema)
		require.NoError(t, err)
		schemas[tool.Name] = raw
	}

	assert.ElementsMatch(t, []string{
		tools.GetCurrencyRate,
		tools.GetExchangeTable,
		tools.GetCurrencyRateHistory,
		tools.GetCurrencyRateLastN,
		tools.GetGoldPrice,
		tools.GetGoldPriceHistory,
		tools.GetGoldPriceLastN,
	}, names)

	history := gjson.ParseBytes(schemas[tools.GetCurrencyRateHistory])
	assert.Equal(t, "object", history.Get("type").String())
	assert.ElementsMatch(t, []any{"code", "start_date", "end_date"}, history.Get("required").Value())
	assert.True(t, history.Get("properties.table").Exists())
}

func TestCallToolReturnsFormattedText(t *testing.T) {
	a := newTestApp(t, map[string]string{"/cenyzlota/": goldToday})
	session := connectInMemory(t, newMCPServer(a.dispatcher, "test", true))

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: tools.GetGoldPrice})
	require.NoError(t, err)

	assert.False(t, res.IsError)
	assert.Equal(t, "Date: 2024-01-02\nPrice: 245.67 PLN/g", resultText(t, res))
}

func TestCallToolErrorIsToolResult(t *testing.T) {
	a := newTestApp(t, nil)
	session := connectInMemory(t, newMCPServer(a.dispatcher, "test", true))

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      tools.GetCurrencyRate,
		Arguments: map[string]any{"code": "USD", "table": "x"},
	})
	require.NoError(t, err)

	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "invalid_argument: ")

	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	assert.Equal(t, "invalid_argument", gjson.GetBytes(raw, "error.kind").String())
}

func TestCallToolUnknownNameIsToolResult(t *testing.T) {
	a := newTestApp(t, nil)
	session := connectInMemory(t, newMCPServer(a.dispatcher, "test", true))

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "get_silver_price",
		Arguments: map[string]any{"date": "2024-01-02"},
	})
	require.NoError(t, err)

	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "unknown_tool: ")

	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	assert.Equal(t, "unknown_tool", gjson.GetBytes(raw, "error.kind").String())

	listed, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, listed.Tools, 7)
}

func TestCallToolNotFoundOnHoliday(t *testing.T) {
	a := newTestApp(t, nil)
	session := connectInMemory(t, newMCPServer(a.dispatcher, "test", true))

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      tools.GetGoldPrice,
		Arguments: map[string]any{"date": "2024-12-25"},
	})
	require.NoError(t, err)

	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "not_found: ")
}

func TestDecodeArguments(t *testing.T) {
	t.Parallel()

	args, err := decodeArguments(nil)
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = decodeArguments(json.RawMessage(" null "))
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = decodeArguments(json.RawMessage(`{"code":"usd","count":12345678901234567}`))
	require.NoError(t, err)
	assert.Equal(t, "usd", args["code"])
	assert.Equal(t, json.Number("12345678901234567"), args["count"])

	for _, raw := range []string{`[1,2]`, `"USD"`, `{"code":`} {
		_, err := decodeArguments(json.RawMessage(raw))
		assert.Error(t, err, raw)
	}
}

func TestCallToolResultMapping(t *testing.T) {
	t.Parallel()

	ok := callToolResult(tools.Result{Text: "Date: 2024-01-02", State: tools.StateCompleted})
	assert.False(t, ok.IsError)
	assert.Nil(t, ok.StructuredContent)

	failed := callToolResult(tools.Result{
		State: tools.StateFailed,
		Err:   &tools.Error{Kind: tools.KindTimeout, Message: "NBP API did not answer in time"},
	})
	assert.True(t, failed.IsError)
	assert.Equal(t, "timeout: NBP API did not answer in time", failed.Content[0].(*mcp.TextContent).Text)
}

func TestStreamableHTTPServesIndependentSessions(t *testing.T) {
	a := newTestApp(t, map[string]string{"/cenyzlota/": goldToday})
	srv := httptest.NewServer(newHTTPHandler(a))
	t.Cleanup(srv.Close)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	const clients = 2
	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			client := mcp.NewClient(&mcp.Implementation{Name: fmt.Sprintf("client-%d", i), Version: "v0.0.1"}, nil)
			session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: srv.URL + "/mcp"}, nil)
			if err != nil {
				errs <- err
				return
			}
			defer session.Close()

			res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: tools.GetGoldPrice})
			if err != nil {
				errs <- err
				return
			}
			if res.IsError {
				errs <- fmt.Errorf("client %d: unexpected tool error", i)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
