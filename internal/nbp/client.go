package nbp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL   = "https://api.nbp.pl/api"
	DefaultUserAgent = "nbp-mcp-server/1.0"
	DefaultTimeout   = 30 * time.Second

	maxErrorBody = 200
)

// Observer receives one callback per finished upstream request.
// Outcome is "ok" or the string form of the failure Kind.
type Observer func(resource, outcome string, elapsed time.Duration)

type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	observe   Observer
}

func New(baseURL, userAgent string, timeout time.Duration) (*Client, error) {
	normalized := normalizeBaseURL(baseURL)
	if normalized == "" {
		normalized = DefaultBaseURL
	}

	if _, err := url.ParseRequestURI(normalized); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = DefaultUserAgent
	}

	return &Client{
		baseURL:   normalized,
		userAgent: userAgent,
		http: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (c *Client) SetObserver(observe Observer) {
	c.observe = observe
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Rates fetches a single-currency rate series.
func (c *Client) Rates(ctx context.Context, q Query) (*RateSeries, error) {
	q.Resource = ResourceRates
	var out RateSeries
	err := c.getJSON(ctx, q, func(doc gjson.Result) bool {
		return doc.IsObject() && doc.Get("rates").IsArray()
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Rates) == 0 {
		path, _ := q.Path()
		return nil, &Error{Kind: KindNotFound, Path: path, StatusCode: http.StatusOK}
	}

	return &out, nil
}

// Tables fetches full exchange tables. NBP answers with a list even for a single day.
func (c *Client) Tables(ctx context.Context, q Query) ([]ExchangeTable, error) {
	q.Resource = ResourceTables
	var out []ExchangeTable
	err := c.getJSON(ctx, q, func(doc gjson.Result) bool {
		return doc.IsArray()
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		path, _ := q.Path()
		return nil, &Error{Kind: KindNotFound, Path: path, StatusCode: http.StatusOK}
	}

	return out, nil
}

func (c *Client) Gold(ctx context.Context, q Query) ([]GoldPrice, error) {
	q.Resource = ResourceGold
	var out []GoldPrice
	err := c.getJSON(ctx, q, func(doc gjson.Result) bool {
		return doc.IsArray()
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		path, _ := q.Path()
		return nil, &Error{Kind: KindNotFound, Path: path, StatusCode: http.StatusOK}
	}

	return out, nil
}

func (c *Client) getJSON(ctx context.Context, q Query, shape func(gjson.Result) bool, out any) (err error) {
	path, err := q.Path()
	if err != nil {
		return &Error{Kind: KindRejected, Err: err}
	}

	started := time.Now()
	defer func() {
		if c.observe != nil {
			c.observe(string(q.Resource), outcomeOf(err), time.Since(started))
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &Error{Kind: KindRejected, Path: path, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(path, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(path, resp.StatusCode, body)
	}

	if !gjson.ValidBytes(body) || !shape(gjson.ParseBytes(body)) {
		return &Error{Kind: KindMalformed, Path: path, StatusCode: resp.StatusCode, Body: snippet(body)}
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return &Error{Kind: KindMalformed, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	return nil
}

func statusError(path string, status int, body []byte) *Error {
	kind := KindUnavailable
	switch {
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status == http.StatusTooManyRequests, status >= 500:
		kind = KindUnavailable
	case status >= 400:
		kind = KindRejected
	}

	return &Error{Kind: kind, Path: path, StatusCode: status, Body: snippet(body)}
}

func transportError(path string, err error) *Error {
	kind := KindNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}

	return &Error{Kind: kind, Path: path, Err: err}
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if kind, ok := KindOf(err); ok {
		return string(kind)
	}

	return "error"
}

func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody] + "..."
	}

	return text
}

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return ""
	}

	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}

	return strings.TrimRight(baseURL, "/")
}
