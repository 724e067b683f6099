package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
)

// Client talks to an agent server over JSON-RPC
type Client struct {
	baseURL    string
	httpClient *http.Client
	nextID     atomic.Int64
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a client for the agent server at baseURL
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromCard creates a client for the endpoint advertised by card
func NewClientFromCard(card *AgentCard, opts ...ClientOption) (*Client, error) {
	if card == nil || card.URL == "" {
		return nil, fmt.Errorf("agent card has no url")
	}
	return NewClient(card.URL, opts...), nil
}

// BaseURL returns the server address
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Card fetches the agent card
func (c *Client) Card(ctx context.Context) (*AgentCard, error) {
	return FetchCard(ctx, c.httpClient, c.baseURL)
}

// FetchCard fetches the agent card published under baseURL
func FetchCard(ctx context.Context, hc *http.Client, baseURL string) (*AgentCard, error) {
	if hc == nil {
		hc = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+AgentCardPath, nil)
	if err != nil {
		return nil, err
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch agent card: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent card returned status %d", resp.StatusCode)
	}

	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("failed to decode agent card: %w", err)
	}
	return &card, nil
}

// SendMessage sends a message and waits for the resulting task
func (c *Client) SendMessage(ctx context.Context, params MessageSendParams) (*Task, error) {
	var task Task
	if err := c.call(ctx, MethodSendMessage, params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetTask fetches a task by id
func (c *Client) GetTask(ctx context.Context, params TaskQueryParams) (*Task, error) {
	var task Task
	if err := c.call(ctx, MethodGetTask, params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks lists tasks, optionally restricted to one context
func (c *Client) ListTasks(ctx context.Context, params ListTasksParams) ([]Task, error) {
	var result ListTasksResult
	if err := c.call(ctx, MethodListTasks, params, &result); err != nil {
		return nil, err
	}
	return result.Tasks, nil
}

// CancelTask requests cancellation of a task
func (c *Client) CancelTask(ctx context.Context, params TaskIDParams) (*Task, error) {
	var task Task
	if err := c.call(ctx, MethodCancelTask, params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// SendStreamingMessage opens a server-sent event stream for a message.
// The caller owns the returned stream and must Close it.
func (c *Client) SendStreamingMessage(ctx context.Context, params MessageSendParams) (*Stream, error) {
	resp, err := c.post(ctx, MethodStreamMessage, params, "text/event-stream")
	if err != nil {
		return nil, err
	}

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		defer resp.Body.Close()
		// servers answer with a plain JSON-RPC error when the stream cannot start
		var rpcResp JSONRPCResponse
		if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err == nil && rpcResp.Error != nil {
			return nil, rpcResp.Error
		}
		return nil, fmt.Errorf("unexpected stream content type %q", resp.Header.Get("Content-Type"))
	}

	return newStream(resp.Body), nil
}

func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	resp, err := c.post(ctx, method, params, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var rpcResp JSONRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("%s: failed to decode result: %w", method, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, method string, params interface{}, accept string) (*http.Response, error) {
	rpcReq, err := NewRequest(c.nextID.Add(1), method, params)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(rpcReq)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%s: status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return resp, nil
}
