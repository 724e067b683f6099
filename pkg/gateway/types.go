package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// RPCRequest represents a JSON-RPC 2.0 request
type RPCRequest struct {
	ID             string          `json:"id"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	JSONRPC        string          `json:"jsonrpc"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
}

// RPCResponse represents a JSON-RPC 2.0 response
type RPCResponse struct {
	ID      string      `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	JSONRPC string      `json:"jsonrpc"`
}

// RPCError represents a JSON-RPC 2.0 error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface
func (e *RPCError) Error() string {
	return e.Message
}

// EventMessage is a server-initiated event. Seq increases by one per event
// across all clients.
type EventMessage struct {
	Type      string      `json:"type"`
	Event     string      `json:"event"`
	Seq       int64       `json:"seq"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// AuthChallenge is sent to a client that must authenticate
type AuthChallenge struct {
	Event     string `json:"event"`
	Challenge string `json:"challenge"`
}

// AuthResponse is a client's answer to a challenge
type AuthResponse struct {
	Method    string `json:"method"`
	Signature string `json:"signature"`
}

// AuthResult reports the outcome of authentication
type AuthResult struct {
	Event    string `json:"event"`
	Success  bool   `json:"success,omitempty"`
	Message  string `json:"message,omitempty"`
	ClientID string `json:"clientId,omitempty"`
}

// ClientInfo describes a connected client
type ClientInfo struct {
	ID            string    `json:"id"`
	Authenticated bool      `json:"authenticated"`
	ConnectedAt   time.Time `json:"connectedAt"`
	LastActivity  time.Time `json:"lastActivity"`
	IPAddress     string    `json:"ipAddress"`
	Idle          bool      `json:"idle"`
}

// ClientState represents the state of a client connection
type ClientState int

const (
	StateConnecting ClientState = iota
	StateAuthenticating
	StateAuthenticated
	StateDisconnected
)

// RequestHandler handles one RPC method. Returning an *RPCError selects
// the error code; any other error is reported as InternalError.
type RequestHandler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// RPC error codes
const (
	ParseError             = -32700
	InvalidRequest         = -32600
	MethodNotFound         = -32601
	InvalidParams          = -32602
	InternalError          = -32603
	AuthenticationRequired = -32001
	NotInitialized         = -32002
	StartupFailed          = -32003
	RequestNotFound        = -32004
	RateLimitExceeded      = -32005
	TooManyConcurrent      = -32006
)

// Client represents a connected WebSocket client
type Client struct {
	ID           string
	Conn         *websocket.Conn
	Challenge    string
	ConnectedAt  time.Time
	LastActivity time.Time
	IPAddress    string
	AuthAttempts int
	RateLimiter  *ClientRateLimiter
	State        ClientState

	authenticated atomic.Bool
	// gorilla connections allow one concurrent writer
	writeMu sync.Mutex
}

// IsAuthenticated reports whether the client may issue requests
func (c *Client) IsAuthenticated() bool {
	return c.authenticated.Load()
}

func (c *Client) markAuthenticated() {
	c.State = StateAuthenticated
	c.authenticated.Store(true)
}

// writeTimeout bounds a single frame write to a slow or stalled peer
var writeTimeout = 10 * time.Second

// WriteJSON sends v to the client; safe for concurrent use
func (c *Client) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.Conn.WriteJSON(v)
}

// WriteMessage sends a raw frame to the client; safe for concurrent use
func (c *Client) WriteMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.Conn.WriteMessage(messageType, data)
}
