package a2a

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC error codes
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
	ErrCodeTaskNotFound   = -32001
	ErrCodeNotCancelable  = -32002
)

// JSONRPCRequest is a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewRequest encodes params into a request
func NewRequest(id interface{}, method string, params interface{}) (*JSONRPCRequest, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s params: %w", method, err)
	}
	return &JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: raw}, nil
}

// JSONRPCResponse is a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// NewResponse encodes a successful result
func NewResponse(id interface{}, result interface{}) *JSONRPCResponse {
	raw, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, ErrCodeInternal, "failed to encode result: "+err.Error())
	}
	return &JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: raw}
}

// NewErrorResponse creates an error response
func NewErrorResponse(id interface{}, code int, message string) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message},
	}
}

// JSONRPCError is a JSON-RPC 2.0 error object
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface
func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("a2a error %d: %s", e.Code, e.Message)
}
