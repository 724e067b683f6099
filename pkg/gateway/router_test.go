package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCRouter_RegisterMethod(t *testing.T) {
	router := NewRPCRouter()

	t.Run("should register method successfully", func(t *testing.T) {
		err := router.RegisterMethod("test.method", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
			return "result", nil
		})
		assert.NoError(t, err)
		assert.True(t, router.HasMethod("test.method"))
	})

	t.Run("should reject nil handler", func(t *testing.T) {
		assert.Error(t, router.RegisterMethod("test.nil", nil))
		assert.False(t, router.HasMethod("test.nil"))
	})

	t.Run("should reject empty name", func(t *testing.T) {
		noop := func(ctx context.Context, params json.RawMessage) (interface{}, error) { return nil, nil }
		assert.Error(t, router.RegisterMethod("", noop))
	})

	t.Run("should list methods sorted", func(t *testing.T) {
		r := NewRPCRouter()
		noop := func(ctx context.Context, params json.RawMessage) (interface{}, error) { return nil, nil }
		require.NoError(t, r.RegisterMethod("b.two", noop))
		require.NoError(t, r.RegisterMethod("a.one", noop))
		assert.Equal(t, []string{"a.one", "b.two"}, r.GetMethods())
	})
}

func TestRPCRouter_ParseRequest(t *testing.T) {
	router := NewRPCRouter()

	t.Run("should parse valid request", func(t *testing.T) {
		req, err := router.ParseRequest([]byte(`{"id":"1","method":"gateway.ping","params":{"a":1}}`))
		require.NoError(t, err)
		assert.Equal(t, "1", req.ID)
		assert.Equal(t, "gateway.ping", req.Method)
		assert.Equal(t, "2.0", req.JSONRPC)
		assert.JSONEq(t, `{"a":1}`, string(req.Params))
	})

	t.Run("should reject invalid JSON", func(t *testing.T) {
		_, err := router.ParseRequest([]byte(`{not json`))
		var rpcErr *RPCError
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, ParseError, rpcErr.Code)
	})

	t.Run("should reject missing id and method", func(t *testing.T) {
		_, err := router.ParseRequest([]byte(`{"method":"x"}`))
		var rpcErr *RPCError
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, InvalidRequest, rpcErr.Code)

		_, err = router.ParseRequest([]byte(`{"id":"1"}`))
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, InvalidRequest, rpcErr.Code)
	})
}

func TestRPCRouter_RouteRequest(t *testing.T) {
	router := NewRPCRouter()
	ctx := context.Background()

	type ctxKey struct{}
	require.NoError(t, router.RegisterMethod("echo", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		return map[string]interface{}{"params": params, "value": ctx.Value(ctxKey{})}, nil
	}))
	require.NoError(t, router.RegisterMethod("typed.fail", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		return nil, &RPCError{Code: RequestNotFound, Message: "RequestNotFound"}
	}))
	require.NoError(t, router.RegisterMethod("plain.fail", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		return nil, errors.New("boom")
	}))

	t.Run("should pass context and params to handler", func(t *testing.T) {
		resp := router.RouteRequest(context.WithValue(ctx, ctxKey{}, "v"), &RPCRequest{ID: "1", Method: "echo", Params: json.RawMessage(`[1]`)})
		require.Nil(t, resp.Error)
		result := resp.Result.(map[string]interface{})
		assert.Equal(t, "v", result["value"])
		assert.Equal(t, json.RawMessage(`[1]`), result["params"])
	})

	t.Run("should report unknown method", func(t *testing.T) {
		resp := router.RouteRequest(ctx, &RPCRequest{ID: "2", Method: "nope"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, MethodNotFound, resp.Error.Code)
		assert.Equal(t, "2", resp.ID)
	})

	t.Run("should keep typed error codes", func(t *testing.T) {
		resp := router.RouteRequest(ctx, &RPCRequest{ID: "3", Method: "typed.fail"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, RequestNotFound, resp.Error.Code)
	})

	t.Run("should map plain errors to internal error", func(t *testing.T) {
		resp := router.RouteRequest(ctx, &RPCRequest{ID: "4", Method: "plain.fail"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, InternalError, resp.Error.Code)
		assert.Equal(t, "boom", resp.Error.Message)
	})

	t.Run("should reject nil request", func(t *testing.T) {
		resp := router.RouteRequest(ctx, nil)
		require.NotNil(t, resp.Error)
		assert.Equal(t, InvalidRequest, resp.Error.Code)
	})
}

func TestRPCRouter_Idempotency(t *testing.T) {
	router := NewRPCRouter()
	ctx := context.Background()

	calls := 0
	require.NoError(t, router.RegisterMethod("count", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		calls++
		return calls, nil
	}))

	first := router.RouteRequest(ctx, &RPCRequest{ID: "1", Method: "count", IdempotencyKey: "k"})
	second := router.RouteRequest(ctx, &RPCRequest{ID: "2", Method: "count", IdempotencyKey: "k"})
	third := router.RouteRequest(ctx, &RPCRequest{ID: "3", Method: "count"})

	assert.Equal(t, 1, first.Result)
	assert.Equal(t, 1, second.Result)
	assert.Equal(t, "2", second.ID)
	assert.Equal(t, 2, third.Result)
	assert.Equal(t, 2, calls)
}

func TestRPCRouter_IdempotencySkipsFailures(t *testing.T) {
	router := NewRPCRouter()
	ctx := context.Background()

	calls := 0
	require.NoError(t, router.RegisterMethod("flaky", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("not yet")
		}
		return "ok", nil
	}))

	first := router.RouteRequest(ctx, &RPCRequest{ID: "1", Method: "flaky", IdempotencyKey: "k"})
	second := router.RouteRequest(ctx, &RPCRequest{ID: "2", Method: "flaky", IdempotencyKey: "k"})
	third := router.RouteRequest(ctx, &RPCRequest{ID: "3", Method: "flaky", IdempotencyKey: "k"})

	require.NotNil(t, first.Error)
	assert.Equal(t, "ok", second.Result)
	assert.Equal(t, "ok", third.Result)
	assert.Equal(t, 2, calls)
}

func TestReplayCache_Expiry(t *testing.T) {
	cache := newReplayCache(time.Minute)
	now := time.Unix(1000, 0)
	cache.now = func() time.Time { return now }

	key := replayKey("tools.submit_output", "abc")
	cache.store(key, RPCResponse{ID: "1", JSONRPC: "2.0", Result: "accepted"})

	resp, ok := cache.lookup(key, "2")
	require.True(t, ok)
	assert.Equal(t, "2", resp.ID)
	assert.Equal(t, "accepted", resp.Result)

	now = now.Add(2 * time.Minute)
	_, ok = cache.lookup(key, "3")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.len())

	assert.Empty(t, replayKey("tools.submit_output", ""))
}
