package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/harun/radbridge/pkg/a2a"
	"github.com/harun/radbridge/pkg/agentserver"
	"github.com/harun/radbridge/pkg/llm"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingRuntime serves nothing and returns when ctx is done
type blockingRuntime struct{}

func (blockingRuntime) Serve(ctx context.Context, addr string) error {
	<-ctx.Done()
	return nil
}

// failingRuntime exits immediately
type failingRuntime struct{ err error }

func (r failingRuntime) Serve(ctx context.Context, addr string) error {
	return r.err
}

// fakeAgentTransport fails the first failures requests, then answers every
// request with an agent card
type fakeAgentTransport struct {
	mu       sync.Mutex
	failures int
	requests int
}

func (t *fakeAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	t.requests++
	fail := t.requests <= t.failures
	t.mu.Unlock()

	if fail {
		return nil, errors.New("connection refused")
	}

	body, _ := json.Marshal(a2a.AgentCard{Name: "fake", URL: "http://" + req.URL.Host})
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(body)),
		Request:    req,
	}, nil
}

func (t *fakeAgentTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.requests
}

func testSupervisor(transport http.RoundTripper, maxAttempts int) *Supervisor {
	return NewSupervisor(SupervisorConfig{
		PollInterval: 5 * time.Millisecond,
		MaxAttempts:  maxAttempts,
		HTTPClient:   &http.Client{Transport: transport, Timeout: time.Second},
		Logger:       zerolog.Nop(),
	})
}

func TestSupervisorStartAfterRetries(t *testing.T) {
	transport := &fakeAgentTransport{failures: 3}
	sup := testSupervisor(transport, 50)

	handle, err := sup.Start(context.Background(), blockingRuntime{})
	require.NoError(t, err)
	defer handle.Close(context.Background())

	assert.Equal(t, 3, handle.ReadinessRetries())
	assert.Equal(t, "fake", handle.Card.Name)
	assert.Contains(t, handle.BaseURL, "http://127.0.0.1:")
	require.NotNil(t, handle.Client)
	assert.Equal(t, handle.BaseURL, handle.Client.BaseURL())
}

func TestSupervisorTimeoutAfterBudget(t *testing.T) {
	transport := &fakeAgentTransport{failures: 1 << 30}
	sup := testSupervisor(transport, 5)

	handle, err := sup.Start(context.Background(), blockingRuntime{})
	require.Error(t, err)
	assert.Nil(t, handle)

	var se *StartupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StartupTimeout, se.Kind)
	assert.Equal(t, 5, se.Attempts)
	assert.Equal(t, 5, transport.count())
}

func TestSupervisorServerExitIsSpawnError(t *testing.T) {
	boom := errors.New("boom")
	transport := &fakeAgentTransport{failures: 1 << 30}
	sup := testSupervisor(transport, 50)

	_, err := sup.Start(context.Background(), failingRuntime{err: boom})
	require.Error(t, err)
	assert.True(t, IsStartupKind(err, StartupSpawn))
	assert.ErrorIs(t, err, boom)
}

func TestSupervisorCancelled(t *testing.T) {
	transport := &fakeAgentTransport{failures: 1 << 30}
	sup := NewSupervisor(SupervisorConfig{
		PollInterval: 20 * time.Millisecond,
		MaxAttempts:  1000,
		HTTPClient:   &http.Client{Transport: transport},
		Logger:       zerolog.Nop(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := sup.Start(ctx, blockingRuntime{})
	require.Error(t, err)
	assert.True(t, IsStartupKind(err, StartupCancelled))
}

func TestSupervisorBindFailure(t *testing.T) {
	// TEST-NET-1 is never a local address
	sup := NewSupervisor(SupervisorConfig{Host: "192.0.2.1", Logger: zerolog.Nop()})

	_, err := sup.Start(context.Background(), blockingRuntime{})
	require.Error(t, err)
	assert.True(t, IsStartupKind(err, StartupBind))
}

func TestSupervisorStartsAgentServer(t *testing.T) {
	srv, err := agentserver.New(agentserver.Config{
		Name:   "real-agent",
		Model:  &stubModel{},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	sup := NewSupervisor(SupervisorConfig{PollInterval: 10 * time.Millisecond, Logger: zerolog.Nop()})

	// the handle must outlive the start context
	startCtx, cancel := context.WithCancel(context.Background())
	handle, err := sup.Start(startCtx, srv)
	require.NoError(t, err)
	cancel()

	assert.Equal(t, "real-agent", handle.Card.Name)

	task, err := handle.Client.SendMessage(context.Background(), a2a.MessageSendParams{
		Message: a2a.NewUserMessage("hi", "", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	require.NoError(t, handle.Close(closeCtx))

	select {
	case <-handle.Done():
	default:
		t.Fatal("server still running after Close")
	}
	assert.NoError(t, handle.Err())
}

// stubModel replies with fixed text, or runs the scripted tool calls first
type stubModel struct {
	mu    sync.Mutex
	calls [][]llm.ToolCall
}

func (m *stubModel) Name() string { return "stub" }

func (m *stubModel) Generate(ctx context.Context, thread llm.Thread, tools []llm.ToolSpec) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.calls) > 0 {
		calls := m.calls[0]
		m.calls = m.calls[1:]
		return &llm.Response{ToolCalls: calls}, nil
	}

	last := thread.Messages[len(thread.Messages)-1]
	if last.Role == llm.RoleTool {
		return &llm.Response{Text: "tool said: " + last.Content}, nil
	}
	return &llm.Response{Text: "stub reply"}, nil
}
