package agentserver

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harun/radbridge/pkg/a2a"
	"github.com/harun/radbridge/pkg/llm"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedModel returns its responses in order and records each thread
type scriptedModel struct {
	mu        sync.Mutex
	responses []*llm.Response
	threads   []llm.Thread
	block     bool
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) Generate(ctx context.Context, thread llm.Thread, tools []llm.ToolSpec) (*llm.Response, error) {
	m.mu.Lock()
	m.threads = append(m.threads, thread)
	block := m.block
	var resp *llm.Response
	if len(m.responses) > 0 {
		resp = m.responses[0]
		m.responses = m.responses[1:]
	}
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if resp == nil {
		return nil, errors.New("no scripted response")
	}
	return resp, nil
}

func (m *scriptedModel) lastThread() llm.Thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threads[len(m.threads)-1]
}

func echoTool() Tool {
	return &FuncTool{
		ToolName:        "echo",
		ToolDescription: "Echoes its input",
		Schema:          map[string]interface{}{"type": "object"},
		Fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return map[string]interface{}{"echo": args["text"]}, nil
		},
	}
}

func newTestServer(t *testing.T, model llm.Model, tools ...Tool) (*Server, *a2a.Client) {
	t.Helper()
	srv, err := New(Config{
		Name:   "test-agent",
		Model:  model,
		Tools:  tools,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)

	return srv, a2a.NewClient(httpSrv.URL)
}

func TestAgentCard(t *testing.T) {
	_, client := newTestServer(t, &scriptedModel{})

	card, err := client.Card(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-agent", card.Name)
	assert.True(t, card.Capabilities.Streaming)
	assert.Equal(t, client.BaseURL(), card.URL)
	require.Len(t, card.Skills, 1)
}

func TestSendMessageCompletes(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{{Text: "hello back"}}}
	_, client := newTestServer(t, model)

	task, err := client.SendMessage(context.Background(), a2a.MessageSendParams{
		Message: a2a.NewUserMessage("hello", "ctx-1", ""),
	})
	require.NoError(t, err)

	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)
	assert.Equal(t, "hello back", task.Status.Message.Text())
	assert.Equal(t, "ctx-1", task.ContextID)
	require.Len(t, task.History, 2)
	require.Len(t, task.Artifacts, 1)
}

func TestSendMessageRunsTools(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "echo", Args: map[string]interface{}{"text": "ping"}}}},
		{Text: "done"},
	}}
	_, client := newTestServer(t, model, echoTool())

	task, err := client.SendMessage(context.Background(), a2a.MessageSendParams{
		Message: a2a.NewUserMessage("use the tool", "", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)

	thread := model.lastThread()
	require.Len(t, thread.Messages, 3)
	toolMsg := thread.Messages[2]
	assert.Equal(t, llm.RoleTool, toolMsg.Role)
	assert.Equal(t, "c1", toolMsg.ToolCallID)
	assert.JSONEq(t, `{"echo":"ping"}`, toolMsg.Content)
	assert.False(t, toolMsg.IsError)
}

func TestUnknownToolReportedToModel(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "missing"}}},
		{Text: "recovered"},
	}}
	_, client := newTestServer(t, model)

	task, err := client.SendMessage(context.Background(), a2a.MessageSendParams{
		Message: a2a.NewUserMessage("x", "", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)

	toolMsg := model.lastThread().Messages[2]
	assert.True(t, toolMsg.IsError)
	assert.Contains(t, toolMsg.Content, "unknown tool")
}

func TestModelFailureFailsTask(t *testing.T) {
	_, client := newTestServer(t, &scriptedModel{})

	task, err := client.SendMessage(context.Background(), a2a.MessageSendParams{
		Message: a2a.NewUserMessage("x", "", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateFailed, task.Status.State)
}

func TestContinueTaskKeepsHistory(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{{Text: "first"}, {Text: "second"}}}
	_, client := newTestServer(t, model)
	ctx := context.Background()

	task, err := client.SendMessage(ctx, a2a.MessageSendParams{Message: a2a.NewUserMessage("one", "", "")})
	require.NoError(t, err)

	again, err := client.SendMessage(ctx, a2a.MessageSendParams{Message: a2a.NewUserMessage("two", "", task.ID)})
	require.NoError(t, err)
	assert.Equal(t, task.ID, again.ID)
	assert.Equal(t, "second", again.Status.Message.Text())

	thread := model.lastThread()
	require.Len(t, thread.Messages, 3)
	assert.Equal(t, "first", thread.Messages[1].Content)
}

func TestSendMessageValidation(t *testing.T) {
	_, client := newTestServer(t, &scriptedModel{})

	_, err := client.SendMessage(context.Background(), a2a.MessageSendParams{})
	var rpcErr *a2a.JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, a2a.ErrCodeInvalidParams, rpcErr.Code)

	_, err = client.SendMessage(context.Background(), a2a.MessageSendParams{
		Message: a2a.NewUserMessage("x", "", "no-such-task"),
	})
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, a2a.ErrCodeTaskNotFound, rpcErr.Code)
}

func TestStreamingMessageEvents(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "echo", Args: map[string]interface{}{"text": "a"}}}},
		{Text: "streamed"},
	}}
	_, client := newTestServer(t, model, echoTool())

	stream, err := client.SendStreamingMessage(context.Background(), a2a.MessageSendParams{
		Message: a2a.NewUserMessage("stream it", "", ""),
	})
	require.NoError(t, err)
	defer stream.Close()

	var events []a2a.StreamEvent
	for {
		ev, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		events = append(events, ev)
	}

	require.GreaterOrEqual(t, len(events), 4)
	assert.Equal(t, a2a.KindTask, events[0].Kind)

	working, err := events[1].StatusUpdate()
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateWorking, working.Status.State)

	progress, err := events[2].StatusUpdate()
	require.NoError(t, err)
	assert.Equal(t, "Calling tool echo", progress.Status.Message.Text())

	last, err := events[len(events)-1].StatusUpdate()
	require.NoError(t, err)
	assert.True(t, last.Final)
	assert.Equal(t, a2a.TaskStateCompleted, last.Status.State)
	assert.Equal(t, "streamed", last.Status.Message.Text())
}

func TestCancelRunningTask(t *testing.T) {
	model := &scriptedModel{block: true}
	srv, client := newTestServer(t, model)
	ctx := context.Background()

	done := make(chan *a2a.Task, 1)
	go func() {
		task, err := client.SendMessage(ctx, a2a.MessageSendParams{Message: a2a.NewUserMessage("wait", "c", "")})
		if err == nil {
			done <- task
		}
		close(done)
	}()

	var taskID string
	require.Eventually(t, func() bool {
		tasks := srv.Tasks().List("c")
		if len(tasks) == 1 && tasks[0].Status.State == a2a.TaskStateWorking {
			taskID = tasks[0].ID
			return true
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	canceled, err := client.CancelTask(ctx, a2a.TaskIDParams{ID: taskID})
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCanceled, canceled.Status.State)

	select {
	case task := <-done:
		require.NotNil(t, task)
		assert.Equal(t, a2a.TaskStateCanceled, task.Status.State)
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after cancel")
	}

	_, err = client.CancelTask(ctx, a2a.TaskIDParams{ID: taskID})
	var rpcErr *a2a.JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, a2a.ErrCodeNotCancelable, rpcErr.Code)
}

func TestListAndGetTasks(t *testing.T) {
	model := &scriptedModel{responses: []*llm.Response{{Text: "a"}, {Text: "b"}, {Text: "c"}}}
	_, client := newTestServer(t, model)
	ctx := context.Background()

	first, err := client.SendMessage(ctx, a2a.MessageSendParams{Message: a2a.NewUserMessage("1", "alpha", "")})
	require.NoError(t, err)
	_, err = client.SendMessage(ctx, a2a.MessageSendParams{Message: a2a.NewUserMessage("2", "alpha", "")})
	require.NoError(t, err)
	_, err = client.SendMessage(ctx, a2a.MessageSendParams{Message: a2a.NewUserMessage("3", "beta", "")})
	require.NoError(t, err)

	all, err := client.ListTasks(ctx, a2a.ListTasksParams{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	alpha, err := client.ListTasks(ctx, a2a.ListTasksParams{ContextID: "alpha"})
	require.NoError(t, err)
	require.Len(t, alpha, 2)
	assert.Equal(t, first.ID, alpha[0].ID)

	one := 1
	got, err := client.GetTask(ctx, a2a.TaskQueryParams{ID: first.ID, HistoryLength: &one})
	require.NoError(t, err)
	require.Len(t, got.History, 1)
	assert.Equal(t, a2a.MessageRoleAgent, got.History[0].Role)
}

func TestUnknownMethod(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedModel{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"nope"}`))
	srv.Handler().ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), "method not found")
}

func TestServeStopsOnContextCancel(t *testing.T) {
	srv, err := New(Config{Name: "serve", Model: &scriptedModel{}, Logger: zerolog.Nop()})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, addr) }()

	require.Eventually(t, func() bool {
		_, err := a2a.FetchCard(context.Background(), nil, "http://"+addr)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestServeReportsBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv, err := New(Config{Name: "bind", Model: &scriptedModel{}, Logger: zerolog.Nop()})
	require.NoError(t, err)

	err = srv.Serve(context.Background(), ln.Addr().String())
	assert.Error(t, err)
}
