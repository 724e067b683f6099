package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rpcServer(t *testing.T, handle func(req JSONRPCRequest, w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == AgentCardPath {
			_ = json.NewEncoder(w).Encode(AgentCard{Name: "test", URL: "http://" + r.Host})
			return
		}
		var req JSONRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2.0", req.JSONRPC)
		handle(req, w)
	}))
}

func TestClientSendMessage(t *testing.T) {
	server := rpcServer(t, func(req JSONRPCRequest, w http.ResponseWriter) {
		assert.Equal(t, MethodSendMessage, req.Method)

		var params MessageSendParams
		require.NoError(t, json.Unmarshal(req.Params, &params))
		assert.Equal(t, "hello", params.Message.Text())
		assert.Equal(t, "ctx-1", params.Message.ContextID)

		task := Task{
			Kind:      KindTask,
			ID:        "task-1",
			ContextID: "ctx-1",
			Status:    NewTaskStatus(TaskStateCompleted, NewAgentMessage("hi there", "ctx-1", "task-1")),
		}
		_ = json.NewEncoder(w).Encode(NewResponse(req.ID, task))
	})
	defer server.Close()

	client := NewClient(server.URL)
	task, err := client.SendMessage(context.Background(), MessageSendParams{
		Message: NewUserMessage("hello", "ctx-1", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, "task-1", task.ID)
	assert.Equal(t, TaskStateCompleted, task.Status.State)
	assert.Equal(t, "hi there", task.Status.Message.Text())
}

func TestClientRPCError(t *testing.T) {
	server := rpcServer(t, func(req JSONRPCRequest, w http.ResponseWriter) {
		_ = json.NewEncoder(w).Encode(NewErrorResponse(req.ID, ErrCodeTaskNotFound, "task not found"))
	})
	defer server.Close()

	_, err := NewClient(server.URL).GetTask(context.Background(), TaskQueryParams{ID: "nope"})
	require.Error(t, err)

	var rpcErr *JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrCodeTaskNotFound, rpcErr.Code)
}

func TestClientListAndCancel(t *testing.T) {
	server := rpcServer(t, func(req JSONRPCRequest, w http.ResponseWriter) {
		switch req.Method {
		case MethodListTasks:
			var params ListTasksParams
			require.NoError(t, json.Unmarshal(req.Params, &params))
			assert.Equal(t, "ctx-9", params.ContextID)
			_ = json.NewEncoder(w).Encode(NewResponse(req.ID, ListTasksResult{Tasks: []Task{{Kind: KindTask, ID: "a"}, {Kind: KindTask, ID: "b"}}}))
		case MethodCancelTask:
			_ = json.NewEncoder(w).Encode(NewResponse(req.ID, Task{Kind: KindTask, ID: "a", Status: TaskStatus{State: TaskStateCanceled}}))
		default:
			t.Fatalf("unexpected method %s", req.Method)
		}
	})
	defer server.Close()

	client := NewClient(server.URL)

	tasks, err := client.ListTasks(context.Background(), ListTasksParams{ContextID: "ctx-9"})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	task, err := client.CancelTask(context.Background(), TaskIDParams{ID: "a"})
	require.NoError(t, err)
	assert.Equal(t, TaskStateCanceled, task.Status.State)
}

func TestClientCard(t *testing.T) {
	server := rpcServer(t, nil)
	defer server.Close()

	card, err := NewClient(server.URL).Card(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", card.Name)

	fromCard, err := NewClientFromCard(card)
	require.NoError(t, err)
	assert.Equal(t, server.URL, fromCard.BaseURL())

	_, err = NewClientFromCard(&AgentCard{})
	assert.Error(t, err)
}

func TestClientStreamingMessage(t *testing.T) {
	server := rpcServer(t, func(req JSONRPCRequest, w http.ResponseWriter) {
		assert.Equal(t, MethodStreamMessage, req.Method)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		events := []interface{}{
			Task{Kind: KindTask, ID: "t1", ContextID: "c1", Status: TaskStatus{State: TaskStateSubmitted}},
			TaskStatusUpdateEvent{Kind: KindStatusUpdate, TaskID: "t1", ContextID: "c1", Status: TaskStatus{State: TaskStateWorking}},
			TaskStatusUpdateEvent{Kind: KindStatusUpdate, TaskID: "t1", ContextID: "c1", Status: TaskStatus{State: TaskStateCompleted}, Final: true},
		}
		for _, ev := range events {
			data, _ := json.Marshal(NewResponse(req.ID, ev))
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
		}
	})
	defer server.Close()

	stream, err := NewClient(server.URL).SendStreamingMessage(context.Background(), MessageSendParams{
		Message: NewUserMessage("stream please", "", ""),
	})
	require.NoError(t, err)
	defer stream.Close()

	var kinds []string
	for {
		ev, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []string{KindTask, KindStatusUpdate, KindStatusUpdate}, kinds)
}

func TestClientStreamingErrorEvent(t *testing.T) {
	server := rpcServer(t, func(req JSONRPCRequest, w http.ResponseWriter) {
		w.Header().Set("Content-Type", "text/event-stream")
		data, _ := json.Marshal(NewErrorResponse(req.ID, ErrCodeInternal, "boom"))
		fmt.Fprintf(w, "data: %s\n\n", data)
	})
	defer server.Close()

	stream, err := NewClient(server.URL).SendStreamingMessage(context.Background(), MessageSendParams{
		Message: NewUserMessage("x", "", ""),
	})
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Recv()
	var rpcErr *JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "boom", rpcErr.Message)
}

func TestClientStreamingRejected(t *testing.T) {
	server := rpcServer(t, func(req JSONRPCRequest, w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(NewErrorResponse(req.ID, ErrCodeInvalidParams, "empty message"))
	})
	defer server.Close()

	_, err := NewClient(server.URL).SendStreamingMessage(context.Background(), MessageSendParams{})
	var rpcErr *JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrCodeInvalidParams, rpcErr.Code)
}

func TestStreamEventVerbatim(t *testing.T) {
	raw := json.RawMessage(`{"kind":"status-update","taskId":"t","contextId":"c","status":{"state":"working"},"final":false,"extra":1}`)
	ev, err := parseStreamEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, KindStatusUpdate, ev.Kind)

	out, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(out))

	update, err := ev.StatusUpdate()
	require.NoError(t, err)
	assert.Equal(t, TaskStateWorking, update.Status.State)

	_, err = ev.Task()
	assert.Error(t, err)
}
