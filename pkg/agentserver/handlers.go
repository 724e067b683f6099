package agentserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/harun/radbridge/pkg/a2a"
	"github.com/oklog/ulid/v2"
)

// statusEmitter receives status transitions while a task runs
type statusEmitter func(update a2a.TaskStatusUpdateEvent)

func decodeSendParams(req a2a.JSONRPCRequest) (a2a.MessageSendParams, *a2a.JSONRPCResponse) {
	var params a2a.MessageSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return params, a2a.NewErrorResponse(req.ID, a2a.ErrCodeInvalidParams, "invalid params: "+err.Error())
	}
	if strings.TrimSpace(params.Message.Text()) == "" {
		return params, a2a.NewErrorResponse(req.ID, a2a.ErrCodeInvalidParams, "message has no text")
	}
	if params.Message.Role == "" {
		params.Message.Role = a2a.MessageRoleUser
	}
	if params.Message.Kind == "" {
		params.Message.Kind = a2a.KindMessage
	}
	return params, nil
}

func (s *Server) handleSend(ctx context.Context, req a2a.JSONRPCRequest) *a2a.JSONRPCResponse {
	params, errResp := decodeSendParams(req)
	if errResp != nil {
		return errResp
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	task, err := s.store.Begin(params.Message, cancel)
	if err != nil {
		return taskErrorResponse(req.ID, err)
	}

	final := s.execute(runCtx, task, nil)
	return a2a.NewResponse(req.ID, final)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, req a2a.JSONRPCRequest) {
	params, errResp := decodeSendParams(req)
	if errResp != nil {
		writeJSON(w, errResp)
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		writeJSON(w, a2a.NewErrorResponse(req.ID, a2a.ErrCodeInternal, "streaming not supported"))
		return
	}

	runCtx, cancel := context.WithCancel(r.Context())
	defer cancel()

	task, err := s.store.Begin(params.Message, cancel)
	if err != nil {
		writeJSON(w, taskErrorResponse(req.ID, err))
		return
	}

	sse := newSSEWriter(w)

	logger := s.logger.With().Str("task_id", task.ID).Logger()

	send := func(v interface{}) {
		if err := sse.writeEvent(a2a.NewResponse(req.ID, v)); err != nil {
			logger.Debug().Err(err).Msg("Stream client went away")
			cancel()
		}
	}

	send(task)
	s.execute(runCtx, task, func(update a2a.TaskStatusUpdateEvent) {
		send(update)
	})
}

// execute runs the chat skill for task and records the result
func (s *Server) execute(ctx context.Context, task a2a.Task, emit statusEmitter) a2a.Task {
	if emit == nil {
		emit = func(a2a.TaskStatusUpdateEvent) {}
	}
	logger := s.logger.With().Str("task_id", task.ID).Str("context_id", task.ContextID).Logger()

	update := func(t a2a.Task, final bool) {
		emit(a2a.TaskStatusUpdateEvent{
			Kind:      a2a.KindStatusUpdate,
			TaskID:    t.ID,
			ContextID: t.ContextID,
			Status:    t.Status,
			Final:     final,
		})
	}

	working, err := s.store.SetStatus(task.ID, a2a.TaskStateWorking, nil)
	if err != nil {
		// canceled before it started
		update(working, true)
		return working
	}
	update(working, false)

	reply, runErr := s.skill.Run(ctx, task.History, func(text string) {
		update(a2a.Task{
			ID:        task.ID,
			ContextID: task.ContextID,
			Status:    a2a.NewTaskStatus(a2a.TaskStateWorking, a2a.NewAgentMessage(text, task.ContextID, task.ID)),
		}, false)
	})

	var final a2a.Task
	if runErr != nil {
		state := a2a.TaskStateFailed
		if errors.Is(runErr, context.Canceled) {
			state = a2a.TaskStateCanceled
		}
		logger.Warn().Err(runErr).Str("state", string(state)).Msg("Task did not complete")
		final, err = s.store.SetStatus(task.ID, state, a2a.NewAgentMessage(runErr.Error(), task.ContextID, task.ID))
	} else {
		agentMsg := a2a.NewAgentMessage(reply, task.ContextID, task.ID)
		_ = s.store.AddArtifact(task.ID, a2a.Artifact{
			ArtifactID: ulid.Make().String(),
			Name:       "reply",
			Parts:      agentMsg.Parts,
		})
		final, err = s.store.SetStatus(task.ID, a2a.TaskStateCompleted, agentMsg)
	}
	if err != nil && !errors.Is(err, ErrTaskTerminal) {
		logger.Error().Err(err).Msg("Failed to record task result")
	}

	update(final, true)
	if full, getErr := s.store.Get(task.ID); getErr == nil {
		return full
	}
	return final
}

func (s *Server) handleGetTask(req a2a.JSONRPCRequest) *a2a.JSONRPCResponse {
	var params a2a.TaskQueryParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" {
		return a2a.NewErrorResponse(req.ID, a2a.ErrCodeInvalidParams, "task id is required")
	}

	task, err := s.store.Get(params.ID)
	if err != nil {
		return taskErrorResponse(req.ID, err)
	}
	if params.HistoryLength != nil && *params.HistoryLength >= 0 && len(task.History) > *params.HistoryLength {
		task.History = task.History[len(task.History)-*params.HistoryLength:]
	}
	return a2a.NewResponse(req.ID, task)
}

func (s *Server) handleListTasks(req a2a.JSONRPCRequest) *a2a.JSONRPCResponse {
	var params a2a.ListTasksParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return a2a.NewErrorResponse(req.ID, a2a.ErrCodeInvalidParams, "invalid params: "+err.Error())
		}
	}
	return a2a.NewResponse(req.ID, a2a.ListTasksResult{Tasks: s.store.List(params.ContextID)})
}

func (s *Server) handleCancelTask(req a2a.JSONRPCRequest) *a2a.JSONRPCResponse {
	var params a2a.TaskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" {
		return a2a.NewErrorResponse(req.ID, a2a.ErrCodeInvalidParams, "task id is required")
	}

	task, err := s.store.Cancel(params.ID)
	if err != nil {
		return taskErrorResponse(req.ID, err)
	}
	s.logger.Info().Str("task_id", task.ID).Msg("Task canceled")
	return a2a.NewResponse(req.ID, task)
}
