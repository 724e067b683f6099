package agentserver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/harun/radbridge/pkg/a2a"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrTaskNotFound is returned for unknown task ids
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskBusy is returned when a message targets a task that is running
	ErrTaskBusy = errors.New("task is already running")
	// ErrTaskTerminal is returned when a finished task is asked to change
	ErrTaskTerminal = errors.New("task is in a terminal state")
)

type taskRecord struct {
	task   a2a.Task
	seq    uint64
	cancel context.CancelFunc
}

// TaskStore keeps tasks in memory for the lifetime of the server
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*taskRecord
	seq   uint64
}

// NewTaskStore creates an empty store
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*taskRecord)}
}

// Begin records msg as the start of a turn run under cancel. A message
// naming an existing task continues it; otherwise a new task is created in
// msg's context (or a new context). The returned task is a snapshot in the
// submitted state.
func (s *TaskStore) Begin(msg a2a.Message, cancel context.CancelFunc) (a2a.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec *taskRecord
	if msg.TaskID != "" {
		existing, ok := s.tasks[msg.TaskID]
		if !ok {
			return a2a.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, msg.TaskID)
		}
		if existing.cancel != nil {
			return a2a.Task{}, fmt.Errorf("%w: %s", ErrTaskBusy, msg.TaskID)
		}
		rec = existing
	} else {
		contextID := msg.ContextID
		if contextID == "" {
			contextID = ulid.Make().String()
		}
		rec = &taskRecord{task: a2a.Task{
			Kind:      a2a.KindTask,
			ID:        ulid.Make().String(),
			ContextID: contextID,
		}}
		s.seq++
		rec.seq = s.seq
		s.tasks[rec.task.ID] = rec
	}

	msg.TaskID = rec.task.ID
	msg.ContextID = rec.task.ContextID
	rec.task.History = append(rec.task.History, msg)
	rec.task.Status = a2a.NewTaskStatus(a2a.TaskStateSubmitted, nil)
	rec.cancel = cancel

	return cloneTask(rec.task), nil
}

// SetStatus moves a task to state. Moving a task that already finished
// its current turn fails with ErrTaskTerminal.
func (s *TaskStore) SetStatus(taskID string, state a2a.TaskState, msg *a2a.Message) (a2a.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[taskID]
	if !ok {
		return a2a.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if rec.task.Status.State.Terminal() {
		return cloneTask(rec.task), fmt.Errorf("%w: %s", ErrTaskTerminal, rec.task.Status.State)
	}

	rec.task.Status = a2a.NewTaskStatus(state, msg)
	if state.Terminal() {
		if msg != nil {
			rec.task.History = append(rec.task.History, *msg)
		}
		rec.cancel = nil
	}
	return cloneTask(rec.task), nil
}

// AddArtifact attaches an output to a task
func (s *TaskStore) AddArtifact(taskID string, artifact a2a.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	rec.task.Artifacts = append(rec.task.Artifacts, artifact)
	return nil
}

// Cancel stops a running task and marks it canceled
func (s *TaskStore) Cancel(taskID string) (a2a.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[taskID]
	if !ok {
		return a2a.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if rec.task.Status.State.Terminal() {
		return cloneTask(rec.task), fmt.Errorf("%w: %s", ErrTaskTerminal, rec.task.Status.State)
	}

	if rec.cancel != nil {
		rec.cancel()
		rec.cancel = nil
	}
	rec.task.Status = a2a.NewTaskStatus(a2a.TaskStateCanceled, nil)
	return cloneTask(rec.task), nil
}

// Get returns a snapshot of a task
func (s *TaskStore) Get(taskID string) (a2a.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tasks[taskID]
	if !ok {
		return a2a.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return cloneTask(rec.task), nil
}

// List returns tasks in creation order, optionally only those of contextID
func (s *TaskStore) List(contextID string) []a2a.Task {
	s.mu.RLock()
	recs := make([]*taskRecord, 0, len(s.tasks))
	for _, rec := range s.tasks {
		if contextID == "" || rec.task.ContextID == contextID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

	tasks := make([]a2a.Task, 0, len(recs))
	for _, rec := range recs {
		tasks = append(tasks, cloneTask(rec.task))
	}
	s.mu.RUnlock()

	return tasks
}

// CancelAll stops every running task
func (s *TaskStore) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.tasks {
		if rec.cancel != nil {
			rec.cancel()
			rec.cancel = nil
		}
	}
}

func cloneTask(t a2a.Task) a2a.Task {
	out := t
	out.History = append([]a2a.Message(nil), t.History...)
	out.Artifacts = append([]a2a.Artifact(nil), t.Artifacts...)
	return out
}
