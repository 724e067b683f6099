package a2a

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AgentCardPath is the well-known discovery path of an agent server
const AgentCardPath = "/.well-known/agent-card.json"

// Method names
const (
	MethodSendMessage   = "message/send"
	MethodStreamMessage = "message/stream"
	MethodGetTask       = "tasks/get"
	MethodListTasks     = "tasks/list"
	MethodCancelTask    = "tasks/cancel"
)

// Event kinds carried in the "kind" field
const (
	KindMessage      = "message"
	KindTask         = "task"
	KindStatusUpdate = "status-update"
	KindText         = "text"
	KindData         = "data"
)

// MessageRole identifies the author of a message
type MessageRole string

const (
	MessageRoleUser  MessageRole = "user"
	MessageRoleAgent MessageRole = "agent"
)

// TaskState is the lifecycle state of a task
type TaskState string

const (
	TaskStateSubmitted TaskState = "submitted"
	TaskStateWorking   TaskState = "working"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
	TaskStateCanceled  TaskState = "canceled"
)

// Terminal reports whether no further transitions are possible
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	default:
		return false
	}
}

// Part is one piece of message content
type Part struct {
	Kind string                 `json:"kind"`
	Text string                 `json:"text,omitempty"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// NewTextPart creates a text part
func NewTextPart(text string) Part {
	return Part{Kind: KindText, Text: text}
}

// NewDataPart creates a structured data part
func NewDataPart(data map[string]interface{}) Part {
	return Part{Kind: KindData, Data: data}
}

// Message is a single conversational turn
type Message struct {
	Kind      string      `json:"kind"`
	MessageID string      `json:"messageId"`
	Role      MessageRole `json:"role"`
	Parts     []Part      `json:"parts"`
	ContextID string      `json:"contextId,omitempty"`
	TaskID    string      `json:"taskId,omitempty"`
}

// NewUserMessage creates a user message with a single text part
func NewUserMessage(text, contextID, taskID string) Message {
	return Message{
		Kind:      KindMessage,
		MessageID: uuid.NewString(),
		Role:      MessageRoleUser,
		Parts:     []Part{NewTextPart(text)},
		ContextID: contextID,
		TaskID:    taskID,
	}
}

// NewAgentMessage creates an agent message with a single text part
func NewAgentMessage(text, contextID, taskID string) *Message {
	return &Message{
		Kind:      KindMessage,
		MessageID: uuid.NewString(),
		Role:      MessageRoleAgent,
		Parts:     []Part{NewTextPart(text)},
		ContextID: contextID,
		TaskID:    taskID,
	}
}

// Text concatenates the text parts of the message
func (m Message) Text() string {
	var text string
	for _, p := range m.Parts {
		if p.Kind == KindText {
			text += p.Text
		}
	}
	return text
}

// TaskStatus is the current state of a task with an optional agent message
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
}

// NewTaskStatus stamps a status with the current time
func NewTaskStatus(state TaskState, msg *Message) TaskStatus {
	return TaskStatus{
		State:     state,
		Message:   msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Artifact is an output produced by a task
type Artifact struct {
	ArtifactID string `json:"artifactId"`
	Name       string `json:"name,omitempty"`
	Parts      []Part `json:"parts"`
}

// Task is a unit of work tracked by the agent server
type Task struct {
	Kind      string     `json:"kind"`
	ID        string     `json:"id"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	History   []Message  `json:"history,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// TaskStatusUpdateEvent reports a status transition on a stream
type TaskStatusUpdateEvent struct {
	Kind      string     `json:"kind"`
	TaskID    string     `json:"taskId"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	Final     bool       `json:"final"`
}

// StreamEvent is one item of a streaming reply, kept as received
type StreamEvent struct {
	Kind string
	Raw  json.RawMessage
}

// NewStreamEvent encodes a task, message or status update as a stream event
func NewStreamEvent(v interface{}) (StreamEvent, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return StreamEvent{}, fmt.Errorf("failed to encode stream event: %w", err)
	}
	return parseStreamEvent(raw)
}

func parseStreamEvent(raw json.RawMessage) (StreamEvent, error) {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return StreamEvent{}, fmt.Errorf("malformed stream event: %w", err)
	}
	return StreamEvent{Kind: probe.Kind, Raw: raw}, nil
}

// MarshalJSON emits the event exactly as it was received
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	if len(e.Raw) == 0 {
		return []byte("null"), nil
	}
	return e.Raw, nil
}

// Task decodes the event as a task
func (e StreamEvent) Task() (*Task, error) {
	if e.Kind != KindTask {
		return nil, fmt.Errorf("stream event is %q, not a task", e.Kind)
	}
	var task Task
	if err := json.Unmarshal(e.Raw, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// StatusUpdate decodes the event as a status update
func (e StreamEvent) StatusUpdate() (*TaskStatusUpdateEvent, error) {
	if e.Kind != KindStatusUpdate {
		return nil, fmt.Errorf("stream event is %q, not a status update", e.Kind)
	}
	var update TaskStatusUpdateEvent
	if err := json.Unmarshal(e.Raw, &update); err != nil {
		return nil, err
	}
	return &update, nil
}

// MessageSendParams are the params of message/send and message/stream
type MessageSendParams struct {
	Message  Message                `json:"message"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// TaskQueryParams are the params of tasks/get
type TaskQueryParams struct {
	ID            string `json:"id"`
	HistoryLength *int   `json:"historyLength,omitempty"`
}

// TaskIDParams are the params of tasks/cancel
type TaskIDParams struct {
	ID string `json:"id"`
}

// ListTasksParams are the params of tasks/list
type ListTasksParams struct {
	ContextID string `json:"contextId,omitempty"`
}

// ListTasksResult is the result of tasks/list
type ListTasksResult struct {
	Tasks []Task `json:"tasks"`
}

// AgentCapabilities advertises optional protocol features
type AgentCapabilities struct {
	Streaming bool `json:"streaming"`
}

// AgentSkill describes one capability of the agent
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// AgentCard is the discovery document served at AgentCardPath
type AgentCard struct {
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	URL                string            `json:"url"`
	Version            string            `json:"version"`
	ProtocolVersion    string            `json:"protocolVersion"`
	Capabilities       AgentCapabilities `json:"capabilities"`
	DefaultInputModes  []string          `json:"defaultInputModes"`
	DefaultOutputModes []string          `json:"defaultOutputModes"`
	Skills             []AgentSkill      `json:"skills"`
}
