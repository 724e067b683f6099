package bridge

import (
	"context"
	"sync"

	"github.com/harun/radbridge/pkg/memory"
)

// SessionState owns the running agent of one session and the table of
// tool invocations waiting on the front-end. The handle and the table are
// guarded independently.
type SessionState struct {
	table *PendingTable

	mu     sync.RWMutex
	handle *AgentHandle
	memory *memory.Manager
}

// NewSessionState creates an empty session
func NewSessionState() *SessionState {
	return &SessionState{table: NewPendingTable()}
}

// Install records the agent of this session. It fails with
// ErrAlreadyInitialized when one is already installed.
func (s *SessionState) Install(handle *AgentHandle, mem *memory.Manager) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		return ErrAlreadyInitialized
	}
	s.handle = handle
	s.memory = mem
	return nil
}

// Handle returns the installed agent or ErrNotInitialized
func (s *SessionState) Handle() (*AgentHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.handle == nil {
		return nil, ErrNotInitialized
	}
	return s.handle, nil
}

// Memory returns the memory of the installed agent or ErrNotInitialized
func (s *SessionState) Memory() (*memory.Manager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.memory == nil {
		return nil, ErrNotInitialized
	}
	return s.memory, nil
}

// Table returns the pending request table
func (s *SessionState) Table() *PendingTable {
	return s.table
}

// Initialized reports whether an agent is installed
func (s *SessionState) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle != nil
}

// Teardown abandons every pending invocation and stops the installed agent.
// The session can be installed again afterwards.
func (s *SessionState) Teardown(ctx context.Context) error {
	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	s.memory = nil
	s.mu.Unlock()

	s.table.AbandonAll()

	if handle == nil {
		return nil
	}
	return handle.Close(ctx)
}
