package bridge

import (
	"sync"

	"github.com/google/uuid"
)

// PendingTable correlates request ids with the invocations waiting on them.
// Each slot receives at most one outcome; whoever removes the entry owns it.
type PendingTable struct {
	mu    sync.Mutex
	slots map[string]chan ToolOutcome
}

// NewPendingTable creates an empty table
func NewPendingTable() *PendingTable {
	return &PendingTable{
		slots: make(map[string]chan ToolOutcome),
	}
}

// Open registers a fresh request id and returns the slot to wait on
func (t *PendingTable) Open() (string, <-chan ToolOutcome) {
	id := uuid.NewString()
	slot := make(chan ToolOutcome, 1)

	t.mu.Lock()
	t.slots[id] = slot
	t.mu.Unlock()

	return id, slot
}

// take removes and returns the slot for id
func (t *PendingTable) take(id string) (chan ToolOutcome, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot, ok := t.slots[id]
	if ok {
		delete(t.slots, id)
	}
	return slot, ok
}

// Fulfill delivers outcome to the waiter on id. It returns false when id is
// not pending.
func (t *PendingTable) Fulfill(id string, outcome ToolOutcome) bool {
	slot, ok := t.take(id)
	if !ok {
		return false
	}
	// capacity 1 and sole owner: never blocks
	slot <- outcome
	close(slot)
	return true
}

// Abandon closes the slot for id without an outcome, which the waiter
// observes as cancellation. It returns false when id is not pending.
func (t *PendingTable) Abandon(id string) bool {
	slot, ok := t.take(id)
	if !ok {
		return false
	}
	close(slot)
	return true
}

// AbandonAll abandons every pending request and returns how many there were
func (t *PendingTable) AbandonAll() int {
	t.mu.Lock()
	slots := t.slots
	t.slots = make(map[string]chan ToolOutcome)
	t.mu.Unlock()

	for _, slot := range slots {
		close(slot)
	}
	return len(slots)
}

// Pending reports whether id is waiting for an outcome
func (t *PendingTable) Pending(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.slots[id]
	return ok
}

// Len returns the number of pending requests
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}
