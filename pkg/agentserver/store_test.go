package agentserver

import (
	"context"
	"testing"

	"github.com/harun/radbridge/pkg/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStoreLifecycle(t *testing.T) {
	store := NewTaskStore()

	task, err := store.Begin(a2a.NewUserMessage("hi", "ctx", ""), func() {})
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateSubmitted, task.Status.State)
	assert.Equal(t, "ctx", task.ContextID)
	require.Len(t, task.History, 1)
	assert.Equal(t, task.ID, task.History[0].TaskID)

	_, err = store.Begin(a2a.NewUserMessage("again", "", task.ID), func() {})
	assert.ErrorIs(t, err, ErrTaskBusy)

	done, err := store.SetStatus(task.ID, a2a.TaskStateCompleted, a2a.NewAgentMessage("ok", "ctx", task.ID))
	require.NoError(t, err)
	assert.Len(t, done.History, 2)

	_, err = store.SetStatus(task.ID, a2a.TaskStateWorking, nil)
	assert.ErrorIs(t, err, ErrTaskTerminal)

	next, err := store.Begin(a2a.NewUserMessage("again", "", task.ID), func() {})
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateSubmitted, next.Status.State)
	assert.Len(t, next.History, 3)
}

func TestTaskStoreCancel(t *testing.T) {
	store := NewTaskStore()
	ctx, cancel := context.WithCancel(context.Background())

	task, err := store.Begin(a2a.NewUserMessage("hi", "", ""), cancel)
	require.NoError(t, err)

	canceled, err := store.Cancel(task.ID)
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCanceled, canceled.Status.State)
	assert.Error(t, ctx.Err())

	_, err = store.Cancel(task.ID)
	assert.ErrorIs(t, err, ErrTaskTerminal)

	_, err = store.Cancel("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTaskStoreSnapshotsAreCopies(t *testing.T) {
	store := NewTaskStore()
	task, err := store.Begin(a2a.NewUserMessage("hi", "", ""), nil)
	require.NoError(t, err)

	task.History[0].MessageID = "mutated"

	got, err := store.Get(task.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", got.History[0].MessageID)
}

func TestTaskStoreListOrder(t *testing.T) {
	store := NewTaskStore()
	var ids []string
	for i := 0; i < 5; i++ {
		task, err := store.Begin(a2a.NewUserMessage("m", "same", ""), nil)
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}
	_, err := store.Begin(a2a.NewUserMessage("m", "other", ""), nil)
	require.NoError(t, err)

	listed := store.List("same")
	require.Len(t, listed, 5)
	for i, task := range listed {
		assert.Equal(t, ids[i], task.ID)
	}
	assert.Len(t, store.List(""), 6)
}

func TestCancelAllStopsRunning(t *testing.T) {
	store := NewTaskStore()
	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())

	_, err := store.Begin(a2a.NewUserMessage("a", "", ""), cancel1)
	require.NoError(t, err)
	_, err = store.Begin(a2a.NewUserMessage("b", "", ""), cancel2)
	require.NoError(t, err)

	store.CancelAll()
	assert.Error(t, ctx1.Err())
	assert.Error(t, ctx2.Err())
}
