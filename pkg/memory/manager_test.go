package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager(Config{Logger: zerolog.Nop()})
}

func TestAddAndSearch(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager()

	id, err := mgr.Add(ctx, Content{Text: "The user prefers dark mode", Metadata: map[string]interface{}{"topic": "ui"}})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = mgr.Add(ctx, Content{Text: "Deploys happen on Fridays"})
	require.NoError(t, err)

	results, err := mgr.Search(ctx, "dark mode", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "ui", results[0].Metadata["topic"])
}

func TestAddRejectsEmptyText(t *testing.T) {
	_, err := newTestManager().Add(context.Background(), Content{Text: "  "})
	assert.Error(t, err)
}

func TestSearchMinScoreAndOrdering(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager()

	partial, err := mgr.Add(ctx, Content{Text: "coffee in the morning"})
	require.NoError(t, err)
	full, err := mgr.Add(ctx, Content{Text: "coffee with oat milk"})
	require.NoError(t, err)

	results, err := mgr.Search(ctx, "coffee oat", nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, full, results[0].ID)
	assert.Equal(t, partial, results[1].ID)

	results, err = mgr.Search(ctx, "coffee oat", &SearchOptions{MinScore: 0.75})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, full, results[0].ID)
}

func TestSearchLimitDefaultsToTen(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager()

	for i := 0; i < 15; i++ {
		_, err := mgr.Add(ctx, Content{Text: fmt.Sprintf("note %d about tea", i)})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	results, err := mgr.Search(ctx, "tea", nil)
	require.NoError(t, err)
	assert.Len(t, results, DefaultSearchLimit)

	results, err = mgr.Search(ctx, "tea", &SearchOptions{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, "note 14 about tea", results[0].Text)
}

func TestSearchEmptyQuery(t *testing.T) {
	results, err := newTestManager().Search(context.Background(), "  ", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager()

	id, err := mgr.Add(ctx, Content{Text: "temporary"})
	require.NoError(t, err)

	ok, err := mgr.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, mgr.Len())

	ok, err = mgr.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}
