package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/harun/radbridge/internal/observability"
	"github.com/harun/radbridge/internal/tracing"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

const (
	DefaultSearchLimit = 10
)

// SearchResult represents a search result with relevance score
type SearchResult struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SearchOptions configures search behavior
type SearchOptions struct {
	Limit    int     `json:"limit"`
	MinScore float64 `json:"minScore"`
}

// Content is what callers store
type Content struct {
	Text     string                 `json:"text"`
	Source   string                 `json:"sourceId,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type entry struct {
	id        string
	content   Content
	terms     map[string]struct{}
	createdAt time.Time
}

// Manager holds memory entries in process
type Manager struct {
	logger  zerolog.Logger
	mu      sync.RWMutex
	entries map[string]*entry
}

// Config holds memory manager configuration
type Config struct {
	Logger zerolog.Logger
}

// NewManager creates a new memory manager
func NewManager(cfg Config) *Manager {
	return &Manager{
		logger:  cfg.Logger,
		entries: make(map[string]*entry),
	}
}

// Add stores content and returns its id
func (m *Manager) Add(ctx context.Context, content Content) (string, error) {
	if strings.TrimSpace(content.Text) == "" {
		return "", errors.New("memory text is required")
	}

	e := &entry{
		id:        ulid.Make().String(),
		content:   content,
		terms:     termSet(content.Text),
		createdAt: time.Now(),
	}

	m.mu.Lock()
	m.entries[e.id] = e
	total := len(m.entries)
	m.mu.Unlock()
	observability.SetMemoryEntries(total)

	logger := tracing.LoggerFromContext(ctx, m.logger)
	logger.Debug().
		Str("memory_id", e.id).
		Str("source", content.Source).
		Msg("Memory added")

	return e.id, nil
}

// Delete removes an entry; it reports whether the entry existed
func (m *Manager) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	_, ok := m.entries[id]
	delete(m.entries, id)
	total := len(m.entries)
	m.mu.Unlock()
	observability.SetMemoryEntries(total)

	logger := tracing.LoggerFromContext(ctx, m.logger)
	logger.Debug().
		Str("memory_id", id).
		Bool("existed", ok).
		Msg("Memory deleted")

	return ok, nil
}

// Len returns the number of stored entries
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Search scores every entry by the fraction of query terms it contains
func (m *Manager) Search(ctx context.Context, query string, opts *SearchOptions) ([]SearchResult, error) {
	if opts == nil {
		opts = &SearchOptions{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	queryTerms := termSet(query)
	if len(queryTerms) == 0 {
		return []SearchResult{}, nil
	}

	type scored struct {
		e     *entry
		score float64
	}

	m.mu.RLock()
	candidates := make([]scored, 0, len(m.entries))
	for _, e := range m.entries {
		hits := 0
		for term := range queryTerms {
			if _, ok := e.terms[term]; ok {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := float64(hits) / float64(len(queryTerms))
		if score < opts.MinScore {
			continue
		}
		candidates = append(candidates, scored{e: e, score: score})
	}
	m.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].e.createdAt.After(candidates[j].e.createdAt)
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, SearchResult{
			ID:       c.e.id,
			Text:     c.e.content.Text,
			Score:    c.score,
			Metadata: c.e.content.Metadata,
		})
	}

	logger := tracing.LoggerFromContext(ctx, m.logger)
	logger.Debug().
		Str("query", query).
		Int("results", len(results)).
		Msg("Search completed")

	return results, nil
}

func termSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	terms := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		terms[f] = struct{}{}
	}
	return terms
}
