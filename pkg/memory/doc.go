// Package memory keeps the agent's long-term notes for one session and
// provides keyword search over them.
//
// Invariants:
// - Entries live only as long as the Manager; nothing is written to disk.
// - Scores are in [0, 1]; results are ordered by score, then recency.
// - Search applies MinScore before Limit.
//
// Usage:
//
//	mgr := memory.NewManager(memory.Config{})
//	id, _ := mgr.Add(ctx, memory.Content{Text: "user prefers dark mode"})
//	results, _ := mgr.Search(ctx, "dark mode", nil)
//	_, _ = mgr.Delete(ctx, id)
package memory
