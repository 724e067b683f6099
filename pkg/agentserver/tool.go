package agentserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harun/radbridge/pkg/llm"
	"github.com/harun/radbridge/pkg/memory"
)

// Tool is a capability the chat skill may call
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON schema of the tool arguments
	Parameters() map[string]interface{}
	Run(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

func toolSpecs(tools []Tool) []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, llm.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return specs
}

// encodeToolResult renders a tool result as message content
func encodeToolResult(result interface{}) string {
	switch v := result.(type) {
	case nil:
		return "null"
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// FuncTool adapts a function to Tool
type FuncTool struct {
	ToolName        string
	ToolDescription string
	Schema          map[string]interface{}
	Fn              func(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

func (t *FuncTool) Name() string                       { return t.ToolName }
func (t *FuncTool) Description() string                { return t.ToolDescription }
func (t *FuncTool) Parameters() map[string]interface{} { return t.Schema }

func (t *FuncTool) Run(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return t.Fn(ctx, args)
}

// MemoryTools exposes a memory manager to the model
func MemoryTools(mgr *memory.Manager) []Tool {
	return []Tool{
		&FuncTool{
			ToolName:        "memory_search",
			ToolDescription: "Search long-term memory for notes relevant to a query.",
			Schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{"type": "string", "description": "What to look for"},
					"limit": map[string]interface{}{"type": "integer", "description": "Maximum results"},
				},
				"required": []interface{}{"query"},
			},
			Fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				query, _ := args["query"].(string)
				if query == "" {
					return nil, fmt.Errorf("query is required")
				}
				opts := &memory.SearchOptions{}
				if limit, ok := args["limit"].(float64); ok {
					opts.Limit = int(limit)
				}
				return mgr.Search(ctx, query, opts)
			},
		},
		&FuncTool{
			ToolName:        "memory_save",
			ToolDescription: "Save a note to long-term memory.",
			Schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"text": map[string]interface{}{"type": "string", "description": "The note to remember"},
				},
				"required": []interface{}{"text"},
			},
			Fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				text, _ := args["text"].(string)
				id, err := mgr.Add(ctx, memory.Content{Text: text, Source: "agent"})
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"id": id}, nil
			},
		},
	}
}
