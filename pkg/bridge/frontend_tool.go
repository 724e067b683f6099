package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/harun/radbridge/pkg/agentserver"
	"github.com/xeipuuv/gojsonschema"
)

// ToolDefinition describes a tool the front-end implements
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Validate checks the definition has a name and a loadable JSON schema
func (d ToolDefinition) Validate() error {
	if d.Name == "" {
		return errors.New("tool name is required")
	}
	if d.Parameters == nil {
		return nil
	}
	if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(d.Parameters)); err != nil {
		return fmt.Errorf("tool %s: invalid parameters schema: %w", d.Name, err)
	}
	return nil
}

// FrontendTool is an agent tool whose execution is delegated to the
// front-end through a ToolCallBridge
type FrontendTool struct {
	def    ToolDefinition
	bridge *ToolCallBridge
}

var _ agentserver.Tool = (*FrontendTool)(nil)

// NewFrontendTool wraps def so calls go through b
func NewFrontendTool(def ToolDefinition, b *ToolCallBridge) *FrontendTool {
	return &FrontendTool{def: def, bridge: b}
}

func (t *FrontendTool) Name() string        { return t.def.Name }
func (t *FrontendTool) Description() string { return t.def.Description }

func (t *FrontendTool) Parameters() map[string]interface{} {
	if t.def.Parameters == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return t.def.Parameters
}

// Run waits for the front-end result. Failures become errors so the agent
// reports them to the model.
func (t *FrontendTool) Run(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	outcome := t.bridge.Invoke(ctx, t.def.Name, args)
	if outcome.IsError {
		return nil, errors.New(outcome.Message)
	}
	return outcome.Payload, nil
}
