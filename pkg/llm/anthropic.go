package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicModel struct {
	client anthropic.Client
	cfg    Config
}

func newAnthropicModel(cfg Config, apiKey string) *anthropicModel {
	return &anthropicModel{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		cfg:    cfg,
	}
}

func (m *anthropicModel) Name() string {
	return m.cfg.Model
}

func (m *anthropicModel) Generate(ctx context.Context, thread Thread, tools []ToolSpec) (*Response, error) {
	maxTokens := defaultMaxTokens
	if m.cfg.MaxTokens != nil {
		maxTokens = *m.cfg.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.cfg.Model),
		Messages:  toAnthropicMessages(thread),
		MaxTokens: int64(maxTokens),
	}
	if thread.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: thread.System}}
	}
	if m.cfg.Temperature != nil {
		params.Temperature = anthropic.Float(*m.cfg.Temperature)
	}
	if m.cfg.TopP != nil {
		params.TopP = anthropic.Float(*m.cfg.TopP)
	}

	for _, tool := range tools {
		toolParam := anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: tool.Parameters["properties"],
				Required:   requiredFields(tool.Parameters),
			},
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}

	message, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: message request failed: %w", err)
	}

	resp := &Response{
		Usage: Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
		},
	}

	for _, block := range message.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Text += b.Text
		case anthropic.ToolUseBlock:
			args := map[string]interface{}{}
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &args); err != nil {
				return nil, fmt.Errorf("anthropic: failed to parse tool input: %w", err)
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:   b.ID,
				Name: b.Name,
				Args: args,
			})
		}
	}

	return resp, nil
}

func toAnthropicMessages(thread Thread) []anthropic.MessageParam {
	messages := []anthropic.MessageParam{}

	for _, msg := range thread.Messages {
		switch msg.Role {
		case RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case RoleAssistant:
			blocks := []anthropic.ContentBlockParamUnion{}
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Args, tc.Name))
			}
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		case RoleTool:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.IsError),
			))
		}
	}

	return messages
}

func requiredFields(schema map[string]interface{}) []string {
	raw, ok := schema["required"]
	if !ok {
		return nil
	}

	switch values := raw.(type) {
	case []string:
		return values
	case []interface{}:
		fields := make([]string, 0, len(values))
		for _, v := range values {
			if s, ok := v.(string); ok {
				fields = append(fields, s)
			}
		}
		return fields
	default:
		return nil
	}
}
