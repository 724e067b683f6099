package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

type geminiModel struct {
	client *genai.Client
	cfg    Config
}

func newGeminiModel(cfg Config, apiKey string) (*geminiModel, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}

	return &geminiModel{client: client, cfg: cfg}, nil
}

func (m *geminiModel) Name() string {
	return m.cfg.Model
}

func (m *geminiModel) Generate(ctx context.Context, thread Thread, tools []ToolSpec) (*Response, error) {
	result, err := m.client.Models.GenerateContent(ctx, m.cfg.Model, toGeminiContents(thread), m.buildConfig(thread, tools))
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content failed: %w", err)
	}

	resp := &Response{}
	if result.UsageMetadata != nil {
		resp.Usage = Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}

	for _, candidate := range result.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" {
				resp.Text += part.Text
			}
			if part.FunctionCall != nil {
				id := part.FunctionCall.ID
				if id == "" {
					// older API versions omit call ids
					id = "call_" + uuid.NewString()
				}
				args := part.FunctionCall.Args
				if args == nil {
					args = map[string]interface{}{}
				}
				resp.ToolCalls = append(resp.ToolCalls, ToolCall{
					ID:   id,
					Name: part.FunctionCall.Name,
					Args: args,
				})
			}
		}
		// only the first candidate is used
		break
	}

	return resp, nil
}

func (m *geminiModel) buildConfig(thread Thread, tools []ToolSpec) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if thread.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: thread.System}},
		}
	}
	if m.cfg.MaxTokens != nil {
		config.MaxOutputTokens = int32(min(*m.cfg.MaxTokens, math.MaxInt32))
	}
	if m.cfg.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*m.cfg.Temperature))
	}
	if m.cfg.TopP != nil {
		config.TopP = genai.Ptr(float32(*m.cfg.TopP))
	}

	if len(tools) > 0 {
		declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, tool := range tools {
			declarations = append(declarations, &genai.FunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  toGeminiSchema(tool.Parameters),
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}

	return config
}

func toGeminiContents(thread Thread) []*genai.Content {
	var contents []*genai.Content

	for _, msg := range thread.Messages {
		content := &genai.Content{}

		switch msg.Role {
		case RoleUser:
			content.Role = genai.RoleUser
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
		case RoleAssistant:
			content.Role = genai.RoleModel
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: tc.Args},
				})
			}
		case RoleTool:
			content.Role = genai.RoleUser
			var response map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Content), &response); err != nil {
				response = map[string]interface{}{
					"result": msg.Content,
					"error":  msg.IsError,
				}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolCallID,
					Name:     msg.ToolName,
					Response: response,
				},
			})
		}

		if len(content.Parts) > 0 {
			contents = append(contents, content)
		}
	}

	return contents
}

func toGeminiSchema(schemaMap map[string]interface{}) *genai.Schema {
	if schemaMap == nil {
		return nil
	}

	schema := &genai.Schema{}
	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]interface{}); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]interface{}); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]interface{}); ok {
				schema.Properties[name] = toGeminiSchema(propMap)
			}
		}
	}
	schema.Required = requiredFields(schemaMap)
	if items, ok := schemaMap["items"].(map[string]interface{}); ok {
		schema.Items = toGeminiSchema(items)
	}

	return schema
}
