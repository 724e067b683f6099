package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openAIModel serves OpenAI and the OpenAI-compatible providers
type openAIModel struct {
	client openai.Client
	cfg    Config
}

func newOpenAIModel(cfg Config, apiKey, baseURL string) *openAIModel {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if cfg.SiteURL != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.SiteURL))
	}
	if cfg.AppName != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.AppName))
	}

	return &openAIModel{
		client: openai.NewClient(opts...),
		cfg:    cfg,
	}
}

func (m *openAIModel) Name() string {
	return m.cfg.Model
}

func (m *openAIModel) Generate(ctx context.Context, thread Thread, tools []ToolSpec) (*Response, error) {
	messages, err := toOpenAIMessages(thread)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(m.cfg.Model),
		Messages: messages,
	}
	if m.cfg.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*m.cfg.MaxTokens))
	}
	if m.cfg.Temperature != nil {
		params.Temperature = openai.Float(*m.cfg.Temperature)
	}
	if m.cfg.TopP != nil {
		params.TopP = openai.Float(*m.cfg.TopP)
	}

	for _, tool := range tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  openai.FunctionParameters(tool.Parameters),
			},
		})
	}

	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s: chat completion failed: %w", m.cfg.Provider, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%s: no response choices returned", m.cfg.Provider)
	}

	choice := completion.Choices[0]
	resp := &Response{
		Text: choice.Message.Content,
		Usage: Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		args := map[string]interface{}{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("%s: failed to parse tool arguments: %w", m.cfg.Provider, err)
			}
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}

	return resp, nil
}

func toOpenAIMessages(thread Thread) ([]openai.ChatCompletionMessageParamUnion, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if thread.System != "" {
		messages = append(messages, openai.SystemMessage(thread.System))
	}

	for _, msg := range thread.Messages {
		switch msg.Role {
		case RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Content))
				continue
			}

			toolCalls := []openai.ChatCompletionMessageToolCall{}
			for _, tc := range msg.ToolCalls {
				argsJSON, err := json.Marshal(tc.Args)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal tool arguments: %w", err)
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				})
			}

			assistant := openai.ChatCompletionMessage{
				Role:      "assistant",
				Content:   msg.Content,
				ToolCalls: toolCalls,
			}
			messages = append(messages, assistant.ToParam())
		case RoleTool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}

	return messages, nil
}
