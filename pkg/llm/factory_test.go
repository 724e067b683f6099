package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsProvider(t *testing.T) {
	tests := []struct {
		provider Provider
		wantType interface{}
	}{
		{ProviderOpenAI, &openAIModel{}},
		{ProviderOpenRouter, &openAIModel{}},
		{ProviderGrok, &openAIModel{}},
		{ProviderDeepSeek, &openAIModel{}},
		{ProviderAnthropic, &anthropicModel{}},
		{ProviderGemini, &geminiModel{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			model, err := New(Config{Provider: tt.provider, Model: "test-model", APIKey: "key"})
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, model)
			assert.Equal(t, "test-model", model.Name())
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{Provider: ProviderOpenAI})
	assert.Error(t, err)
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New(Config{Provider: ProviderOpenAI, Model: "gpt-4o"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestOpenAIModelGenerate(t *testing.T) {
	var gotHeaders http.Header
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		gotHeaders = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "router/model",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "checking",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "get_weather", "arguments": "{\"city\":\"Oslo\"}"}
					}]
				}
			}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10}
		}`)
	}))
	defer server.Close()

	cfg := Config{
		Provider:    ProviderOpenRouter,
		Model:       "router/model",
		SiteURL:     "https://example.com",
		AppName:     "demo",
		Temperature: floatPtr(0.2),
	}
	model := newOpenAIModel(cfg, "key", server.URL)

	thread := Thread{System: "be brief"}
	thread.Append(Message{Role: RoleUser, Content: "weather?"})

	resp, err := model.Generate(context.Background(), thread, []ToolSpec{{
		Name:        "get_weather",
		Description: "Looks up weather",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"city": map[string]interface{}{"type": "string"}},
		},
	}})
	require.NoError(t, err)

	assert.Equal(t, "checking", resp.Text)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "get_weather", resp.ToolCalls[0].Name)
	assert.Equal(t, "Oslo", resp.ToolCalls[0].Args["city"])
	assert.Equal(t, 7, resp.Usage.InputTokens)
	assert.Equal(t, 3, resp.Usage.OutputTokens)

	assert.Equal(t, "https://example.com", gotHeaders.Get("HTTP-Referer"))
	assert.Equal(t, "demo", gotHeaders.Get("X-Title"))
	assert.Equal(t, "Bearer key", gotHeaders.Get("Authorization"))
	assert.Equal(t, "router/model", gotBody["model"])
	assert.InDelta(t, 0.2, gotBody["temperature"], 1e-9)
	assert.Len(t, gotBody["tools"], 1)
}

func TestToOpenAIMessagesCarriesToolTurns(t *testing.T) {
	thread := Thread{}
	thread.Append(
		Message{Role: RoleUser, Content: "hi"},
		Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "t", Args: map[string]interface{}{}}}},
		Message{Role: RoleTool, ToolCallID: "c1", Content: "ok"},
	)

	msgs, err := toOpenAIMessages(thread)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestRequiredFields(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, requiredFields(map[string]interface{}{"required": []interface{}{"a", "b"}}))
	assert.Equal(t, []string{"x"}, requiredFields(map[string]interface{}{"required": []string{"x"}}))
	assert.Nil(t, requiredFields(map[string]interface{}{}))
}

func TestToGeminiSchema(t *testing.T) {
	schema := toGeminiSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tags": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
		},
		"required": []interface{}{"tags"},
	})

	require.NotNil(t, schema)
	assert.Equal(t, "OBJECT", string(schema.Type))
	require.Contains(t, schema.Properties, "tags")
	assert.Equal(t, "ARRAY", string(schema.Properties["tags"].Type))
	assert.Equal(t, "STRING", string(schema.Properties["tags"].Items.Type))
	assert.Equal(t, []string{"tags"}, schema.Required)
}

func TestToGeminiContentsWrapsPlainToolResult(t *testing.T) {
	thread := Thread{}
	thread.Append(
		Message{Role: RoleUser, Content: "hi"},
		Message{Role: RoleTool, ToolCallID: "c1", ToolName: "lookup", Content: "plain text", IsError: true},
	)

	contents := toGeminiContents(thread)
	require.Len(t, contents, 2)
	fr := contents[1].Parts[0].FunctionResponse
	require.NotNil(t, fr)
	assert.Equal(t, "lookup", fr.Name)
	assert.Equal(t, "plain text", fr.Response["result"])
	assert.Equal(t, true, fr.Response["error"])
}
