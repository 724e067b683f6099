package agentserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/radbridge/internal/observability"
	"github.com/harun/radbridge/internal/tracing"
	"github.com/harun/radbridge/pkg/a2a"
	"github.com/harun/radbridge/pkg/llm"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxSteps       = 8
	defaultMaxConcurrency = 4
)

// ErrMaxSteps is returned when the model keeps calling tools past the limit
var ErrMaxSteps = errors.New("chat skill exceeded maximum tool steps")

// ProgressFunc receives human-readable progress while a turn runs
type ProgressFunc func(text string)

// ChatSkill answers a conversation with the model, running the tools it
// asks for until it produces a final reply
type ChatSkill struct {
	model          llm.Model
	provider       string
	tools          map[string]Tool
	specs          []llm.ToolSpec
	system         string
	maxSteps       int
	maxConcurrency int
	logger         zerolog.Logger
}

// ChatSkillConfig configures a ChatSkill
type ChatSkillConfig struct {
	Model          llm.Model
	Provider       string
	Tools          []Tool
	SystemPrompt   string
	MaxSteps       int
	MaxConcurrency int
	Logger         zerolog.Logger
}

// NewChatSkill creates a chat skill
func NewChatSkill(cfg ChatSkillConfig) (*ChatSkill, error) {
	if cfg.Model == nil {
		return nil, errors.New("model is required")
	}

	tools := make(map[string]Tool, len(cfg.Tools))
	for _, t := range cfg.Tools {
		if _, dup := tools[t.Name()]; dup {
			return nil, fmt.Errorf("duplicate tool name: %s", t.Name())
		}
		tools[t.Name()] = t
	}

	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}

	return &ChatSkill{
		model:          cfg.Model,
		provider:       cfg.Provider,
		tools:          tools,
		specs:          toolSpecs(cfg.Tools),
		system:         cfg.SystemPrompt,
		maxSteps:       maxSteps,
		maxConcurrency: maxConcurrency,
		logger:         cfg.Logger,
	}, nil
}

// Run produces the agent reply for the task's history
func (s *ChatSkill) Run(ctx context.Context, history []a2a.Message, progress ProgressFunc) (string, error) {
	logger := tracing.LoggerFromContext(ctx, s.logger)
	if progress == nil {
		progress = func(string) {}
	}

	thread := threadFromHistory(s.system, history)

	for step := 0; step < s.maxSteps; step++ {
		start := time.Now()
		resp, err := s.model.Generate(ctx, thread, s.specs)
		observability.RecordModelGeneration(s.provider, time.Since(start), err == nil)
		if err != nil {
			return "", fmt.Errorf("model generation failed: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Text, nil
		}

		logger.Debug().
			Int("step", step).
			Int("tool_calls", len(resp.ToolCalls)).
			Msg("Model requested tools")

		thread.Append(llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		results, err := s.runTools(ctx, resp.ToolCalls, progress)
		if err != nil {
			return "", err
		}
		thread.Append(results...)
	}

	return "", ErrMaxSteps
}

// runTools executes one turn's tool calls concurrently. Tool failures are
// reported to the model; only cancellation aborts the turn.
func (s *ChatSkill) runTools(ctx context.Context, calls []llm.ToolCall, progress ProgressFunc) ([]llm.Message, error) {
	results := make([]llm.Message, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)

	for i, call := range calls {
		i, call := i, call
		progress(fmt.Sprintf("Calling tool %s", call.Name))

		g.Go(func() error {
			msg := llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			}

			tool, ok := s.tools[call.Name]
			if !ok {
				msg.Content = fmt.Sprintf("unknown tool: %s", call.Name)
				msg.IsError = true
				results[i] = msg
				return nil
			}

			out, err := tool.Run(gctx, call.Args)
			if err != nil {
				msg.Content = err.Error()
				msg.IsError = true
			} else {
				msg.Content = encodeToolResult(out)
			}
			results[i] = msg
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func threadFromHistory(system string, history []a2a.Message) llm.Thread {
	thread := llm.Thread{System: system}
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == a2a.MessageRoleAgent {
			role = llm.RoleAssistant
		}
		thread.Append(llm.Message{Role: role, Content: m.Text()})
	}
	return thread
}
