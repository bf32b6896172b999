package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lectern/lectern/internal/ollama"
)

const defaultMaxToolRounds = 2

// ChatClient is the model interaction the runner needs.
type ChatClient interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, tools []ollama.Tool) (ollama.Message, error)
}

// Runner drives the tool orchestration loop: it sends the conversation to
// the model, executes any tool calls the model requests, folds the results
// back in, and repeats until the model produces a text answer or the round
// budget is spent. On the final round tools are withheld so the model must
// answer in text.
type Runner struct {
	client        ChatClient
	model         string
	registry      *Registry
	maxToolRounds int
	logger        *slog.Logger
}

// NewRunner creates a runner with the default round budget.
func NewRunner(client ChatClient, model string, registry *Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		client:        client,
		model:         model,
		registry:      registry,
		maxToolRounds: defaultMaxToolRounds,
		logger:        logger,
	}
}

// SetMaxToolRounds overrides the tool round budget. Values below zero are
// clamped to zero, which disables tool use entirely.
func (r *Runner) SetMaxToolRounds(n int) {
	if n < 0 {
		n = 0
	}
	r.maxToolRounds = n
}

// Run answers a single user query. history is the formatted prior
// conversation for the session, or empty. The returned sources list the
// materials consulted by tool executions during this query, in order.
func (r *Runner) Run(ctx context.Context, query, history string) (string, []string, error) {
	messages := []ollama.Message{
		{Role: "system", Content: buildSystemPrompt(history)},
		{Role: "user", Content: query},
	}

	var sources []string
	for round := 0; round <= r.maxToolRounds; round++ {
		var tools []ollama.Tool
		if round < r.maxToolRounds {
			tools = r.registry.Definitions()
		}

		msg, err := r.client.Chat(ctx, r.model, messages, tools)
		if err != nil {
			return "", nil, fmt.Errorf("chat round %d: %w", round, err)
		}

		if len(msg.ToolCalls) == 0 || tools == nil {
			return msg.Content, sources, nil
		}

		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			result, callSources := r.executeCall(ctx, call)
			sources = append(sources, callSources...)
			messages = append(messages, ollama.Message{
				Role:     "tool",
				Content:  result,
				ToolName: call.Function.Name,
			})
		}
	}

	// Unreachable: the final round never offers tools, so the loop
	// returns from inside.
	return "", sources, fmt.Errorf("tool round budget exhausted")
}

// executeCall runs one tool call. Failures become result text so the model
// can recover; only the model call itself is fatal to the query.
func (r *Runner) executeCall(ctx context.Context, call ollama.ToolCall) (string, []string) {
	name := call.Function.Name
	tool, ok := r.registry.Get(name)
	if !ok {
		r.logger.Warn("model requested unknown tool", "tool", name)
		return fmt.Sprintf("Error: unknown tool %q", name), nil
	}

	result, callSources, err := tool.Execute(ctx, call.Function.Arguments)
	if err != nil {
		r.logger.Warn("tool execution failed", "tool", name, "error", err)
		return fmt.Sprintf("Error: %s", err), nil
	}
	return result, callSources
}
