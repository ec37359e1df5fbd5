package assistants

import (
	"context"

	"github.com/effective-security/medichat/pkg/llms"
)

// Callback receives the events of the conversation loop: query start and
// completion, model calls and capability dispatches. Implementations must be
// safe for concurrent tool events.
type Callback interface {
	OnAssistantStart(ctx context.Context, assistant *Assistant, input string)
	OnAssistantEnd(ctx context.Context, assistant *Assistant, input string, resp *llms.ContentResponse, messages []llms.Message)
	OnAssistantError(ctx context.Context, assistant *Assistant, input string, err error)
	OnAssistantLLMCallStart(ctx context.Context, assistant *Assistant, llm llms.Model, payload []llms.Message)
	OnAssistantLLMCallEnd(ctx context.Context, assistant *Assistant, llm llms.Model, resp *llms.ContentResponse)
	OnToolStart(ctx context.Context, assistant *Assistant, tool, input string)
	OnToolEnd(ctx context.Context, assistant *Assistant, tool, input, output string)
	OnToolError(ctx context.Context, assistant *Assistant, tool, input string, err error)
}

type nopCallback struct{}

func (nopCallback) OnAssistantStart(ctx context.Context, assistant *Assistant, input string) {}
func (nopCallback) OnAssistantEnd(ctx context.Context, assistant *Assistant, input string, resp *llms.ContentResponse, messages []llms.Message) {
}
func (nopCallback) OnAssistantError(ctx context.Context, assistant *Assistant, input string, err error) {
}
func (nopCallback) OnAssistantLLMCallStart(ctx context.Context, assistant *Assistant, llm llms.Model, payload []llms.Message) {
}
func (nopCallback) OnAssistantLLMCallEnd(ctx context.Context, assistant *Assistant, llm llms.Model, resp *llms.ContentResponse) {
}
func (nopCallback) OnToolStart(ctx context.Context, assistant *Assistant, tool, input string) {}
func (nopCallback) OnToolEnd(ctx context.Context, assistant *Assistant, tool, input, output string) {
}
func (nopCallback) OnToolError(ctx context.Context, assistant *Assistant, tool, input string, err error) {
}

// callback returns the configured callback, or a no-op.
func (c *Config) callback() Callback {
	if c.Callback != nil {
		return c.Callback
	}
	return nopCallback{}
}
