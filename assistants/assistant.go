package assistants

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/medichat/chatmodel"
	"github.com/effective-security/medichat/mcp"
	"github.com/effective-security/medichat/pkg/llms"
	"github.com/effective-security/medichat/pkg/llmutils"
	"github.com/effective-security/medichat/pkg/metricskey"
	"github.com/effective-security/medichat/pkg/prompts"
	"github.com/effective-security/medichat/registry"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/medichat", "assistants")

// DefaultMaxTurns is the hard ceiling on model round-trips per query.
const DefaultMaxTurns = 5

// ReadResourceToolName is the built-in tool the model uses to read a
// provider resource by URI. It is advertised whenever any provider exposes
// resources and is dispatched by the assistant itself, never sent to a
// provider as a tool call.
const ReadResourceToolName = "read_resource"

// ErrTurnLimitExceeded is returned when the model keeps requesting tools
// past the configured turn ceiling.
var ErrTurnLimitExceeded = errors.New("turn limit exceeded")

// CapabilityRouter dispatches tool invocations and resource reads to the
// owning provider session.
type CapabilityRouter interface {
	Invoke(ctx context.Context, name string, args json.RawMessage) (mcp.CallToolResult, error)
	ReadResource(ctx context.Context, uri string) (mcp.ReadResourceResult, error)
}

// Assistant runs the conversation loop for one chat. It is safe for
// sequential queries on the same chat; the capability list is fixed at
// construction.
type Assistant struct {
	LLM llms.Model

	router     CapabilityRouter
	cfg        *Config
	name       string
	sysprompt  *prompts.Template
	toolDefs   []llms.Tool
	promptData prompts.AssistantPromptData
}

// NewAssistant builds an assistant over the model, the router and the merged
// capability registry.
func NewAssistant(llmModel llms.Model, rtr CapabilityRouter, reg *registry.Registry, options ...Option) *Assistant {
	a := &Assistant{
		LLM:       llmModel,
		router:    rtr,
		cfg:       NewConfig(options...),
		name:      "medichat",
		sysprompt: prompts.AssistantSystemPrompt,
	}

	for _, td := range reg.Tools() {
		a.toolDefs = append(a.toolDefs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  td.InputSchema,
			},
		})
		a.promptData.Tools = append(a.promptData.Tools, prompts.ToolInfo{
			Name:        td.Name,
			Description: td.Description,
		})
	}

	resources := reg.Resources()
	if len(resources) > 0 {
		a.toolDefs = append(a.toolDefs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        ReadResourceToolName,
				Description: "Read a provider resource by URI.",
				Parameters:  json.RawMessage(`{"type":"object","properties":{"uri":{"type":"string","description":"Resource URI, e.g. papers://ibuprofen"}},"required":["uri"]}`),
			},
		})
	}
	for _, rd := range resources {
		a.promptData.Resources = append(a.promptData.Resources, prompts.ResourceInfo{
			URI:         values.StringsCoalesce(rd.URI, rd.URITemplate),
			Description: rd.Description,
		})
	}

	a.promptData.Name = a.name
	return a
}

// WithName sets the assistant name used in the system prompt and metrics.
func (a *Assistant) WithName(name string) *Assistant {
	a.name = name
	a.promptData.Name = name
	return a
}

// WithSystemPrompt replaces the default system prompt template.
func (a *Assistant) WithSystemPrompt(tmpl *prompts.Template) *Assistant {
	a.sysprompt = tmpl
	return a
}

// Name returns the assistant name.
func (a *Assistant) Name() string {
	return a.name
}

// Tools returns the tool definitions advertised to the model.
func (a *Assistant) Tools() []llms.Tool {
	return a.toolDefs
}

// SubmitQuery runs one user query to completion and returns the model's
// final text answer.
func (a *Assistant) SubmitQuery(ctx context.Context, input string, options ...Option) (string, error) {
	started := time.Now()
	defer metricskey.PerfQueryRun.MeasureSince(started, a.name)

	cfg := a.cfg.Apply(options...)
	cfg.callback().OnAssistantStart(ctx, a, input)

	answer, err := a.run(ctx, cfg, input)
	if err != nil {
		metricskey.StatsQueriesFailed.IncrCounter(1, a.name)
		cfg.callback().OnAssistantError(ctx, a, input, err)
		return "", err
	}
	metricskey.StatsQueriesSucceeded.IncrCounter(1, a.name)
	return answer, nil
}

func (a *Assistant) run(ctx context.Context, cfg *Config, input string) (string, error) {
	chatID, err := chatmodel.GetChatID(ctx)
	if err != nil {
		return "", errors.WithStack(chatmodel.ErrInvalidChatContext)
	}

	systemPrompt, err := a.systemPrompt(cfg)
	if err != nil {
		return "", errors.WithMessage(err, "failed to render system prompt")
	}

	history := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, systemPrompt),
	}
	if cfg.Store != nil {
		if cfg.ResetHistory {
			if err := cfg.Store.Reset(ctx); err != nil {
				return "", errors.WithMessage(err, "failed to reset chat history")
			}
		} else {
			prev := cfg.Store.Messages(ctx)
			logger.ContextKV(ctx, xlog.DEBUG,
				"assistant", a.name,
				"chat_id", chatID,
				"message_history", len(prev))
			history = append(history, prev...)
		}
	}

	userMessage := llms.MessageFromTextParts(llms.RoleHuman, input)
	history = append(history, userMessage)
	// Messages produced by this query, persisted on success.
	runMessages := []llms.Message{userMessage}

	callOpts := cfg.GetCallOptions(llms.WithTools(a.toolDefs))
	modelName := a.LLM.GetName()
	cb := cfg.callback()

	maxTurns := values.NumbersCoalesce(cfg.MaxTurns, DefaultMaxTurns)
	for turn := 0; turn < maxTurns; turn++ {
		metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(history)), a.name, modelName)
		cb.OnAssistantLLMCallStart(ctx, a, a.LLM, history)

		modelStarted := time.Now()
		resp, err := a.LLM.GenerateContent(ctx, history, callOpts...)
		if err != nil {
			// Fatal to this query only; the sessions stay alive.
			return "", errors.WithMessage(err, "model call failed")
		}
		metricskey.PerfModelCall.MeasureSince(modelStarted, a.name, modelName)
		cb.OnAssistantLLMCallEnd(ctx, a, a.LLM, resp)

		if len(resp.Choices) == 0 {
			return "", errors.Newf("assistant %s: model returned no choices", a.name)
		}
		a.countTokens(resp, modelName)

		toolCalls := collectToolCalls(resp)
		if len(toolCalls) == 0 {
			final := finalText(resp)
			aiMessage := llms.MessageFromTextParts(llms.RoleAI, final)
			runMessages = append(runMessages, aiMessage)
			a.persist(ctx, cfg, chatID, runMessages)
			logger.ContextKV(ctx, xlog.DEBUG,
				"assistant", a.name,
				"chat_id", chatID,
				"turns", turn+1,
				"answer_length", len(final),
			)
			cb.OnAssistantEnd(ctx, a, input, resp, runMessages)
			return final, nil
		}

		assistantMessage := llms.MessageFromToolCalls(llms.RoleAI, toolCalls...)
		history = append(history, assistantMessage)
		runMessages = append(runMessages, assistantMessage)

		// One result message per request, in emission order.
		for _, res := range a.dispatchToolCalls(ctx, cb, toolCalls) {
			toolMessage := llms.MessageFromToolResponse(llms.RoleTool, res)
			history = append(history, toolMessage)
			runMessages = append(runMessages, toolMessage)
		}
	}

	metricskey.StatsTurnLimitExceeded.IncrCounter(1, a.name)
	return "", errors.WithMessagef(ErrTurnLimitExceeded, "assistant %s: %d turns", a.name, maxTurns)
}

func (a *Assistant) systemPrompt(cfg *Config) (string, error) {
	if len(cfg.PromptInput) > 0 {
		data := llmutils.MergeInputs(map[string]any{
			"Name":      a.promptData.Name,
			"Tools":     a.promptData.Tools,
			"Resources": a.promptData.Resources,
		}, cfg.PromptInput)
		return a.sysprompt.Render(data)
	}
	return a.sysprompt.Render(a.promptData)
}

// dispatchToolCalls executes the model's tool-use requests concurrently,
// since they target independent provider processes, and reassembles the
// results in the original emission order. A failed call is folded into its
// result content so the model can recover instead of aborting the query.
func (a *Assistant) dispatchToolCalls(ctx context.Context, cb Callback, toolCalls []llms.ToolCall) []llms.ToolCallResponse {
	results := make([]llms.ToolCallResponse, len(toolCalls))

	var wg sync.WaitGroup
	wg.Add(len(toolCalls))
	for i, toolCall := range toolCalls {
		go func(index int, tc llms.ToolCall) {
			defer wg.Done()

			cb.OnToolStart(ctx, a, tc.FunctionCall.Name, tc.FunctionCall.Arguments)
			content, err := a.execute(ctx, tc)
			if err != nil {
				cb.OnToolError(ctx, a, tc.FunctionCall.Name, tc.FunctionCall.Arguments, err)
				content = fmt.Sprintf("Tool call failed: %s", err.Error())
				logger.ContextKV(ctx, xlog.WARNING,
					"assistant", a.name,
					"status", "tool_call_failed",
					"tool", tc.FunctionCall.Name,
					"err", err.Error(),
				)
			} else {
				cb.OnToolEnd(ctx, a, tc.FunctionCall.Name, tc.FunctionCall.Arguments, content)
			}
			results[index] = llms.ToolCallResponse{
				ToolCallID: tc.ID,
				Name:       tc.FunctionCall.Name,
				Content:    content,
			}
		}(i, toolCall)
	}
	wg.Wait()

	return results
}

func (a *Assistant) execute(ctx context.Context, tc llms.ToolCall) (string, error) {
	name := tc.FunctionCall.Name

	// A request may address a readable resource instead of a callable tool.
	if name == ReadResourceToolName || strings.Contains(name, "://") {
		uri := name
		if name == ReadResourceToolName {
			var params struct {
				URI string `json:"uri"`
			}
			if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &params); err != nil {
				return "", errors.WithMessage(err, "invalid read_resource arguments")
			}
			uri = params.URI
		}
		res, err := a.router.ReadResource(ctx, uri)
		if err != nil {
			return "", err
		}
		return res.JoinedText(), nil
	}

	res, err := a.router.Invoke(ctx, name, json.RawMessage(tc.FunctionCall.Arguments))
	if err != nil {
		return "", err
	}
	// A tool-level failure carries its details in the content blocks.
	return res.JoinedText(), nil
}

func (a *Assistant) countTokens(resp *llms.ContentResponse, modelName string) {
	in, out, _ := llmutils.CountTokens(resp)
	if in > 0 {
		metricskey.StatsLLMInputTokens.IncrCounter(float64(in), a.name, modelName)
	}
	if out > 0 {
		metricskey.StatsLLMOutputTokens.IncrCounter(float64(out), a.name, modelName)
	}
}

func (a *Assistant) persist(ctx context.Context, cfg *Config, chatID string, runMessages []llms.Message) {
	if cfg.Store == nil {
		return
	}
	for _, msg := range runMessages {
		if err := cfg.Store.Add(ctx, msg); err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"assistant", a.name,
				"chat_id", chatID,
				"status", "failed_to_persist_message",
				"err", err.Error(),
			)
			return
		}
	}
}

// collectToolCalls gathers the tool-use requests across all choices in the
// order the model emitted them, filling in missing call IDs.
func collectToolCalls(resp *llms.ContentResponse) []llms.ToolCall {
	var toolCalls []llms.ToolCall
	for _, choice := range resp.Choices {
		for i, toolCall := range choice.ToolCalls {
			if toolCall.ID == "" {
				toolCall.ID = fmt.Sprintf("%s_%d", toolCall.FunctionCall.Name, i)
			}
			toolCall.Type = values.StringsCoalesce(toolCall.Type, "function")
			toolCalls = append(toolCalls, toolCall)
		}
	}
	return toolCalls
}

// finalText joins the text content of all choices.
func finalText(resp *llms.ContentResponse) string {
	if len(resp.Choices) == 1 {
		return resp.Choices[0].Content
	}
	var sb strings.Builder
	for _, choice := range resp.Choices {
		if choice.Content == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(choice.Content)
	}
	return sb.String()
}
