package callbacks_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/effective-security/medichat/assistants"
	"github.com/effective-security/medichat/callbacks"
	"github.com/effective-security/medichat/pkg/llms"
	"github.com/effective-security/medichat/registry"
	"github.com/stretchr/testify/assert"
)

type fakeModel struct{ name string }

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return nil, nil
}
func (m *fakeModel) GetName() string                    { return m.name }
func (m *fakeModel) GetProviderType() llms.ProviderType { return llms.ProviderAnthropic }

func testAssistant(name string) *assistants.Assistant {
	return assistants.NewAssistant(nil, nil, registry.New()).WithName(name)
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	cb := callbacks.NewPrinter(&buf, callbacks.ModeVerbose)

	ast := testAssistant("test-assistant")
	llm := &fakeModel{name: "claude"}
	ctx := context.Background()

	resp := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: "test output"},
		},
	}

	cb.OnAssistantStart(ctx, ast, "test input")
	cb.OnAssistantLLMCallStart(ctx, ast, llm, []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, "test input"),
	})
	cb.OnAssistantLLMCallEnd(ctx, ast, llm, resp)
	cb.OnToolStart(ctx, ast, "search_papers", `{"topic":"ibuprofen"}`)
	cb.OnToolEnd(ctx, ast, "search_papers", `{"topic":"ibuprofen"}`, "paper-1")
	cb.OnToolError(ctx, ast, "extract_info", `{"paper_id":"x"}`, errors.New("test error"))
	cb.OnAssistantEnd(ctx, ast, "test input", resp, nil)
	cb.OnAssistantError(ctx, ast, "test input", errors.New("test error"))

	res := buf.String()
	assert.Contains(t, res, "Assistant Start: test-assistant")
	assert.Contains(t, res, "Input: test input")
	assert.Contains(t, res, "Assistant LLM Call: test-assistant: claude model, 1 messages")
	assert.Contains(t, res, "Assistant LLM Call End: test-assistant: claude model, 1 choices")
	assert.Contains(t, res, "Tool Start: search_papers (test-assistant)")
	assert.Contains(t, res, "Tool End: search_papers (test-assistant)")
	assert.Contains(t, res, "Output: paper-1")
	assert.Contains(t, res, "Tool Error: extract_info (test-assistant): test error")
	assert.Contains(t, res, "Assistant End: test-assistant")
	assert.Contains(t, res, "test output")
	assert.Contains(t, res, "Assistant Error: test-assistant: test error")
}

func TestFanout(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	fan := callbacks.NewFanout(callbacks.NewPrinter(&buf1, callbacks.ModeDefault))
	fan.Add(callbacks.NewPrinter(&buf2, callbacks.ModeDefault))

	ast := testAssistant("test-assistant")
	fan.OnAssistantStart(context.Background(), ast, "input")

	assert.Contains(t, buf1.String(), "Assistant Start: test-assistant")
	assert.Equal(t, buf1.String(), buf2.String())
}

func TestNoop(t *testing.T) {
	cb := callbacks.NewNoop()
	ast := testAssistant("test-assistant")
	// no panics on any event
	cb.OnAssistantStart(context.Background(), ast, "input")
	cb.OnAssistantError(context.Background(), ast, "input", errors.New("err"))
	cb.OnToolStart(context.Background(), ast, "tool", "input")
}
