package llmutils_test

import (
	"testing"

	"github.com/effective-security/medichat/pkg/llms"
	"github.com/effective-security/medichat/pkg/llmutils"
	"github.com/stretchr/testify/assert"
)

func Test_CleanJSON(t *testing.T) {
	llmOutput := "\n```json\n\n{\"ingredient\": \"ibuprofen\", \"class\": \"NSAID\"}\n\n```\n\n"
	clean := llmutils.CleanJSON([]byte(llmOutput))

	expected := "{\"ingredient\": \"ibuprofen\", \"class\": \"NSAID\"}"
	assert.Equal(t, expected, string(clean))

	llmOutput = "Here you go:\n```json\n\n[{\"ingredient\": \"ibuprofen\"}]\n```\n\n"
	clean = llmutils.CleanJSON([]byte(llmOutput))

	expected = "[{\"ingredient\": \"ibuprofen\"}]"
	assert.Equal(t, expected, string(clean))

	// already clean output is returned as is
	resp := "{\n\t\"answer\": \"take with food\",\n\t\"ids\": []\n}"
	assert.Equal(t, resp, string(llmutils.CleanJSON([]byte(resp))))
}

func Test_TrimBackticks(t *testing.T) {
	expected := "{\"ingredient\": \"ibuprofen\"}"

	assert.Equal(t, expected, llmutils.TrimBackticks("\n```json\n\n{\"ingredient\": \"ibuprofen\"}\n\n```\n\n"))
	// the same
	assert.Equal(t, expected, llmutils.TrimBackticks(expected))
	assert.Equal(t, expected, llmutils.TrimBackticks("\n```\n\n{\"ingredient\": \"ibuprofen\"}\n\n```\n\n"))
	assert.Equal(t, expected, llmutils.TrimBackticks("\n```{\"ingredient\": \"ibuprofen\"}\n\n```\n\n"))
}

func Test_BackticksJSON(t *testing.T) {
	json := "{\"ingredient\": \"ibuprofen\"}"
	wrapped := llmutils.BackticksJSON(json)

	expected := "\n```json\n{\"ingredient\": \"ibuprofen\"}\n```\n"
	assert.Equal(t, expected, wrapped)
}

func Test_Stringify(t *testing.T) {
	assert.Equal(t, "plain", llmutils.Stringify("plain"))
	assert.Equal(t, "part", llmutils.Stringify(llms.TextPart("part")))

	val := map[string]any{"key": "value"}
	assert.Equal(t, "\n```json\n{\n\t\"key\": \"value\"\n}\n```\n", llmutils.Stringify(val))
}

func Test_MergeInputs(t *testing.T) {
	merged := llmutils.MergeInputs(
		map[string]any{"Name": "medichat", "Locale": "en"},
		map[string]any{"Locale": "de"},
	)
	assert.Equal(t, map[string]any{"Name": "medichat", "Locale": "de"}, merged)
}

func Test_CountSizes(t *testing.T) {
	msgs := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "sys"),
		llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
			ID:   "c1",
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      "search_papers",
				Arguments: `{"topic":"x"}`,
			},
		}),
		llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
			ToolCallID: "c1",
			Name:       "search_papers",
			Content:    "ok",
		}),
	}
	// roles + text + tool call + tool response fields
	assert.Equal(t, uint64(68), llmutils.CountMessagesContentSize(msgs))

	resp := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content: "answer",
				ToolCalls: []llms.ToolCall{
					{ID: "c2", Type: "function", FunctionCall: &llms.FunctionCall{Name: "f", Arguments: "{}"}},
				},
			},
		},
	}
	assert.Equal(t, uint64(19), llmutils.CountResponseContentSize(resp))
}

func Test_CountTokens(t *testing.T) {
	resp := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{GenerationInfo: map[string]any{"InputTokens": 120, "OutputTokens": 42}},
		},
	}
	in, out, total := llmutils.CountTokens(resp)
	assert.Equal(t, int64(120), in)
	assert.Equal(t, int64(42), out)
	assert.Equal(t, int64(162), total)
}

func Test_FindLastUserQuestion(t *testing.T) {
	msgs := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "sys"),
		llms.MessageFromTextParts(llms.RoleHuman, "first"),
		llms.MessageFromTextParts(llms.RoleAI, "reply"),
		llms.MessageFromTextParts(llms.RoleHuman, "second"),
	}
	assert.Equal(t, "second", llmutils.FindLastUserQuestion(msgs))
	assert.Empty(t, llmutils.FindLastUserQuestion(nil))
}

func Test_EnsureEndsWithNewline(t *testing.T) {
	assert.Equal(t, "", llmutils.EnsureEndsWithNewline("  "))
	assert.Equal(t, "text\n", llmutils.EnsureEndsWithNewline("  text  "))
}
