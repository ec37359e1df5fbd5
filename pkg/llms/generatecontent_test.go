package llms_test

import (
	"testing"

	"github.com/effective-security/medichat/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageHelpers(t *testing.T) {
	msg := llms.MessageFromTextParts(llms.RoleHuman, "I have a headache.")
	require.Len(t, msg.Parts, 1)
	assert.Equal(t, llms.RoleHuman, msg.Role)
	assert.Equal(t, "I have a headache.\n", msg.GetContent())

	call := llms.ToolCall{
		ID:   "call_1",
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      "search_papers",
			Arguments: `{"topic":"headache"}`,
		},
	}
	msg = llms.MessageFromToolCalls(llms.RoleAI, call)
	require.Len(t, msg.Parts, 1)
	assert.Contains(t, msg.GetContent(), "Tool Call: ")
	assert.Contains(t, msg.GetContent(), "search_papers")

	msg = llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
		ToolCallID: "call_1",
		Name:       "search_papers",
		Content:    "3 results",
	})
	require.Len(t, msg.Parts, 1)
	assert.Contains(t, msg.GetContent(), "Response: ")
}

func TestToolCallString(t *testing.T) {
	call := llms.ToolCall{
		ID:   "call_2",
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      "extract_info",
			Arguments: `{"paper_id":"p1"}`,
		},
	}
	assert.Equal(t, `ToolCall: call_2 (extract_info), input: {"paper_id":"p1"}`, call.String())
}
