package llms

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageMarshalSingleText(t *testing.T) {
	msg := MessageFromTextParts(RoleHuman, "hello")
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"human","text":"hello"}`, string(raw))

	var back Message
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, msg, back)
}

func TestMessageMarshalMixedParts(t *testing.T) {
	msg := Message{
		Role: RoleAI,
		Parts: []ContentPart{
			TextContent{Text: "looking that up"},
			ToolCall{
				ID:   "call_1",
				Type: "function",
				FunctionCall: &FunctionCall{
					Name:      "search_papers",
					Arguments: `{"topic":"ibuprofen"}`,
				},
			},
		},
	}

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var back Message
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Len(t, back.Parts, 2)
	assert.Equal(t, msg.Parts[0], back.Parts[0])
	assert.Equal(t, msg.Parts[1], back.Parts[1])
}

func TestMessageMarshalToolResponse(t *testing.T) {
	msg := MessageFromToolResponse(RoleTool, ToolCallResponse{
		ToolCallID: "call_1",
		Name:       "search_papers",
		Content:    "2 papers found",
	})

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var back Message
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Len(t, back.Parts, 1)
	resp, ok := back.Parts[0].(ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "call_1", resp.ToolCallID)
	assert.Equal(t, "2 papers found", resp.Content)
}

func TestUnmarshalUnknownPartType(t *testing.T) {
	var msg Message
	err := json.Unmarshal([]byte(`{"role":"ai","parts":[{"type":"hologram"}]}`), &msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown content type")
}
