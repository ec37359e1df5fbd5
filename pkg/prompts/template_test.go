package prompts_test

import (
	"strings"
	"testing"

	"github.com/effective-security/medichat/pkg/prompts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	tmpl, err := prompts.New("greeting", `Hello {{ .Name | upper }}!{{ "\n" }}`)
	require.NoError(t, err)
	assert.Equal(t, "greeting", tmpl.Name())

	out, err := tmpl.Render(map[string]any{"Name": "world"})
	require.NoError(t, err)
	assert.Equal(t, "Hello WORLD!", out)
}

func TestNewParseError(t *testing.T) {
	_, err := prompts.New("bad", `{{ .Name `)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse template bad")
}

func TestAssistantSystemPrompt(t *testing.T) {
	out, err := prompts.AssistantSystemPrompt.Render(prompts.AssistantPromptData{
		Tools: []prompts.ToolInfo{
			{Name: "search_papers", Description: "Searches the literature.\n"},
			{Name: "extract_info"},
		},
		Resources: []prompts.ResourceInfo{
			{URI: "papers://folders", Description: "Available topics"},
		},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "You are medichat"))
	assert.Contains(t, out, "- search_papers: Searches the literature.")
	assert.Contains(t, out, "- extract_info\n")
	assert.Contains(t, out, "# RESOURCES")
	assert.Contains(t, out, "- papers://folders: Available topics")
	assert.False(t, strings.HasSuffix(out, "\n"))
}

func TestAssistantSystemPromptNoCapabilities(t *testing.T) {
	out, err := prompts.AssistantSystemPrompt.Render(prompts.AssistantPromptData{Name: "test-agent"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "You are test-agent"))
	assert.NotContains(t, out, "# TOOLS")
	assert.NotContains(t, out, "# RESOURCES")
}
