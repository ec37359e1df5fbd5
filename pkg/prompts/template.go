// Package prompts renders system prompts from Go text templates with the
// sprig function library available.
package prompts

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
)

// Template is a named system-prompt template.
type Template struct {
	name string
	tmpl *template.Template
}

// New parses a template with sprig text functions.
func New(name, text string) (*Template, error) {
	tmpl, err := template.New(name).Funcs(sprig.FuncMap()).Parse(text)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to parse template %s", name)
	}
	return &Template{name: name, tmpl: tmpl}, nil
}

// MustNew parses a template and panics on error. For package-level templates.
func MustNew(name, text string) *Template {
	t, err := New(name, text)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the template name.
func (t *Template) Name() string {
	return t.name
}

// Render executes the template and trims trailing newlines.
func (t *Template) Render(data any) (string, error) {
	var buf strings.Builder
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return "", errors.WithMessagef(err, "failed to render template %s", t.name)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// ToolInfo describes one callable tool for the capability listing.
type ToolInfo struct {
	Name        string
	Description string
}

// ResourceInfo describes one readable resource for the capability listing.
type ResourceInfo struct {
	URI         string
	Description string
}

// AssistantPromptData is the input of AssistantSystemPrompt.
type AssistantPromptData struct {
	Name      string
	Tools     []ToolInfo
	Resources []ResourceInfo
}

// AssistantSystemPrompt is the default system prompt of the medication
// research assistant.
var AssistantSystemPrompt = MustNew("assistant", `You are {{ .Name | default "medichat" }}, a research assistant answering questions about over-the-counter medications.

You ground every answer in the published literature reachable through your tools. Cite the papers you used. If the available tools cannot answer the question, say so instead of guessing.
{{- if .Tools }}

# TOOLS
{{- range .Tools }}
- {{ .Name }}{{ with .Description }}: {{ . | trim }}{{ end }}
{{- end }}
{{- end }}
{{- if .Resources }}

# RESOURCES
Read these with the read_resource tool:
{{- range .Resources }}
- {{ .URI }}{{ with .Description }}: {{ . | trim }}{{ end }}
{{- end }}
{{- end }}

Do not diagnose conditions or prescribe treatment. Report what the research says, including dosage information found in the papers, and remind the user to consult a pharmacist or physician.`)
