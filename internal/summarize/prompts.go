package summarize

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

const fence = "```"

const (
	formatTemplate = `{{if .SenderNames}}
The following is only a short extract, not the full thread. It's formatted like this
[<sender_name_a>] <message_text_1>
[<sender_name_b>] <message_text_2>
...
{{else}}
The following is only a short extract, not the full thread, one message per line.
{{end}}`

	guidelinesTemplate = `{{range $i, $g := .Guidelines}}{{inc $i}}. {{$g}}
{{end}}`

	initialTemplate = `{{.Context}}
{{template "format" .}}
Summarize this extract following these guidelines:
{{template "guidelines" .}}
` + fence + `
{{.Lines}}
` + fence

	refineTemplate = `{{.Context}}

Below is a summary of the earlier part of the thread:
` + fence + `
{{.Summary}}
` + fence + `
{{template "format" .}}
Refine the summary with the next extract, keeping what is still relevant and
adding what is new, following these guidelines:
{{template "guidelines" .}}
` + fence + `
{{.Lines}}
` + fence
)

var promptTemplates = template.Must(
	template.New("prompts").
		Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
		Parse(`{{define "format"}}` + formatTemplate + `{{end}}` +
			`{{define "guidelines"}}` + guidelinesTemplate + `{{end}}` +
			`{{define "initial"}}` + initialTemplate + `{{end}}` +
			`{{define "refine"}}` + refineTemplate + `{{end}}`),
)

// Prompts holds the fixed parts of every prompt.
type Prompts struct {
	Context     string
	Guidelines  []string
	SenderNames bool
}

type promptData struct {
	Prompts
	Summary string
	Lines   string
}

// Initial builds the prompt that seeds a summary from the first batch.
func (p Prompts) Initial(lines string) (string, error) {
	return p.render("initial", promptData{Prompts: p, Lines: lines})
}

// Refine builds the prompt that folds the next batch into summary.
func (p Prompts) Refine(summary, lines string) (string, error) {
	return p.render("refine", promptData{Prompts: p, Summary: summary, Lines: lines})
}

func (p Prompts) render(name string, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
