// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package prompt

import (
	"strings"
	"text/template"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

const (
	TemplateSentence   = "sentence"
	TemplateCompletion = "completion"
)

var builtinTemplates = map[string]string{
	TemplateSentence:   "answer the question and answer as whole sentence: '{{.Query}}'\n\nContext: {{.Context}}",
	TemplateCompletion: "Question: {{.Query}}\nContext: {{.Context}}\nAnswer:",
}

// Data is what a prompt template sees.
type Data struct {
	Query   string
	Context string
}

// Template renders the generation prompt.
type Template struct {
	name string
	tmpl *template.Template
}

// ParseTemplate accepts a builtin template name or a literal template body.
func ParseTemplate(nameOrBody string) (*Template, error) {
	name, body := "custom", nameOrBody
	if builtin, ok := builtinTemplates[nameOrBody]; ok {
		name, body = nameOrBody, builtin
	}
	if strings.TrimSpace(body) == "" {
		return nil, wikierr.New(wikierr.CodePromptTemplateInvalid, "prompt template is empty")
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(body)
	if err != nil {
		return nil, wikierr.Wrap(err, wikierr.CodePromptTemplateInvalid, "parsing prompt template",
			wikierr.Field("template", name))
	}
	return &Template{name: name, tmpl: tmpl}, nil
}

func (t *Template) Name() string { return t.name }

func (t *Template) Render(query, context string) (string, error) {
	var sb strings.Builder
	if err := t.tmpl.Execute(&sb, Data{Query: query, Context: context}); err != nil {
		return "", wikierr.Wrap(err, wikierr.CodePromptRenderFailure, "rendering prompt",
			wikierr.Field("template", t.name))
	}
	return sb.String(), nil
}
