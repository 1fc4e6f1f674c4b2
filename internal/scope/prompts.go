// Package scope builds reasoning requests from project scope and message
// text, invokes the reasoning service, and validates its structured output.
package scope

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Task selects which reasoning template is built. Classification and both
// artifact drafts share one builder so the templates stay in one place.
type Task string

const (
	TaskClassify Task = "classify"
	TaskProposal Task = "proposal"
	TaskInvoice  Task = "invoice"
)

// TemplateInput carries the values substituted into a template. Placeholders
// are {{scope}}, {{message}}, {{project}} and {{currency}}.
type TemplateInput struct {
	ScopeText   string
	MessageText string
	ProjectName string
	Currency    string
}

// Template is one system/user prompt pair.
type Template struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// PromptSet holds the templates for every task, with built-in defaults and
// optional YAML overrides.
type PromptSet struct {
	templates map[Task]Template
}

const noScopeRecorded = "(no scope recorded for this project)"

var defaultTemplates = map[Task]Template{
	TaskClassify: {
		System: `You review client communication for a freelancer and decide whether the client is asking for work outside the agreed project scope. Respond with only a JSON object of this exact shape: {"is_out_of_scope": <bool>, "summary": "<one or two sentences>", "estimated_impact_hours": <number>, "suggested_price_increase": <number or string>}. If the request is within scope, use 0 for the hours and price fields.`,
		User: `Agreed project scope:
{{scope}}

Client message:
{{message}}`,
	},
	TaskProposal: {
		System: `You draft short, professional change-order proposals for a freelancer. Reference the client's request concretely, state the additional deliverable, and propose a timeline and price adjustment. Respond with the proposal text only, no preamble.`,
		User: `Project: {{project}}
Agreed scope:
{{scope}}

The client asked:
{{message}}

Draft a proposal covering the additional work.`,
	},
	TaskInvoice: {
		System: `You draft invoice line items for out-of-scope freelance work. Respond with only a JSON object of this exact shape: {"description": "<line item description>", "amount": <positive number, major units of {{currency}}>}.`,
		User: `Project: {{project}}
Agreed scope:
{{scope}}

The client asked:
{{message}}

Produce one invoice line item for the additional work.`,
	},
}

// DefaultPrompts returns the built-in templates.
func DefaultPrompts() *PromptSet {
	return &PromptSet{templates: defaultTemplates}
}

// LoadPrompts reads YAML overrides from path, falling back to the defaults
// for any task the file does not mention. An empty path returns the defaults.
func LoadPrompts(path string) (*PromptSet, error) {
	if path == "" {
		return DefaultPrompts(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scope: read prompts %s", path)
	}

	var overrides map[Task]Template
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, eris.Wrapf(err, "scope: parse prompts %s", path)
	}

	merged := make(map[Task]Template, len(defaultTemplates))
	for task, tpl := range defaultTemplates {
		merged[task] = tpl
	}
	for task, tpl := range overrides {
		base := merged[task]
		if tpl.System != "" {
			base.System = tpl.System
		}
		if tpl.User != "" {
			base.User = tpl.User
		}
		merged[task] = base
	}
	return &PromptSet{templates: merged}, nil
}

// Build renders the system and user prompts for a task. The output is
// deterministic for a given input.
func (p *PromptSet) Build(task Task, in TemplateInput) (system, user string) {
	tpl := p.templates[task]

	scope := strings.TrimSpace(in.ScopeText)
	if scope == "" {
		scope = noScopeRecorded
	}

	r := strings.NewReplacer(
		"{{scope}}", scope,
		"{{message}}", in.MessageText,
		"{{project}}", in.ProjectName,
		"{{currency}}", in.Currency,
	)
	return r.Replace(tpl.System), r.Replace(tpl.User)
}
