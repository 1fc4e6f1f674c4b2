package scope

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/lumenlabs/scopewatch/internal/fault"
	"github.com/lumenlabs/scopewatch/internal/model"
	"github.com/lumenlabs/scopewatch/pkg/anthropic"
)

// Result is one structurally valid classification outcome. LowConfidence is
// set when no scope context was available, so the out-of-scope determination
// cannot be meaningful.
type Result struct {
	IsOutOfScope           bool
	Summary                string
	EstimatedImpactHours   float64
	SuggestedPriceIncrease model.PriceIncrease
	LowConfidence          bool
}

// Classifier turns (message text, scope text) into a Result via the
// reasoning service. It never retries; retry policy belongs to the caller.
type Classifier struct {
	ai        anthropic.Client
	prompts   *PromptSet
	model     string
	maxTokens int64
}

// NewClassifier builds a classifier on the given reasoning client.
func NewClassifier(ai anthropic.Client, prompts *PromptSet, model string, maxTokens int64) *Classifier {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &Classifier{ai: ai, prompts: prompts, model: model, maxTokens: maxTokens}
}

// Classify builds the deterministic instruction from scope and message text,
// sends it, and requires the response to parse as the expected structure.
// A malformed response is a fault.ParseError, never a defaulted Result.
func (c *Classifier) Classify(ctx context.Context, messageText, scopeText string) (*Result, error) {
	system, user := c.prompts.Build(TaskClassify, TemplateInput{
		ScopeText:   scopeText,
		MessageText: messageText,
	})

	resp, err := c.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(system),
		Messages: []anthropic.Message{
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return nil, fault.NewUpstream("reasoning service", err)
	}
	resp.Usage.LogUsage(c.model, string(TaskClassify))

	result, err := parseClassification(anthropic.ExtractText(resp))
	if err != nil {
		zap.L().Error("classification response unparseable",
			zap.String("model", c.model),
			zap.Error(err),
		)
		return nil, err
	}

	result.LowConfidence = strings.TrimSpace(scopeText) == ""
	return result, nil
}

// parseClassification validates the structured response. All four contract
// fields must be present; a bool that simply defaulted would be
// indistinguishable from a genuine in-scope finding.
func parseClassification(text string) (*Result, error) {
	clean := anthropic.CleanJSON(text)

	var raw struct {
		IsOutOfScope           *bool                `json:"is_out_of_scope"`
		Summary                *string              `json:"summary"`
		EstimatedImpactHours   *float64             `json:"estimated_impact_hours"`
		SuggestedPriceIncrease *model.PriceIncrease `json:"suggested_price_increase"`
	}
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return nil, fault.NewParse("reasoning service", text, err)
	}
	if raw.IsOutOfScope == nil || raw.Summary == nil || raw.EstimatedImpactHours == nil || raw.SuggestedPriceIncrease == nil {
		return nil, fault.NewParse("reasoning service", text,
			missingFieldErr(raw.IsOutOfScope == nil, raw.Summary == nil, raw.EstimatedImpactHours == nil, raw.SuggestedPriceIncrease == nil))
	}

	return &Result{
		IsOutOfScope:           *raw.IsOutOfScope,
		Summary:                *raw.Summary,
		EstimatedImpactHours:   *raw.EstimatedImpactHours,
		SuggestedPriceIncrease: *raw.SuggestedPriceIncrease,
	}, nil
}

func missingFieldErr(outOfScope, summary, hours, price bool) error {
	var missing []string
	if outOfScope {
		missing = append(missing, "is_out_of_scope")
	}
	if summary {
		missing = append(missing, "summary")
	}
	if hours {
		missing = append(missing, "estimated_impact_hours")
	}
	if price {
		missing = append(missing, "suggested_price_increase")
	}
	return &missingFieldsError{fields: missing}
}

type missingFieldsError struct {
	fields []string
}

func (e *missingFieldsError) Error() string {
	return "missing required fields: " + strings.Join(e.fields, ", ")
}
