package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/lumenlabs/scopewatch/internal/fault"
	"github.com/lumenlabs/scopewatch/internal/model"
	"github.com/lumenlabs/scopewatch/internal/scope"
)

// Classify runs the classifier for a stored message against the scope that
// is active for it right now, and records the outcome. Each call appends a
// new analysis row; prior rows are never touched.
func (p *Pipeline) Classify(ctx context.Context, msg model.Message) (*model.ScopeAnalysis, error) {
	scopeText, err := p.scopeContext(ctx, msg.ProjectID)
	if err != nil {
		return nil, err
	}

	result, err := p.classifier.Classify(ctx, msg.Text, scopeText)
	if err != nil {
		// Parse failures surface here; nothing is persisted for them.
		return nil, err
	}

	return p.Record(ctx, msg, result)
}

// Record appends the immutable analysis row for a structurally valid
// classification. The row captures the project that was active for the
// message at classification time.
func (p *Pipeline) Record(ctx context.Context, msg model.Message, result *scope.Result) (*model.ScopeAnalysis, error) {
	analysis, err := p.store.InsertAnalysis(ctx, model.ScopeAnalysis{
		MessageID:              msg.ID,
		ProjectID:              msg.ProjectID,
		IsOutOfScope:           result.IsOutOfScope,
		Summary:                result.Summary,
		EstimatedImpactHours:   result.EstimatedImpactHours,
		SuggestedPriceIncrease: result.SuggestedPriceIncrease,
		LowConfidence:          result.LowConfidence,
	})
	if err != nil {
		return nil, fault.NewStorage("insert analysis", err)
	}

	zap.L().Info("scope analysis recorded",
		zap.String("message_id", msg.ID),
		zap.Bool("out_of_scope", analysis.IsOutOfScope),
		zap.Bool("low_confidence", analysis.LowConfidence),
	)
	return analysis, nil
}

// AnalyzeText classifies ad-hoc text against an optional project without
// requiring a stored message. When messageID is non-empty the outcome is
// recorded against that message; otherwise the result is returned without
// persisting, since an analysis row must reference a message.
func (p *Pipeline) AnalyzeText(ctx context.Context, messageText string, projectID *string, messageID string) (*scope.Result, *model.ScopeAnalysis, error) {
	if messageText == "" {
		return nil, nil, fault.NewValidation("message_text", "required")
	}

	scopeText, err := p.scopeContext(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}

	result, err := p.classifier.Classify(ctx, messageText, scopeText)
	if err != nil {
		return nil, nil, err
	}

	if messageID == "" {
		return result, nil, nil
	}

	msg, err := p.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, nil, fault.NewStorage("get message", err)
	}
	if msg == nil {
		return nil, nil, fault.NewNotFound("message", messageID)
	}

	analysis, err := p.Record(ctx, *msg, result)
	if err != nil {
		return nil, nil, err
	}
	return result, analysis, nil
}
