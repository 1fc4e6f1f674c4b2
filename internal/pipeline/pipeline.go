// Package pipeline orchestrates the scope-drift flow: intake, project
// association, classification, and append-only reconciliation recording.
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/lumenlabs/scopewatch/internal/fault"
	"github.com/lumenlabs/scopewatch/internal/model"
	"github.com/lumenlabs/scopewatch/internal/scope"
	"github.com/lumenlabs/scopewatch/internal/store"
)

// Pipeline wires the store and classifier into the ingest → associate →
// classify → record flow.
type Pipeline struct {
	store      store.Store
	classifier *scope.Classifier
}

// New constructs the pipeline.
func New(st store.Store, classifier *scope.Classifier) *Pipeline {
	return &Pipeline{store: st, classifier: classifier}
}

// Store exposes the underlying store for the pass-through HTTP routes.
func (p *Pipeline) Store() store.Store {
	return p.store
}

// Ingest persists a normalized message draft.
func (p *Pipeline) Ingest(ctx context.Context, draft model.Message) (*model.Message, error) {
	msg, err := p.store.InsertMessage(ctx, draft)
	if err != nil {
		return nil, fault.NewStorage("insert message", err)
	}
	zap.L().Info("message ingested",
		zap.String("message_id", msg.ID),
		zap.String("source", msg.Source),
		zap.Bool("associated", msg.Associated()),
	)
	return msg, nil
}

// MarkReviewed flags a message as human-reviewed, ending the pipeline's
// ownership of it.
func (p *Pipeline) MarkReviewed(ctx context.Context, messageID string) error {
	err := p.store.MarkMessageReviewed(ctx, messageID)
	if err == store.ErrNotFound {
		return fault.NewNotFound("message", messageID)
	}
	if err != nil {
		return fault.NewStorage("mark reviewed", err)
	}
	return nil
}

// scopeContext resolves the scope text for a project reference. A nil id,
// an unknown project, or a project without recorded scope all yield empty
// scope; the classifier still runs, flagged low-confidence.
func (p *Pipeline) scopeContext(ctx context.Context, projectID *string) (string, error) {
	if projectID == nil || *projectID == "" {
		return "", nil
	}
	project, err := p.store.GetProject(ctx, *projectID)
	if err != nil {
		return "", fault.NewStorage("get project", err)
	}
	if project == nil {
		zap.L().Warn("message references unknown project, classifying without scope",
			zap.String("project_id", *projectID),
		)
		return "", nil
	}
	return project.ScopeText, nil
}
