package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/lumenlabs/scopewatch/internal/fault"
	"github.com/lumenlabs/scopewatch/internal/model"
	"github.com/lumenlabs/scopewatch/internal/store"
)

// Reassign moves a stored message to a new project and re-classifies it
// against the new project's scope. The message text is always re-read from
// the store so stale caller-supplied content is never classified. The new
// analysis row is appended; prior rows stay untouched.
func (p *Pipeline) Reassign(ctx context.Context, messageID, projectID string) (*model.ScopeAnalysis, error) {
	if messageID == "" {
		return nil, fault.NewValidation("message_id", "required")
	}
	if projectID == "" {
		return nil, fault.NewValidation("project_id", "required")
	}

	msg, err := p.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fault.NewStorage("get message", err)
	}
	if msg == nil {
		return nil, fault.NewNotFound("message", messageID)
	}

	project, err := p.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fault.NewStorage("get project", err)
	}
	if project == nil {
		return nil, fault.NewNotFound("project", projectID)
	}

	if err := p.store.SetMessageProject(ctx, messageID, &projectID); err != nil {
		if err == store.ErrNotFound {
			return nil, fault.NewNotFound("message", messageID)
		}
		return nil, fault.NewStorage("set message project", err)
	}
	msg.ProjectID = &projectID

	zap.L().Info("message reassigned",
		zap.String("message_id", messageID),
		zap.String("project_id", projectID),
	)

	return p.Classify(ctx, *msg)
}
