// Package store persists messages, projects, analyses, artifacts, mail
// tokens, and the durable dedup ledger behind one interface with postgres
// and sqlite implementations.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/lumenlabs/scopewatch/internal/model"
)

// ErrNotFound is returned by updates that matched no row. Lookups return
// (nil, nil) instead; callers decide whether absence is a client error.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface for the scope-drift pipeline.
type Store interface {
	// Messages
	InsertMessage(ctx context.Context, draft model.Message) (*model.Message, error)
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	ListMessages(ctx context.Context, limit int) ([]model.Message, error)
	SetMessageProject(ctx context.Context, messageID string, projectID *string) error
	MarkMessageReviewed(ctx context.Context, messageID string) error

	// Projects (written elsewhere in the system; minimal glue here)
	CreateProject(ctx context.Context, name, scopeText string) (*model.Project, error)
	GetProject(ctx context.Context, id string) (*model.Project, error)
	ListProjects(ctx context.Context) ([]model.Project, error)

	// Scope analyses: append-only audit trail
	InsertAnalysis(ctx context.Context, a model.ScopeAnalysis) (*model.ScopeAnalysis, error)
	ListAnalysesByMessage(ctx context.Context, messageID string) ([]model.ScopeAnalysis, error)

	// Artifacts: immutable once created
	InsertProposal(ctx context.Context, p model.Proposal) (*model.Proposal, error)
	InsertInvoiceDraft(ctx context.Context, d model.InvoiceDraft) (*model.InvoiceDraft, error)
	GetInvoiceDraftByMessage(ctx context.Context, messageID string) (*model.InvoiceDraft, error)

	// Mail tokens: idempotent upsert by account key
	UpsertGmailToken(ctx context.Context, tok model.GmailToken) error
	GetGmailToken(ctx context.Context, account string) (*model.GmailToken, error)

	// Durable dedup ledger: returns true exactly once per external id,
	// atomic under concurrent poll cycles.
	AdmitSeenKey(ctx context.Context, externalID string) (bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
