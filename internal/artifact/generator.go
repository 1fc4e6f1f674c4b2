// Package artifact drafts proposals and invoices for out-of-scope requests
// through the reasoning service, and creates the corresponding billing
// artifacts.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/lumenlabs/scopewatch/internal/fault"
	"github.com/lumenlabs/scopewatch/internal/model"
	"github.com/lumenlabs/scopewatch/internal/scope"
	"github.com/lumenlabs/scopewatch/internal/store"
	"github.com/lumenlabs/scopewatch/pkg/anthropic"
	"github.com/lumenlabs/scopewatch/pkg/billing"
)

var errNonPositiveAmount = errors.New("invoice amount is not a positive number")

// Generator produces proposal and invoice artifacts. Generation is triggered
// by an explicit human action, never automatically by classification.
type Generator struct {
	ai           anthropic.Client
	billing      billing.Client
	store        store.Store
	prompts      *scope.PromptSet
	model        string
	maxTokens    int64
	currency     string
	daysUntilDue int
}

// NewGenerator wires the generator. Currency is the billing currency code
// ("inr"); amounts from the reasoning service are in its major units.
func NewGenerator(ai anthropic.Client, bill billing.Client, st store.Store, prompts *scope.PromptSet, model string, maxTokens int64, currency string, daysUntilDue int) *Generator {
	if prompts == nil {
		prompts = scope.DefaultPrompts()
	}
	return &Generator{
		ai:           ai,
		billing:      bill,
		store:        st,
		prompts:      prompts,
		model:        model,
		maxTokens:    maxTokens,
		currency:     currency,
		daysUntilDue: daysUntilDue,
	}
}

// DraftProposal drafts change-order proposal text for the message against
// the project's scope and persists it as an immutable proposal row.
func (g *Generator) DraftProposal(ctx context.Context, msg model.Message, project model.Project) (*model.Proposal, error) {
	system, user := g.prompts.Build(scope.TaskProposal, scope.TemplateInput{
		ScopeText:   project.ScopeText,
		MessageText: msg.Text,
		ProjectName: project.Name,
	})

	resp, err := g.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System:    []anthropic.SystemBlock{{Text: system}},
		Messages: []anthropic.Message{
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return nil, fault.NewUpstream("reasoning service", err)
	}
	resp.Usage.LogUsage(g.model, string(scope.TaskProposal))

	text := strings.TrimSpace(anthropic.ExtractText(resp))
	if text == "" {
		return nil, fault.NewParse("reasoning service", "", errors.New("empty proposal text"))
	}

	proposal, err := g.store.InsertProposal(ctx, model.Proposal{
		MessageID: msg.ID,
		ProjectID: project.ID,
		Text:      text,
	})
	if err != nil {
		return nil, fault.NewStorage("insert proposal", err)
	}
	return proposal, nil
}

// DraftInvoice drafts an invoice line item for the message, validates the
// amount, creates the billing customer and draft invoice, and persists the
// result. The billing sequence is not idempotent, so an existing invoice
// draft for the message short-circuits instead of billing twice.
func (g *Generator) DraftInvoice(ctx context.Context, msg model.Message, project model.Project) (*model.InvoiceDraft, error) {
	existing, err := g.store.GetInvoiceDraftByMessage(ctx, msg.ID)
	if err != nil {
		return nil, fault.NewStorage("get invoice draft", err)
	}
	if existing != nil {
		zap.L().Info("invoice draft already exists for message",
			zap.String("message_id", msg.ID),
			zap.String("invoice_id", existing.ExternalID),
		)
		return existing, nil
	}

	system, user := g.prompts.Build(scope.TaskInvoice, scope.TemplateInput{
		ScopeText:   project.ScopeText,
		MessageText: msg.Text,
		ProjectName: project.Name,
		Currency:    strings.ToUpper(g.currency),
	})

	resp, err := g.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System:    []anthropic.SystemBlock{{Text: system}},
		Messages: []anthropic.Message{
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return nil, fault.NewUpstream("reasoning service", err)
	}
	resp.Usage.LogUsage(g.model, string(scope.TaskInvoice))

	description, amount, err := parseInvoiceItem(anthropic.ExtractText(resp))
	if err != nil {
		return nil, err
	}

	// Billing side effects start here; everything above is retryable by
	// simply resubmitting the request.
	customer, err := g.billing.CreateCustomer(ctx, project.Name, "")
	if err != nil {
		return nil, fault.NewUpstream("billing service", err)
	}

	amountMinor := int64(math.Round(amount * 100))
	if _, err := g.billing.CreateInvoiceItem(ctx, customer.ID, amountMinor, g.currency, description); err != nil {
		return nil, fault.NewUpstream("billing service", err)
	}

	invoice, err := g.billing.CreateDraftInvoice(ctx, customer.ID, g.daysUntilDue)
	if err != nil {
		return nil, fault.NewUpstream("billing service", err)
	}

	draft, err := g.store.InsertInvoiceDraft(ctx, model.InvoiceDraft{
		MessageID:   msg.ID,
		ProjectID:   project.ID,
		Description: description,
		Amount:      amount,
		Currency:    g.currency,
		ExternalID:  invoice.ID,
		ExternalURL: invoice.HostedURL,
	})
	if err != nil {
		// The billing artifact exists but the local row failed; surface the
		// storage error with the external reference so it can be reconciled.
		zap.L().Error("invoice draft created in billing but not persisted",
			zap.String("message_id", msg.ID),
			zap.String("invoice_id", invoice.ID),
			zap.Error(err),
		)
		return nil, fault.NewStorage("insert invoice draft", err)
	}
	return draft, nil
}

// parseInvoiceItem validates the invoice response. The amount must parse as
// a positive number before any billing call happens; a zero or negative
// customer invoice must never be created.
func parseInvoiceItem(text string) (string, float64, error) {
	clean := anthropic.CleanJSON(text)

	var raw struct {
		Description *string  `json:"description"`
		Amount      *float64 `json:"amount"`
	}
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return "", 0, fault.NewParse("reasoning service", text, err)
	}
	if raw.Description == nil || raw.Amount == nil {
		return "", 0, fault.NewParse("reasoning service", text, errors.New("missing description or amount"))
	}
	if *raw.Amount <= 0 {
		return "", 0, fault.NewParse("reasoning service", text, errNonPositiveAmount)
	}
	return *raw.Description, *raw.Amount, nil
}
