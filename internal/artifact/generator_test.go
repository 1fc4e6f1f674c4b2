package artifact

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lumenlabs/scopewatch/internal/fault"
	"github.com/lumenlabs/scopewatch/internal/model"
	"github.com/lumenlabs/scopewatch/internal/store"
	"github.com/lumenlabs/scopewatch/pkg/anthropic"
	"github.com/lumenlabs/scopewatch/pkg/billing"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedMessageAndProject(t *testing.T, st *store.SQLiteStore) (model.Message, model.Project) {
	t.Helper()
	ctx := context.Background()

	project, err := st.CreateProject(ctx, "Site Redesign", "Three-page marketing site.")
	require.NoError(t, err)

	msg, err := st.InsertMessage(ctx, model.Message{
		ProjectID: &project.ID,
		Text:      "Can you also build an admin panel?",
		Source:    "api",
	})
	require.NoError(t, err)
	return *msg, *project
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

func TestDraftProposal_PersistsText(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	msg, project := seedMessageAndProject(t, st)

	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", ctx, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse("Dear client, the admin panel is additional work priced at..."), nil).
		Once()

	g := NewGenerator(ai, &mockBillingClient{}, st, nil, "claude-haiku-4-5-20251001", 1024, "inr", 7)
	proposal, err := g.DraftProposal(ctx, msg, project)

	require.NoError(t, err)
	assert.Equal(t, msg.ID, proposal.MessageID)
	assert.Equal(t, project.ID, proposal.ProjectID)
	assert.Contains(t, proposal.Text, "admin panel")
	assert.NotEmpty(t, proposal.ID)
	ai.AssertExpectations(t)
}

func TestDraftProposal_EmptyResponse(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	msg, project := seedMessageAndProject(t, st)

	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", ctx, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse("   "), nil).
		Once()

	g := NewGenerator(ai, &mockBillingClient{}, st, nil, "claude-haiku-4-5-20251001", 1024, "inr", 7)
	_, err := g.DraftProposal(ctx, msg, project)

	require.Error(t, err)
	assert.True(t, fault.IsParse(err))
}

func TestDraftInvoice_ConvertsToMinorUnits(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	msg, project := seedMessageAndProject(t, st)

	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", ctx, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(`{"description": "Additional admin panel build", "amount": 1500}`), nil).
		Once()

	bill := &mockBillingClient{}
	bill.On("CreateCustomer", ctx, "Site Redesign", "").
		Return(&billing.Customer{ID: "cus_1"}, nil).Once()
	// 1500 major units become 150000 minor units on the wire.
	bill.On("CreateInvoiceItem", ctx, "cus_1", int64(150000), "inr", "Additional admin panel build").
		Return(&billing.InvoiceItem{ID: "ii_1", Amount: 150000, Currency: "inr"}, nil).Once()
	bill.On("CreateDraftInvoice", ctx, "cus_1", 7).
		Return(&billing.Invoice{ID: "in_1", Status: "draft", HostedURL: "https://pay.example.com/in_1"}, nil).Once()

	g := NewGenerator(ai, bill, st, nil, "claude-haiku-4-5-20251001", 1024, "inr", 7)
	draft, err := g.DraftInvoice(ctx, msg, project)

	require.NoError(t, err)
	// The persisted row keeps major units.
	assert.InDelta(t, 1500, draft.Amount, 0.001)
	assert.Equal(t, "inr", draft.Currency)
	assert.Equal(t, "in_1", draft.ExternalID)
	assert.Equal(t, "https://pay.example.com/in_1", draft.ExternalURL)

	stored, err := st.GetInvoiceDraftByMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.InDelta(t, 1500, stored.Amount, 0.001)

	ai.AssertExpectations(t)
	bill.AssertExpectations(t)
}

func TestDraftInvoice_FractionalAmount(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	msg, project := seedMessageAndProject(t, st)

	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", ctx, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(`{"description": "Half-day consult", "amount": 750.50}`), nil).
		Once()

	bill := &mockBillingClient{}
	bill.On("CreateCustomer", ctx, "Site Redesign", "").
		Return(&billing.Customer{ID: "cus_1"}, nil).Once()
	bill.On("CreateInvoiceItem", ctx, "cus_1", int64(75050), "inr", "Half-day consult").
		Return(&billing.InvoiceItem{ID: "ii_1"}, nil).Once()
	bill.On("CreateDraftInvoice", ctx, "cus_1", 7).
		Return(&billing.Invoice{ID: "in_1"}, nil).Once()

	g := NewGenerator(ai, bill, st, nil, "claude-haiku-4-5-20251001", 1024, "inr", 7)
	draft, err := g.DraftInvoice(ctx, msg, project)

	require.NoError(t, err)
	assert.InDelta(t, 750.50, draft.Amount, 0.001)
	bill.AssertExpectations(t)
}

func TestDraftInvoice_ZeroAmountNeverBills(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	msg, project := seedMessageAndProject(t, st)

	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", ctx, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(`{"description": "Nothing billable", "amount": 0}`), nil).
		Once()

	bill := &mockBillingClient{}

	g := NewGenerator(ai, bill, st, nil, "claude-haiku-4-5-20251001", 1024, "inr", 7)
	_, err := g.DraftInvoice(ctx, msg, project)

	require.Error(t, err)
	assert.True(t, fault.IsParse(err))
	bill.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything)

	stored, err := st.GetInvoiceDraftByMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestDraftInvoice_NegativeAmountNeverBills(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	msg, project := seedMessageAndProject(t, st)

	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", ctx, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(`{"description": "Credit", "amount": -200}`), nil).
		Once()

	bill := &mockBillingClient{}

	g := NewGenerator(ai, bill, st, nil, "claude-haiku-4-5-20251001", 1024, "inr", 7)
	_, err := g.DraftInvoice(ctx, msg, project)

	require.Error(t, err)
	assert.True(t, fault.IsParse(err))
	bill.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything)
}

func TestDraftInvoice_MissingAmount(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	msg, project := seedMessageAndProject(t, st)

	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", ctx, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(`{"description": "Admin panel"}`), nil).
		Once()

	g := NewGenerator(ai, &mockBillingClient{}, st, nil, "claude-haiku-4-5-20251001", 1024, "inr", 7)
	_, err := g.DraftInvoice(ctx, msg, project)

	require.Error(t, err)
	assert.True(t, fault.IsParse(err))
}

func TestDraftInvoice_DuplicateGuard(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	msg, project := seedMessageAndProject(t, st)

	existing, err := st.InsertInvoiceDraft(ctx, model.InvoiceDraft{
		MessageID:   msg.ID,
		ProjectID:   project.ID,
		Description: "Already billed",
		Amount:      900,
		Currency:    "inr",
		ExternalID:  "in_existing",
	})
	require.NoError(t, err)

	ai := &mockAnthropicClient{}
	bill := &mockBillingClient{}

	g := NewGenerator(ai, bill, st, nil, "claude-haiku-4-5-20251001", 1024, "inr", 7)
	draft, err := g.DraftInvoice(ctx, msg, project)

	require.NoError(t, err)
	assert.Equal(t, existing.ID, draft.ID)
	assert.Equal(t, "in_existing", draft.ExternalID)
	// No second billing submission, no second reasoning call.
	ai.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
	bill.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything)
}

func TestDraftInvoice_BillingFailure(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	msg, project := seedMessageAndProject(t, st)

	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", ctx, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(`{"description": "Admin panel", "amount": 1200}`), nil).
		Once()

	bill := &mockBillingClient{}
	bill.On("CreateCustomer", ctx, "Site Redesign", "").
		Return(nil, errors.New("billing api 500")).Once()

	g := NewGenerator(ai, bill, st, nil, "claude-haiku-4-5-20251001", 1024, "inr", 7)
	_, err := g.DraftInvoice(ctx, msg, project)

	require.Error(t, err)
	var ue *fault.UpstreamError
	assert.ErrorAs(t, err, &ue)

	stored, err := st.GetInvoiceDraftByMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}
