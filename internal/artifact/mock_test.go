package artifact

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/lumenlabs/scopewatch/pkg/anthropic"
	"github.com/lumenlabs/scopewatch/pkg/billing"
)

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

type mockBillingClient struct {
	mock.Mock
}

func (m *mockBillingClient) CreateCustomer(ctx context.Context, name, email string) (*billing.Customer, error) {
	args := m.Called(ctx, name, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Customer), args.Error(1)
}

func (m *mockBillingClient) CreateInvoiceItem(ctx context.Context, customerID string, amountMinor int64, currency, description string) (*billing.InvoiceItem, error) {
	args := m.Called(ctx, customerID, amountMinor, currency, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.InvoiceItem), args.Error(1)
}

func (m *mockBillingClient) CreateDraftInvoice(ctx context.Context, customerID string, daysUntilDue int) (*billing.Invoice, error) {
	args := m.Called(ctx, customerID, daysUntilDue)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

var (
	_ anthropic.Client = (*mockAnthropicClient)(nil)
	_ billing.Client   = (*mockBillingClient)(nil)
)
