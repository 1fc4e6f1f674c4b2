// Package billing provides a client for the Stripe-compatible billing API:
// customer creation, invoice line items, and draft invoices with hosted URLs.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the billing operations used by the artifact generator.
// None of these calls are idempotent: invoking the sequence twice for the
// same message creates two billing artifacts, so callers must guard against
// duplicate submission.
type Client interface {
	CreateCustomer(ctx context.Context, name, email string) (*Customer, error)
	// CreateInvoiceItem attaches a pending line item to the customer.
	// Amount is in minor currency units.
	CreateInvoiceItem(ctx context.Context, customerID string, amountMinor int64, currency, description string) (*InvoiceItem, error)
	// CreateDraftInvoice collects the customer's pending items into a draft
	// invoice and returns its id and hosted URL.
	CreateDraftInvoice(ctx context.Context, customerID string, daysUntilDue int) (*Invoice, error)
}

// Customer is a billing-system customer record.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// InvoiceItem is one pending line item.
type InvoiceItem struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Invoice is a draft invoice with its hosted payment page.
type Invoice struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	HostedURL string `json:"hosted_invoice_url"`
}

// Option configures the billing client.
type Option func(*httpClient)

// WithBaseURL sets a custom API base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a billing client with the given secret key.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.stripe.com",
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) CreateCustomer(ctx context.Context, name, email string) (*Customer, error) {
	form := url.Values{}
	form.Set("name", name)
	if email != "" {
		form.Set("email", email)
	}

	var cust Customer
	if err := c.postForm(ctx, "/v1/customers", form, &cust); err != nil {
		return nil, eris.Wrap(err, "billing: create customer")
	}
	return &cust, nil
}

func (c *httpClient) CreateInvoiceItem(ctx context.Context, customerID string, amountMinor int64, currency, description string) (*InvoiceItem, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("amount", strconv.FormatInt(amountMinor, 10))
	form.Set("currency", currency)
	form.Set("description", description)

	var item InvoiceItem
	if err := c.postForm(ctx, "/v1/invoiceitems", form, &item); err != nil {
		return nil, eris.Wrap(err, "billing: create invoice item")
	}
	return &item, nil
}

func (c *httpClient) CreateDraftInvoice(ctx context.Context, customerID string, daysUntilDue int) (*Invoice, error) {
	if daysUntilDue <= 0 {
		daysUntilDue = 7
	}
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("collection_method", "send_invoice")
	form.Set("days_until_due", strconv.Itoa(daysUntilDue))
	form.Set("pending_invoice_items_behavior", "include")

	var inv Invoice
	if err := c.postForm(ctx, "/v1/invoices", form, &inv); err != nil {
		return nil, eris.Wrap(err, "billing: create draft invoice")
	}
	return &inv, nil
}

func (c *httpClient) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return eris.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("billing api %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
