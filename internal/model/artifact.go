package model

import "time"

// Proposal is a drafted change-order proposal for an out-of-scope request.
// Immutable once created.
type Proposal struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	ProjectID string    `json:"project_id"`
	Text      string    `json:"generated_text"`
	CreatedAt time.Time `json:"created_at"`
}

// InvoiceDraft records a draft invoice created in the billing system.
// Amount is stored in major currency units for display; the billing call
// receives minor units. Immutable once created.
type InvoiceDraft struct {
	ID          string    `json:"id"`
	MessageID   string    `json:"message_id"`
	ProjectID   string    `json:"project_id"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	ExternalID  string    `json:"external_id"`
	ExternalURL string    `json:"external_url"`
	CreatedAt   time.Time `json:"created_at"`
}
