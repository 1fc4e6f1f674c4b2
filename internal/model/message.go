// Package model defines the core domain types shared across the pipeline.
package model

import "time"

// Message is the canonical record for one piece of client communication,
// regardless of whether it arrived by webhook, direct ingest, or Gmail poll.
type Message struct {
	ID        string    `json:"id"`
	ProjectID *string   `json:"project_id,omitempty"`
	Text      string    `json:"text"`
	Source    string    `json:"source"`
	Reviewed  bool      `json:"reviewed"`
	CreatedAt time.Time `json:"created_at"`
}

// Associated reports whether the message has been matched to a project.
func (m Message) Associated() bool {
	return m.ProjectID != nil && *m.ProjectID != ""
}

// Project holds the agreed scope the classifier compares messages against.
// Projects are written elsewhere in the system and read-only here.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ScopeText string    `json:"scope_text"`
	CreatedAt time.Time `json:"created_at"`
}

// GmailToken is the store-backed OAuth credential for the polling account.
// Keyed by account so the upsert replaces prior grants for the same inbox.
type GmailToken struct {
	Account      string    `json:"account"`
	RefreshToken string    `json:"refresh_token"`
	UpdatedAt    time.Time `json:"updated_at"`
}
