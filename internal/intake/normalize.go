// Package intake converts heterogeneous inbound payloads (direct API call,
// mail-like webhook body, polled Gmail item) into one canonical message draft.
package intake

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/lumenlabs/scopewatch/internal/fault"
	"github.com/lumenlabs/scopewatch/internal/model"
)

// SourceEmail is the channel tag used when a mail payload carries no sender.
const SourceEmail = "email"

// WebhookPayload is the loosely-shaped body posted by mail forwarders. Field
// names vary by forwarder, so every candidate is accepted.
type WebhookPayload struct {
	From    string `json:"from"`
	Sender  string `json:"sender"`
	Body    string `json:"body"`
	Snippet string `json:"snippet"`
	Text    string `json:"text"`
}

// MailItem is a polled inbox item reduced to the fields the pipeline uses.
type MailItem struct {
	Subject string
	From    string
	Snippet string
}

// Direct normalizes a direct-ingest call. Fails with a ValidationError when
// the text is empty; the HTTP layer surfaces that as a client error.
func Direct(projectID *string, text, source string) (model.Message, error) {
	clean := canonicalText(text)
	if clean == "" {
		return model.Message{}, fault.NewValidation("message_text", "required")
	}
	if projectID != nil && *projectID == "" {
		projectID = nil
	}
	return model.Message{ProjectID: projectID, Text: clean, Source: source}, nil
}

// FromWebhook normalizes a mail-like webhook body. Text candidates are taken
// in fixed priority order: body, snippet, text. The source tag is the sender
// when present, otherwise the literal email channel tag.
func FromWebhook(p WebhookPayload) (model.Message, error) {
	clean := firstNonEmpty(p.Body, p.Snippet, p.Text)
	if clean == "" {
		return model.Message{}, fault.NewValidation("body", "no text candidate field present")
	}

	source := strings.TrimSpace(p.From)
	if source == "" {
		source = strings.TrimSpace(p.Sender)
	}
	if source == "" {
		source = SourceEmail
	}
	return model.Message{Text: clean, Source: source}, nil
}

// FromMailItem normalizes a polled inbox item. The canonical text joins the
// subject header with the snippet; poll callers skip the item (and continue
// the batch) on a ValidationError.
func FromMailItem(item MailItem) (model.Message, error) {
	subject := canonicalText(item.Subject)
	snippet := canonicalText(item.Snippet)
	if subject == "" && snippet == "" {
		return model.Message{}, fault.NewValidation("snippet", "mail item has no subject or snippet")
	}

	text := "Subject: " + subject
	if snippet != "" {
		text += "\n" + snippet
	}
	return model.Message{Text: text, Source: SourceEmail}, nil
}

// canonicalText applies NFC normalization and trims surrounding whitespace,
// so dedup and classification see one spelling of visually identical text.
func canonicalText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if clean := canonicalText(c); clean != "" {
			return clean
		}
	}
	return ""
}
