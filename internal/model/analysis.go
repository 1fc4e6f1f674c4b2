package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// PriceIncrease accepts either a JSON number or a free-text string from the
// reasoning service ("2000", 2000, "INR 2,000 (est.)") and keeps the raw form.
type PriceIncrease string

// UnmarshalJSON handles both the numeric and string shapes.
func (p *PriceIncrease) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = PriceIncrease(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("price increase is neither string nor number: %s", data)
	}
	*p = PriceIncrease(strconv.FormatFloat(n, 'f', -1, 64))
	return nil
}

// MarshalJSON emits the stored string form.
func (p PriceIncrease) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(p))
}

// ScopeAnalysis is one immutable classification outcome for a message.
// Re-classification after re-assignment appends a new row; rows are never
// updated or deleted, so the set ordered by CreatedAt is the audit trail.
type ScopeAnalysis struct {
	ID                     string        `json:"id"`
	MessageID              string        `json:"message_id"`
	ProjectID              *string       `json:"project_id,omitempty"`
	IsOutOfScope           bool          `json:"is_out_of_scope"`
	Summary                string        `json:"summary"`
	EstimatedImpactHours   float64       `json:"estimated_impact_hours"`
	SuggestedPriceIncrease PriceIncrease `json:"suggested_price_increase"`
	// LowConfidence marks classifications made without any scope context
	// (no project, or the project has no recorded scope text).
	LowConfidence bool      `json:"low_confidence"`
	CreatedAt     time.Time `json:"created_at"`
}
