package entity

import "time"

// Handoff records a transfer of conversation ownership for a session from
// one named agent to another. At most one handoff per session may be
// active at a time — enforced by the DataStore's atomic create, not by
// this struct alone.
type Handoff struct {
	ID             string
	From           string
	To             string
	SessionID      string
	Reason         string
	ContextSummary string
	Active         bool
	CreatedAt      time.Time
}

// NewHandoff creates an active handoff record.
func NewHandoff(id, from, to, sessionID, reason, contextSummary string) *Handoff {
	return &Handoff{
		ID:             id,
		From:           from,
		To:             to,
		SessionID:      sessionID,
		Reason:         reason,
		ContextSummary: contextSummary,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	}
}
