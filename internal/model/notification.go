package model

import "time"

// Notification event types emitted by the negotiation engine.
const (
	EventNegotiationProposed  = "negotiation_proposed"
	EventNegotiationCountered = "negotiation_countered"
	EventAgreementPending     = "agreement_pending"
	EventNegotiationAgreed    = "negotiation_agreed"
	EventNegotiationDeclined  = "negotiation_declined"
	EventJobCreated           = "job_created"
)

// NotificationEvent is a human-readable event addressed to one party. It is
// the payload queued by the engine and carried over the message broker; ID
// is a UUID so consumers can drop redelivered copies.
type NotificationEvent struct {
	ID        string            `json:"id"`
	UserID    uint64            `json:"user_id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Notification is a stored event shown in a user's notification feed.
type Notification struct {
	ID        uint64            `json:"id"`
	EventID   string            `json:"event_id"`
	UserID    uint64            `json:"user_id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	IsRead    bool              `json:"is_read"`
	CreatedAt time.Time         `json:"created_at"`
}
