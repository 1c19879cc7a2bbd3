// Package model holds the records shared by the repositories, the
// negotiation engine and the HTTP handlers.
package model

import "time"

// Role identifies which side of a negotiation a party is on.
type Role string

const (
	RoleRequester Role = "requester"
	RoleProvider  Role = "provider"
)

// Valid reports whether r is one of the two negotiation roles.
func (r Role) Valid() bool { return r == RoleRequester || r == RoleProvider }

// Other returns the opposite role.
func (r Role) Other() Role {
	if r == RoleRequester {
		return RoleProvider
	}
	return RoleRequester
}

// NegotiationStatus is the lifecycle state of a negotiation.
type NegotiationStatus string

const (
	StatusPending    NegotiationStatus = "pending"
	StatusBothAgreed NegotiationStatus = "both_agreed"
	StatusDeclined   NegotiationStatus = "declined"
	StatusCompleted  NegotiationStatus = "completed"
)

// Terminal reports whether no further transition is possible.
func (s NegotiationStatus) Terminal() bool {
	return s == StatusDeclined || s == StatusCompleted
}

// Negotiation is the versioned aggregate tracking a price discussion between
// a requester and a provider for one service listing. Min and max bounds are
// copied from the listing when the negotiation is proposed and never re-read.
// Version increases by one on every persisted mutation and guards updates.
type Negotiation struct {
	ID                uint64            `json:"id"`
	ServiceID         uint64            `json:"service_id"`
	RequesterID       uint64            `json:"requester_id"`
	ProviderID        uint64            `json:"provider_id"`
	CurrentPriceCents int64             `json:"current_price_cents"`
	MinPriceCents     int64             `json:"min_price_cents"`
	MaxPriceCents     int64             `json:"max_price_cents"`
	Status            NegotiationStatus `json:"status"`
	LastOfferBy       Role              `json:"last_offer_by"`
	OfferCount        int               `json:"offer_count"`
	Deadline          *time.Time        `json:"deadline,omitempty"`
	JobDescription    string            `json:"job_description,omitempty"`
	RequesterAgreed   bool              `json:"requester_agreed"`
	ProviderAgreed    bool              `json:"provider_agreed"`
	FinalPriceCents   *int64            `json:"final_price_cents,omitempty"`
	JobID             *uint64           `json:"job_id,omitempty"`
	Version           int64             `json:"version"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// PartyID returns the id of the party playing role.
func (n *Negotiation) PartyID(role Role) uint64 {
	if role == RoleRequester {
		return n.RequesterID
	}
	return n.ProviderID
}

// Agreed reports the agreement flag of role.
func (n *Negotiation) Agreed(role Role) bool {
	if role == RoleRequester {
		return n.RequesterAgreed
	}
	return n.ProviderAgreed
}

// SetAgreed sets the agreement flag of role.
func (n *Negotiation) SetAgreed(role Role, v bool) {
	if role == RoleRequester {
		n.RequesterAgreed = v
		return
	}
	n.ProviderAgreed = v
}

// BothAgreed reports whether both agreement flags are set.
func (n *Negotiation) BothAgreed() bool { return n.RequesterAgreed && n.ProviderAgreed }

// Offer is one immutable priced proposal in a negotiation's history.
type Offer struct {
	ID            uint64    `json:"id"`
	NegotiationID uint64    `json:"negotiation_id"`
	Role          Role      `json:"role"`
	PriceCents    int64     `json:"price_cents"`
	Message       string    `json:"message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// AgreementConfirmation records a party accepting the price current at the
// time. A new offer deactivates every confirmation of the negotiation.
type AgreementConfirmation struct {
	ID            uint64    `json:"id"`
	NegotiationID uint64    `json:"negotiation_id"`
	PartyID       uint64    `json:"party_id"`
	Role          Role      `json:"role"`
	PriceCents    int64     `json:"price_cents"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}
