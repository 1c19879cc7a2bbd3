package negotiation

import "time"

// Policy holds the tunable business rules of the engine.
type Policy struct {
	// CallTimeout bounds every store and directory call.
	CallTimeout time.Duration
	// DefaultDeadline is added to the materialization time when the
	// negotiation has no deadline of its own.
	DefaultDeadline time.Duration
	// PlaceholderDescription is used for jobs whose negotiation has no
	// description.
	PlaceholderDescription string
	// OfferorMayAgreeFirst allows the party that made the last offer to
	// agree before the counterparty has.
	OfferorMayAgreeFirst bool
}

func DefaultPolicy() Policy {
	return Policy{
		CallTimeout:            3 * time.Second,
		DefaultDeadline:        7 * 24 * time.Hour,
		PlaceholderDescription: "Work as agreed in the negotiation.",
		OfferorMayAgreeFirst:   true,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.CallTimeout <= 0 {
		p.CallTimeout = d.CallTimeout
	}
	if p.DefaultDeadline <= 0 {
		p.DefaultDeadline = d.DefaultDeadline
	}
	if p.PlaceholderDescription == "" {
		p.PlaceholderDescription = d.PlaceholderDescription
	}
	return p
}
