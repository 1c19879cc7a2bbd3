package negotiation

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCounterparty    = errors.New("negotiation: counterparty does not resolve to an active account")
	ErrPriceOutOfRange        = errors.New("negotiation: price out of range")
	ErrUnauthorizedParty      = errors.New("negotiation: acting party is not part of this negotiation")
	ErrNegotiationNotFound    = errors.New("negotiation: not found")
	ErrConcurrentModification = errors.New("negotiation: modified concurrently, reload and retry")
	ErrIncompleteNegotiation  = errors.New("negotiation: record is missing service or party references")
	ErrPartyNoLongerExists    = errors.New("negotiation: a party no longer exists")
	ErrTransient              = errors.New("negotiation: transient failure")

	ErrNegotiationClosed       = errors.New("negotiation: already declined or completed")
	ErrNotAgreed               = errors.New("negotiation: both parties have not agreed")
	ErrServiceNotFound         = errors.New("negotiation: service not found or inactive")
	ErrInvalidDeadline         = errors.New("negotiation: deadline must be in the future")
	ErrOfferorCannotAgreeFirst = errors.New("negotiation: the last offeror cannot agree before the counterparty")
)

// PriceRangeError carries the bounds a rejected price violated. It matches
// ErrPriceOutOfRange under errors.Is.
type PriceRangeError struct {
	Price, Min, Max int64
}

func (e *PriceRangeError) Error() string {
	return fmt.Sprintf("price must be between %s and %s", FormatCents(e.Min), FormatCents(e.Max))
}

func (e *PriceRangeError) Is(target error) bool { return target == ErrPriceOutOfRange }

// FormatCents renders an amount of cents as dollars, e.g. 65000 -> "$650.00".
func FormatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s$%d.%02d", sign, c/100, c%100)
}
