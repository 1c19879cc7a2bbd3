// Package handler implements the HTTP handlers of the API.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flancer/internal/middleware"
	"github.com/iliyamo/flancer/internal/model"
	"github.com/iliyamo/flancer/internal/negotiation"
)

// requestTimeout bounds the storage work of a single request.
const requestTimeout = 5 * time.Second

// errNoParty is returned by actingParty for roles that cannot negotiate.
var errNoParty = errors.New("account role cannot negotiate")

// getUserID extracts the authenticated user id set by JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	if id, ok := middleware.UserID(c); ok {
		return id, nil
	}
	return 0, errors.New("invalid user_id in context")
}

// actingParty maps the caller onto the negotiation side its account role
// plays: CLIENT accounts are requesters, FREELANCER accounts providers.
func actingParty(c echo.Context) (negotiation.Party, error) {
	uid, err := getUserID(c)
	if err != nil {
		return negotiation.Party{}, err
	}
	role, ok := model.NegotiationRole(middleware.Role(c))
	if !ok {
		return negotiation.Party{}, errNoParty
	}
	return negotiation.Party{ID: uid, Role: role}, nil
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// pagination reads limit and offset query parameters. limit defaults to 20
// and is capped at 100.
func pagination(c echo.Context) (limit, offset int) {
	limit, offset = 20, 0
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > 100 {
		limit = 100
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

// writeEngineError maps a negotiation engine error onto an HTTP response.
// When n is not nil the negotiation's current state is included so the
// client can decide whether to retry.
func writeEngineError(c echo.Context, err error, n *model.Negotiation) error {
	status, code := engineStatus(err)
	body := echo.Map{"error": err.Error(), "code": code}

	var pr *negotiation.PriceRangeError
	if errors.As(err, &pr) {
		body["error"] = pr.Error()
		body["min_price_cents"] = pr.Min
		body["max_price_cents"] = pr.Max
	}
	switch status {
	case http.StatusServiceUnavailable:
		body["error"] = "temporarily unavailable, retry"
	case http.StatusInternalServerError:
		body["error"] = "internal error"
	}
	if n != nil {
		body["negotiation"] = n
	}
	return c.JSON(status, body)
}

func engineStatus(err error) (int, string) {
	switch {
	case errors.Is(err, negotiation.ErrPriceOutOfRange):
		return http.StatusBadRequest, "price_out_of_range"
	case errors.Is(err, negotiation.ErrInvalidCounterparty):
		return http.StatusBadRequest, "invalid_counterparty"
	case errors.Is(err, negotiation.ErrInvalidDeadline):
		return http.StatusBadRequest, "invalid_deadline"
	case errors.Is(err, negotiation.ErrUnauthorizedParty):
		return http.StatusForbidden, "unauthorized_party"
	case errors.Is(err, negotiation.ErrNegotiationNotFound):
		return http.StatusNotFound, "negotiation_not_found"
	case errors.Is(err, negotiation.ErrServiceNotFound):
		return http.StatusNotFound, "service_not_found"
	case errors.Is(err, negotiation.ErrConcurrentModification):
		return http.StatusConflict, "concurrent_modification"
	case errors.Is(err, negotiation.ErrNegotiationClosed):
		return http.StatusConflict, "negotiation_closed"
	case errors.Is(err, negotiation.ErrNotAgreed):
		return http.StatusConflict, "not_agreed"
	case errors.Is(err, negotiation.ErrOfferorCannotAgreeFirst):
		return http.StatusConflict, "offeror_cannot_agree_first"
	case errors.Is(err, negotiation.ErrIncompleteNegotiation):
		return http.StatusUnprocessableEntity, "incomplete_negotiation"
	case errors.Is(err, negotiation.ErrPartyNoLongerExists):
		return http.StatusUnprocessableEntity, "party_no_longer_exists"
	case errors.Is(err, negotiation.ErrTransient):
		return http.StatusServiceUnavailable, "transient"
	}
	return http.StatusInternalServerError, "internal"
}
