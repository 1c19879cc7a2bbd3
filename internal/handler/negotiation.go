package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flancer/internal/model"
	"github.com/iliyamo/flancer/internal/negotiation"
	"github.com/iliyamo/flancer/internal/repository"
)

// NegotiationHandler exposes the negotiation lifecycle. Every mutation goes
// through the engine; listing reads the repository directly.
type NegotiationHandler struct {
	Engine       *negotiation.Engine
	Negotiations *repository.NegotiationRepo
}

func NewNegotiationHandler(e *negotiation.Engine, n *repository.NegotiationRepo) *NegotiationHandler {
	if e == nil || n == nil {
		panic("nil dependency passed to NewNegotiationHandler")
	}
	return &NegotiationHandler{Engine: e, Negotiations: n}
}

type proposeReq struct {
	ServiceID   uint64     `json:"service_id"`
	RequesterID uint64     `json:"requester_id"`
	PriceCents  int64      `json:"price_cents"`
	Description string     `json:"description"`
	Deadline    *time.Time `json:"deadline"`
}

type counterReq struct {
	PriceCents int64  `json:"price_cents"`
	Message    string `json:"message"`
}

// Propose opens a negotiation. The calling freelancer answers a client's
// inquiry for one of their own listings.
func (h *NegotiationHandler) Propose(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req proposeReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.ServiceID == 0 || req.RequesterID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "service_id and requester_id required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	n, err := h.Engine.Propose(ctx, negotiation.Proposal{
		ServiceID:   req.ServiceID,
		RequesterID: req.RequesterID,
		ProviderID:  uid,
		PriceCents:  req.PriceCents,
		Description: strings.TrimSpace(req.Description),
		Deadline:    req.Deadline,
	})
	if err != nil {
		return writeEngineError(c, err, nil)
	}
	return c.JSON(http.StatusCreated, n)
}

// List returns the caller's negotiations, optionally filtered by ?status.
func (h *NegotiationHandler) List(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	status := model.NegotiationStatus(strings.ToLower(strings.TrimSpace(c.QueryParam("status"))))
	switch status {
	case "", model.StatusPending, model.StatusBothAgreed, model.StatusDeclined, model.StatusCompleted:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status"})
	}
	limit, offset := pagination(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	out, err := h.Negotiations.ListNegotiationsByParty(ctx, uid, status, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out, "limit": limit, "offset": offset})
}

// Get returns one negotiation the caller takes part in.
func (h *NegotiationHandler) Get(c echo.Context) error {
	return h.act(c, func(ctx context.Context, id uint64, p negotiation.Party) (*model.Negotiation, error) {
		return h.Engine.Get(ctx, id, p)
	})
}

// Offers returns the offer history, oldest first.
func (h *NegotiationHandler) Offers(c echo.Context) error {
	p, id, ok := h.target(c)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	offers, err := h.Engine.Offers(ctx, id, p)
	if err != nil {
		return writeEngineError(c, err, nil)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": offers})
}

// Counter replaces the current price with the caller's offer.
func (h *NegotiationHandler) Counter(c echo.Context) error {
	var req counterReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	return h.act(c, func(ctx context.Context, id uint64, p negotiation.Party) (*model.Negotiation, error) {
		return h.Engine.CounterOffer(ctx, id, p, req.PriceCents, strings.TrimSpace(req.Message))
	})
}

// Agree accepts the current price. The second agreement creates the job;
// if that step fails the both_agreed negotiation is returned with the
// error and the client may retry via Materialize.
func (h *NegotiationHandler) Agree(c echo.Context) error {
	return h.act(c, func(ctx context.Context, id uint64, p negotiation.Party) (*model.Negotiation, error) {
		return h.Engine.Agree(ctx, id, p)
	})
}

// Decline closes the negotiation.
func (h *NegotiationHandler) Decline(c echo.Context) error {
	return h.act(c, func(ctx context.Context, id uint64, p negotiation.Party) (*model.Negotiation, error) {
		return h.Engine.Decline(ctx, id, p)
	})
}

// Materialize retries job creation for a both_agreed negotiation and
// returns the job of a completed one.
func (h *NegotiationHandler) Materialize(c echo.Context) error {
	p, id, ok := h.target(c)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if _, err := h.Engine.Get(ctx, id, p); err != nil {
		return writeEngineError(c, err, nil)
	}
	n, job, err := h.Engine.Materialize(ctx, id)
	if err != nil {
		return writeEngineError(c, err, n)
	}
	return c.JSON(http.StatusOK, echo.Map{"negotiation": n, "job": job})
}

// target resolves the acting party and the :id parameter. When ok is
// false the error response has already been written.
func (h *NegotiationHandler) target(c echo.Context) (p negotiation.Party, id uint64, ok bool) {
	p, err := actingParty(c)
	if err != nil {
		if err == errNoParty {
			_ = c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
		} else {
			_ = c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		return p, 0, false
	}
	if id, ok = parseID(c, "id"); !ok {
		_ = c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
		return p, 0, false
	}
	return p, id, true
}

func (h *NegotiationHandler) act(c echo.Context, fn func(context.Context, uint64, negotiation.Party) (*model.Negotiation, error)) error {
	p, id, ok := h.target(c)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	n, err := fn(ctx, id, p)
	if err != nil {
		return writeEngineError(c, err, n)
	}
	return c.JSON(http.StatusOK, n)
}
