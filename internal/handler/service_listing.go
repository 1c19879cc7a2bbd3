package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flancer/internal/model"
	"github.com/iliyamo/flancer/internal/repository"
)

// ServiceHandler serves freelancer service listings. Reads are public;
// creating and toggling listings requires the FREELANCER role.
type ServiceHandler struct {
	Services *repository.ServiceRepo
}

func NewServiceHandler(s *repository.ServiceRepo) *ServiceHandler {
	if s == nil {
		panic("nil repository passed to NewServiceHandler")
	}
	return &ServiceHandler{Services: s}
}

type createServiceReq struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	MinPriceCents int64  `json:"min_price_cents"`
	MaxPriceCents int64  `json:"max_price_cents"`
}

type setActiveReq struct {
	IsActive *bool `json:"is_active"`
}

// Create publishes a listing owned by the caller.
func (h *ServiceHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createServiceReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title required"})
	}
	if req.MinPriceCents <= 0 || req.MaxPriceCents < req.MinPriceCents {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "price range must satisfy 0 < min_price_cents <= max_price_cents"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	s := model.Service{
		ProviderID:    uid,
		Title:         req.Title,
		Description:   strings.TrimSpace(req.Description),
		MinPriceCents: req.MinPriceCents,
		MaxPriceCents: req.MaxPriceCents,
		IsActive:      true,
	}
	if err := h.Services.CreateService(ctx, &s); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusCreated, s)
}

// List returns active listings, optionally filtered by ?provider_id.
func (h *ServiceHandler) List(c echo.Context) error {
	var providerID uint64
	if v := c.QueryParam("provider_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid provider_id"})
		}
		providerID = id
	}
	limit, offset := pagination(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	out, err := h.Services.ListServices(ctx, providerID, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out, "limit": limit, "offset": offset})
}

// Get returns one active listing.
func (h *ServiceHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	s, err := h.Services.GetService(ctx, id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !s.IsActive) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "service not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, s)
}

// SetActive lets the owning freelancer withdraw or republish a listing.
// Negotiations already opened keep the bounds they copied.
func (h *ServiceHandler) SetActive(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req setActiveReq
	if err := c.Bind(&req); err != nil || req.IsActive == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "is_active required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	switch err := h.Services.SetServiceActive(ctx, id, uid, *req.IsActive); {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "service not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not your service"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	s, err := h.Services.GetService(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, s)
}
