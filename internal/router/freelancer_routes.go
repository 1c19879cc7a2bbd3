package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flancer/internal/handler"
	"github.com/iliyamo/flancer/internal/middleware"
	"github.com/iliyamo/flancer/internal/model"
)

// RegisterFreelancer registers FREELANCER-scoped endpoints under /v1:
// managing service listings and opening negotiations on them.
func RegisterFreelancer(e *echo.Echo, s *handler.ServiceHandler, n *handler.NegotiationHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.AccountFreelancer),
		limiter,
	)

	// ---- Listings ----
	g.POST("/services", s.Create)
	g.PATCH("/services/:id", s.SetActive)

	// ---- Negotiations ----
	g.POST("/negotiations", n.Propose)
}
