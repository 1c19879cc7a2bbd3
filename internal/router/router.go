// Package router registers the HTTP routes of the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flancer/internal/handler"
	"github.com/iliyamo/flancer/internal/middleware"
	"github.com/iliyamo/flancer/internal/model"
)

// RegisterRoutes registers the liveness and readiness endpoints.
func RegisterRoutes(e *echo.Echo, ready *handler.ReadyHandler) {
	e.GET("/healthz", handler.Health)
	if ready != nil {
		e.GET("/readyz", ready.Ready)
	}
}

// RegisterAuth registers all authentication-related routes. Register,
// login, refresh and logout live under /v1/auth and need no session; the
// account endpoints under /v1 require a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh) // rotates the refresh token
	g.POST("/logout", a.Logout)   // refresh_token in body, or bearer to revoke all

	auth := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.AccountClient, model.AccountFreelancer),
	)
	auth.GET("/me", a.Me)
	auth.PATCH("/me/deactivate", a.Deactivate)
}

// RegisterPublic registers the unauthenticated service catalogue. cache
// may be a pass-through when Redis is unavailable.
func RegisterPublic(e *echo.Echo, s *handler.ServiceHandler, cache echo.MiddlewareFunc) {
	g := e.Group("/v1/services", cache)
	g.GET("", s.List)
	g.GET("/:id", s.Get)
}
