package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flancer/internal/handler"
	"github.com/iliyamo/flancer/internal/middleware"
	"github.com/iliyamo/flancer/internal/model"
)

// RegisterNegotiation registers the endpoints shared by both sides of a
// negotiation. Every route requires a valid JWT with the CLIENT or
// FREELANCER role and passes the rate limiter; party membership is checked
// by the engine.
func RegisterNegotiation(e *echo.Echo, n *handler.NegotiationHandler, j *handler.JobHandler, nt *handler.NotificationHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.AccountClient, model.AccountFreelancer),
		limiter,
	)

	g.GET("/negotiations", n.List)
	g.GET("/negotiations/:id", n.Get)
	g.GET("/negotiations/:id/offers", n.Offers)
	g.POST("/negotiations/:id/counter", n.Counter)
	g.POST("/negotiations/:id/agree", n.Agree)
	g.POST("/negotiations/:id/decline", n.Decline)
	g.POST("/negotiations/:id/materialize", n.Materialize)

	g.GET("/jobs", j.List)
	g.GET("/jobs/:id", j.Get)
	g.GET("/dashboard", j.Dashboard)

	g.GET("/notifications", nt.List)
	g.POST("/notifications/:id/read", nt.MarkRead)
}
