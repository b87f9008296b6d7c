// Package router registers the HTTP routes of the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/wordCupProject/worldcup/internal/auth"
	"github.com/wordCupProject/worldcup/internal/handler"
	"github.com/wordCupProject/worldcup/internal/middleware"
)

// Deps carries everything the routes need.  Limit guards the auth and
// payment routes; nil means no rate limiting.
type Deps struct {
	Tokens       *auth.TokenService
	Health       echo.HandlerFunc
	Auth         *handler.AuthHandler
	Reservations *handler.ReservationHandler
	Payments     *handler.PaymentHandler
	Limit        echo.MiddlewareFunc
}

// Register mounts every route on e.
func Register(e *echo.Echo, d Deps) {
	if d.Limit == nil {
		d.Limit = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	RegisterRoutes(e, d.Health)
	RegisterAuth(e, d.Auth, d.Tokens, d.Limit)
	RegisterReservations(e, d.Reservations, d.Tokens)
	RegisterPayments(e, d.Payments, d.Tokens, d.Limit)
}

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo, health echo.HandlerFunc) {
	e.GET("/healthz", health)
}

// RegisterAuth registers registration and login under /v1/auth and the
// protected /v1/me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, tokens *auth.TokenService, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limit)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(tokens))
}
