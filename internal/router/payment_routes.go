package router

import (
	"github.com/labstack/echo/v4"

	"github.com/wordCupProject/worldcup/internal/auth"
	"github.com/wordCupProject/worldcup/internal/handler"
	"github.com/wordCupProject/worldcup/internal/middleware"
)

// RegisterPayments registers the payment lifecycle under /v1/payments.
// Authentication runs before the limiter so buckets are keyed per user.
func RegisterPayments(e *echo.Echo, h *handler.PaymentHandler, tokens *auth.TokenService, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/payments", middleware.JWTAuth(tokens), limit)
	g.POST("/pay", h.Pay)
	g.POST("", h.Initiate)
	g.POST("/:id/submit", h.Submit)
	g.POST("/refund/:id", h.Refund)
	g.POST("/cancel/:id", h.Cancel)
	g.GET("/mine", h.Mine)
	g.GET("/by-reservation/:reservationId", h.ByReservation)
	g.GET("/:id", h.Get)
}
