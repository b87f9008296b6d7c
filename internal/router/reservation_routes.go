package router

import (
	"github.com/labstack/echo/v4"

	"github.com/wordCupProject/worldcup/internal/auth"
	"github.com/wordCupProject/worldcup/internal/handler"
	"github.com/wordCupProject/worldcup/internal/middleware"
	"github.com/wordCupProject/worldcup/internal/model"
)

// RegisterReservations registers hotel reservation routes.  Ownership is
// checked in the handler; the full listing is admin only.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, tokens *auth.TokenService) {
	g := e.Group("/v1/hotel-reservations", middleware.JWTAuth(tokens))
	g.POST("", h.Create)
	g.GET("/mine", h.Mine)
	g.GET("/:id", h.Get)
	g.PUT("/:id/cancel", h.Cancel)

	admin := e.Group("/v1/admin", middleware.JWTAuth(tokens), middleware.RequireRole(model.AdminRole))
	admin.GET("/hotel-reservations", h.All)
}
