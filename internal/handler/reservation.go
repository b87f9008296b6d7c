package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/wordCupProject/worldcup/internal/model"
    "github.com/wordCupProject/worldcup/internal/service"
)

const dateLayout = "2006-01-02"

// ReservationHandler serves hotel reservations.  Callers see their own
// reservations; admins see all of them.
type ReservationHandler struct {
    Reservations *service.ReservationService
    Log          *zap.Logger
}

func NewReservationHandler(reservations *service.ReservationService, log *zap.Logger) *ReservationHandler {
    return &ReservationHandler{Reservations: reservations, Log: log}
}

type createReservationReq struct {
    HotelID        uint64 `json:"hotelId" validate:"required"`
    StartDate      string `json:"startDate" validate:"required"`
    EndDate        string `json:"endDate" validate:"required"`
    NumberOfRooms  int    `json:"numberOfRooms"`
    NumberOfGuests int    `json:"numberOfGuests"`
}

type reservationView struct {
    ID             uint64    `json:"id"`
    UserID         uint64    `json:"userId"`
    HotelID        uint64    `json:"hotelId"`
    StartDate      string    `json:"startDate"`
    EndDate        string    `json:"endDate"`
    Nights         int       `json:"nights"`
    NumberOfRooms  int       `json:"numberOfRooms"`
    NumberOfGuests int       `json:"numberOfGuests"`
    TotalPrice     string    `json:"totalPrice"`
    PaymentStatus  string    `json:"paymentStatus"`
    CreatedAt      time.Time `json:"createdAt"`
}

func toReservationView(r model.Reservation) reservationView {
    return reservationView{
        ID:             r.ID,
        UserID:         r.UserID,
        HotelID:        r.HotelID,
        StartDate:      r.StartDate.Format(dateLayout),
        EndDate:        r.EndDate.Format(dateLayout),
        Nights:         r.Nights(),
        NumberOfRooms:  r.NumberOfRooms,
        NumberOfGuests: r.NumberOfGuests,
        TotalPrice:     r.TotalPrice.StringFixed(2),
        PaymentStatus:  string(r.PaymentStatus),
        CreatedAt:      r.CreatedAt,
    }
}

func toReservationViews(list []model.Reservation) []reservationView {
    out := make([]reservationView, 0, len(list))
    for _, r := range list {
        out = append(out, toReservationView(r))
    }
    return out
}

// Create handles POST /v1/hotel-reservations.
func (h *ReservationHandler) Create(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "code": "INVALID_TOKEN"})
    }
    var req createReservationReq
    if msg, ok := bindValid(c, &req); !ok {
        return badRequest(c, msg)
    }
    start, err := time.Parse(dateLayout, req.StartDate)
    if err != nil {
        return badRequest(c, "startDate must be YYYY-MM-DD")
    }
    end, err := time.Parse(dateLayout, req.EndDate)
    if err != nil {
        return badRequest(c, "endDate must be YYYY-MM-DD")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    r, err := h.Reservations.Create(ctx, service.CreateReservationInput{
        UserID:         uid,
        HotelID:        req.HotelID,
        StartDate:      start,
        EndDate:        end,
        NumberOfRooms:  req.NumberOfRooms,
        NumberOfGuests: req.NumberOfGuests,
    })
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, toReservationView(r))
}

// Mine handles GET /v1/hotel-reservations/mine.
func (h *ReservationHandler) Mine(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "code": "INVALID_TOKEN"})
    }
    list, err := h.Reservations.ListByUser(c.Request().Context(), uid)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, toReservationViews(list))
}

// All handles GET /v1/admin/hotel-reservations.
func (h *ReservationHandler) All(c echo.Context) error {
    list, err := h.Reservations.ListAll(c.Request().Context())
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, toReservationViews(list))
}

// Get handles GET /v1/hotel-reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid reservation id")
    }
    r, err := h.Reservations.Get(c.Request().Context(), id)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    if !canAccess(c, r.UserID) {
        return forbidden(c)
    }
    return c.JSON(http.StatusOK, toReservationView(r))
}

// Cancel handles PUT /v1/hotel-reservations/:id/cancel.
func (h *ReservationHandler) Cancel(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid reservation id")
    }
    ctx := c.Request().Context()
    r, err := h.Reservations.Get(ctx, id)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    if !canAccess(c, r.UserID) {
        return forbidden(c)
    }
    r, err = h.Reservations.Cancel(ctx, id)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, toReservationView(r))
}
