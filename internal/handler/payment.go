package handler

import (
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/shopspring/decimal"
    "go.uber.org/zap"

    "github.com/wordCupProject/worldcup/internal/model"
    "github.com/wordCupProject/worldcup/internal/service"
)

// PaymentHandler exposes the payment lifecycle.  Every operation is
// restricted to the owner of the underlying reservation or an admin.
type PaymentHandler struct {
    Payments     *service.PaymentService
    Reservations *service.ReservationService
    Log          *zap.Logger
}

func NewPaymentHandler(payments *service.PaymentService, reservations *service.ReservationService, log *zap.Logger) *PaymentHandler {
    return &PaymentHandler{Payments: payments, Reservations: reservations, Log: log}
}

// paymentReq carries the card number and CVV in; neither is ever echoed
// back.
type paymentReq struct {
    ReservationID  uint64          `json:"reservationId" validate:"required"`
    Amount         decimal.Decimal `json:"amount"`
    PaymentMethod  string          `json:"paymentMethod" validate:"required"`
    CardHolderName string          `json:"cardHolderName"`
    CardNumber     string          `json:"cardNumber"`
    ExpiryDate     string          `json:"expiryDate"`
    CVV            string          `json:"cvv"`
}

func (r paymentReq) input() service.InitiateInput {
    in := service.InitiateInput{
        ReservationID: r.ReservationID,
        Amount:        r.Amount,
        Method:        model.PaymentMethod(r.PaymentMethod),
    }
    if in.Method.RequiresCard() {
        in.Card = &service.CardDetails{
            HolderName: r.CardHolderName,
            Number:     r.CardNumber,
            ExpiryDate: r.ExpiryDate,
            CVV:        r.CVV,
        }
    }
    return in
}

type paymentView struct {
    ID              uint64     `json:"id"`
    ReservationID   uint64     `json:"reservationId"`
    Amount          string     `json:"amount"`
    PaymentMethod   string     `json:"paymentMethod"`
    PaymentStatus   string     `json:"paymentStatus"`
    TransactionID   string     `json:"transactionId"`
    PaymentDate     *time.Time `json:"paymentDate"`
    CardHolderName  *string    `json:"cardHolderName"`
    CardLastFour    *string    `json:"cardLastFour"`
    GatewayResponse *string    `json:"gatewayResponse"`
    FailureReason   *string    `json:"failureReason"`
    CreatedAt       time.Time  `json:"createdAt"`
    UpdatedAt       time.Time  `json:"updatedAt"`
}

func toPaymentView(p model.Payment) paymentView {
    return paymentView{
        ID:              p.ID,
        ReservationID:   p.ReservationID,
        Amount:          p.Amount.StringFixed(2),
        PaymentMethod:   string(p.Method),
        PaymentStatus:   string(p.Status),
        TransactionID:   p.TransactionID,
        PaymentDate:     p.PaymentDate,
        CardHolderName:  p.CardHolderName,
        CardLastFour:    p.CardLastFour,
        GatewayResponse: p.GatewayResponse,
        FailureReason:   p.FailureReason,
        CreatedAt:       p.CreatedAt,
        UpdatedAt:       p.UpdatedAt,
    }
}

// bindPayment binds the body and checks the caller owns the reservation.
// It writes the response itself when ok is false.
func (h *PaymentHandler) bindPayment(c echo.Context) (in service.InitiateInput, ok bool, err error) {
    var req paymentReq
    if msg, valid := bindValid(c, &req); !valid {
        return in, false, badRequest(c, msg)
    }
    r, err := h.Reservations.Get(c.Request().Context(), req.ReservationID)
    if err != nil {
        return in, false, respondError(c, h.Log, err)
    }
    if !canAccess(c, r.UserID) {
        return in, false, forbidden(c)
    }
    return req.input(), true, nil
}

// Pay handles POST /v1/payments/pay: create and submit in one call.  A
// declined payment is still a 201; its status and failure reason tell the
// caller what happened.
func (h *PaymentHandler) Pay(c echo.Context) error {
    in, ok, err := h.bindPayment(c)
    if !ok {
        return err
    }
    p, err := h.Payments.MakePayment(c.Request().Context(), in)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, toPaymentView(p))
}

// Initiate handles POST /v1/payments and leaves the payment PENDING.
func (h *PaymentHandler) Initiate(c echo.Context) error {
    in, ok, err := h.bindPayment(c)
    if !ok {
        return err
    }
    p, err := h.Payments.Initiate(c.Request().Context(), in)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, toPaymentView(p))
}

// ownedPayment loads the payment named by the :id path parameter and
// checks ownership.  It writes the response itself when ok is false.
func (h *PaymentHandler) ownedPayment(c echo.Context) (p model.Payment, ok bool, err error) {
    id, valid := pathID(c, "id")
    if !valid {
        return p, false, badRequest(c, "invalid payment id")
    }
    p, err = h.Payments.GetByID(c.Request().Context(), id)
    if err != nil {
        return p, false, respondError(c, h.Log, err)
    }
    if !canAccess(c, p.UserID) {
        return p, false, forbidden(c)
    }
    return p, true, nil
}

// Submit handles POST /v1/payments/:id/submit.
func (h *PaymentHandler) Submit(c echo.Context) error {
    p, ok, err := h.ownedPayment(c)
    if !ok {
        return err
    }
    p, err = h.Payments.Submit(c.Request().Context(), p.ID)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, toPaymentView(p))
}

// Refund handles POST /v1/payments/refund/:id.
func (h *PaymentHandler) Refund(c echo.Context) error {
    p, ok, err := h.ownedPayment(c)
    if !ok {
        return err
    }
    p, err = h.Payments.Refund(c.Request().Context(), p.ID)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, toPaymentView(p))
}

// Cancel handles POST /v1/payments/cancel/:id.
func (h *PaymentHandler) Cancel(c echo.Context) error {
    p, ok, err := h.ownedPayment(c)
    if !ok {
        return err
    }
    p, err = h.Payments.Cancel(c.Request().Context(), p.ID)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, toPaymentView(p))
}

// Get handles GET /v1/payments/:id.
func (h *PaymentHandler) Get(c echo.Context) error {
    p, ok, err := h.ownedPayment(c)
    if !ok {
        return err
    }
    return c.JSON(http.StatusOK, toPaymentView(p))
}

// ByReservation handles GET /v1/payments/by-reservation/:reservationId.
func (h *PaymentHandler) ByReservation(c echo.Context) error {
    rid, ok := pathID(c, "reservationId")
    if !ok {
        return badRequest(c, "invalid reservation id")
    }
    ctx := c.Request().Context()
    r, err := h.Reservations.Get(ctx, rid)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    if !canAccess(c, r.UserID) {
        return forbidden(c)
    }
    p, err := h.Payments.GetByReservation(ctx, rid)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, toPaymentView(p))
}

// Mine handles GET /v1/payments/mine.
func (h *PaymentHandler) Mine(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "code": "INVALID_TOKEN"})
    }
    list, err := h.Payments.ListByUser(c.Request().Context(), uid)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    out := make([]paymentView, 0, len(list))
    for _, p := range list {
        out = append(out, toPaymentView(p))
    }
    return c.JSON(http.StatusOK, out)
}
