// Package service holds the business rules of the booking backend.  It
// talks to persistence through small store interfaces so that every rule
// can be exercised without a database.
package service

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/shopspring/decimal"
    "go.uber.org/zap"

    "github.com/wordCupProject/worldcup/internal/gateway"
    "github.com/wordCupProject/worldcup/internal/model"
    "github.com/wordCupProject/worldcup/internal/queue"
)

// CancelledByUser is the failure reason recorded on cancelled payments.
const CancelledByUser = "cancelled by user"

// PaymentTx is the set of reads and writes performed inside one payment
// transaction.  Absent rows are reported as sql.ErrNoRows.
type PaymentTx interface {
    // ReservationForUpdate reads the reservation and locks its row until
    // the transaction ends.
    ReservationForUpdate(ctx context.Context, id uint64) (model.Reservation, error)
    LatestPaymentByReservation(ctx context.Context, reservationID uint64) (model.Payment, error)
    // PaymentByID reads the payment without locking it.
    PaymentByID(ctx context.Context, id uint64) (model.Payment, error)
    // PaymentForUpdate reads the payment and locks its row.  Callers lock
    // the owning reservation first.
    PaymentForUpdate(ctx context.Context, id uint64) (model.Payment, error)
    InsertPayment(ctx context.Context, p *model.Payment) error
    UpdatePayment(ctx context.Context, p *model.Payment) error
    SetReservationStatus(ctx context.Context, reservationID uint64, status model.PaymentStatus) error
}

// PaymentStore gives access to payments outside and inside transactions.
type PaymentStore interface {
    // WithTx runs fn in a transaction, committing when fn returns nil and
    // rolling back otherwise.
    WithTx(ctx context.Context, fn func(tx PaymentTx) error) error
    PaymentByID(ctx context.Context, id uint64) (model.Payment, error)
    LatestPaymentByReservation(ctx context.Context, reservationID uint64) (model.Payment, error)
    PaymentsByUser(ctx context.Context, userID uint64) ([]model.Payment, error)
}

// Gateway is the external processor.  *gateway.Simulator satisfies it.
type Gateway interface {
    ProcessPayment(ctx context.Context, p model.Payment) gateway.Outcome
    RefundPayment(ctx context.Context, p model.Payment) gateway.Outcome
}

// EventPublisher broadcasts settled payments.  Publishing is best effort.
type EventPublisher interface {
    Publish(ctx context.Context, ev queue.PaymentEvent) error
}

// PublishTimeout bounds how long a settled payment waits on the event
// broker before the response is sent.
const PublishTimeout = 3 * time.Second

// RetryPolicy decides whether a reservation that already has a payment
// may receive a new one.
type RetryPolicy string

const (
    // RetryAfterFailure allows a new payment when the latest one is
    // FAILED or CANCELLED.
    RetryAfterFailure RetryPolicy = "allow_after_failure"
    // RetryStrict blocks any second payment on a reservation.
    RetryStrict RetryPolicy = "strict"
)

// ParseRetryPolicy maps a configuration value to a policy.  Unknown
// values fall back to RetryAfterFailure.
func ParseRetryPolicy(s string) RetryPolicy {
    if RetryPolicy(strings.ToLower(strings.TrimSpace(s))) == RetryStrict {
        return RetryStrict
    }
    return RetryAfterFailure
}

// InitiateInput is a request to create a payment.
type InitiateInput struct {
    ReservationID uint64
    Amount        decimal.Decimal
    Method        model.PaymentMethod
    Card          *CardDetails
}

// PaymentService enforces the payment state machine and keeps payment
// and reservation status in lockstep:
//
//  PENDING   -> CONFIRMED | FAILED | CANCELLED
//  CONFIRMED -> REFUNDED
type PaymentService struct {
    store   PaymentStore
    gateway Gateway
    events  EventPublisher
    log     *zap.Logger
    policy  RetryPolicy
    now     func() time.Time

    publishTimeout time.Duration
}

// NewPaymentService wires a PaymentService.  events may be nil.
func NewPaymentService(store PaymentStore, gw Gateway, events EventPublisher, policy RetryPolicy, log *zap.Logger) *PaymentService {
    if log == nil {
        log = zap.NewNop()
    }
    if policy == "" {
        policy = RetryAfterFailure
    }
    return &PaymentService{store: store, gateway: gw, events: events, log: log, policy: policy, now: time.Now,
        publishTimeout: PublishTimeout}
}

// WithClock replaces the time source used for card expiry and timestamps.
func (s *PaymentService) WithClock(now func() time.Time) *PaymentService {
    s.now = now
    return s
}

// Initiate creates a PENDING payment for a reservation.  The reservation
// row stays locked while the preconditions are checked so that two
// concurrent calls cannot both pass the single-payment check.
func (s *PaymentService) Initiate(ctx context.Context, in InitiateInput) (model.Payment, error) {
    var created model.Payment
    err := s.store.WithTx(ctx, func(tx PaymentTx) error {
        res, err := tx.ReservationForUpdate(ctx, in.ReservationID)
        if errors.Is(err, sql.ErrNoRows) {
            return notFound(CodeReservationNotFound, fmt.Sprintf("reservation %d not found", in.ReservationID))
        }
        if err != nil {
            return fmt.Errorf("load reservation: %w", err)
        }
        if err := s.checkPayable(ctx, tx, res); err != nil {
            return err
        }
        if err := s.checkInput(in, res); err != nil {
            return err
        }

        p := model.Payment{
            ReservationID: res.ID,
            UserID:        res.UserID,
            Amount:        in.Amount,
            Method:        in.Method,
            Status:        model.StatusPending,
            TransactionID: NewTransactionID(),
        }
        if in.Method.RequiresCard() {
            holder := strings.TrimSpace(in.Card.HolderName)
            last4 := LastFour(NormalizeCardNumber(in.Card.Number))
            p.CardHolderName = &holder
            p.CardLastFour = &last4
        }
        if err := tx.InsertPayment(ctx, &p); err != nil {
            return fmt.Errorf("insert payment: %w", err)
        }
        created = p
        return nil
    })
    if err != nil {
        return model.Payment{}, err
    }
    s.log.Info("payment initiated",
        zap.Uint64("payment_id", created.ID),
        zap.Uint64("reservation_id", created.ReservationID),
        zap.String("transaction_id", created.TransactionID),
        zap.String("method", string(created.Method)))
    return created, nil
}

// checkPayable rejects a reservation that is cancelled or already has a
// payment that blocks a new one under the configured policy.
func (s *PaymentService) checkPayable(ctx context.Context, tx PaymentTx, res model.Reservation) error {
    latest, err := tx.LatestPaymentByReservation(ctx, res.ID)
    switch {
    case errors.Is(err, sql.ErrNoRows):
    case err != nil:
        return fmt.Errorf("load latest payment: %w", err)
    default:
        switch latest.Status {
        case model.StatusConfirmed, model.StatusRefunded:
            return invalidState(CodeAlreadyPaid, "reservation already has a confirmed payment")
        case model.StatusPending:
            return invalidState(CodePaymentPending, "reservation already has a pending payment")
        }
        if s.policy == RetryStrict {
            return invalidState(CodePaymentExists, "reservation already has a payment")
        }
    }
    if res.PaymentStatus == model.StatusCancelled {
        return invalidState(CodeReservationCancelled, "reservation is cancelled")
    }
    return nil
}

func (s *PaymentService) checkInput(in InitiateInput, res model.Reservation) error {
    if !in.Amount.IsPositive() {
        return validation(CodeInvalidAmount, "amount must be greater than zero")
    }
    if !in.Amount.Equal(res.TotalPrice) {
        return validation(CodeAmountMismatch,
            fmt.Sprintf("amount %s does not match reservation total %s", in.Amount.StringFixed(2), res.TotalPrice.StringFixed(2)))
    }
    if !in.Method.Valid() {
        return validation(CodeInvalidMethod, fmt.Sprintf("unsupported payment method %q", in.Method))
    }
    if in.Method.RequiresCard() {
        if verr := validateCard(in.Card, s.now()); verr != nil {
            return verr
        }
    }
    return nil
}

// Submit sends a PENDING payment to the gateway once and records the
// outcome.  On success the reservation is confirmed in the same
// transaction, written after the payment.  On failure the reservation is
// left as it was.
//
// The gateway sees ctx, but the transaction runs on a context that
// ignores cancellation: a payment never stays PENDING after an attempt.
func (s *PaymentService) Submit(ctx context.Context, paymentID uint64) (model.Payment, error) {
    dctx := context.WithoutCancel(ctx)
    var (
        result model.Payment
        event  string
    )
    err := s.store.WithTx(dctx, func(tx PaymentTx) error {
        p, err := lockPayment(dctx, tx, paymentID)
        if err != nil {
            return err
        }
        if p.Status != model.StatusPending {
            return invalidState(CodeNotPending, fmt.Sprintf("payment is %s, only PENDING payments can be submitted", p.Status))
        }

        out := s.gateway.ProcessPayment(ctx, p)
        raw := out.RawResponse
        p.GatewayResponse = &raw
        if out.Success {
            at := s.now().UTC()
            p.Status = model.StatusConfirmed
            p.PaymentDate = &at
            p.FailureReason = nil
            event = queue.EventPaymentConfirmed
        } else {
            reason := out.Message
            p.Status = model.StatusFailed
            p.FailureReason = &reason
            event = queue.EventPaymentFailed
        }
        if err := tx.UpdatePayment(dctx, &p); err != nil {
            return fmt.Errorf("update payment: %w", err)
        }
        if out.Success {
            if err := tx.SetReservationStatus(dctx, p.ReservationID, model.StatusConfirmed); err != nil {
                return fmt.Errorf("update reservation: %w", err)
            }
        }
        result = p
        return nil
    })
    if err != nil {
        return model.Payment{}, err
    }
    s.log.Info("payment submitted",
        zap.Uint64("payment_id", result.ID),
        zap.String("transaction_id", result.TransactionID),
        zap.String("status", string(result.Status)))
    s.publish(dctx, event, result)
    return result, nil
}

// lockPayment locks the owning reservation row and then the payment row,
// the same order Initiate and ReservationService.Cancel take them in.
func lockPayment(ctx context.Context, tx PaymentTx, paymentID uint64) (model.Payment, error) {
    p, err := tx.PaymentByID(ctx, paymentID)
    if errors.Is(err, sql.ErrNoRows) {
        return model.Payment{}, notFound(CodePaymentNotFound, fmt.Sprintf("payment %d not found", paymentID))
    }
    if err != nil {
        return model.Payment{}, fmt.Errorf("load payment: %w", err)
    }
    if _, err := tx.ReservationForUpdate(ctx, p.ReservationID); err != nil {
        return model.Payment{}, fmt.Errorf("lock reservation: %w", err)
    }
    if p, err = tx.PaymentForUpdate(ctx, paymentID); err != nil {
        return model.Payment{}, fmt.Errorf("lock payment: %w", err)
    }
    return p, nil
}

// MakePayment initiates and immediately submits a payment.
func (s *PaymentService) MakePayment(ctx context.Context, in InitiateInput) (model.Payment, error) {
    p, err := s.Initiate(ctx, in)
    if err != nil {
        return model.Payment{}, err
    }
    return s.Submit(ctx, p.ID)
}

// Refund reverses a CONFIRMED payment.  When the gateway declines, state
// is left unchanged and ErrRefundFailed is returned.
func (s *PaymentService) Refund(ctx context.Context, paymentID uint64) (model.Payment, error) {
    dctx := context.WithoutCancel(ctx)
    var result model.Payment
    err := s.store.WithTx(dctx, func(tx PaymentTx) error {
        p, err := lockPayment(dctx, tx, paymentID)
        if err != nil {
            return err
        }
        if p.Status != model.StatusConfirmed {
            return invalidState(CodeNotConfirmed, fmt.Sprintf("payment is %s, only CONFIRMED payments can be refunded", p.Status))
        }

        out := s.gateway.RefundPayment(ctx, p)
        if !out.Success {
            s.log.Warn("refund declined",
                zap.Uint64("payment_id", p.ID),
                zap.String("code", out.Code))
            return ErrRefundFailed
        }
        raw := out.RawResponse
        p.GatewayResponse = &raw
        p.Status = model.StatusRefunded
        if err := tx.UpdatePayment(dctx, &p); err != nil {
            return fmt.Errorf("update payment: %w", err)
        }
        if err := tx.SetReservationStatus(dctx, p.ReservationID, model.StatusRefunded); err != nil {
            return fmt.Errorf("update reservation: %w", err)
        }
        result = p
        return nil
    })
    if err != nil {
        return model.Payment{}, err
    }
    s.log.Info("payment refunded", zap.Uint64("payment_id", result.ID), zap.String("transaction_id", result.TransactionID))
    s.publish(dctx, queue.EventPaymentRefunded, result)
    return result, nil
}

// Cancel abandons a PENDING payment.  The reservation is not touched.
func (s *PaymentService) Cancel(ctx context.Context, paymentID uint64) (model.Payment, error) {
    var result model.Payment
    err := s.store.WithTx(ctx, func(tx PaymentTx) error {
        p, err := lockPayment(ctx, tx, paymentID)
        if err != nil {
            return err
        }
        if p.Status != model.StatusPending {
            return invalidState(CodeNotPending, fmt.Sprintf("payment is %s, only PENDING payments can be cancelled", p.Status))
        }
        reason := CancelledByUser
        p.Status = model.StatusCancelled
        p.FailureReason = &reason
        if err := tx.UpdatePayment(ctx, &p); err != nil {
            return fmt.Errorf("update payment: %w", err)
        }
        result = p
        return nil
    })
    if err != nil {
        return model.Payment{}, err
    }
    s.log.Info("payment cancelled", zap.Uint64("payment_id", result.ID))
    return result, nil
}

// GetByReservation returns the most recent payment of a reservation.
func (s *PaymentService) GetByReservation(ctx context.Context, reservationID uint64) (model.Payment, error) {
    p, err := s.store.LatestPaymentByReservation(ctx, reservationID)
    if errors.Is(err, sql.ErrNoRows) {
        return model.Payment{}, notFound(CodePaymentNotFound, fmt.Sprintf("no payment for reservation %d", reservationID))
    }
    return p, err
}

// GetByID returns a payment.
func (s *PaymentService) GetByID(ctx context.Context, id uint64) (model.Payment, error) {
    p, err := s.store.PaymentByID(ctx, id)
    if errors.Is(err, sql.ErrNoRows) {
        return model.Payment{}, notFound(CodePaymentNotFound, fmt.Sprintf("payment %d not found", id))
    }
    return p, err
}

// ListByUser returns every payment on the user's reservations, newest
// first.
func (s *PaymentService) ListByUser(ctx context.Context, userID uint64) ([]model.Payment, error) {
    return s.store.PaymentsByUser(ctx, userID)
}

func (s *PaymentService) publish(ctx context.Context, typ string, p model.Payment) {
    if s.events == nil || typ == "" {
        return
    }
    ev := queue.PaymentEvent{
        Type:          typ,
        PaymentID:     p.ID,
        ReservationID: p.ReservationID,
        UserID:        p.UserID,
        TransactionID: p.TransactionID,
        Method:        string(p.Method),
        Status:        string(p.Status),
        Amount:        p.Amount.StringFixed(2),
        OccurredAt:    s.now().UTC().Format(time.RFC3339),
    }
    if p.FailureReason != nil {
        ev.Reason = *p.FailureReason
    }
    pctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
    defer cancel()
    if err := s.events.Publish(pctx, ev); err != nil {
        s.log.Warn("publish payment event failed", zap.String("type", typ), zap.Error(err))
    }
}

// NewTransactionID returns a fresh opaque transaction identifier.
func NewTransactionID() string {
    return "TXN-" + strings.ToUpper(uuid.NewString())
}
