package service

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "time"

    "github.com/shopspring/decimal"
    "go.uber.org/zap"

    "github.com/wordCupProject/worldcup/internal/model"
)

// DefaultNightlyRate is the flat price of one room for one night.
var DefaultNightlyRate = decimal.NewFromInt(1000)

// ReservationCancelled is the failure reason put on a pending payment
// whose reservation is cancelled.
const ReservationCancelled = "reservation cancelled"

// ReservationStore persists hotel reservations.  Absent rows are reported
// as sql.ErrNoRows.
type ReservationStore interface {
    InsertReservation(ctx context.Context, r *model.Reservation) error
    ReservationByID(ctx context.Context, id uint64) (model.Reservation, error)
    ReservationsByUser(ctx context.Context, userID uint64) ([]model.Reservation, error)
    AllReservations(ctx context.Context) ([]model.Reservation, error)
}

// CreateReservationInput is a booking request.  Dates are calendar days;
// their time of day is ignored.
type CreateReservationInput struct {
    UserID         uint64
    HotelID        uint64
    StartDate      time.Time
    EndDate        time.Time
    NumberOfRooms  int
    NumberOfGuests int
}

// ReservationService books and cancels hotel stays.
type ReservationService struct {
    store    ReservationStore
    payments PaymentStore
    rate     decimal.Decimal
    log      *zap.Logger
    now      func() time.Time
}

// NewReservationService builds a ReservationService.  A non-positive rate
// falls back to DefaultNightlyRate.
func NewReservationService(store ReservationStore, payments PaymentStore, rate decimal.Decimal, log *zap.Logger) *ReservationService {
    if !rate.IsPositive() {
        rate = DefaultNightlyRate
    }
    if log == nil {
        log = zap.NewNop()
    }
    return &ReservationService{store: store, payments: payments, rate: rate, log: log, now: time.Now}
}

// WithClock replaces the time source used by the cancellation window.
func (s *ReservationService) WithClock(now func() time.Time) *ReservationService {
    s.now = now
    return s
}

// Quote returns the total price for a stay: rate x nights x rooms.
func (s *ReservationService) Quote(nights, rooms int) decimal.Decimal {
    return s.rate.Mul(decimal.NewFromInt(int64(nights))).Mul(decimal.NewFromInt(int64(rooms)))
}

// Create books a stay in PENDING.  The total price is fixed here and
// never recomputed.
func (s *ReservationService) Create(ctx context.Context, in CreateReservationInput) (model.Reservation, error) {
    start, end := truncateDay(in.StartDate), truncateDay(in.EndDate)
    if !end.After(start) {
        return model.Reservation{}, validation(CodeInvalidDates, "end date must be after start date")
    }
    if start.Before(truncateDay(s.now())) {
        return model.Reservation{}, validation(CodeInvalidDates, "start date is in the past")
    }
    if in.NumberOfRooms < 1 {
        return model.Reservation{}, validation(CodeInvalidRooms, "at least one room is required")
    }
    if in.NumberOfGuests < 1 {
        return model.Reservation{}, validation(CodeInvalidGuests, "at least one guest is required")
    }

    r := model.Reservation{
        UserID:         in.UserID,
        HotelID:        in.HotelID,
        StartDate:      start,
        EndDate:        end,
        NumberOfRooms:  in.NumberOfRooms,
        NumberOfGuests: in.NumberOfGuests,
        PaymentStatus:  model.StatusPending,
    }
    r.TotalPrice = s.Quote(r.Nights(), r.NumberOfRooms)
    if err := s.store.InsertReservation(ctx, &r); err != nil {
        return model.Reservation{}, fmt.Errorf("insert reservation: %w", err)
    }
    s.log.Info("reservation created",
        zap.Uint64("reservation_id", r.ID),
        zap.Uint64("user_id", r.UserID),
        zap.String("total", r.TotalPrice.StringFixed(2)))
    return r, nil
}

// Get returns a reservation.
func (s *ReservationService) Get(ctx context.Context, id uint64) (model.Reservation, error) {
    r, err := s.store.ReservationByID(ctx, id)
    if errors.Is(err, sql.ErrNoRows) {
        return model.Reservation{}, notFound(CodeReservationNotFound, fmt.Sprintf("reservation %d not found", id))
    }
    return r, err
}

// ListByUser returns a user's reservations, latest stay first.
func (s *ReservationService) ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
    return s.store.ReservationsByUser(ctx, userID)
}

// ListAll returns every reservation, latest stay first.
func (s *ReservationService) ListAll(ctx context.Context) ([]model.Reservation, error) {
    return s.store.AllReservations(ctx)
}

// Cancel cancels a reservation at least one day before the stay starts.
// A confirmed reservation must be refunded instead.  A pending payment
// on the reservation is cancelled with it.
func (s *ReservationService) Cancel(ctx context.Context, id uint64) (model.Reservation, error) {
    var result model.Reservation
    err := s.payments.WithTx(ctx, func(tx PaymentTx) error {
        r, err := tx.ReservationForUpdate(ctx, id)
        if errors.Is(err, sql.ErrNoRows) {
            return notFound(CodeReservationNotFound, fmt.Sprintf("reservation %d not found", id))
        }
        if err != nil {
            return fmt.Errorf("load reservation: %w", err)
        }
        switch r.PaymentStatus {
        case model.StatusConfirmed:
            return invalidState(CodeNotCancellable, "reservation is paid, request a refund instead")
        case model.StatusCancelled, model.StatusRefunded:
            return invalidState(CodeNotCancellable, fmt.Sprintf("reservation is already %s", r.PaymentStatus))
        }
        if r.StartDate.Before(truncateDay(s.now()).AddDate(0, 0, 1)) {
            return invalidState(CodeCancellationTooLate, "reservations cannot be cancelled less than 24h before the start")
        }

        latest, err := tx.LatestPaymentByReservation(ctx, r.ID)
        switch {
        case errors.Is(err, sql.ErrNoRows):
        case err != nil:
            return fmt.Errorf("load latest payment: %w", err)
        case latest.Status == model.StatusPending:
            p, err := tx.PaymentForUpdate(ctx, latest.ID)
            if err != nil {
                return fmt.Errorf("lock payment: %w", err)
            }
            reason := ReservationCancelled
            p.Status = model.StatusCancelled
            p.FailureReason = &reason
            if err := tx.UpdatePayment(ctx, &p); err != nil {
                return fmt.Errorf("update payment: %w", err)
            }
        }

        if err := tx.SetReservationStatus(ctx, r.ID, model.StatusCancelled); err != nil {
            return fmt.Errorf("update reservation: %w", err)
        }
        r.PaymentStatus = model.StatusCancelled
        result = r
        return nil
    })
    if err != nil {
        return model.Reservation{}, err
    }
    s.log.Info("reservation cancelled", zap.Uint64("reservation_id", result.ID))
    return result, nil
}

func truncateDay(t time.Time) time.Time {
    y, m, d := t.UTC().Date()
    return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
