package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/wordCupProject/worldcup/internal/model"
    "github.com/wordCupProject/worldcup/internal/service"
)

var (
    _ service.PaymentStore     = (*PaymentRepo)(nil)
    _ service.PaymentTx        = (*paymentTx)(nil)
    _ service.ReservationStore = (*ReservationRepo)(nil)
    _ service.UserStore        = (*UserRepo)(nil)
)

// PaymentRepo provides access to the payments table.  The owning user is
// not stored on the payment; it is joined from hotel_reservations.
type PaymentRepo struct {
    db           *sql.DB
    reservations *ReservationRepo
}

// NewPaymentRepo returns a PaymentRepo.  Transactions opened through
// WithTx also reach the reservation table through reservations.
func NewPaymentRepo(db *sql.DB, reservations *ReservationRepo) *PaymentRepo {
    return &PaymentRepo{db: db, reservations: reservations}
}

const paymentSelect = `SELECT p.id, p.reservation_id, r.user_id, p.amount, p.payment_method, p.payment_status,
                              p.transaction_id, p.payment_date, p.card_holder_name, p.card_last_four,
                              p.gateway_response, p.failure_reason, p.created_at, p.updated_at
                       FROM payments p
                       JOIN hotel_reservations r ON r.id = p.reservation_id`

func scanPayment(row rowScanner) (model.Payment, error) {
    var (
        p                                      model.Payment
        method, status                         string
        paymentDate                            sql.NullTime
        holder, lastFour, gatewayResp, failure sql.NullString
    )
    err := row.Scan(&p.ID, &p.ReservationID, &p.UserID, &p.Amount, &method, &status,
        &p.TransactionID, &paymentDate, &holder, &lastFour,
        &gatewayResp, &failure, &p.CreatedAt, &p.UpdatedAt)
    if err != nil {
        return model.Payment{}, err
    }
    p.Method = model.PaymentMethod(method)
    p.Status = model.PaymentStatus(status)
    if paymentDate.Valid {
        t := paymentDate.Time.UTC()
        p.PaymentDate = &t
    }
    p.CardHolderName = nullableString(holder)
    p.CardLastFour = nullableString(lastFour)
    p.GatewayResponse = nullableString(gatewayResp)
    p.FailureReason = nullableString(failure)
    return p, nil
}

func nullableString(ns sql.NullString) *string {
    if !ns.Valid {
        return nil
    }
    s := ns.String
    return &s
}

func stringOrNull(s *string) any {
    if s == nil {
        return nil
    }
    return *s
}

func timeOrNull(t *time.Time) any {
    if t == nil {
        return nil
    }
    return t.UTC()
}

// PaymentByID returns a payment or sql.ErrNoRows.
func (r *PaymentRepo) PaymentByID(ctx context.Context, id uint64) (model.Payment, error) {
    return scanPayment(r.db.QueryRowContext(ctx, paymentSelect+` WHERE p.id = ?`, id))
}

// LatestPaymentByReservation returns the most recently created payment of
// a reservation or sql.ErrNoRows.
func (r *PaymentRepo) LatestPaymentByReservation(ctx context.Context, reservationID uint64) (model.Payment, error) {
    return latestPayment(ctx, r.db, reservationID)
}

func latestPayment(ctx context.Context, q querier, reservationID uint64) (model.Payment, error) {
    return scanPayment(q.QueryRowContext(ctx,
        paymentSelect+` WHERE p.reservation_id = ? ORDER BY p.id DESC LIMIT 1`, reservationID))
}

// PaymentsByUser returns every payment on the user's reservations, newest
// first.
func (r *PaymentRepo) PaymentsByUser(ctx context.Context, userID uint64) ([]model.Payment, error) {
    rows, err := r.db.QueryContext(ctx, paymentSelect+` WHERE r.user_id = ? ORDER BY p.id DESC`, userID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Payment, 0)
    for rows.Next() {
        p, err := scanPayment(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, p)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}

// WithTx runs fn inside a transaction.  The transaction is committed
// when fn returns nil and rolled back otherwise.
func (r *PaymentRepo) WithTx(ctx context.Context, fn func(tx service.PaymentTx) error) error {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    if err = fn(&paymentTx{tx: tx, payments: r}); err != nil {
        return err
    }
    if err = tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// InsertPaymentTx stores p inside tx and fills its ID and timestamps.
func (r *PaymentRepo) InsertPaymentTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
    const q = `INSERT INTO payments
               (reservation_id, amount, payment_method, payment_status, transaction_id, payment_date,
                card_holder_name, card_last_four, gateway_response, failure_reason)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    res, err := tx.ExecContext(ctx, q,
        p.ReservationID, p.Amount.StringFixed(2), string(p.Method), string(p.Status), p.TransactionID,
        timeOrNull(p.PaymentDate), stringOrNull(p.CardHolderName), stringOrNull(p.CardLastFour),
        stringOrNull(p.GatewayResponse), stringOrNull(p.FailureReason))
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    stored, err := scanPayment(tx.QueryRowContext(ctx, paymentSelect+` WHERE p.id = ?`, id))
    if err != nil {
        return err
    }
    *p = stored
    return nil
}

// PaymentForUpdateTx reads a payment inside tx and locks its row.
func (r *PaymentRepo) PaymentForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Payment, error) {
    return scanPayment(tx.QueryRowContext(ctx, paymentSelect+` WHERE p.id = ? FOR UPDATE`, id))
}

// UpdatePaymentTx writes the mutable columns of p inside tx.
func (r *PaymentRepo) UpdatePaymentTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
    const q = `UPDATE payments
               SET payment_status = ?, payment_date = ?, gateway_response = ?, failure_reason = ?
               WHERE id = ?`
    if _, err := tx.ExecContext(ctx, q,
        string(p.Status), timeOrNull(p.PaymentDate), stringOrNull(p.GatewayResponse),
        stringOrNull(p.FailureReason), p.ID); err != nil {
        return err
    }
    return tx.QueryRowContext(ctx, `SELECT updated_at FROM payments WHERE id = ?`, p.ID).Scan(&p.UpdatedAt)
}

// paymentTx adapts a *sql.Tx to service.PaymentTx.
type paymentTx struct {
    tx       *sql.Tx
    payments *PaymentRepo
}

func (t *paymentTx) ReservationForUpdate(ctx context.Context, id uint64) (model.Reservation, error) {
    return t.payments.reservations.ReservationForUpdateTx(ctx, t.tx, id)
}

func (t *paymentTx) LatestPaymentByReservation(ctx context.Context, reservationID uint64) (model.Payment, error) {
    return latestPayment(ctx, t.tx, reservationID)
}

func (t *paymentTx) PaymentByID(ctx context.Context, id uint64) (model.Payment, error) {
    return scanPayment(t.tx.QueryRowContext(ctx, paymentSelect+` WHERE p.id = ?`, id))
}

func (t *paymentTx) PaymentForUpdate(ctx context.Context, id uint64) (model.Payment, error) {
    return t.payments.PaymentForUpdateTx(ctx, t.tx, id)
}

func (t *paymentTx) InsertPayment(ctx context.Context, p *model.Payment) error {
    return t.payments.InsertPaymentTx(ctx, t.tx, p)
}

func (t *paymentTx) UpdatePayment(ctx context.Context, p *model.Payment) error {
    return t.payments.UpdatePaymentTx(ctx, t.tx, p)
}

func (t *paymentTx) SetReservationStatus(ctx context.Context, reservationID uint64, status model.PaymentStatus) error {
    return t.payments.reservations.SetStatusTx(ctx, t.tx, reservationID, status)
}
