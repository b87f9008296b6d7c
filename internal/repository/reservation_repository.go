package repository

import (
    "context"
    "database/sql"

    "github.com/wordCupProject/worldcup/internal/model"
)

// ReservationRepo provides access to the hotel_reservations table.  Dates
// are stored as DATE columns and read back at midnight UTC; the total
// price is a DECIMAL(10,2) scanned straight into decimal.Decimal.
type ReservationRepo struct {
    db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions.
func (r *ReservationRepo) DB() *sql.DB { return r.db }

const reservationColumns = `id, user_id, hotel_id, start_date, end_date, number_of_rooms,
                            number_of_guests, total_price, payment_status, created_at`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
    QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
    QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
    ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
    Scan(dest ...any) error
}

func scanReservation(row rowScanner) (model.Reservation, error) {
    var res model.Reservation
    var status string
    err := row.Scan(&res.ID, &res.UserID, &res.HotelID, &res.StartDate, &res.EndDate,
        &res.NumberOfRooms, &res.NumberOfGuests, &res.TotalPrice, &status, &res.CreatedAt)
    res.PaymentStatus = model.PaymentStatus(status)
    return res, err
}

// InsertReservation stores res and fills its ID and creation time.
func (r *ReservationRepo) InsertReservation(ctx context.Context, res *model.Reservation) error {
    const q = `INSERT INTO hotel_reservations
               (user_id, hotel_id, start_date, end_date, number_of_rooms, number_of_guests, total_price, payment_status)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
    result, err := r.db.ExecContext(ctx, q,
        res.UserID, res.HotelID,
        res.StartDate.Format("2006-01-02"), res.EndDate.Format("2006-01-02"),
        res.NumberOfRooms, res.NumberOfGuests,
        res.TotalPrice.StringFixed(2), string(res.PaymentStatus))
    if err != nil {
        return err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return err
    }
    // Query back the row to pick up server defaults.
    stored, err := r.reservationByID(ctx, r.db, uint64(id), false)
    if err != nil {
        return err
    }
    *res = stored
    return nil
}

// ReservationByID returns a single reservation or sql.ErrNoRows.
func (r *ReservationRepo) ReservationByID(ctx context.Context, id uint64) (model.Reservation, error) {
    return r.reservationByID(ctx, r.db, id, false)
}

// ReservationForUpdateTx reads a reservation inside tx and locks its row
// until the transaction ends.
func (r *ReservationRepo) ReservationForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Reservation, error) {
    return r.reservationByID(ctx, tx, id, true)
}

func (r *ReservationRepo) reservationByID(ctx context.Context, q querier, id uint64, lock bool) (model.Reservation, error) {
    query := `SELECT ` + reservationColumns + ` FROM hotel_reservations WHERE id = ?`
    if lock {
        query += ` FOR UPDATE`
    }
    return scanReservation(q.QueryRowContext(ctx, query, id))
}

// SetStatusTx updates the payment status of a reservation inside tx.  It
// returns sql.ErrNoRows when the reservation does not exist.
func (r *ReservationRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.PaymentStatus) error {
    res, err := tx.ExecContext(ctx, `UPDATE hotel_reservations SET payment_status = ? WHERE id = ?`, string(status), id)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        // MySQL reports zero affected rows when the value is unchanged.
        var exists int
        return tx.QueryRowContext(ctx, `SELECT 1 FROM hotel_reservations WHERE id = ?`, id).Scan(&exists)
    }
    return nil
}

// ReservationsByUser returns the user's reservations, latest stay first.
func (r *ReservationRepo) ReservationsByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
    return r.list(ctx, `SELECT `+reservationColumns+` FROM hotel_reservations
                        WHERE user_id = ? ORDER BY start_date DESC, id DESC`, userID)
}

// AllReservations returns every reservation, latest stay first.
func (r *ReservationRepo) AllReservations(ctx context.Context) ([]model.Reservation, error) {
    return r.list(ctx, `SELECT `+reservationColumns+` FROM hotel_reservations ORDER BY start_date DESC, id DESC`)
}

func (r *ReservationRepo) list(ctx context.Context, query string, args ...any) ([]model.Reservation, error) {
    rows, err := r.db.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Reservation, 0)
    for rows.Next() {
        res, err := scanReservation(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, res)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}
