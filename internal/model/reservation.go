package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// PaymentStatus is shared by reservations and payments.  A reservation
// mirrors the status of the payment that settled it.
type PaymentStatus string

const (
    StatusPending   PaymentStatus = "PENDING"
    StatusConfirmed PaymentStatus = "CONFIRMED"
    StatusCancelled PaymentStatus = "CANCELLED"
    StatusRefunded  PaymentStatus = "REFUNDED"
    StatusFailed    PaymentStatus = "FAILED"
)

// Valid reports whether s is one of the enumerated statuses.
func (s PaymentStatus) Valid() bool {
    switch s {
    case StatusPending, StatusConfirmed, StatusCancelled, StatusRefunded, StatusFailed:
        return true
    }
    return false
}

// Reservation records a user's hotel booking for a date range.
// The total price is computed once at creation and never changes;
// any payment submitted against the reservation must match it.
//
// Fields:
//  ID             – primary key identifier.
//  UserID         – user who made the reservation.
//  HotelID        – hotel being booked (catalog lives elsewhere).
//  StartDate      – first night (date only, UTC).
//  EndDate        – departure day (date only, UTC).
//  NumberOfRooms  – rooms booked.
//  NumberOfGuests – guests staying.
//  TotalPrice     – total amount due.
//  PaymentStatus  – PENDING, CONFIRMED, CANCELLED, REFUNDED or FAILED.
//  CreatedAt      – creation timestamp.
type Reservation struct {
    ID             uint64          // hotel_reservations.id
    UserID         uint64          // hotel_reservations.user_id
    HotelID        uint64          // hotel_reservations.hotel_id
    StartDate      time.Time       // hotel_reservations.start_date
    EndDate        time.Time       // hotel_reservations.end_date
    NumberOfRooms  int             // hotel_reservations.number_of_rooms
    NumberOfGuests int             // hotel_reservations.number_of_guests
    TotalPrice     decimal.Decimal // hotel_reservations.total_price
    PaymentStatus  PaymentStatus   // hotel_reservations.payment_status
    CreatedAt      time.Time       // hotel_reservations.created_at
}

// Nights returns the number of nights between StartDate and EndDate.
func (r Reservation) Nights() int {
    return int(r.EndDate.Sub(r.StartDate).Hours() / 24)
}
