package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// PaymentMethod is the closed set of ways a reservation can be paid.
type PaymentMethod string

const (
    MethodCreditCard    PaymentMethod = "CREDIT_CARD"
    MethodDebitCard     PaymentMethod = "DEBIT_CARD"
    MethodBankTransfer  PaymentMethod = "BANK_TRANSFER"
    MethodPayPal        PaymentMethod = "PAYPAL"
    MethodCash          PaymentMethod = "CASH"
    MethodMobilePayment PaymentMethod = "MOBILE_PAYMENT"
)

// PaymentMethods lists every accepted method in display order.
var PaymentMethods = []PaymentMethod{
    MethodCreditCard,
    MethodDebitCard,
    MethodBankTransfer,
    MethodPayPal,
    MethodCash,
    MethodMobilePayment,
}

// Valid reports whether m belongs to the enumerated set.
func (m PaymentMethod) Valid() bool {
    for _, v := range PaymentMethods {
        if v == m {
            return true
        }
    }
    return false
}

// RequiresCard reports whether the method needs card details.
func (m PaymentMethod) RequiresCard() bool {
    return m == MethodCreditCard || m == MethodDebitCard
}

// Payment models a row of the `payments` table.  Only the holder
// name and the last four digits of a card are kept; the full number
// and the CVV are used for validation and then dropped.
//
// Fields:
//  ID              – primary key identifier.
//  ReservationID   – reservation being paid.
//  UserID          – owner of the reservation (joined, not stored).
//  Amount          – amount charged; equals the reservation total.
//  Method          – payment method.
//  Status          – PENDING, CONFIRMED, FAILED, CANCELLED or REFUNDED.
//  TransactionID   – unique opaque identifier generated at creation.
//  PaymentDate     – when the gateway confirmed the payment (nullable).
//  CardHolderName  – card holder (card methods only).
//  CardLastFour    – last four digits of the card (card methods only).
//  GatewayResponse – raw payload returned by the gateway.
//  FailureReason   – why the payment failed or was cancelled.
//  CreatedAt       – creation timestamp.
//  UpdatedAt       – last update timestamp.
type Payment struct {
    ID              uint64
    ReservationID   uint64
    UserID          uint64
    Amount          decimal.Decimal
    Method          PaymentMethod
    Status          PaymentStatus
    TransactionID   string
    PaymentDate     *time.Time
    CardHolderName  *string
    CardLastFour    *string
    GatewayResponse *string
    FailureReason   *string
    CreatedAt       time.Time
    UpdatedAt       time.Time
}
