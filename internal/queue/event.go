// Package queue defines message payloads exchanged over the message broker.
package queue

// Routing keys of payment events.  They double as the event type.
const (
    EventPaymentConfirmed = "payment.confirmed"
    EventPaymentFailed    = "payment.failed"
    EventPaymentRefunded  = "payment.refunded"
)

// PaymentEvent is published whenever a payment reaches a settled state.
// It carries enough information for downstream consumers to log or notify
// without querying the primary database.  Amount is the decimal string
// with two fraction digits.
type PaymentEvent struct {
    Type          string `json:"type"`
    PaymentID     uint64 `json:"payment_id"`
    ReservationID uint64 `json:"reservation_id"`
    UserID        uint64 `json:"user_id"`
    TransactionID string `json:"transaction_id"`
    Method        string `json:"payment_method"`
    Status        string `json:"payment_status"`
    Amount        string `json:"amount"`
    Reason        string `json:"reason,omitempty"`
    OccurredAt    string `json:"occurred_at"`
}
