package service

import (
    "errors"
    "fmt"
)

// Error kinds.  Every error returned by a service wraps exactly one of
// them, so handlers can pick a status code with errors.Is.
var (
    ErrValidation   = errors.New("validation error")
    ErrNotFound     = errors.New("not found")
    ErrInvalidState = errors.New("invalid state")
    ErrGateway      = errors.New("gateway error")
    ErrForbidden    = errors.New("forbidden")
    ErrConflict     = errors.New("conflict")
    ErrUnauthorized = errors.New("unauthorized")
)

// Error is a rejected operation.  Code names the precondition that
// failed (e.g. AMOUNT_MISMATCH, CARD_EXPIRED) and Message is meant for
// the end user.
type Error struct {
    Kind    error
    Code    string
    Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// Unwrap exposes the kind to errors.Is.
func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, code, msg string) *Error {
    return &Error{Kind: kind, Code: code, Message: msg}
}

func validation(code, msg string) *Error   { return newError(ErrValidation, code, msg) }
func notFound(code, msg string) *Error     { return newError(ErrNotFound, code, msg) }
func invalidState(code, msg string) *Error { return newError(ErrInvalidState, code, msg) }

// Precondition codes.
const (
    CodeReservationNotFound  = "RESERVATION_NOT_FOUND"
    CodePaymentNotFound      = "PAYMENT_NOT_FOUND"
    CodeUserNotFound         = "USER_NOT_FOUND"
    CodeAlreadyPaid          = "ALREADY_PAID"
    CodePaymentPending       = "PAYMENT_PENDING"
    CodePaymentExists        = "PAYMENT_EXISTS"
    CodeReservationCancelled = "RESERVATION_CANCELLED"
    CodeInvalidAmount        = "INVALID_AMOUNT"
    CodeAmountMismatch       = "AMOUNT_MISMATCH"
    CodeInvalidMethod        = "INVALID_METHOD"
    CodeCardHolderRequired   = "CARD_HOLDER_REQUIRED"
    CodeInvalidCardNumber    = "INVALID_CARD_NUMBER"
    CodeInvalidExpiryDate    = "INVALID_EXPIRY_DATE"
    CodeCardExpired          = "CARD_EXPIRED"
    CodeInvalidCVV           = "INVALID_CVV"
    CodeNotPending           = "PAYMENT_NOT_PENDING"
    CodeNotConfirmed         = "PAYMENT_NOT_CONFIRMED"
    CodeRefundFailed         = "REFUND_FAILED"
    CodeInvalidDates         = "INVALID_DATES"
    CodeInvalidRooms         = "INVALID_ROOMS"
    CodeInvalidGuests        = "INVALID_GUESTS"
    CodeCancellationTooLate  = "CANCELLATION_TOO_LATE"
    CodeNotCancellable       = "RESERVATION_NOT_CANCELLABLE"
    CodeEmailTaken           = "EMAIL_TAKEN"
    CodeInvalidCredentials   = "INVALID_CREDENTIALS"
    CodeInvalidEmail         = "INVALID_EMAIL"
    CodePasswordTooShort     = "PASSWORD_TOO_SHORT"
)

// ErrRefundFailed is returned when the gateway declines a refund.  It is
// a gateway error; the payment is left CONFIRMED.
var ErrRefundFailed = newError(ErrGateway, CodeRefundFailed, "refund declined by the payment gateway")
