package service

import (
    "regexp"
    "strconv"
    "strings"
    "time"
)

// CardDetails are the write-only card fields of a payment request.  Only
// the holder name and the last four digits survive validation.
type CardDetails struct {
    HolderName string
    Number     string
    ExpiryDate string
    CVV        string
}

var (
    cardNumberRe = regexp.MustCompile(`^[0-9]{13,19}$`)
    cvvRe        = regexp.MustCompile(`^[0-9]{3,4}$`)
    expiryMMYY   = regexp.MustCompile(`^(\d{2})/(\d{2})$`)
    expiryMMYYYY = regexp.MustCompile(`^(\d{2})/(\d{4})$`)
    expiryISO    = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
)

// NormalizeCardNumber strips all whitespace from a card number.
func NormalizeCardNumber(n string) string {
    return strings.Join(strings.Fields(n), "")
}

// LastFour returns the last four digits of a normalised card number.
func LastFour(n string) string {
    if len(n) <= 4 {
        return n
    }
    return n[len(n)-4:]
}

// ParseExpiry parses MM/YY, MM/YYYY or YYYY-MM into a year and month.
// Two-digit years are in the 2000s.
func ParseExpiry(s string) (year int, month time.Month, ok bool) {
    s = strings.TrimSpace(s)
    var ys, ms string
    switch {
    case expiryMMYY.MatchString(s):
        m := expiryMMYY.FindStringSubmatch(s)
        ms, ys = m[1], "20"+m[2]
    case expiryMMYYYY.MatchString(s):
        m := expiryMMYYYY.FindStringSubmatch(s)
        ms, ys = m[1], m[2]
    case expiryISO.MatchString(s):
        m := expiryISO.FindStringSubmatch(s)
        ys, ms = m[1], m[2]
    default:
        return 0, 0, false
    }
    y, _ := strconv.Atoi(ys)
    mo, _ := strconv.Atoi(ms)
    if mo < 1 || mo > 12 {
        return 0, 0, false
    }
    return y, time.Month(mo), true
}

// validateCard checks the card fields in order and returns the first
// failing precondition.
func validateCard(c *CardDetails, now time.Time) *Error {
    if c == nil || strings.TrimSpace(c.HolderName) == "" {
        return validation(CodeCardHolderRequired, "card holder name is required")
    }
    if !cardNumberRe.MatchString(NormalizeCardNumber(c.Number)) {
        return validation(CodeInvalidCardNumber, "card number must contain 13 to 19 digits")
    }
    y, m, ok := ParseExpiry(c.ExpiryDate)
    if !ok {
        return validation(CodeInvalidExpiryDate, "expiry date must be MM/YY, MM/YYYY or YYYY-MM")
    }
    if y < now.Year() || (y == now.Year() && m < now.Month()) {
        return validation(CodeCardExpired, "card expired")
    }
    if !cvvRe.MatchString(strings.TrimSpace(c.CVV)) {
        return validation(CodeInvalidCVV, "CVV must contain 3 or 4 digits")
    }
    return nil
}
