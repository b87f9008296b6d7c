// Package gateway stands in for an external payment processor.  Every
// call is independent: the simulator keeps no state beyond its random
// source, and outcomes depend on the payment method and amount.
package gateway

import (
    "context"
    "encoding/json"
    "fmt"
    "math/rand"
    "strings"
    "sync"
    "time"

    gonanoid "github.com/matoous/go-nanoid/v2"
    "github.com/shopspring/decimal"
    "go.uber.org/zap"

    "github.com/wordCupProject/worldcup/internal/model"
)

// Outcome codes that do not come from the failure catalogue.
const (
    CodePaymentSuccess = "PAYMENT_SUCCESS"
    CodeRefundSuccess  = "REFUND_SUCCESS"
    CodeRefundFailed   = "REFUND_FAILED"
    CodeTemporaryIssue = "TEMPORARY_ISSUE"
    CodeInterrupted    = "INTERRUPTED"
)

const (
    currency            = "MAD"
    issueProbability    = 0.10
    highAmountIssueProb = 0.05
    issuePenalty        = 0.3
    refundSuccessRate   = 0.95
)

// highAmountThreshold is the amount above which large-payment issues may
// be simulated.
var highAmountThreshold = decimal.NewFromInt(5000)

// successRates is the base acceptance probability of each method.
var successRates = map[model.PaymentMethod]float64{
    model.MethodCash:          1.00,
    model.MethodPayPal:        0.96,
    model.MethodCreditCard:    0.92,
    model.MethodMobilePayment: 0.91,
    model.MethodDebitCard:     0.89,
    model.MethodBankTransfer:  0.85,
}

// SuccessRate returns the base acceptance probability for m, or zero for
// an unknown method.
func SuccessRate(m model.PaymentMethod) float64 { return successRates[m] }

type failure struct {
    code    string
    message string
}

var failures = []failure{
    {"INSUFFICIENT_FUNDS", "insufficient funds"},
    {"CARD_DECLINED", "card declined by the bank"},
    {"EXPIRED_CARD", "card expired"},
    {"INVALID_CVV", "invalid CVV"},
    {"FRAUD_DETECTED", "suspicious transaction detected"},
    {"NETWORK_ERROR", "network error"},
    {"BANK_TIMEOUT", "bank did not answer in time"},
    {"INVALID_ACCOUNT", "invalid account"},
}

// RandomSource is the only source of randomness used to decide outcomes.
// *rand.Rand satisfies it.
type RandomSource interface {
    Float64() float64
    Intn(n int) int
}

// lockedSource makes a *rand.Rand safe for concurrent requests.
type lockedSource struct {
    mu sync.Mutex
    r  *rand.Rand
}

func (l *lockedSource) Float64() float64 {
    l.mu.Lock()
    defer l.mu.Unlock()
    return l.r.Float64()
}

func (l *lockedSource) Intn(n int) int {
    l.mu.Lock()
    defer l.mu.Unlock()
    return l.r.Intn(n)
}

// NewRandomSource returns a goroutine-safe source seeded with seed.
func NewRandomSource(seed int64) RandomSource {
    return &lockedSource{r: rand.New(rand.NewSource(seed))}
}

// Outcome is what the processor answered.  RawResponse is the JSON payload
// stored verbatim on the payment.
type Outcome struct {
    Success     bool
    Code        string
    Message     string
    RawResponse string
}

// Interrupted reports whether the call was cut short by its context.
func (o Outcome) Interrupted() bool { return o.Code == CodeInterrupted }

// Latency bounds the simulated network delay.  When Max is not greater
// than Min the delay is exactly Min and no random draw is consumed.
type Latency struct {
    Min time.Duration
    Max time.Duration
}

// Simulator emulates an external gateway.
type Simulator struct {
    rnd           RandomSource
    latency       Latency
    refundLatency Latency
    log           *zap.Logger
    sleep         func(ctx context.Context, d time.Duration) error
}

// NewSimulator builds a simulator.  The refund latency is half of the
// payment latency, as refunds skip authorisation.
func NewSimulator(rnd RandomSource, latency Latency, log *zap.Logger) *Simulator {
    if log == nil {
        log = zap.NewNop()
    }
    return &Simulator{
        rnd:           rnd,
        latency:       latency,
        refundLatency: Latency{Min: latency.Min / 2, Max: latency.Max / 2},
        log:           log,
        sleep:         wait,
    }
}

// ProcessPayment submits p to the simulated processor.
//
// Draw order: issue flag, then (only when no issue and amount > 5000) the
// high-amount flag, then the acceptance draw.  On success one Intn draw
// builds the authorisation code; on failure one Intn draw picks the
// failure, followed by one Float64 draw when an issue flag was set.
func (s *Simulator) ProcessPayment(ctx context.Context, p model.Payment) Outcome {
    s.log.Info("processing payment through gateway", zap.String("transaction_id", p.TransactionID))

    if err := s.sleep(ctx, s.delay(s.latency)); err != nil {
        s.log.Error("payment processing interrupted", zap.String("transaction_id", p.TransactionID), zap.Error(err))
        return interrupted("payment processing interrupted")
    }

    rate := SuccessRate(p.Method)
    issue := s.simulateIssue(p)
    if issue {
        rate *= issuePenalty
    }

    var out Outcome
    if s.rnd.Float64() < rate {
        out = s.success(p)
    } else {
        out = s.failure(p, issue)
    }
    s.log.Info("gateway responded",
        zap.String("transaction_id", p.TransactionID),
        zap.Bool("success", out.Success),
        zap.String("code", out.Code))
    return out
}

// RefundPayment asks the simulated processor to reverse p.
func (s *Simulator) RefundPayment(ctx context.Context, p model.Payment) Outcome {
    s.log.Info("processing refund through gateway", zap.String("transaction_id", p.TransactionID))

    if err := s.sleep(ctx, s.delay(s.refundLatency)); err != nil {
        s.log.Error("refund processing interrupted", zap.String("transaction_id", p.TransactionID), zap.Error(err))
        return interrupted("refund processing interrupted")
    }

    if s.rnd.Float64() < refundSuccessRate {
        refundID := "REF-" + shortID()
        return Outcome{
            Success: true,
            Code:    CodeRefundSuccess,
            Message: "refund processed",
            RawResponse: encode(map[string]any{
                "refund_id": refundID,
                "status":    "completed",
            }),
        }
    }
    return Outcome{
        Success: false,
        Code:    CodeRefundFailed,
        Message: "refund declined",
        RawResponse: encode(map[string]any{
            "error":  "insufficient_funds",
            "status": "failed",
        }),
    }
}

func (s *Simulator) simulateIssue(p model.Payment) bool {
    if s.rnd.Float64() < issueProbability {
        s.log.Warn("simulating payment issue", zap.String("transaction_id", p.TransactionID))
        return true
    }
    if p.Amount.GreaterThan(highAmountThreshold) && s.rnd.Float64() < highAmountIssueProb {
        s.log.Warn("simulating high-amount payment issue", zap.String("transaction_id", p.TransactionID))
        return true
    }
    return false
}

func (s *Simulator) success(p model.Payment) Outcome {
    authCode := fmt.Sprintf("AUTH-%06d", 100000+s.rnd.Intn(900000))
    return Outcome{
        Success: true,
        Code:    CodePaymentSuccess,
        Message: "payment processed",
        RawResponse: encode(map[string]any{
            "status":                 "success",
            "gateway_transaction_id": "GTW-" + shortID(),
            "authorization_code":     authCode,
            "amount":                 json.Number(p.Amount.StringFixed(2)),
            "currency":               currency,
        }),
    }
}

func (s *Simulator) failure(p model.Payment, issue bool) Outcome {
    f := failures[s.rnd.Intn(len(failures))]
    if issue && s.rnd.Float64() < 0.5 {
        f = failure{CodeTemporaryIssue, "temporary issue, please retry"}
    }
    return Outcome{
        Success: false,
        Code:    f.code,
        Message: f.message,
        RawResponse: encode(map[string]any{
            "status":        "failed",
            "error_code":    f.code,
            "error_message": f.message,
            "amount":        json.Number(p.Amount.StringFixed(2)),
            "currency":      currency,
        }),
    }
}

func (s *Simulator) delay(l Latency) time.Duration {
    if l.Max <= l.Min {
        return l.Min
    }
    return l.Min + time.Duration(s.rnd.Intn(int(l.Max-l.Min)))
}

func interrupted(msg string) Outcome {
    return Outcome{Success: false, Code: CodeInterrupted, Message: msg, RawResponse: "{}"}
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
    if d <= 0 {
        return ctx.Err()
    }
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-t.C:
        return nil
    }
}

const refAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// shortID returns a 16 character gateway reference.
func shortID() string {
    id, err := gonanoid.Generate(refAlphabet, 16)
    if err != nil {
        return strings.Repeat("0", 16)
    }
    return id
}

func encode(v map[string]any) string {
    b, err := json.Marshal(v)
    if err != nil {
        return "{}"
    }
    return string(b)
}
