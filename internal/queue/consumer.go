package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

const (
    // LogQueue collects every payment event for the audit log.
    LogQueue = "payment.log"
    // LogFile is the file name the consumer appends to.
    LogFile = "payments.log"
)

// StartPaymentLogConsumer binds LogQueue to all payment.* events and
// appends each one as a single line to dir/payments.log.  It reconnects
// with exponential backoff until ctx is cancelled, then returns ctx.Err().
func StartPaymentLogConsumer(ctx context.Context, url, dir string, log *zap.Logger) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(url)
        if err != nil {
            log.Warn("payment consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = consumeLoop(ctx, conn, dir, log)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Warn("payment consumer: loop ended, reconnecting", zap.Error(err))
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, dir string, log *zap.Logger) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Warn("payment consumer: set QoS failed", zap.Error(err))
    }
    if err := declareExchange(ch); err != nil {
        return err
    }
    if _, err := ch.QueueDeclare(LogQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    if err := ch.QueueBind(LogQueue, "payment.*", Exchange, false, nil); err != nil {
        return fmt.Errorf("queue bind: %w", err)
    }
    msgs, err := ch.Consume(LogQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := handleMessage(dir, d.Body); err != nil {
                log.Error("payment consumer: handle message failed", zap.Error(err))
                // reject without requeue to avoid a poison loop
                _ = d.Nack(false, false)
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func handleMessage(dir string, body []byte) error {
    var ev PaymentEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Type == "" || ev.PaymentID == 0 {
        return errors.New("event without type or payment id")
    }
    if err := os.MkdirAll(dir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", dir, err)
    }
    f, err := os.OpenFile(filepath.Join(dir, LogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(formatLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

func formatLine(ev PaymentEvent) string {
    line := fmt.Sprintf("[%s] %s | payment_id=%d | reservation_id=%d | user_id=%d | transaction_id=%s | method=%s | status=%s | amount=%s",
        ev.OccurredAt, ev.Type, ev.PaymentID, ev.ReservationID, ev.UserID, ev.TransactionID, ev.Method, ev.Status, ev.Amount)
    if ev.Reason != "" {
        line += fmt.Sprintf(" | reason=%q", ev.Reason)
    }
    return line + "\n"
}
