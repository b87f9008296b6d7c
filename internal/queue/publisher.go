package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// Exchange is the durable topic exchange payment events are published to.
// The routing key of each message is the event type.
const Exchange = "payments"

// DialTimeout bounds the TCP connect and AMQP handshake of a publisher.
const DialTimeout = 2 * time.Second

// Publisher sends payment events to RabbitMQ.  The connection is opened
// on first use and reopened after the broker drops it.  The mutex only
// guards the connection fields; it is never held while dialing.
type Publisher struct {
    url         string
    log         *zap.Logger
    dialTimeout time.Duration

    mu   sync.Mutex
    conn *amqp.Connection
    ch   *amqp.Channel
}

// NewPublisher returns a Publisher for the broker at url.  No connection
// is made until the first Publish.
func NewPublisher(url string, log *zap.Logger) *Publisher {
    return &Publisher{url: url, log: log, dialTimeout: DialTimeout}
}

// Publish sends ev as a persistent JSON message.  It returns once ctx is
// done even when the broker has not answered the handshake.
func (p *Publisher) Publish(ctx context.Context, ev PaymentEvent) error {
    body, err := json.Marshal(ev)
    if err != nil {
        return fmt.Errorf("marshal event: %w", err)
    }

    ch, err := p.channel(ctx)
    if err != nil {
        return err
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Type:         ev.Type,
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, Exchange, ev.Type, false, false, pub); err != nil {
        p.drop(ch)
        return fmt.Errorf("publish %s: %w", ev.Type, err)
    }
    p.log.Debug("payment event published", zap.String("type", ev.Type), zap.Uint64("payment_id", ev.PaymentID))
    return nil
}

type session struct {
    conn *amqp.Connection
    ch   *amqp.Channel
}

func (s session) close() {
    if s.ch != nil {
        _ = s.ch.Close()
    }
    if s.conn != nil {
        _ = s.conn.Close()
    }
}

// channel returns an open channel, dialing when needed.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
    p.mu.Lock()
    if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
        ch := p.ch
        p.mu.Unlock()
        return ch, nil
    }
    p.mu.Unlock()

    type result struct {
        s   session
        err error
    }
    done := make(chan result, 1)
    go func() {
        s, err := p.dial()
        done <- result{s, err}
    }()

    select {
    case r := <-done:
        if r.err != nil {
            return nil, r.err
        }
        p.mu.Lock()
        defer p.mu.Unlock()
        if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
            // Another caller connected first.
            r.s.close()
            return p.ch, nil
        }
        session{p.conn, p.ch}.close()
        p.conn, p.ch = r.s.conn, r.s.ch
        return p.ch, nil
    case <-ctx.Done():
        go func() {
            if r := <-done; r.err == nil {
                r.s.close()
            }
        }()
        return nil, fmt.Errorf("dial broker: %w", ctx.Err())
    }
}

func (p *Publisher) dial() (session, error) {
    conn, err := amqp.DialConfig(p.url, amqp.Config{
        Dial:      amqp.DefaultDial(p.dialTimeout),
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
    })
    if err != nil {
        return session{}, fmt.Errorf("dial broker: %w", err)
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return session{}, fmt.Errorf("open channel: %w", err)
    }
    if err := declareExchange(ch); err != nil {
        session{conn, ch}.close()
        return session{}, err
    }
    return session{conn, ch}, nil
}

// drop discards the connection if ch is still the current channel.
func (p *Publisher) drop(ch *amqp.Channel) {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.ch != ch {
        return
    }
    session{p.conn, p.ch}.close()
    p.conn, p.ch = nil, nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    session{p.conn, p.ch}.close()
    p.conn, p.ch = nil, nil
    return nil
}

func declareExchange(ch *amqp.Channel) error {
    if err := ch.ExchangeDeclare(Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
        return fmt.Errorf("exchange declare: %w", err)
    }
    return nil
}
