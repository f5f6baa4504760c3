package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "log/slog"
    "time"

    "github.com/google/uuid"
    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/cinema-showtime-scheduler/internal/model"
)

// Publisher sends showtime events to RabbitMQ.  It implements
// schedule.Notifier.  Each publish dials the broker, declares the queue
// and sends one persistent message; publish volume follows schedule
// edits, which are rare.
type Publisher struct {
    url     string
    log     *slog.Logger
    timeout time.Duration
    now     func() time.Time
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, log *slog.Logger) *Publisher {
    return &Publisher{url: url, log: log, timeout: 3 * time.Second, now: time.Now}
}

// NotifyShowtime publishes the change described by action.
func (p *Publisher) NotifyShowtime(ctx context.Context, action string, s model.Showtime) error {
    return p.Publish(ctx, NewShowtimeEvent(uuid.NewString(), action, s, p.now()))
}

// Publish sends ev to the showtime queue.
func (p *Publisher) Publish(ctx context.Context, ev ShowtimeEvent) error {
    const op = "queue.Publish"

    pub, err := encode(ev)
    if err != nil {
        return fmt.Errorf("%s: %w", op, err)
    }

    conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(p.timeout)})
    if err != nil {
        return fmt.Errorf("%s: dial: %w", op, err)
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("%s: channel: %w", op, err)
    }
    defer func() { _ = ch.Close() }()

    // Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(ShowtimeQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("%s: queue declare: %w", op, err)
    }

    pctx, cancel := context.WithTimeout(ctx, p.timeout)
    defer cancel()
    if err := ch.PublishWithContext(pctx, "", ShowtimeQueue, false, false, pub); err != nil {
        return fmt.Errorf("%s: publish: %w", op, err)
    }
    p.log.Debug("showtime event published",
        slog.String("event_id", ev.EventID), slog.String("action", ev.Action), slog.Uint64("showtime_id", ev.ShowtimeID))
    return nil
}

// encode builds the AMQP message for ev.
func encode(ev ShowtimeEvent) (amqp.Publishing, error) {
    body, err := json.Marshal(ev)
    if err != nil {
        return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
    }
    return amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    ev.EventID,
        Type:         ev.Action,
        Timestamp:    ev.OccurredAt,
        Body:         body,
    }, nil
}
