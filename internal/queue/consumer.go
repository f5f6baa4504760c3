package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "log/slog"
    "os"
    "path/filepath"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/cinema-showtime-scheduler/internal/logger/sl"
)

// Consumer listens on the showtime queue and appends one line per event
// to an audit log file.
type Consumer struct {
    url     string
    logPath string
    log     *slog.Logger
}

// NewConsumer returns a Consumer writing to logs/showtime.log.
func NewConsumer(url string, log *slog.Logger) *Consumer {
    return &Consumer{url: url, logPath: filepath.Join("logs", "showtime.log"), log: log}
}

// Run connects to RabbitMQ, declares the queue and consumes messages
// until ctx is cancelled.  Lost connections are re-dialled with an
// exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
    const op = "queue.Consumer.Run"
    log := c.log.With(slog.String("op", op))

    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.url)
        if err != nil {
            log.Warn("failed to dial broker", sl.Err(err), slog.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            backoff = min(backoff*2, 30*time.Second)
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Warn("consume loop ended, reconnecting", sl.Err(err))
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

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.log.Warn("set QoS failed", sl.Err(err))
    }
    if _, err := ch.QueueDeclare(ShowtimeQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(ShowtimeQueue, "", false, false, false, false, nil)
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
            if err := c.handle(d.Body); err != nil {
                c.log.Error("handle message failed", sl.Err(err), slog.String("message_id", d.MessageId))
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func (c *Consumer) handle(body []byte) error {
    if err := os.MkdirAll(filepath.Dir(c.logPath), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(c.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()
    return writeEvent(f, body)
}

// writeEvent decodes one message and appends its audit line to w.
func writeEvent(w io.Writer, body []byte) error {
    var ev ShowtimeEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Action == "" || ev.ShowtimeID == 0 {
        return errors.New("event without action or showtime id")
    }
    actor := "system"
    if ev.ActorID != nil {
        actor = fmt.Sprintf("%d", *ev.ActorID)
    }
    line := fmt.Sprintf("[%s] %s | showtime_id=%d | hall_id=%d | movie_id=%d | window=%s/%s | status=%s | actor=%s | event_id=%s\n",
        ev.OccurredAt.Format(time.RFC3339), ev.Action, ev.ShowtimeID, ev.HallID, ev.MovieID,
        ev.StartsAt.Format(time.RFC3339), ev.EndsAt.Format(time.RFC3339), ev.Status, actor, ev.EventID)
    if _, err := io.WriteString(w, line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}
