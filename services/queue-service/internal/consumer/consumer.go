package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/eutonafila/shopqueue/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox deduplicates deliveries by event id. Forget undoes Record so a redelivery of an
// event whose handler failed is processed again.
type Inbox interface {
	Record(ctx context.Context, eventID string, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader      messageReader
	logger      *slog.Logger
	inbox       Inbox
	handler     Handler
	maxAttempts int
	backoff     time.Duration
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
	// MaxAttempts bounds handler retries per message. Defaults to 3.
	MaxAttempts int
	// Backoff is the first retry delay, doubled on each attempt. Defaults to 200ms.
	Backoff time.Duration
}

func New(logger *slog.Logger, inboxRepo Inbox, cfg Config, handler Handler) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:      reader,
		logger:      logger.With("topic", cfg.Topic, "group_id", cfg.GroupID),
		inbox:       inboxRepo,
		handler:     handler,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
	}
}

// Run fetches until ctx is cancelled. Offsets are committed after each message is handled,
// so a crash replays at most the in-flight message and the inbox absorbs the replay.
func (c *Consumer) Run(ctx context.Context) {
	defer func() { _ = c.reader.Close() }()

	failures := 0
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			delay := min(time.Duration(failures)*time.Second, 30*time.Second)
			c.logger.Error("kafka fetch error", "err", err, "retry_in", delay.String())
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		failures = 0

		if !c.process(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit error", "err", err, "partition", msg.Partition, "offset", msg.Offset)
		}
	}
}

// process handles msg and reports whether its offset may be committed. It only
// returns false when ctx ends before the inbox could record the event.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	meta := kafkax.ExtractEventMeta(msg)
	ctx, span := otel.Tracer("kafka").Start(kafkax.ExtractTraceContext(ctx, msg), "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("messaging.message_id", meta.EventID),
		),
	)
	defer span.End()

	if meta.EventID == "" {
		c.logger.Warn("event without id, handling without dedupe", "event_type", meta.EventType)
	} else {
		fresh, err := c.record(ctx, meta)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "inbox")
			return false
		}
		if !fresh {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return true
		}
	}

	var err error
	delay := c.backoff
	for attempt := 1; ; attempt++ {
		err = c.handler(ctx, msg)
		if err == nil {
			return true
		}
		c.logger.Warn("handler error", "err", err, "event_id", meta.EventID, "attempt", attempt)
		if attempt >= c.maxAttempts || !sleep(ctx, delay) {
			break
		}
		delay *= 2
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "handler")
	c.logger.Error("event dropped after retries", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
	if meta.EventID != "" {
		if ferr := c.inbox.Forget(context.WithoutCancel(ctx), meta.EventID); ferr != nil {
			c.logger.Error("inbox forget failed", "err", ferr, "event_id", meta.EventID)
		}
	}
	return true
}

// record retries the inbox until it answers or ctx ends. Moving on would let the next
// commit advance the offset past an event that was never handled.
func (c *Consumer) record(ctx context.Context, meta kafkax.EventMeta) (bool, error) {
	delay := c.backoff
	for {
		fresh, err := c.inbox.Record(ctx, meta.EventID, meta.EventType)
		if err == nil {
			return fresh, nil
		}
		c.logger.Error("inbox record failed", "err", err, "event_id", meta.EventID, "retry_in", delay.String())
		if !sleep(ctx, delay) {
			return false, err
		}
		delay = min(max(delay*2, time.Millisecond), 30*time.Second)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Recalculator renumbers one shop's queue.
type Recalculator interface {
	RecalculatePositions(ctx context.Context, shopID string) (int, error)
}

type ticketEvent struct {
	TicketID string `json:"ticket_id"`
	ShopID   string `json:"shop_id"`
}

// RecalculateOnTicketEvent renumbers the queue of the shop named in a ticket event.
// Malformed payloads are logged and dropped.
func RecalculateOnTicketEvent(logger *slog.Logger, r Recalculator) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt ticketEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("invalid ticket event", "err", err, "topic", msg.Topic)
			return nil
		}
		if evt.ShopID == "" {
			logger.Error("ticket event without shop_id", "ticket_id", evt.TicketID)
			return nil
		}
		n, err := r.RecalculatePositions(ctx, evt.ShopID)
		if err != nil {
			return err
		}
		logger.Debug("positions recalculated from event", "shop_id", evt.ShopID, "ticket_id", evt.TicketID, "updated", n)
		return nil
	}
}
