package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/eutonafila/shopqueue/libs/db"
	"github.com/eutonafila/shopqueue/libs/kafkax"
	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher relays committed outbox rows to Kafka. Rows are marked published only after
// the whole batch was accepted by the brokers, so delivery is at least once.
type Publisher struct {
	pool      *db.Pool
	repo      *Repository
	logger    *slog.Logger
	brokers   []string
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		pool:      pool,
		repo:      repo,
		logger:    logger,
		brokers:   kafkax.SplitBrokers(cfg.Brokers),
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx, writer)
		}
	}
}

// drain publishes full batches back to back until the backlog is exhausted.
func (p *Publisher) drain(ctx context.Context, writer MessageWriter) {
	total := 0
	for ctx.Err() == nil {
		n, err := p.publishBatch(ctx, writer)
		if err != nil {
			p.logger.Error("outbox publish failed", "err", err, "published", total)
			return
		}
		total += n
		if n < p.batchSize {
			break
		}
	}
	if total > 0 {
		p.logger.Debug("outbox drained", "count", total)
	}
}

func (p *Publisher) publishBatch(ctx context.Context, writer MessageWriter) (int, error) {
	published := 0
	err := p.pool.InTx(ctx, func(tx pgx.Tx) error {
		records, err := p.repo.Claim(ctx, tx, p.batchSize)
		if err != nil || len(records) == 0 {
			return err
		}

		msgs := make([]kafka.Message, 0, len(records))
		ids := make([]int64, 0, len(records))
		for _, r := range records {
			msgs = append(msgs, ToMessage(ctx, r))
			ids = append(ids, r.ID)
		}
		if err := writer.WriteMessages(ctx, msgs...); err != nil {
			return err
		}
		if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
			return err
		}
		published = len(records)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

// ToMessage builds the Kafka message for an outbox row under the trace that wrote it.
// The aggregate id is the key, keeping one ticket's events ordered within a partition.
func ToMessage(ctx context.Context, r Record) kafka.Message {
	msg := kafka.Message{
		Topic: r.Event.EventType,
		Key:   []byte(r.Event.AggregateID),
		Value: r.Event.Payload,
		Headers: kafkax.EventMeta{
			EventID:     r.EventID,
			EventType:   r.Event.EventType,
			AggregateID: r.Event.AggregateID,
		}.Headers(),
	}
	msg.Headers = kafkax.InjectTraceHeaders(r.Trace.Restore(ctx), msg.Headers)
	return msg
}
