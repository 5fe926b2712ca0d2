package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns a writer keyed by appointment id so all events of
// one appointment land on the same partition in order.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

// LogWriter stands in for Kafka when no brokers are configured: events are
// logged and considered delivered.
type LogWriter struct {
	Logger *slog.Logger
}

func (w LogWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		w.Logger.InfoContext(ctx, "outbox event (no kafka configured)",
			"topic", m.Topic,
			"appointment_id", string(m.Key),
			"event_id", kafkax.HeaderValue(m.Headers, kafkax.HeaderEventID),
		)
	}
	return nil
}

func (LogWriter) Close() error { return nil }

type Publisher struct {
	db        db.Querier
	repo      *Repository
	writer    MessageWriter
	logger    *slog.Logger
	metrics   *metrics.Metrics
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(q db.Querier, repo *Repository, writer MessageWriter, logger *slog.Logger, m *metrics.Metrics, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		db:        q,
		repo:      repo,
		writer:    writer,
		logger:    logger,
		metrics:   m,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

// Run relays the Postgres outbox until ctx is done. Failed batches stay
// unpublished and are retried on the next tick.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PublishBatch(ctx); err != nil {
				p.metrics.OutboxFailure()
				p.logger.Error("outbox publish failed", "err", err)
			}
		}
	}
}

// PublishBatch sends up to one batch of pending rows and marks them published.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.FetchUnpublished(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, tx.Commit(ctx)
	}

	msgs := make([]kafka.Message, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, message(ctx, r.Event))
		ids = append(ids, r.ID)
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, err
	}
	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	p.record(msgs)
	return len(msgs), nil
}

// RunQueue relays the in-memory outbox until ctx is done.
func (p *Publisher) RunQueue(ctx context.Context, q *Queue) {
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.Ready():
		case <-ticker.C:
		}
		if err := p.flushQueue(ctx, q); err != nil {
			p.metrics.OutboxFailure()
			p.logger.Error("outbox publish failed", "err", err, "pending", q.Len())
		}
	}
}

func (p *Publisher) flushQueue(ctx context.Context, q *Queue) error {
	events := q.Drain()
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		msgs = append(msgs, message(ctx, e))
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		q.Requeue(events)
		return err
	}
	p.record(msgs)
	return nil
}

func (p *Publisher) record(msgs []kafka.Message) {
	for _, m := range msgs {
		p.metrics.OutboxPublished(m.Topic, 1)
	}
}

func message(ctx context.Context, e Event) kafka.Message {
	msgCtx := otelx.ContextWithTraceContext(ctx, e.Traceparent, e.Tracestate)
	return kafka.Message{
		Topic:   e.Type,
		Key:     []byte(e.AggregateID),
		Value:   e.Payload,
		Headers: kafkax.EventHeaders(msgCtx, e.ID, e.Type),
	}
}
