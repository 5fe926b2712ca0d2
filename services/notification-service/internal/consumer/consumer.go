package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	"github.com/md-rashed-zaman/slotbook/services/notification-service/internal/inbox"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Reader is the part of *kafka.Reader the consumer uses. Offsets are
// committed explicitly once a message has been handled.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Inbox deduplicates deliveries by event id. Forget releases an id whose
// handling failed so a later delivery is processed again.
type Inbox interface {
	Record(ctx context.Context, eventID string, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type Consumer struct {
	reader      Reader
	logger      *slog.Logger
	inbox       Inbox
	handler     Handler
	backoff     time.Duration
	retryBase   time.Duration
	maxAttempts int
}

type Config struct {
	Brokers []string
	GroupID string
	Topics  []string
}

func NewReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
}

func New(logger *slog.Logger, reader Reader, inbox Inbox, handler Handler) *Consumer {
	return &Consumer{
		reader:  reader,
		logger:  logger,
		inbox:   inbox,
		handler:     handler,
		backoff:     time.Second,
		retryBase:   500 * time.Millisecond,
		maxAttempts: 5,
	}
}

// Run reads until ctx is done. A failing handler is retried with exponential
// backoff. The offset is committed after the message is handled or its
// retries are exhausted; on shutdown mid-retry it is left uncommitted so the
// group redelivers it.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
			continue
		}
		if err := c.handle(ctx, msg); err != nil && ctx.Err() != nil {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	eventID := kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventID)
	eventType := kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventType)
	if eventType == "" {
		eventType = msg.Topic
	}

	var ok bool
	err := c.retry(ctxSpan, eventID, "inbox record", func(ctx context.Context) error {
		var rerr error
		ok, rerr = c.inbox.Record(ctx, eventID, eventType)
		if errors.Is(rerr, inbox.ErrMissingEventID) {
			return permanent{rerr}
		}
		return rerr
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !ok {
		c.logger.Info("duplicate event ignored", "event_id", eventID, "event_type", eventType)
		return nil
	}

	err = c.retry(ctxSpan, eventID, "handler", func(ctx context.Context) error {
		return c.handler(ctx, msg)
	})
	if err == nil {
		return nil
	}
	span.RecordError(err)
	// Release the id so a redelivery, or a replay after restart, is handled.
	if ferr := c.inbox.Forget(context.WithoutCancel(ctxSpan), eventID); ferr != nil {
		c.logger.Error("inbox release failed", "err", ferr, "event_id", eventID)
	}
	return err
}

// permanent marks an error that retrying cannot fix.
type permanent struct{ error }

func (p permanent) Unwrap() error { return p.error }

func (c *Consumer) retry(ctx context.Context, eventID, op string, fn func(context.Context) error) error {
	wait := c.retryBase
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		var p permanent
		if errors.As(err, &p) || attempt == c.maxAttempts {
			break
		}
		c.logger.Warn(op+" failed; retrying", "err", err, "event_id", eventID, "attempt", attempt, "wait", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	c.logger.Error(op+" failed; giving up", "err", err, "event_id", eventID)
	return err
}
