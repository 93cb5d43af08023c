// Package consumer ingests calendar change notifications. A change in the
// external calendar only invalidates cached availability; fresh busy data is
// pulled lazily on the next availability query.
package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/advisorly/schedcore/internal/cache"
	"github.com/advisorly/schedcore/internal/inbox"
	"github.com/advisorly/schedcore/libs/kafkax"
)

const TopicCalendarChanged = "calendar.changed.v1"

type calendarChangedEvent struct {
	PersonID string `json:"person_id"`
}

type Consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
	inbox  *inbox.Repository
	cache  *cache.Availability
}

type Config struct {
	Brokers string
	GroupID string
}

func New(logger *slog.Logger, inboxRepo *inbox.Repository, availCache *cache.Availability, cfg Config) *Consumer {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  cfg.GroupID,
		Topic:    TopicCalendarChanged,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader: reader,
		logger: logger,
		inbox:  inboxRepo,
		cache:  availCache,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)

		meta := kafkax.ExtractEventMeta(msg)

		ok, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
		if err != nil {
			c.logger.Error("inbox record failed", "err", err)
			span.RecordError(err)
			span.End()
			continue
		}
		if !ok {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID)
			span.End()
			continue
		}

		var evt calendarChangedEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil || evt.PersonID == "" {
			c.logger.Warn("malformed calendar change event dropped", "event_id", meta.EventID, "err", err)
			span.End()
			continue
		}

		c.cache.InvalidatePerson(ctxSpan, evt.PersonID)
		c.logger.Info("availability cache invalidated", "person_id", evt.PersonID, "event_id", meta.EventID)
		span.End()
	}
}
