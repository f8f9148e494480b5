package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/allendavis-developer/pricebook/pkg/ingest"
	"github.com/allendavis-developer/pricebook/pkg/listing"
	"github.com/allendavis-developer/pricebook/pkg/metrics"
	"github.com/allendavis-developer/pricebook/pkg/tracing"
)

// Ingester consumes accumulated snapshot records.
type Ingester interface {
	Ingest(ctx context.Context, records []listing.RawRecord, opts ingest.Options) (*ingest.Stats, error)
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	// BatchSize is the number of records accumulated before a flush.
	// Defaults to ingest.DefaultBatchSize.
	BatchSize int
	// FlushInterval bounds how long a partial batch can sit before it is
	// flushed anyway. Defaults to 5 seconds.
	FlushInterval time.Duration
}

// Consumer reads snapshot records off the feed topic and hands them to the
// ingestion pipeline in batches. Offsets are committed only after a batch
// commits to the database, so processing is at-least-once and relies on the
// pipeline's idempotent writes.
type Consumer struct {
	reader   *kafka.Reader
	logger   ectologger.Logger
	ingester Ingester

	batchSize     int
	flushInterval time.Duration

	pending []listing.RawRecord
	// messages holds every fetched message of the batch, unparsable ones
	// included, so offsets only advance on a successful flush.
	messages []kafka.Message

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewConsumer creates a snapshot feed consumer.
func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, ingester Ingester) *Consumer {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = ingest.DefaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	})

	return &Consumer{
		reader:        reader,
		logger:        logger,
		ingester:      ingester,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// Start begins consuming messages.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic": c.reader.Config().Topic,
	}).Info("Kafka consumer started")
	return nil
}

// Stop flushes the partial batch and closes the reader.
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

// Health reports whether the consumer is usable.
func (c *Consumer) Health() bool {
	return c.reader != nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			c.flush(context.WithoutCancel(ctx))
			c.logger.WithContext(ctx).Info("Consumer loop stopping")
			return
		default:
			fetchCtx, cancel := context.WithTimeout(ctx, c.flushInterval)
			msg, err := c.reader.FetchMessage(fetchCtx)
			cancel()
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					c.flush(ctx)
					continue
				}
				if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
					c.flush(context.WithoutCancel(ctx))
					return
				}
				c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
				continue
			}

			c.accept(ctx, msg)
			if len(c.messages) >= c.batchSize {
				c.flush(ctx)
			}
		}
	}
}

func (c *Consumer) accept(ctx context.Context, msg kafka.Message) {
	var record listing.RawRecord
	if err := json.Unmarshal(msg.Value, &record); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"topic":     msg.Topic,
			"partition": msg.Partition,
			"offset":    msg.Offset,
		}).Error("Failed to parse snapshot record, skipping")
		metrics.RecordKafkaMessage("invalid")
		// Hold the offset with the batch. Kafka commits are positional, so
		// committing it now would also commit every earlier offset still
		// waiting to be ingested.
		c.messages = append(c.messages, msg)
		return
	}

	c.pending = append(c.pending, record)
	c.messages = append(c.messages, msg)
}

// flush runs the accumulated records through the pipeline and commits every
// fetched offset, unparsable messages included. On ingestion failure nothing
// is committed; the records will be redelivered and the pipeline's conflict
// handling absorbs the replay.
func (c *Consumer) flush(ctx context.Context) {
	if len(c.messages) == 0 {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.flush")
	defer span.End()

	var stats *ingest.Stats
	if len(c.pending) > 0 {
		var err error
		stats, err = c.ingester.Ingest(ctx, c.pending, ingest.Options{
			BatchSize:  c.batchSize,
			SkipErrors: true,
		})
		if err != nil {
			c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"records": len(c.pending),
			}).Error("Failed to ingest batch (not committing)")
			for range c.pending {
				metrics.RecordKafkaMessage("failed")
			}
			c.pending = nil
			c.messages = nil
			return
		}
	}

	if err := c.reader.CommitMessages(ctx, c.messages...); err != nil {
		c.logger.WithContext(ctx).WithError(err).Error("Failed to commit batch offsets")
	}
	for range c.pending {
		metrics.RecordKafkaMessage("ok")
	}

	if stats != nil {
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"records":          len(c.pending),
			"processed":        stats.Processed,
			"skipped":          stats.Skipped,
			"variants_created": stats.VariantsCreated,
			"variants_updated": stats.VariantsUpdated,
			"price_changes":    stats.PriceChanges,
		}).Info("Ingested snapshot batch")
	}

	c.pending = nil
	c.messages = nil
}
