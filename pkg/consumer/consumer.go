// Package consumer drains the notification queue and feeds the linking engine
package consumer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	appctx "github.com/Ramsey-B/quay/pkg/context"
	"github.com/Ramsey-B/quay/pkg/linking"
	"github.com/Ramsey-B/quay/pkg/metrics"
	"github.com/Ramsey-B/quay/pkg/models"
	"github.com/Ramsey-B/quay/pkg/redis"
	"github.com/Ramsey-B/quay/pkg/tracing"
)

const (
	// DefaultBatchSize is the default number of messages to consume at once
	DefaultBatchSize = 10

	// DefaultBlockTimeout is how long to block waiting for messages
	DefaultBlockTimeout = 5 * time.Second

	// DefaultMaxRetries is the number of deliveries before dead-lettering
	DefaultMaxRetries = 3

	// DefaultClaimInterval is how often to scan for redeliverable messages
	DefaultClaimInterval = 30 * time.Second

	// BackoffBase is the redelivery delay after the first failure
	BackoffBase = 30 * time.Second

	// BackoffCap bounds the redelivery delay
	BackoffCap = 15 * time.Minute

	dedupKeyPrefix = "quay:dedup:"
)

// Engine is the processing side of the consumer
type Engine interface {
	Process(ctx context.Context, tenantID string, payload *models.NotificationPayload) (*linking.Result, error)
}

// StreamQueue is the subset of stream operations the consumer drives
type StreamQueue interface {
	CreateConsumerGroup(ctx context.Context, stream, group string) error
	Consume(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]redis.StreamMessage, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
	Delete(ctx context.Context, stream string, ids ...string) error
	Pending(ctx context.Context, stream, group string, count int64) ([]goredis.XPendingExt, error)
	Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]redis.StreamMessage, error)
	Range(ctx context.Context, stream, start, end string) ([]redis.StreamMessage, error)
}

// DeadLetterSink receives messages that are out of retries or will never parse
type DeadLetterSink interface {
	Add(ctx context.Context, record *models.DeadLetterRecord) (string, error)
}

// DedupCache remembers processed idempotency keys
type DedupCache interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// Config holds configuration for the notification consumer
type Config struct {
	// Stream name for the notification queue
	Stream string

	// Consumer group name
	ConsumerGroup string

	// Consumer name (unique per instance)
	ConsumerName string

	// Number of messages to fetch per batch
	BatchSize int64

	// How long to block waiting for new messages
	BlockTimeout time.Duration

	// Number of deliveries before a message is dead-lettered
	MaxRetries int

	// How often to scan the pending list for redeliverable messages
	ClaimInterval time.Duration

	// Whether to skip messages whose idempotency key was already processed
	DedupEnabled bool

	// How long processed idempotency keys are remembered
	DedupTTL time.Duration
}

// DefaultConfig returns the default consumer configuration
func DefaultConfig() Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = uuid.New().String()[:8]
	}

	return Config{
		Stream:        "quay:notifications",
		ConsumerGroup: "quay-ingest",
		ConsumerName:  hostname,
		BatchSize:     DefaultBatchSize,
		BlockTimeout:  DefaultBlockTimeout,
		MaxRetries:    DefaultMaxRetries,
		ClaimInterval: DefaultClaimInterval,
		DedupEnabled:  true,
		DedupTTL:      24 * time.Hour,
	}
}

// Backoff returns how long a message must sit idle before redelivery. The
// delay doubles per delivery and is capped so a poisoned booking does not
// back off forever before reaching the DLQ.
func Backoff(deliveryCount int64) time.Duration {
	if deliveryCount < 0 {
		deliveryCount = 0
	}
	if deliveryCount > 5 {
		return BackoffCap
	}
	delay := BackoffBase * (1 << uint(deliveryCount))
	if delay > BackoffCap {
		delay = BackoffCap
	}
	return delay
}

// Consumer processes notification messages from a Redis Streams queue
type Consumer struct {
	streams StreamQueue
	dlq     DeadLetterSink
	cache   DedupCache
	engine  Engine
	config  Config
	logger  ectologger.Logger

	stopCh    chan struct{}
	stoppedCh chan struct{}

	running bool
	mu      sync.RWMutex
}

// NewConsumer creates a new notification consumer
func NewConsumer(
	streams StreamQueue,
	dlq DeadLetterSink,
	cache DedupCache,
	engine Engine,
	config Config,
	logger ectologger.Logger,
) *Consumer {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.BlockTimeout <= 0 {
		config.BlockTimeout = DefaultBlockTimeout
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.ClaimInterval <= 0 {
		config.ClaimInterval = DefaultClaimInterval
	}
	if config.DedupTTL <= 0 {
		config.DedupTTL = 24 * time.Hour
	}

	return &Consumer{
		streams:   streams,
		dlq:       dlq,
		cache:     cache,
		engine:    engine,
		config:    config,
		logger:    logger,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start starts the consumer loops
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("consumer already running")
	}
	c.running = true
	c.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "Consumer.Start")
	defer span.End()

	c.logger.WithContext(ctx).Infof("Starting notification consumer: stream=%s group=%s consumer=%s",
		c.config.Stream, c.config.ConsumerGroup, c.config.ConsumerName)

	if err := c.streams.CreateConsumerGroup(ctx, c.config.Stream, c.config.ConsumerGroup); err != nil {
		c.logger.WithContext(ctx).WithError(err).Error("Failed to create consumer group")
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go c.consumeLoop(ctx, &wg)
	go c.claimLoop(ctx, &wg)

	go func() {
		<-c.stopCh
		wg.Wait()
		close(c.stoppedCh)
	}()

	c.logger.WithContext(ctx).Info("Notification consumer started")
	return nil
}

// Stop stops the consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	c.logger.WithContext(ctx).Info("Stopping notification consumer...")

	close(c.stopCh)

	select {
	case <-c.stoppedCh:
		c.logger.WithContext(ctx).Info("Notification consumer stopped gracefully")
	case <-ctx.Done():
		c.logger.WithContext(ctx).Warn("Notification consumer shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the consumer is running
func (c *Consumer) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// consumeLoop continuously reads new messages from the stream
func (c *Consumer) consumeLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	c.logger.WithContext(ctx).Debug("Consume loop started")

	for {
		select {
		case <-c.stopCh:
			c.logger.WithContext(ctx).Debug("Consume loop stopping")
			return
		default:
		}

		messages, err := c.streams.Consume(
			ctx,
			c.config.Stream,
			c.config.ConsumerGroup,
			c.config.ConsumerName,
			c.config.BatchSize,
			c.config.BlockTimeout,
		)

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.WithContext(ctx).WithError(err).Warn("Failed to consume messages")
			time.Sleep(time.Second) // Back off on error
			continue
		}

		for _, msg := range messages {
			c.handleMessage(ctx, msg, 1)
		}
	}
}

// claimLoop periodically redelivers messages whose backoff has elapsed
func (c *Consumer) claimLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(c.config.ClaimInterval)
	defer ticker.Stop()

	c.logger.WithContext(ctx).Debug("Claim loop started")

	for {
		select {
		case <-c.stopCh:
			c.logger.WithContext(ctx).Debug("Claim loop stopping")
			return
		case <-ticker.C:
			c.redeliverPending(ctx)
		}
	}
}

// redeliverPending scans the pending list and either claims messages whose
// per-delivery backoff has elapsed or dead-letters those out of retries.
func (c *Consumer) redeliverPending(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "Consumer.redeliverPending")
	defer span.End()

	pending, err := c.streams.Pending(ctx, c.config.Stream, c.config.ConsumerGroup, c.config.BatchSize)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Failed to get pending messages")
		return
	}

	for _, msg := range pending {
		if msg.RetryCount >= int64(c.config.MaxRetries) {
			c.logger.WithContext(ctx).Warnf("Message %s failed %d deliveries, moving to DLQ", msg.ID, msg.RetryCount)
			c.deadLetterByID(ctx, msg.ID, int(msg.RetryCount), models.DLQReasonMaxRetries, "exceeded maximum delivery count")
			continue
		}

		backoff := Backoff(msg.RetryCount)
		if msg.Idle < backoff {
			continue
		}

		claimed, err := c.streams.Claim(ctx, c.config.Stream, c.config.ConsumerGroup, c.config.ConsumerName, backoff, msg.ID)
		if err != nil {
			c.logger.WithContext(ctx).WithError(err).Warnf("Failed to claim message %s", msg.ID)
			continue
		}

		for _, claimedMsg := range claimed {
			c.handleMessage(ctx, claimedMsg, msg.RetryCount+1)
		}
	}
}

// handleMessage processes one delivery of a stream message
func (c *Consumer) handleMessage(ctx context.Context, msg redis.StreamMessage, deliveryCount int64) {
	ctx, span := tracing.StartSpan(ctx, "Consumer.handleMessage")
	defer span.End()

	message, payload, err := parseMessage(msg.Data)
	if err != nil {
		// unparseable bytes never succeed on redelivery
		reason := models.DLQReasonParseError
		tenantID := ""
		if message != nil {
			reason = models.DLQReasonInvalidData
			tenantID = message.TenantID
		}
		c.logger.WithContext(ctx).WithError(err).Warnf("Dead-lettering message %s: %s", msg.ID, reason)
		c.deadLetter(ctx, msg, tenantID, int(deliveryCount), reason, err.Error())
		return
	}

	ctx = appctx.SetTenantID(ctx, message.TenantID)
	ctx = appctx.SetRequestID(ctx, message.ID)

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"message_id":     message.ID,
		"stream_id":      msg.ID,
		"tenant_id":      message.TenantID,
		"delivery_count": deliveryCount,
	})

	dedupKey := ""
	if c.config.DedupEnabled && message.IdempotencyKey != "" {
		dedupKey = dedupKeyPrefix + message.TenantID + ":" + message.IdempotencyKey
		fresh, err := c.cache.SetNX(ctx, dedupKey, msg.ID, c.config.DedupTTL)
		if err != nil {
			log.WithError(err).Warn("Dedup check failed, processing anyway")
			dedupKey = ""
		} else if !fresh {
			log.Info("Skipping duplicate message")
			metrics.QueueMessagesProcessed.WithLabelValues("duplicate").Inc()
			c.ackAndDelete(ctx, msg.ID)
			return
		}
	}

	start := time.Now()
	result, err := c.engine.Process(ctx, message.TenantID, payload)
	if err != nil {
		metrics.RecordQueueMessage("failed", time.Since(start).Seconds())
		if dedupKey != "" {
			if delErr := c.cache.Del(ctx, dedupKey); delErr != nil {
				log.WithError(delErr).Warn("Failed to release dedup key")
			}
		}

		if deliveryCount >= int64(c.config.MaxRetries) {
			log.WithError(err).Warnf("Message failed %d deliveries, moving to DLQ", deliveryCount)
			c.deadLetter(ctx, msg, message.TenantID, int(deliveryCount), models.DLQReasonMaxRetries, err.Error())
			return
		}

		log.WithError(err).Warnf("Message failed, redelivery in %s", Backoff(deliveryCount))
		return
	}

	metrics.RecordQueueMessage("success", time.Since(start).Seconds())
	log.WithFields(map[string]any{
		"duration":  time.Since(start).String(),
		"new_links": result.NewLinks,
	}).Info("Processed message")

	c.ackAndDelete(ctx, msg.ID)
}

// deadLetterByID fetches the original entry before dead-lettering it
func (c *Consumer) deadLetterByID(ctx context.Context, messageID string, retryCount int, reason models.DeadLetterReason, errorMsg string) {
	messages, err := c.streams.Range(ctx, c.config.Stream, messageID, messageID)
	if err != nil || len(messages) == 0 {
		c.logger.WithContext(ctx).WithError(err).Warnf("Failed to get message %s for DLQ", messageID)
		c.ackAndDelete(ctx, messageID)
		return
	}

	tenantID := ""
	if message, _, parseErr := parseMessage(messages[0].Data); parseErr == nil {
		tenantID = message.TenantID
	}

	c.deadLetter(ctx, messages[0], tenantID, retryCount, reason, errorMsg)
}

func (c *Consumer) deadLetter(ctx context.Context, msg redis.StreamMessage, tenantID string, retryCount int, reason models.DeadLetterReason, errorMsg string) {
	record := &models.DeadLetterRecord{
		TenantID:        tenantID,
		OriginalMessage: msg.Data,
		Reason:          reason,
		ErrorMessage:    errorMsg,
		RetryCount:      retryCount,
	}

	if _, err := c.dlq.Add(ctx, record); err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("Failed to add message %s to DLQ", msg.ID)
	}
	metrics.RecordDLQMessage(tenantID, string(reason))

	c.ackAndDelete(ctx, msg.ID)
}

// ackAndDelete acknowledges the delivery and removes the entry so the stream
// does not grow unbounded
func (c *Consumer) ackAndDelete(ctx context.Context, messageID string) {
	if err := c.streams.Ack(ctx, c.config.Stream, c.config.ConsumerGroup, messageID); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Failed to ack message %s", messageID)
	}
	if err := c.streams.Delete(ctx, c.config.Stream, messageID); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Failed to delete message %s", messageID)
	}
}
