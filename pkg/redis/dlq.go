package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/quay/pkg/models"
	"github.com/Ramsey-B/quay/pkg/tracing"
)

const (
	// DefaultDLQStream is the default dead letter queue stream name
	DefaultDLQStream = "quay:dlq"

	// DLQMaxLen is the maximum length of the DLQ stream (oldest entries trimmed)
	DLQMaxLen = 10000
)

// DeadLetterQueue handles dead letter queue operations
type DeadLetterQueue struct {
	client     *Client
	streamName string
	logger     ectologger.Logger
}

// NewDeadLetterQueue creates a new dead letter queue handler
func NewDeadLetterQueue(client *Client, streamName string, logger ectologger.Logger) *DeadLetterQueue {
	if streamName == "" {
		streamName = DefaultDLQStream
	}
	return &DeadLetterQueue{
		client:     client,
		streamName: streamName,
		logger:     logger,
	}
}

// Add adds a failed message to the dead letter queue
func (d *DeadLetterQueue) Add(ctx context.Context, record *models.DeadLetterRecord) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "DLQ.Add")
	defer span.End()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp == 0 {
		record.Timestamp = time.Now().UnixMilli()
	}
	record.TraceID = tracing.GetTraceID(ctx)

	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal DLQ record: %w", err)
	}

	messageID, err := d.client.Redis().XAdd(ctx, &redis.XAddArgs{
		Stream: d.streamName,
		MaxLen: DLQMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data":      string(data),
			"tenant_id": record.TenantID,
			"reason":    string(record.Reason),
		},
	}).Result()

	if err != nil {
		d.logger.WithContext(ctx).WithError(err).Error("Failed to add message to DLQ")
		return "", fmt.Errorf("failed to add to DLQ: %w", err)
	}

	d.logger.WithContext(ctx).Infof("Added message to DLQ: id=%s tenant=%s reason=%s", record.ID, record.TenantID, record.Reason)
	return messageID, nil
}

// List returns the newest records from the dead letter queue
func (d *DeadLetterQueue) List(ctx context.Context, count int64) ([]models.DeadLetterRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "DLQ.List")
	defer span.End()

	if count <= 0 {
		count = 100
	}

	messages, err := d.client.Redis().XRevRangeN(ctx, d.streamName, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read DLQ: %w", err)
	}

	records := make([]models.DeadLetterRecord, 0, len(messages))
	for _, msg := range messages {
		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}

		var record models.DeadLetterRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			d.logger.WithContext(ctx).WithError(err).Warnf("Failed to unmarshal DLQ record: %s", msg.ID)
			continue
		}
		records = append(records, record)
	}

	return records, nil
}

// ListByTenant returns records for a specific tenant
func (d *DeadLetterQueue) ListByTenant(ctx context.Context, tenantID string, count int64) ([]models.DeadLetterRecord, error) {
	records, err := d.List(ctx, count*2) // Fetch more to filter
	if err != nil {
		return nil, err
	}

	filtered := make([]models.DeadLetterRecord, 0)
	for _, record := range records {
		if record.TenantID == tenantID {
			filtered = append(filtered, record)
			if int64(len(filtered)) >= count {
				break
			}
		}
	}

	return filtered, nil
}

// Get retrieves a specific DLQ record by message ID
func (d *DeadLetterQueue) Get(ctx context.Context, messageID string) (*models.DeadLetterRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "DLQ.Get")
	defer span.End()

	messages, err := d.client.Redis().XRange(ctx, d.streamName, messageID, messageID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get DLQ record: %w", err)
	}

	if len(messages) == 0 {
		return nil, nil
	}

	data, ok := messages[0].Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid DLQ record format")
	}

	var record models.DeadLetterRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DLQ record: %w", err)
	}

	return &record, nil
}

// Delete removes a record from the dead letter queue
func (d *DeadLetterQueue) Delete(ctx context.Context, messageID string) error {
	ctx, span := tracing.StartSpan(ctx, "DLQ.Delete")
	defer span.End()

	count, err := d.client.Redis().XDel(ctx, d.streamName, messageID).Result()
	if err != nil {
		return fmt.Errorf("failed to delete DLQ record: %w", err)
	}

	if count == 0 {
		return fmt.Errorf("DLQ record not found: %s", messageID)
	}

	d.logger.WithContext(ctx).Infof("Deleted DLQ record: %s", messageID)
	return nil
}

// Count returns the number of records in the DLQ
func (d *DeadLetterQueue) Count(ctx context.Context) (int64, error) {
	return d.client.Redis().XLen(ctx, d.streamName).Result()
}

// Retry re-enqueues a dead-lettered message back to the notification queue
func (d *DeadLetterQueue) Retry(ctx context.Context, messageID string, streams *Streams, queueName string) error {
	ctx, span := tracing.StartSpan(ctx, "DLQ.Retry")
	defer span.End()

	record, err := d.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("DLQ record not found: %s", messageID)
	}

	if len(record.OriginalMessage) == 0 {
		return fmt.Errorf("DLQ record has no original message: %s", messageID)
	}

	var message models.QueueMessage
	if err := json.Unmarshal(record.OriginalMessage, &message); err != nil {
		return fmt.Errorf("failed to unmarshal original message: %w", err)
	}

	// fresh stream entry, delivery count starts over
	if _, err := streams.Publish(ctx, queueName, &message); err != nil {
		return fmt.Errorf("failed to re-enqueue message: %w", err)
	}

	if err := d.Delete(ctx, messageID); err != nil {
		d.logger.WithContext(ctx).WithError(err).Warn("Failed to delete DLQ record after retry")
	}

	d.logger.WithContext(ctx).Infof("Retried DLQ record: %s tenant=%s", messageID, record.TenantID)
	return nil
}
