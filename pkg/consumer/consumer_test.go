package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/quay/pkg/linking"
	"github.com/Ramsey-B/quay/pkg/models"
	"github.com/Ramsey-B/quay/pkg/redis"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	tests := []struct {
		deliveryCount int64
		expected      time.Duration
	}{
		{0, 30 * time.Second},
		{1, 60 * time.Second},
		{2, 120 * time.Second},
		{3, 240 * time.Second},
		{4, 480 * time.Second},
		{5, 15 * time.Minute},
		{6, 15 * time.Minute},
		{100, 15 * time.Minute},
		{-1, 30 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Backoff(tt.deliveryCount), "deliveryCount=%d", tt.deliveryCount)
	}
}

func TestParseMessageValid(t *testing.T) {
	data := []byte(`{
		"id": "msg-1",
		"tenant_id": "tenant-1",
		"idempotency_key": "idem-1",
		"payload": {
			"booking": "BK-100",
			"orders": [{"purchase": "PO-1", "invoices": [{"invoice": "INV-1"}]}],
			"containers": [{"container": "csqu3054383"}]
		}
	}`)

	message, payload, err := parseMessage(data)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", message.ID)
	assert.Equal(t, "tenant-1", message.TenantID)
	assert.Equal(t, "idem-1", message.IdempotencyKey)
	require.NotNil(t, payload.Booking)
	assert.Equal(t, "BK-100", *payload.Booking)
	require.Len(t, payload.Orders, 1)
	assert.Equal(t, "PO-1", payload.Orders[0].Purchase)
	require.Len(t, payload.Containers, 1)
	assert.Equal(t, "CSQU3054383", payload.Containers[0].Container, "container number should be uppercased")
}

func TestParseMessageRejectsMalformedJSON(t *testing.T) {
	message, _, err := parseMessage([]byte(`{not json`))
	assert.Error(t, err)
	assert.Nil(t, message)
}

func TestParseMessageRequiresTenant(t *testing.T) {
	data := []byte(`{"id": "msg-1", "payload": {"booking": "BK-100"}}`)
	message, _, err := parseMessage(data)
	assert.Error(t, err)
	assert.NotNil(t, message)
}

func TestParseMessageRejectsBadContainerNumber(t *testing.T) {
	data := []byte(`{
		"id": "msg-1",
		"tenant_id": "tenant-1",
		"payload": {"containers": [{"container": "CSQU3054380"}]}
	}`)
	_, _, err := parseMessage(data)
	assert.Error(t, err, "wrong check digit should be rejected")
}

func TestParseMessageRejectsEmptyPayload(t *testing.T) {
	data := []byte(`{"id": "msg-1", "tenant_id": "tenant-1", "payload": {}}`)
	_, _, err := parseMessage(data)
	assert.Error(t, err)
}

type fakeStreamQueue struct {
	entries map[string]redis.StreamMessage
	pending []goredis.XPendingExt
	acked   []string
	deleted []string
	claimed []string
}

func newFakeStreamQueue() *fakeStreamQueue {
	return &fakeStreamQueue{entries: map[string]redis.StreamMessage{}}
}

func (f *fakeStreamQueue) CreateConsumerGroup(context.Context, string, string) error { return nil }

func (f *fakeStreamQueue) Consume(context.Context, string, string, string, int64, time.Duration) ([]redis.StreamMessage, error) {
	return nil, nil
}

func (f *fakeStreamQueue) Ack(_ context.Context, _, _ string, ids ...string) error {
	f.acked = append(f.acked, ids...)
	return nil
}

func (f *fakeStreamQueue) Delete(_ context.Context, _ string, ids ...string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeStreamQueue) Pending(context.Context, string, string, int64) ([]goredis.XPendingExt, error) {
	return f.pending, nil
}

func (f *fakeStreamQueue) Claim(_ context.Context, _, _, _ string, _ time.Duration, ids ...string) ([]redis.StreamMessage, error) {
	var out []redis.StreamMessage
	for _, id := range ids {
		if msg, ok := f.entries[id]; ok {
			f.claimed = append(f.claimed, id)
			out = append(out, msg)
		}
	}
	return out, nil
}

func (f *fakeStreamQueue) Range(_ context.Context, _, start, _ string) ([]redis.StreamMessage, error) {
	if msg, ok := f.entries[start]; ok {
		return []redis.StreamMessage{msg}, nil
	}
	return nil, nil
}

type fakeDeadLetterSink struct {
	records []models.DeadLetterRecord
}

func (f *fakeDeadLetterSink) Add(_ context.Context, record *models.DeadLetterRecord) (string, error) {
	f.records = append(f.records, *record)
	return "dlq-1", nil
}

type fakeDedupCache struct {
	seen    map[string]bool
	set     []string
	deleted []string
}

func newFakeDedupCache() *fakeDedupCache {
	return &fakeDedupCache{seen: map[string]bool{}}
}

func (f *fakeDedupCache) SetNX(_ context.Context, key string, _ interface{}, _ time.Duration) (bool, error) {
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	f.set = append(f.set, key)
	return true, nil
}

func (f *fakeDedupCache) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.seen, key)
	}
	f.deleted = append(f.deleted, keys...)
	return nil
}

type fakeProcessor struct {
	err   error
	calls int
}

func (f *fakeProcessor) Process(context.Context, string, *models.NotificationPayload) (*linking.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &linking.Result{}, nil
}

func testEnvelope(t *testing.T, id string) redis.StreamMessage {
	t.Helper()
	data := []byte(`{
		"id": "` + id + `",
		"tenant_id": "tenant-1",
		"idempotency_key": "idem-` + id + `",
		"payload": {"booking": "BK-100", "orders": [{"purchase": "PO-1"}]}
	}`)
	return redis.StreamMessage{ID: id, Stream: "quay:notifications", Data: data}
}

func newTestConsumer(streams *fakeStreamQueue, dlq *fakeDeadLetterSink, cache *fakeDedupCache, processor *fakeProcessor) *Consumer {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	config := DefaultConfig()
	config.DedupEnabled = cache != nil
	return NewConsumer(streams, dlq, cache, processor, config, logger)
}

func TestHandleMessageDeadLettersAfterMaxDeliveries(t *testing.T) {
	streams := newFakeStreamQueue()
	dlq := &fakeDeadLetterSink{}
	processor := &fakeProcessor{err: errors.New("database unavailable")}
	c := newTestConsumer(streams, dlq, nil, processor)

	msg := testEnvelope(t, "1-1")
	c.handleMessage(context.Background(), msg, int64(c.config.MaxRetries))

	require.Len(t, dlq.records, 1, "exactly one DLQ record after the final delivery")
	record := dlq.records[0]
	assert.Equal(t, models.DLQReasonMaxRetries, record.Reason)
	assert.Equal(t, "tenant-1", record.TenantID)
	assert.Equal(t, c.config.MaxRetries, record.RetryCount)
	assert.JSONEq(t, string(msg.Data), string(record.OriginalMessage))
	assert.Contains(t, streams.acked, "1-1")
	assert.Contains(t, streams.deleted, "1-1")
}

func TestHandleMessageLeavesMessagePendingBeforeMaxDeliveries(t *testing.T) {
	streams := newFakeStreamQueue()
	dlq := &fakeDeadLetterSink{}
	processor := &fakeProcessor{err: errors.New("database unavailable")}
	c := newTestConsumer(streams, dlq, nil, processor)

	c.handleMessage(context.Background(), testEnvelope(t, "1-1"), 1)

	assert.Empty(t, dlq.records, "retryable failures stay on the stream")
	assert.Empty(t, streams.acked)
	assert.Empty(t, streams.deleted)
	assert.Equal(t, 1, processor.calls)
}

func TestHandleMessageDeadLettersUnparseableImmediately(t *testing.T) {
	streams := newFakeStreamQueue()
	dlq := &fakeDeadLetterSink{}
	processor := &fakeProcessor{}
	c := newTestConsumer(streams, dlq, nil, processor)

	msg := redis.StreamMessage{ID: "1-1", Stream: "quay:notifications", Data: []byte(`{not json`)}
	c.handleMessage(context.Background(), msg, 1)

	require.Len(t, dlq.records, 1)
	assert.Equal(t, models.DLQReasonParseError, dlq.records[0].Reason)
	assert.Equal(t, 0, processor.calls, "unparseable bytes never reach the engine")
	assert.Contains(t, streams.acked, "1-1")
}

func TestHandleMessageDeadLettersInvalidPayloadImmediately(t *testing.T) {
	streams := newFakeStreamQueue()
	dlq := &fakeDeadLetterSink{}
	processor := &fakeProcessor{}
	c := newTestConsumer(streams, dlq, nil, processor)

	msg := redis.StreamMessage{
		ID:     "1-1",
		Stream: "quay:notifications",
		Data:   []byte(`{"id": "m1", "tenant_id": "tenant-1", "payload": {"containers": [{"container": "CSQU3054380"}]}}`),
	}
	c.handleMessage(context.Background(), msg, 1)

	require.Len(t, dlq.records, 1)
	assert.Equal(t, models.DLQReasonInvalidData, dlq.records[0].Reason)
	assert.Equal(t, "tenant-1", dlq.records[0].TenantID)
	assert.Equal(t, 0, processor.calls)
}

func TestHandleMessageSkipsDuplicate(t *testing.T) {
	streams := newFakeStreamQueue()
	dlq := &fakeDeadLetterSink{}
	cache := newFakeDedupCache()
	processor := &fakeProcessor{}
	c := newTestConsumer(streams, dlq, cache, processor)

	original := testEnvelope(t, "1-1")
	replay := redis.StreamMessage{ID: "1-2", Stream: original.Stream, Data: original.Data}
	c.handleMessage(context.Background(), original, 1)
	c.handleMessage(context.Background(), replay, 1)

	assert.Equal(t, 1, processor.calls, "same idempotency key processes once")
	assert.ElementsMatch(t, []string{"1-1", "1-2"}, streams.acked)
	assert.Empty(t, dlq.records)
}

func TestHandleMessageReleasesDedupKeyOnFailure(t *testing.T) {
	streams := newFakeStreamQueue()
	dlq := &fakeDeadLetterSink{}
	cache := newFakeDedupCache()
	processor := &fakeProcessor{err: errors.New("database unavailable")}
	c := newTestConsumer(streams, dlq, cache, processor)

	c.handleMessage(context.Background(), testEnvelope(t, "1-1"), 1)

	require.Len(t, cache.deleted, 1, "failed processing must release the dedup key")
	assert.Equal(t, cache.set, cache.deleted)
}

func TestRedeliverPendingDeadLettersExhaustedMessages(t *testing.T) {
	streams := newFakeStreamQueue()
	dlq := &fakeDeadLetterSink{}
	processor := &fakeProcessor{}
	c := newTestConsumer(streams, dlq, nil, processor)

	exhausted := testEnvelope(t, "1-1")
	streams.entries["1-1"] = exhausted
	streams.pending = []goredis.XPendingExt{
		{ID: "1-1", RetryCount: int64(c.config.MaxRetries)},
		{ID: "1-2", RetryCount: 1, Idle: time.Second},
	}

	c.redeliverPending(context.Background())

	require.Len(t, dlq.records, 1, "only the exhausted message is dead-lettered")
	assert.Equal(t, models.DLQReasonMaxRetries, dlq.records[0].Reason)
	assert.Equal(t, "tenant-1", dlq.records[0].TenantID)
	assert.JSONEq(t, string(exhausted.Data), string(dlq.records[0].OriginalMessage))
	assert.Contains(t, streams.acked, "1-1")
	assert.Contains(t, streams.deleted, "1-1")
	assert.Empty(t, streams.claimed, "the backing-off message is not claimed early")
	assert.Equal(t, 0, processor.calls)
}

func TestRedeliverPendingClaimsAfterBackoff(t *testing.T) {
	streams := newFakeStreamQueue()
	dlq := &fakeDeadLetterSink{}
	processor := &fakeProcessor{}
	c := newTestConsumer(streams, dlq, nil, processor)

	msg := testEnvelope(t, "1-1")
	streams.entries["1-1"] = msg
	streams.pending = []goredis.XPendingExt{
		{ID: "1-1", RetryCount: 1, Idle: Backoff(1) + time.Second},
	}

	c.redeliverPending(context.Background())

	assert.Contains(t, streams.claimed, "1-1")
	assert.Equal(t, 1, processor.calls, "claimed message is processed again")
	assert.Empty(t, dlq.records)
}

func TestParseMessageRoundTripsRawPayload(t *testing.T) {
	data := []byte(`{
		"id": "msg-1",
		"tenant_id": "tenant-1",
		"payload": {"booking": "  BK-100  "}
	}`)
	message, payload, err := parseMessage(data)
	require.NoError(t, err)
	assert.Equal(t, "BK-100", *payload.Booking, "refs should be trimmed")

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(message.Payload, &raw))
	assert.Contains(t, raw, "booking")
}
