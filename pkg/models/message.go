package models

import (
	"encoding/json"
	"time"
)

// QueueMessage is the envelope stored on the notification stream.
type QueueMessage struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenant_id"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	Timestamp      time.Time       `json:"timestamp"`
}

// NotificationPayload is the logistics notification body. Every section is
// optional; a notification may carry any subset of a booking, orders with
// their invoices, and containers.
type NotificationPayload struct {
	Booking    *string                 `json:"booking,omitempty"`
	Orders     []NotificationOrder     `json:"orders,omitempty"`
	Containers []NotificationContainer `json:"containers,omitempty"`
}

// NotificationOrder is one purchase order in a notification.
type NotificationOrder struct {
	Purchase string                `json:"purchase"`
	Invoices []NotificationInvoice `json:"invoices,omitempty"`
}

// NotificationInvoice is one invoice nested under an order.
type NotificationInvoice struct {
	Invoice string `json:"invoice"`
}

// NotificationContainer is one container in a notification.
type NotificationContainer struct {
	Container string `json:"container"`
}

// DeadLetterReason classifies why a message was dead-lettered.
type DeadLetterReason string

const (
	DLQReasonMaxRetries  DeadLetterReason = "max_retries"
	DLQReasonParseError  DeadLetterReason = "parse_error"
	DLQReasonInvalidData DeadLetterReason = "invalid_data"
)

// DeadLetterRecord preserves a failed message for later inspection or replay.
// OriginalMessage is the verbatim envelope as it sat on the stream.
type DeadLetterRecord struct {
	ID              string           `json:"id"`
	TenantID        string           `json:"tenant_id"`
	OriginalMessage json.RawMessage  `json:"original_message"`
	Reason          DeadLetterReason `json:"reason"`
	ErrorMessage    string           `json:"error_message"`
	RetryCount      int              `json:"retry_count"`
	Timestamp       int64            `json:"timestamp"`
	TraceID         string           `json:"trace_id,omitempty"`
}
