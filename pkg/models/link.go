package models

import (
	"fmt"
	"time"
)

// LinkReason records how an order/container association was discovered.
type LinkReason string

const (
	LinkReasonBookingMatch        LinkReason = "BOOKING_MATCH"
	LinkReasonManual              LinkReason = "MANUAL"
	LinkReasonAIInference         LinkReason = "AI_INFERENCE"
	LinkReasonTemporalCorrelation LinkReason = "TEMPORAL_CORRELATION"
	LinkReasonSystemMigration     LinkReason = "SYSTEM_MIGRATION"
)

// linkConfidence fixes the confidence score for each reason. The set is
// closed: a reason outside this table is rejected at the boundary.
var linkConfidence = map[LinkReason]float64{
	LinkReasonBookingMatch:        1.00,
	LinkReasonManual:              0.95,
	LinkReasonAIInference:         0.70,
	LinkReasonTemporalCorrelation: 0.60,
	LinkReasonSystemMigration:     0.35,
}

// Confidence returns the fixed score for the reason.
func (r LinkReason) Confidence() float64 {
	return linkConfidence[r]
}

// Validate rejects reasons outside the closed enum.
func (r LinkReason) Validate() error {
	if _, ok := linkConfidence[r]; !ok {
		return fmt.Errorf("unknown link reason %q", string(r))
	}
	return nil
}

// Link is an edge in the many-to-many order/container relation. At most one
// link exists per (tenant_id, order_id, container_id); re-assertion keeps the
// highest-confidence reason.
type Link struct {
	ID          string     `json:"id" db:"id"`
	TenantID    string     `json:"tenant_id" db:"tenant_id"`
	OrderID     string     `json:"order_id" db:"order_id"`
	ContainerID string     `json:"container_id" db:"container_id"`
	Reason      LinkReason `json:"reason" db:"reason"`
	Confidence  float64    `json:"confidence" db:"confidence"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// CreateLinkRequest is the write model for a single link.
type CreateLinkRequest struct {
	OrderID     string     `json:"order_id" validate:"required"`
	ContainerID string     `json:"container_id" validate:"required"`
	Reason      LinkReason `json:"reason" validate:"required"`
}
