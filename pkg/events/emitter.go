// Package events handles event emission for entity and link lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/quay/pkg/kafka"
	"github.com/Ramsey-B/quay/pkg/models"
	"github.com/Ramsey-B/quay/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes ingestion outcomes downstream
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitEntityUpserted emits a created or updated event for an ingested entity
func (e *Emitter) EmitEntityUpserted(ctx context.Context, tenantID, entityID, entityType string, isNew bool, entity any) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEntityUpserted")
	defer span.End()

	eventType := "entity.updated"
	if isNew {
		eventType = "entity.created"
	}

	data, _ := json.Marshal(entity)

	event := &kafka.EntityEvent{
		EventType:  eventType,
		TenantID:   tenantID,
		EntityID:   entityID,
		EntityType: entityType,
		Data:       data,
	}

	if err := e.producer.PublishEntityEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}

	return nil
}

// EmitLinkCreated emits a link created or strengthened event
func (e *Emitter) EmitLinkCreated(ctx context.Context, link *models.Link, isNew bool) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitLinkCreated")
	defer span.End()

	eventType := "link.updated"
	if isNew {
		eventType = "link.created"
	}

	event := &kafka.LinkEvent{
		EventType:   eventType,
		TenantID:    link.TenantID,
		LinkID:      link.ID,
		OrderID:     link.OrderID,
		ContainerID: link.ContainerID,
		Reason:      string(link.Reason),
		Confidence:  link.Confidence,
	}

	if err := e.producer.PublishLinkEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}

	return nil
}

// EmitLinkDeleted emits a link deleted event
func (e *Emitter) EmitLinkDeleted(ctx context.Context, tenantID, linkID, orderID, containerID string) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitLinkDeleted")
	defer span.End()

	event := &kafka.LinkEvent{
		EventType:   "link.deleted",
		TenantID:    tenantID,
		LinkID:      linkID,
		OrderID:     orderID,
		ContainerID: containerID,
	}

	if err := e.producer.PublishLinkEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit link.deleted event")
		return err
	}

	return nil
}
