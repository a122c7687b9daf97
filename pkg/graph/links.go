package graph

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/quay/pkg/models"
	"github.com/Ramsey-B/quay/pkg/tracing"
)

// LinkService mirrors order-container links into the graph database
type LinkService struct {
	client *Client
	logger ectologger.Logger
}

// NewLinkService creates a new link service
func NewLinkService(client *Client, logger ectologger.Logger) *LinkService {
	return &LinkService{
		client: client,
		logger: logger,
	}
}

// SyncLink upserts both entity nodes and the LINKED_TO relationship in a
// single write transaction. MERGE keys on (id, tenant_id) so replays land on
// the same nodes and edge.
func (s *LinkService) SyncLink(ctx context.Context, order *models.Order, container *models.Container, link *models.Link) error {
	ctx, span := tracing.StartSpan(ctx, "graph.LinkService.SyncLink")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"link_id":      link.ID,
		"order_id":     order.ID,
		"container_id": container.ID,
		"tenant_id":    link.TenantID,
	})

	cypher := `
		MERGE (o:Order {id: $order_id, tenant_id: $tenant_id})
		SET o.purchase_ref = $purchase_ref
		MERGE (c:Container {id: $container_id, tenant_id: $tenant_id})
		SET c.container_ref = $container_ref
		MERGE (o)-[r:LINKED_TO {id: $link_id, tenant_id: $tenant_id}]->(c)
		SET r.reason = $reason, r.confidence = $confidence
		RETURN r
	`

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"order_id":      order.ID,
			"purchase_ref":  order.PurchaseRef,
			"container_id":  container.ID,
			"container_ref": container.ContainerRef,
			"link_id":       link.ID,
			"tenant_id":     link.TenantID,
			"reason":        string(link.Reason),
			"confidence":    link.Confidence,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		log.WithError(err).Error("Failed to sync link to graph")
		return err
	}

	log.Debug("Synced link to graph")
	return nil
}

// RemoveLink deletes the relationship for an unlinked pair. The entity nodes
// stay behind since other links may still reference them.
func (s *LinkService) RemoveLink(ctx context.Context, tenantID, linkID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.LinkService.RemoveLink")
	defer span.End()

	cypher := `
		MATCH ()-[r:LINKED_TO {id: $link_id, tenant_id: $tenant_id}]->()
		DELETE r
	`

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"link_id":   linkID,
			"tenant_id": tenantID,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"link_id": linkID}).Error("Failed to remove link from graph")
		return err
	}
	return nil
}

// OrdersLinkedToContainer reads the order IDs currently linked to a container
// from the graph
func (s *LinkService) OrdersLinkedToContainer(ctx context.Context, tenantID, containerID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.LinkService.OrdersLinkedToContainer")
	defer span.End()

	cypher := `
		MATCH (o:Order)-[:LINKED_TO {tenant_id: $tenant_id}]->(c:Container {id: $container_id, tenant_id: $tenant_id})
		RETURN o.id AS order_id
	`

	res, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"container_id": containerID,
			"tenant_id":    tenantID,
		})
		if err != nil {
			return nil, err
		}

		var ids []string
		for result.Next(ctx) {
			if v, ok := result.Record().Get("order_id"); ok {
				if id, ok := v.(string); ok {
					ids = append(ids, id)
				}
			}
		}
		return ids, result.Err()
	})
	if err != nil {
		return nil, err
	}
	return res.([]string), nil
}
