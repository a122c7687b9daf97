package link

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/quay/pkg/database"
	"github.com/Ramsey-B/quay/pkg/models"
	"github.com/Ramsey-B/quay/pkg/tracing"
)

// Repository handles order-container link persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new link repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// UpsertResult contains the result of a link operation
type UpsertResult struct {
	Link  *models.Link
	IsNew bool
}

const linkColumns = "id, tenant_id, order_id, container_id, reason, confidence, created_at, updated_at"

// Link creates or strengthens a link between an order and a container. Both
// entities must belong to the tenant. An existing link only changes when the
// new reason carries equal or higher confidence, so a manual link is never
// demoted by a later inferred one.
func (r *Repository) Link(ctx context.Context, tenantID string, request *models.CreateLinkRequest) (*UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "link.Repository.Link")
	defer span.End()

	if err := request.Reason.Validate(); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := r.checkOwnership(ctx, tenantID, request.OrderID, request.ContainerID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	id := ComputeID(tenantID, request.OrderID, request.ContainerID)
	confidence := request.Reason.Confidence()

	query := `
		WITH upsert AS (
			INSERT INTO order_container_links (id, tenant_id, order_id, container_id, reason, confidence, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (tenant_id, order_id, container_id)
			DO UPDATE SET
				reason = EXCLUDED.reason,
				confidence = EXCLUDED.confidence,
				updated_at = EXCLUDED.updated_at
			WHERE EXCLUDED.confidence >= order_container_links.confidence
			RETURNING id, tenant_id, order_id, container_id, reason, confidence, created_at, updated_at, (xmax = 0) AS inserted
		)
		SELECT * FROM upsert
	`

	var result struct {
		models.Link
		Inserted bool `db:"inserted"`
	}

	err := r.db.GetContext(ctx, &result, query, id, tenantID, request.OrderID, request.ContainerID, request.Reason, confidence, now, now)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			// conflict lost to a higher-confidence link; return the winner
			return r.getExisting(ctx, tenantID, request.OrderID, request.ContainerID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "order_id": request.OrderID, "container_id": request.ContainerID}).Error("Failed to upsert link")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert link")
	}

	if result.Inserted {
		r.logger.WithContext(ctx).WithFields(map[string]any{"id": result.ID, "order_id": request.OrderID, "container_id": request.ContainerID, "reason": request.Reason}).Info("Created link")
	}
	return &UpsertResult{Link: &result.Link, IsNew: result.Inserted}, nil
}

// BatchLink links each pair independently. A pair that fails does not stop
// the rest; the first error is returned alongside the successful results.
func (r *Repository) BatchLink(ctx context.Context, tenantID string, requests []models.CreateLinkRequest) ([]UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "link.Repository.BatchLink")
	defer span.End()

	results := make([]UpsertResult, 0, len(requests))
	var firstErr error
	for i := range requests {
		result, err := r.Link(ctx, tenantID, &requests[i])
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "order_id": requests[i].OrderID, "container_id": requests[i].ContainerID}).Error("Failed to link pair")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, *result)
	}
	return results, firstErr
}

func (r *Repository) checkOwnership(ctx context.Context, tenantID, orderID, containerID string) error {
	var orderTenant string
	if err := r.db.GetContext(ctx, &orderTenant, "SELECT tenant_id FROM orders WHERE id = $1", orderID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return httperror.NewHTTPError(http.StatusNotFound, "order not found")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"order_id": orderID}).Error("Failed to check order ownership")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to check order ownership")
	}
	if orderTenant != tenantID {
		return httperror.NewHTTPError(http.StatusForbidden, "order belongs to another tenant")
	}

	var containerTenant string
	if err := r.db.GetContext(ctx, &containerTenant, "SELECT tenant_id FROM containers WHERE id = $1", containerID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return httperror.NewHTTPError(http.StatusNotFound, "container not found")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"container_id": containerID}).Error("Failed to check container ownership")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to check container ownership")
	}
	if containerTenant != tenantID {
		return httperror.NewHTTPError(http.StatusForbidden, "container belongs to another tenant")
	}
	return nil
}

func (r *Repository) getExisting(ctx context.Context, tenantID, orderID, containerID string) (*UpsertResult, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(linkColumns)
	sb.From("order_container_links")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("order_id", orderID),
		sb.Equal("container_id", containerID),
	)

	query, args := sb.Build()
	var existing models.Link
	if err := r.db.GetContext(ctx, &existing, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "order_id": orderID, "container_id": containerID}).Error("Failed to get existing link")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get existing link")
	}
	return &UpsertResult{Link: &existing, IsNew: false}, nil
}

// ContainersForOrder retrieves all containers linked to an order
func (r *Repository) ContainersForOrder(ctx context.Context, tenantID, orderID string) ([]models.Link, error) {
	ctx, span := tracing.StartSpan(ctx, "link.Repository.ContainersForOrder")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(linkColumns)
	sb.From("order_container_links")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("order_id", orderID),
	)

	return r.selectLinks(ctx, sb)
}

// OrdersForContainer retrieves all orders linked to a container
func (r *Repository) OrdersForContainer(ctx context.Context, tenantID, containerID string) ([]models.Link, error) {
	ctx, span := tracing.StartSpan(ctx, "link.Repository.OrdersForContainer")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(linkColumns)
	sb.From("order_container_links")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("container_id", containerID),
	)

	return r.selectLinks(ctx, sb)
}

// ContainersForPurchaseRef retrieves all links whose order carries the given
// purchase reference
func (r *Repository) ContainersForPurchaseRef(ctx context.Context, tenantID, purchaseRef string) ([]models.Link, error) {
	ctx, span := tracing.StartSpan(ctx, "link.Repository.ContainersForPurchaseRef")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("l.id", "l.tenant_id", "l.order_id", "l.container_id", "l.reason", "l.confidence", "l.created_at", "l.updated_at")
	sb.From("order_container_links l")
	sb.JoinWithOption(sqlbuilder.InnerJoin, "orders o", "o.id = l.order_id")
	sb.Where(
		sb.Equal("l.tenant_id", tenantID),
		sb.Equal("o.purchase_ref", purchaseRef),
	)

	return r.selectLinks(ctx, sb)
}

// OrdersForContainerRef retrieves all links whose container carries the given
// container number
func (r *Repository) OrdersForContainerRef(ctx context.Context, tenantID, containerRef string) ([]models.Link, error) {
	ctx, span := tracing.StartSpan(ctx, "link.Repository.OrdersForContainerRef")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("l.id", "l.tenant_id", "l.order_id", "l.container_id", "l.reason", "l.confidence", "l.created_at", "l.updated_at")
	sb.From("order_container_links l")
	sb.JoinWithOption(sqlbuilder.InnerJoin, "containers c", "c.id = l.container_id")
	sb.Where(
		sb.Equal("l.tenant_id", tenantID),
		sb.Equal("c.container_ref", containerRef),
	)

	return r.selectLinks(ctx, sb)
}

// ListByTenant retrieves all links for a tenant
func (r *Repository) ListByTenant(ctx context.Context, tenantID string) ([]models.Link, error) {
	ctx, span := tracing.StartSpan(ctx, "link.Repository.ListByTenant")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(linkColumns)
	sb.From("order_container_links")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("created_at DESC")

	return r.selectLinks(ctx, sb)
}

func (r *Repository) selectLinks(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]models.Link, error) {
	query, args := sb.Build()
	var links []models.Link
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to select links")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to select links")
	}
	return links, nil
}

// Unlink removes the link between an order and a container. It reports
// whether a link existed.
func (r *Repository) Unlink(ctx context.Context, tenantID, orderID, containerID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "link.Repository.Unlink")
	defer span.End()

	result, err := r.db.ExecContext(ctx, "DELETE FROM order_container_links WHERE tenant_id = $1 AND order_id = $2 AND container_id = $3", tenantID, orderID, containerID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "order_id": orderID, "container_id": containerID}).Error("Failed to unlink")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to unlink")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to unlink")
	}
	return rows > 0, nil
}
