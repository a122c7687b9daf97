package order

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/quay/pkg/database"
	"github.com/Ramsey-B/quay/pkg/models"
	"github.com/Ramsey-B/quay/pkg/tracing"
)

const defaultBatchChunkSize = 100

// Repository handles order persistence
type Repository struct {
	db        database.DB
	logger    ectologger.Logger
	chunkSize int
}

// NewRepository creates a new order repository. chunkSize bounds how many
// rows share a transaction during batch upserts; non-positive values fall
// back to the default.
func NewRepository(db database.DB, logger ectologger.Logger, chunkSize int) *Repository {
	if chunkSize <= 0 {
		chunkSize = defaultBatchChunkSize
	}
	return &Repository{
		db:        db,
		logger:    logger,
		chunkSize: chunkSize,
	}
}

// UpsertResult contains the result of an upsert operation
type UpsertResult struct {
	Order *models.Order
	IsNew bool
}

type getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

// Upsert creates or updates an order keyed on (tenant_id, purchase_ref).
// A supplied booking_ref overwrites the stored one; a nil booking_ref leaves
// the stored value untouched, which is what the COALESCE enforces.
func (r *Repository) Upsert(ctx context.Context, tenantID string, request *models.UpsertOrderRequest) (*UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "order.Repository.Upsert")
	defer span.End()

	return r.upsert(ctx, r.db, tenantID, request)
}

func (r *Repository) upsert(ctx context.Context, q getter, tenantID string, request *models.UpsertOrderRequest) (*UpsertResult, error) {
	now := time.Now().UTC()
	id := uuid.New().String()

	query := `
		WITH upsert AS (
			INSERT INTO orders (id, tenant_id, purchase_ref, booking_ref, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (tenant_id, purchase_ref)
			DO UPDATE SET
				booking_ref = COALESCE(EXCLUDED.booking_ref, orders.booking_ref),
				updated_at = EXCLUDED.updated_at
			RETURNING id, tenant_id, purchase_ref, booking_ref, created_at, updated_at, (xmax = 0) AS inserted
		)
		SELECT * FROM upsert
	`

	var result struct {
		models.Order
		Inserted bool `db:"inserted"`
	}

	if err := q.GetContext(ctx, &result, query, id, tenantID, request.PurchaseRef, request.BookingRef, now, now); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "purchase_ref": request.PurchaseRef}).Error("Failed to upsert order")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert order")
	}

	if result.Inserted {
		r.logger.WithContext(ctx).WithFields(map[string]any{"id": result.ID, "purchase_ref": request.PurchaseRef}).Info("Created order")
	}
	return &UpsertResult{Order: &result.Order, IsNew: result.Inserted}, nil
}

// BatchUpsert upserts orders in chunks, each chunk in its own transaction.
// A failed chunk rolls back alone and the error is returned after the
// remaining chunks have been attempted.
func (r *Repository) BatchUpsert(ctx context.Context, tenantID string, requests []models.UpsertOrderRequest) ([]UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "order.Repository.BatchUpsert")
	defer span.End()

	results := make([]UpsertResult, 0, len(requests))
	var firstErr error
	for start := 0; start < len(requests); start += r.chunkSize {
		end := min(start+r.chunkSize, len(requests))

		chunkResults, err := r.upsertChunk(ctx, tenantID, requests[start:end])
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "chunk_start": start}).Error("Failed to upsert order chunk")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, chunkResults...)
	}
	return results, firstErr
}

func (r *Repository) upsertChunk(ctx context.Context, tenantID string, requests []models.UpsertOrderRequest) ([]UpsertResult, error) {
	_, tx, err := database.GetTx(ctx, r.logger, r.db, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	results := make([]UpsertResult, 0, len(requests))
	for i := range requests {
		result, err := r.upsert(ctx, tx, tenantID, &requests[i])
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit transaction")
	}
	return results, nil
}

// GetByRef retrieves an order by its purchase reference
func (r *Repository) GetByRef(ctx context.Context, tenantID, purchaseRef string) (*models.Order, error) {
	ctx, span := tracing.StartSpan(ctx, "order.Repository.GetByRef")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "purchase_ref", "booking_ref", "created_at", "updated_at")
	sb.From("orders")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("purchase_ref", purchaseRef),
	)

	query, args := sb.Build()
	var order models.Order
	if err := r.db.GetContext(ctx, &order, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "purchase_ref": purchaseRef}).Error("Failed to get order")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get order")
	}
	return &order, nil
}

// ListByBookingRef retrieves all orders attached to a booking reference
func (r *Repository) ListByBookingRef(ctx context.Context, tenantID, bookingRef string) ([]models.Order, error) {
	ctx, span := tracing.StartSpan(ctx, "order.Repository.ListByBookingRef")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "purchase_ref", "booking_ref", "created_at", "updated_at")
	sb.From("orders")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("booking_ref", bookingRef),
	)

	query, args := sb.Build()
	var orders []models.Order
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "booking_ref": bookingRef}).Error("Failed to list orders by booking")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list orders")
	}
	return orders, nil
}

// ListByTenant retrieves all orders for a tenant
func (r *Repository) ListByTenant(ctx context.Context, tenantID string) ([]models.Order, error) {
	ctx, span := tracing.StartSpan(ctx, "order.Repository.ListByTenant")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "purchase_ref", "booking_ref", "created_at", "updated_at")
	sb.From("orders")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var orders []models.Order
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to list orders")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list orders")
	}
	return orders, nil
}
