package container

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

// Repository handles container persistence
type Repository struct {
	db        database.DB
	logger    ectologger.Logger
	chunkSize int
}

// NewRepository creates a new container repository. chunkSize bounds how many
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
	Container *models.Container
	IsNew     bool
}

type getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

// Upsert creates or updates a container keyed on (tenant_id, container_ref).
// Booking adoption follows the same rule as orders: a supplied booking_ref
// overwrites, a nil one leaves the stored value untouched.
func (r *Repository) Upsert(ctx context.Context, tenantID string, request *models.UpsertContainerRequest) (*UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "container.Repository.Upsert")
	defer span.End()

	return r.upsert(ctx, r.db, tenantID, request)
}

func (r *Repository) upsert(ctx context.Context, q getter, tenantID string, request *models.UpsertContainerRequest) (*UpsertResult, error) {
	now := time.Now().UTC()
	id := uuid.New().String()

	query := `
		WITH upsert AS (
			INSERT INTO containers (id, tenant_id, container_ref, booking_ref, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (tenant_id, container_ref)
			DO UPDATE SET
				booking_ref = COALESCE(EXCLUDED.booking_ref, containers.booking_ref),
				updated_at = EXCLUDED.updated_at
			RETURNING id, tenant_id, container_ref, booking_ref, created_at, updated_at, (xmax = 0) AS inserted
		)
		SELECT * FROM upsert
	`

	var result struct {
		models.Container
		Inserted bool `db:"inserted"`
	}

	if err := q.GetContext(ctx, &result, query, id, tenantID, request.ContainerRef, request.BookingRef, now, now); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "container_ref": request.ContainerRef}).Error("Failed to upsert container")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert container")
	}

	if result.Inserted {
		r.logger.WithContext(ctx).WithFields(map[string]any{"id": result.ID, "container_ref": request.ContainerRef}).Info("Created container")
	}
	return &UpsertResult{Container: &result.Container, IsNew: result.Inserted}, nil
}

// BatchUpsert upserts containers in chunks, each chunk in its own
// transaction. A failed chunk rolls back alone and the error is returned
// after the remaining chunks have been attempted.
func (r *Repository) BatchUpsert(ctx context.Context, tenantID string, requests []models.UpsertContainerRequest) ([]UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "container.Repository.BatchUpsert")
	defer span.End()

	results := make([]UpsertResult, 0, len(requests))
	var firstErr error
	for start := 0; start < len(requests); start += r.chunkSize {
		end := min(start+r.chunkSize, len(requests))

		chunkResults, err := r.upsertChunk(ctx, tenantID, requests[start:end])
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "chunk_start": start}).Error("Failed to upsert container chunk")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, chunkResults...)
	}
	return results, firstErr
}

func (r *Repository) upsertChunk(ctx context.Context, tenantID string, requests []models.UpsertContainerRequest) ([]UpsertResult, error) {
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

// GetByRef retrieves a container by its container number
func (r *Repository) GetByRef(ctx context.Context, tenantID, containerRef string) (*models.Container, error) {
	ctx, span := tracing.StartSpan(ctx, "container.Repository.GetByRef")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "container_ref", "booking_ref", "created_at", "updated_at")
	sb.From("containers")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("container_ref", containerRef),
	)

	query, args := sb.Build()
	var container models.Container
	if err := r.db.GetContext(ctx, &container, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "container_ref": containerRef}).Error("Failed to get container")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get container")
	}
	return &container, nil
}

// ListByBookingRef retrieves all containers attached to a booking reference
func (r *Repository) ListByBookingRef(ctx context.Context, tenantID, bookingRef string) ([]models.Container, error) {
	ctx, span := tracing.StartSpan(ctx, "container.Repository.ListByBookingRef")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "container_ref", "booking_ref", "created_at", "updated_at")
	sb.From("containers")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("booking_ref", bookingRef),
	)

	query, args := sb.Build()
	var containers []models.Container
	if err := r.db.SelectContext(ctx, &containers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "booking_ref": bookingRef}).Error("Failed to list containers by booking")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list containers")
	}
	return containers, nil
}

// ListByTenant retrieves all containers for a tenant
func (r *Repository) ListByTenant(ctx context.Context, tenantID string) ([]models.Container, error) {
	ctx, span := tracing.StartSpan(ctx, "container.Repository.ListByTenant")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "container_ref", "booking_ref", "created_at", "updated_at")
	sb.From("containers")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var containers []models.Container
	if err := r.db.SelectContext(ctx, &containers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to list containers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list containers")
	}
	return containers, nil
}
