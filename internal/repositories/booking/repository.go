package booking

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

// Repository handles booking persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new booking repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// UpsertResult contains the result of an upsert operation
type UpsertResult struct {
	Booking *models.Booking
	IsNew   bool
}

// Upsert creates a booking if it does not exist yet. Bookings carry no
// mutable fields, so a conflict only bumps updated_at. The ON CONFLICT path
// also absorbs duplicate-key races between concurrent consumers.
func (r *Repository) Upsert(ctx context.Context, tenantID, bookingRef string) (*UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "booking.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()
	id := uuid.New().String()

	query := `
		WITH upsert AS (
			INSERT INTO bookings (id, tenant_id, booking_ref, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (tenant_id, booking_ref)
			DO UPDATE SET updated_at = EXCLUDED.updated_at
			RETURNING id, tenant_id, booking_ref, created_at, updated_at, (xmax = 0) AS inserted
		)
		SELECT * FROM upsert
	`

	var result struct {
		models.Booking
		Inserted bool `db:"inserted"`
	}

	if err := r.db.GetContext(ctx, &result, query, id, tenantID, bookingRef, now, now); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "booking_ref": bookingRef}).Error("Failed to upsert booking")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert booking")
	}

	if result.Inserted {
		r.logger.WithContext(ctx).WithFields(map[string]any{"id": result.ID, "booking_ref": bookingRef}).Info("Created booking")
	}
	return &UpsertResult{Booking: &result.Booking, IsNew: result.Inserted}, nil
}

// GetByRef retrieves a booking by its reference
func (r *Repository) GetByRef(ctx context.Context, tenantID, bookingRef string) (*models.Booking, error) {
	ctx, span := tracing.StartSpan(ctx, "booking.Repository.GetByRef")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "booking_ref", "created_at", "updated_at")
	sb.From("bookings")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("booking_ref", bookingRef),
	)

	query, args := sb.Build()
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "booking_ref": bookingRef}).Error("Failed to get booking")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get booking")
	}
	return &booking, nil
}

// ListByTenant retrieves all bookings for a tenant
func (r *Repository) ListByTenant(ctx context.Context, tenantID string) ([]models.Booking, error) {
	ctx, span := tracing.StartSpan(ctx, "booking.Repository.ListByTenant")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "booking_ref", "created_at", "updated_at")
	sb.From("bookings")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to list bookings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list bookings")
	}
	return bookings, nil
}
