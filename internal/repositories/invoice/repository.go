package invoice

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

// Repository handles invoice persistence
type Repository struct {
	db        database.DB
	logger    ectologger.Logger
	chunkSize int
}

// NewRepository creates a new invoice repository. chunkSize bounds how many
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
	Invoice *models.Invoice
	IsNew   bool
}

type getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

// Upsert creates or updates an invoice keyed on (tenant_id, invoice_ref).
// The purchase_ref is always taken from the request, so re-ingestion can
// repoint an invoice at a different order.
func (r *Repository) Upsert(ctx context.Context, tenantID string, request *models.UpsertInvoiceRequest) (*UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.Upsert")
	defer span.End()

	return r.upsert(ctx, r.db, tenantID, request)
}

func (r *Repository) upsert(ctx context.Context, q getter, tenantID string, request *models.UpsertInvoiceRequest) (*UpsertResult, error) {
	now := time.Now().UTC()
	id := uuid.New().String()

	query := `
		WITH upsert AS (
			INSERT INTO invoices (id, tenant_id, invoice_ref, purchase_ref, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (tenant_id, invoice_ref)
			DO UPDATE SET
				purchase_ref = EXCLUDED.purchase_ref,
				updated_at = EXCLUDED.updated_at
			RETURNING id, tenant_id, invoice_ref, purchase_ref, created_at, updated_at, (xmax = 0) AS inserted
		)
		SELECT * FROM upsert
	`

	var result struct {
		models.Invoice
		Inserted bool `db:"inserted"`
	}

	if err := q.GetContext(ctx, &result, query, id, tenantID, request.InvoiceRef, request.PurchaseRef, now, now); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "invoice_ref": request.InvoiceRef}).Error("Failed to upsert invoice")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert invoice")
	}

	if result.Inserted {
		r.logger.WithContext(ctx).WithFields(map[string]any{"id": result.ID, "invoice_ref": request.InvoiceRef}).Info("Created invoice")
	}
	return &UpsertResult{Invoice: &result.Invoice, IsNew: result.Inserted}, nil
}

// BatchUpsert upserts invoices in chunks, each chunk in its own transaction.
// A failed chunk rolls back alone and the error is returned after the
// remaining chunks have been attempted.
func (r *Repository) BatchUpsert(ctx context.Context, tenantID string, requests []models.UpsertInvoiceRequest) ([]UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.BatchUpsert")
	defer span.End()

	results := make([]UpsertResult, 0, len(requests))
	var firstErr error
	for start := 0; start < len(requests); start += r.chunkSize {
		end := min(start+r.chunkSize, len(requests))

		chunkResults, err := r.upsertChunk(ctx, tenantID, requests[start:end])
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "chunk_start": start}).Error("Failed to upsert invoice chunk")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, chunkResults...)
	}
	return results, firstErr
}

func (r *Repository) upsertChunk(ctx context.Context, tenantID string, requests []models.UpsertInvoiceRequest) ([]UpsertResult, error) {
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

// GetByRef retrieves an invoice by its reference
func (r *Repository) GetByRef(ctx context.Context, tenantID, invoiceRef string) (*models.Invoice, error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.GetByRef")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "invoice_ref", "purchase_ref", "created_at", "updated_at")
	sb.From("invoices")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("invoice_ref", invoiceRef),
	)

	query, args := sb.Build()
	var invoice models.Invoice
	if err := r.db.GetContext(ctx, &invoice, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "invoice_ref": invoiceRef}).Error("Failed to get invoice")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get invoice")
	}
	return &invoice, nil
}

// ListByPurchaseRef retrieves all invoices pointing at a purchase order
func (r *Repository) ListByPurchaseRef(ctx context.Context, tenantID, purchaseRef string) ([]models.Invoice, error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.ListByPurchaseRef")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "invoice_ref", "purchase_ref", "created_at", "updated_at")
	sb.From("invoices")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("purchase_ref", purchaseRef),
	)

	query, args := sb.Build()
	var invoices []models.Invoice
	if err := r.db.SelectContext(ctx, &invoices, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "purchase_ref": purchaseRef}).Error("Failed to list invoices by purchase")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list invoices")
	}
	return invoices, nil
}

// ListByTenant retrieves all invoices for a tenant
func (r *Repository) ListByTenant(ctx context.Context, tenantID string) ([]models.Invoice, error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.ListByTenant")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "invoice_ref", "purchase_ref", "created_at", "updated_at")
	sb.From("invoices")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var invoices []models.Invoice
	if err := r.db.SelectContext(ctx, &invoices, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID}).Error("Failed to list invoices")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list invoices")
	}
	return invoices, nil
}
