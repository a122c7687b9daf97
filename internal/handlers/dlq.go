package handlers

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/quay/pkg/context"
	"github.com/Ramsey-B/quay/pkg/models"
	"github.com/Ramsey-B/quay/pkg/redis"
)

// DLQHandler handles dead letter queue API requests
type DLQHandler struct {
	dlq     *redis.DeadLetterQueue
	streams *redis.Streams
	queue   string
	logger  ectologger.Logger
}

// NewDLQHandler creates a new DLQ handler
func NewDLQHandler(
	dlq *redis.DeadLetterQueue,
	streams *redis.Streams,
	queue string,
	logger ectologger.Logger,
) *DLQHandler {
	return &DLQHandler{
		dlq:     dlq,
		streams: streams,
		queue:   queue,
		logger:  logger,
	}
}

// DLQListResponse represents the response for listing DLQ records
type DLQListResponse struct {
	Records []models.DeadLetterRecord `json:"records"`
	Count   int                       `json:"count"`
	Total   int64                     `json:"total"`
}

// List returns dead letter queue records
// GET /api/v1/dlq
func (h *DLQHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	countStr := c.QueryParam("count")
	count := int64(100)
	if countStr != "" {
		if parsed, err := strconv.ParseInt(countStr, 10, 64); err == nil && parsed > 0 {
			count = parsed
		}
	}

	tenantID := appctx.GetTenantID(ctx)
	var records []models.DeadLetterRecord
	var err error

	if tenantID != "" {
		records, err = h.dlq.ListByTenant(ctx, tenantID, count)
	} else {
		records, err = h.dlq.List(ctx, count)
	}

	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to list DLQ records")
		return err
	}

	total, _ := h.dlq.Count(ctx)

	return c.JSON(http.StatusOK, DLQListResponse{
		Records: records,
		Count:   len(records),
		Total:   total,
	})
}

// Get returns a specific DLQ record
// GET /api/v1/dlq/:id
func (h *DLQHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	messageID := c.Param("id")

	record, err := h.dlq.Get(ctx, messageID)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to get DLQ record")
		return err
	}

	if record == nil {
		return NotFound("DLQ record %s not found", messageID)
	}

	return c.JSON(http.StatusOK, record)
}

// Retry re-enqueues a dead-lettered message
// POST /api/v1/dlq/:id/retry
func (h *DLQHandler) Retry(c echo.Context) error {
	ctx := c.Request().Context()
	messageID := c.Param("id")

	if err := h.dlq.Retry(ctx, messageID, h.streams, h.queue); err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to retry DLQ record")
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status":  "retried",
		"message": "Message re-enqueued successfully",
	})
}

// Delete removes a DLQ record
// DELETE /api/v1/dlq/:id
func (h *DLQHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	messageID := c.Param("id")

	if err := h.dlq.Delete(ctx, messageID); err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to delete DLQ record")
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// Stats returns DLQ statistics
// GET /api/v1/dlq/stats
func (h *DLQHandler) Stats(c echo.Context) error {
	ctx := c.Request().Context()

	count, err := h.dlq.Count(ctx)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to get DLQ stats")
		return err
	}

	return c.JSON(http.StatusOK, map[string]int64{
		"total_records": count,
	})
}

// RegisterRoutes registers the DLQ routes
func (h *DLQHandler) RegisterRoutes(g *echo.Group) {
	dlq := g.Group("/dlq")
	dlq.GET("", h.List)
	dlq.GET("/stats", h.Stats)
	dlq.GET("/:id", h.Get)
	dlq.POST("/:id/retry", h.Retry)
	dlq.DELETE("/:id", h.Delete)
}
