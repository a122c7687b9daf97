package handlers

import (
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/quay/internal/repositories/link"
	"github.com/Ramsey-B/quay/pkg/events"
	"github.com/Ramsey-B/quay/pkg/graph"
	"github.com/Ramsey-B/quay/pkg/models"
	"github.com/Ramsey-B/quay/pkg/utils"
)

// LinkHandler serves link reads and manual link management
type LinkHandler struct {
	links      *link.Repository
	emitter    *events.Emitter
	graphLinks *graph.LinkService
	logger     ectologger.Logger
}

// NewLinkHandler creates a new link handler. The emitter and graph service
// are optional.
func NewLinkHandler(links *link.Repository, emitter *events.Emitter, graphLinks *graph.LinkService, logger ectologger.Logger) *LinkHandler {
	return &LinkHandler{
		links:      links,
		emitter:    emitter,
		graphLinks: graphLinks,
		logger:     logger,
	}
}

// CreateLinkBody is the request body for manually linking a pair
type CreateLinkBody struct {
	OrderID     string `json:"order_id" validate:"required,uuid"`
	ContainerID string `json:"container_id" validate:"required,uuid"`
	Reason      string `json:"reason,omitempty"`
}

// List returns all links for the tenant
// GET /api/v1/links
func (h *LinkHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := TenantID(c)
	if err != nil {
		return err
	}

	links, err := h.links.ListByTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, links)
}

// Create links an order to a container. Without an explicit reason the link
// is recorded as a manual one.
// POST /api/v1/links
func (h *LinkHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := TenantID(c)
	if err != nil {
		return err
	}

	body, err := utils.BindRequest[CreateLinkBody](c)
	if err != nil {
		return err
	}

	reason := models.LinkReasonManual
	if body.Reason != "" {
		reason = models.LinkReason(body.Reason)
		if err := reason.Validate(); err != nil {
			return BadRequest(err.Error())
		}
	}

	result, err := h.links.Link(ctx, tenantID, &models.CreateLinkRequest{
		OrderID:     body.OrderID,
		ContainerID: body.ContainerID,
		Reason:      reason,
	})
	if err != nil {
		return err
	}

	if h.emitter != nil {
		if emitErr := h.emitter.EmitLinkCreated(ctx, result.Link, result.IsNew); emitErr != nil {
			h.logger.WithContext(ctx).WithError(emitErr).Warn("Failed to emit link event")
		}
	}

	status := http.StatusOK
	if result.IsNew {
		status = http.StatusCreated
	}
	return c.JSON(status, result.Link)
}

// Delete removes the link between an order and a container
// DELETE /api/v1/links/:orderID/:containerID
func (h *LinkHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := TenantID(c)
	if err != nil {
		return err
	}

	orderID := c.Param("orderID")
	containerID := c.Param("containerID")

	removed, err := h.links.Unlink(ctx, tenantID, orderID, containerID)
	if err != nil {
		return err
	}
	if !removed {
		return NotFound("no link between order %s and container %s", orderID, containerID)
	}

	linkID := link.ComputeID(tenantID, orderID, containerID)

	if h.graphLinks != nil {
		if graphErr := h.graphLinks.RemoveLink(ctx, tenantID, linkID); graphErr != nil {
			h.logger.WithContext(ctx).WithError(graphErr).Warn("Failed to remove link from graph")
		}
	}
	if h.emitter != nil {
		if emitErr := h.emitter.EmitLinkDeleted(ctx, tenantID, linkID, orderID, containerID); emitErr != nil {
			h.logger.WithContext(ctx).WithError(emitErr).Warn("Failed to emit link.deleted event")
		}
	}

	return c.NoContent(http.StatusNoContent)
}

// RegisterRoutes registers the link routes
func (h *LinkHandler) RegisterRoutes(g *echo.Group) {
	links := g.Group("/links")
	links.GET("", h.List)
	links.POST("", h.Create)
	links.DELETE("/:orderID/:containerID", h.Delete)
}
