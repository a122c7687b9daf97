package handlers

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/quay/internal/repositories/container"
	"github.com/Ramsey-B/quay/internal/repositories/link"
	"github.com/Ramsey-B/quay/pkg/graph"
	"github.com/Ramsey-B/quay/pkg/refs"
)

// ContainerHandler serves container reads
type ContainerHandler struct {
	containers *container.Repository
	links      *link.Repository
	graphLinks *graph.LinkService
	logger     ectologger.Logger
}

// NewContainerHandler creates a new container handler. graphLinks is optional;
// pass nil when the graph mirror is disabled.
func NewContainerHandler(containers *container.Repository, links *link.Repository, graphLinks *graph.LinkService, logger ectologger.Logger) *ContainerHandler {
	return &ContainerHandler{
		containers: containers,
		links:      links,
		graphLinks: graphLinks,
		logger:     logger,
	}
}

// List returns all containers for the tenant
// GET /api/v1/containers
func (h *ContainerHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := TenantID(c)
	if err != nil {
		return err
	}

	containers, err := h.containers.ListByTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, containers)
}

// Get returns a container by its ISO 6346 number
// GET /api/v1/containers/:containerRef
func (h *ContainerHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := TenantID(c)
	if err != nil {
		return err
	}

	ref, err := refs.NewContainerRef(c.Param("containerRef"))
	if err != nil {
		return httperror.WrapError(http.StatusBadRequest, err)
	}

	found, err := h.containers.GetByRef(ctx, tenantID, ref.String())
	if err != nil {
		return err
	}
	if found == nil {
		return NotFound("container %s not found", ref.String())
	}

	return c.JSON(http.StatusOK, found)
}

// Orders returns the links from a container to its orders
// GET /api/v1/containers/:containerRef/orders
func (h *ContainerHandler) Orders(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := TenantID(c)
	if err != nil {
		return err
	}

	ref, err := refs.NewContainerRef(c.Param("containerRef"))
	if err != nil {
		return httperror.WrapError(http.StatusBadRequest, err)
	}

	links, err := h.links.OrdersForContainerRef(ctx, tenantID, ref.String())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, links)
}

// GraphOrders returns the order IDs linked to a container according to the
// graph mirror. Useful for spotting drift between Postgres and the graph.
// GET /api/v1/containers/:containerRef/graph-orders
func (h *ContainerHandler) GraphOrders(c echo.Context) error {
	ctx := c.Request().Context()

	if h.graphLinks == nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "graph mirror is not enabled")
	}

	tenantID, err := TenantID(c)
	if err != nil {
		return err
	}

	ref, err := refs.NewContainerRef(c.Param("containerRef"))
	if err != nil {
		return httperror.WrapError(http.StatusBadRequest, err)
	}

	found, err := h.containers.GetByRef(ctx, tenantID, ref.String())
	if err != nil {
		return err
	}
	if found == nil {
		return NotFound("container %s not found", ref.String())
	}

	orderIDs, err := h.graphLinks.OrdersLinkedToContainer(ctx, tenantID, found.ID)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"container_id": found.ID}).Error("Failed to read linked orders from graph")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to read linked orders from graph")
	}
	if orderIDs == nil {
		orderIDs = []string{}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"container_id": found.ID,
		"order_ids":    orderIDs,
	})
}

// RegisterRoutes registers the container routes
func (h *ContainerHandler) RegisterRoutes(g *echo.Group) {
	containers := g.Group("/containers")
	containers.GET("", h.List)
	containers.GET("/:containerRef", h.Get)
	containers.GET("/:containerRef/orders", h.Orders)
	containers.GET("/:containerRef/graph-orders", h.GraphOrders)
}
