package handlers

import (
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/quay/internal/repositories/invoice"
	"github.com/Ramsey-B/quay/internal/repositories/link"
	"github.com/Ramsey-B/quay/internal/repositories/order"
)

// OrderHandler serves order reads
type OrderHandler struct {
	orders   *order.Repository
	invoices *invoice.Repository
	links    *link.Repository
	logger   ectologger.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orders *order.Repository, invoices *invoice.Repository, links *link.Repository, logger ectologger.Logger) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		invoices: invoices,
		links:    links,
		logger:   logger,
	}
}

// List returns all orders for the tenant
// GET /api/v1/orders
func (h *OrderHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := TenantID(c)
	if err != nil {
		return err
	}

	orders, err := h.orders.ListByTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, orders)
}

// Get returns an order by purchase reference
// GET /api/v1/orders/:purchaseRef
func (h *OrderHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := TenantID(c)
	if err != nil {
		return err
	}

	purchaseRef := c.Param("purchaseRef")
	o, err := h.orders.GetByRef(ctx, tenantID, purchaseRef)
	if err != nil {
		return err
	}
	if o == nil {
		return NotFound("order %s not found", purchaseRef)
	}

	return c.JSON(http.StatusOK, o)
}

// Containers returns the links from an order to its containers
// GET /api/v1/orders/:purchaseRef/containers
func (h *OrderHandler) Containers(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := TenantID(c)
	if err != nil {
		return err
	}

	links, err := h.links.ContainersForPurchaseRef(ctx, tenantID, c.Param("purchaseRef"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, links)
}

// Invoices returns the invoices pointing at an order
// GET /api/v1/orders/:purchaseRef/invoices
func (h *OrderHandler) Invoices(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := TenantID(c)
	if err != nil {
		return err
	}

	invoices, err := h.invoices.ListByPurchaseRef(ctx, tenantID, c.Param("purchaseRef"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, invoices)
}

// RegisterRoutes registers the order routes
func (h *OrderHandler) RegisterRoutes(g *echo.Group) {
	orders := g.Group("/orders")
	orders.GET("", h.List)
	orders.GET("/:purchaseRef", h.Get)
	orders.GET("/:purchaseRef/containers", h.Containers)
	orders.GET("/:purchaseRef/invoices", h.Invoices)
}
