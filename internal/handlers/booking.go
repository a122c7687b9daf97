package handlers

import (
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/quay/internal/repositories/booking"
	"github.com/Ramsey-B/quay/internal/repositories/container"
	"github.com/Ramsey-B/quay/internal/repositories/order"
	"github.com/Ramsey-B/quay/pkg/models"
)

// BookingHandler serves booking reads
type BookingHandler struct {
	bookings   *booking.Repository
	orders     *order.Repository
	containers *container.Repository
	logger     ectologger.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookings *booking.Repository, orders *order.Repository, containers *container.Repository, logger ectologger.Logger) *BookingHandler {
	return &BookingHandler{
		bookings:   bookings,
		orders:     orders,
		containers: containers,
		logger:     logger,
	}
}

// BookingDetail is a booking with everything stored under it
type BookingDetail struct {
	Booking    *models.Booking    `json:"booking"`
	Orders     []models.Order     `json:"orders"`
	Containers []models.Container `json:"containers"`
}

// List returns all bookings for the tenant
// GET /api/v1/bookings
func (h *BookingHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := TenantID(c)
	if err != nil {
		return err
	}

	bookings, err := h.bookings.ListByTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, bookings)
}

// Get returns a booking with its orders and containers
// GET /api/v1/bookings/:bookingRef
func (h *BookingHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := TenantID(c)
	if err != nil {
		return err
	}

	bookingRef := c.Param("bookingRef")
	b, err := h.bookings.GetByRef(ctx, tenantID, bookingRef)
	if err != nil {
		return err
	}
	if b == nil {
		return NotFound("booking %s not found", bookingRef)
	}

	orders, err := h.orders.ListByBookingRef(ctx, tenantID, bookingRef)
	if err != nil {
		return err
	}
	containers, err := h.containers.ListByBookingRef(ctx, tenantID, bookingRef)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, BookingDetail{
		Booking:    b,
		Orders:     orders,
		Containers: containers,
	})
}

// RegisterRoutes registers the booking routes
func (h *BookingHandler) RegisterRoutes(g *echo.Group) {
	bookings := g.Group("/bookings")
	bookings.GET("", h.List)
	bookings.GET("/:bookingRef", h.Get)
}
