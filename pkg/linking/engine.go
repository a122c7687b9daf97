// Package linking implements progressive order-container linking
package linking

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/quay/internal/repositories/booking"
	"github.com/Ramsey-B/quay/internal/repositories/container"
	"github.com/Ramsey-B/quay/internal/repositories/invoice"
	"github.com/Ramsey-B/quay/internal/repositories/link"
	"github.com/Ramsey-B/quay/internal/repositories/order"
	"github.com/Ramsey-B/quay/pkg/events"
	"github.com/Ramsey-B/quay/pkg/graph"
	"github.com/Ramsey-B/quay/pkg/metrics"
	"github.com/Ramsey-B/quay/pkg/models"
	"github.com/Ramsey-B/quay/pkg/tracing"
)

// BookingStore persists bookings
type BookingStore interface {
	Upsert(ctx context.Context, tenantID, bookingRef string) (*booking.UpsertResult, error)
}

// OrderStore persists orders and resolves them by booking
type OrderStore interface {
	BatchUpsert(ctx context.Context, tenantID string, requests []models.UpsertOrderRequest) ([]order.UpsertResult, error)
	ListByBookingRef(ctx context.Context, tenantID, bookingRef string) ([]models.Order, error)
}

// ContainerStore persists containers and resolves them by booking
type ContainerStore interface {
	BatchUpsert(ctx context.Context, tenantID string, requests []models.UpsertContainerRequest) ([]container.UpsertResult, error)
	ListByBookingRef(ctx context.Context, tenantID, bookingRef string) ([]models.Container, error)
}

// InvoiceStore persists invoices
type InvoiceStore interface {
	BatchUpsert(ctx context.Context, tenantID string, requests []models.UpsertInvoiceRequest) ([]invoice.UpsertResult, error)
}

// LinkStore persists order-container links
type LinkStore interface {
	BatchLink(ctx context.Context, tenantID string, requests []models.CreateLinkRequest) ([]link.UpsertResult, error)
}

// Engine persists notification payloads and progressively links orders to
// containers. Processing the same payload twice, or payloads in any arrival
// order, converges on the same stored state.
type Engine struct {
	logger     ectologger.Logger
	bookings   BookingStore
	orders     OrderStore
	containers ContainerStore
	invoices   InvoiceStore
	links      LinkStore
	emitter    *events.Emitter
	graphLinks *graph.LinkService
}

// NewEngine creates a new linking engine. The emitter and graph service are
// optional; pass nil to disable those sinks.
func NewEngine(
	logger ectologger.Logger,
	bookings BookingStore,
	orders OrderStore,
	containers ContainerStore,
	invoices InvoiceStore,
	links LinkStore,
	emitter *events.Emitter,
	graphLinks *graph.LinkService,
) *Engine {
	return &Engine{
		logger:     logger,
		bookings:   bookings,
		orders:     orders,
		containers: containers,
		invoices:   invoices,
		links:      links,
		emitter:    emitter,
		graphLinks: graphLinks,
	}
}

// Result summarizes what a notification changed
type Result struct {
	Booking    *models.Booking
	Orders     []models.Order
	Containers []models.Container
	Invoices   []models.Invoice
	Links      []models.Link
	NewLinks   int
}

// Process persists every entity in the payload, then links orders to
// containers. When the payload names a booking, linking reconciles across
// everything stored under that booking, not just the entities in this
// message. Without a booking, the message's own orders and containers are
// linked pairwise at migration confidence.
func (e *Engine) Process(ctx context.Context, tenantID string, payload *models.NotificationPayload) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "linking.Engine.Process")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":       tenantID,
		"order_count":     len(payload.Orders),
		"container_count": len(payload.Containers),
	})

	result := &Result{}

	if payload.Booking != nil {
		bookingResult, err := e.bookings.Upsert(ctx, tenantID, *payload.Booking)
		if err != nil {
			return nil, err
		}
		result.Booking = bookingResult.Booking
	}

	if err := e.persistOrders(ctx, tenantID, payload, result); err != nil {
		return nil, err
	}
	if err := e.persistContainers(ctx, tenantID, payload, result); err != nil {
		return nil, err
	}

	if payload.Booking != nil {
		if err := e.reconcileBooking(ctx, tenantID, *payload.Booking, result); err != nil {
			return nil, err
		}
	} else {
		if err := e.linkPairs(ctx, tenantID, result.Orders, result.Containers, models.LinkReasonSystemMigration, result); err != nil {
			return nil, err
		}
	}

	log.WithFields(map[string]any{"link_count": len(result.Links), "new_links": result.NewLinks}).Info("Processed notification")
	return result, nil
}

func (e *Engine) persistOrders(ctx context.Context, tenantID string, payload *models.NotificationPayload, result *Result) error {
	if len(payload.Orders) == 0 {
		return nil
	}

	orderRequests := make([]models.UpsertOrderRequest, 0, len(payload.Orders))
	var invoiceRequests []models.UpsertInvoiceRequest
	for _, notificationOrder := range payload.Orders {
		orderRequests = append(orderRequests, models.UpsertOrderRequest{
			PurchaseRef: notificationOrder.Purchase,
			BookingRef:  payload.Booking,
		})
		for _, notificationInvoice := range notificationOrder.Invoices {
			invoiceRequests = append(invoiceRequests, models.UpsertInvoiceRequest{
				InvoiceRef:  notificationInvoice.Invoice,
				PurchaseRef: notificationOrder.Purchase,
			})
		}
	}

	orderResults, err := e.orders.BatchUpsert(ctx, tenantID, orderRequests)
	if err != nil {
		return err
	}
	for _, orderResult := range orderResults {
		result.Orders = append(result.Orders, *orderResult.Order)
		e.emitEntity(ctx, tenantID, orderResult.Order.ID, "order", orderResult.IsNew, orderResult.Order)
	}

	if len(invoiceRequests) == 0 {
		return nil
	}
	invoiceResults, err := e.invoices.BatchUpsert(ctx, tenantID, invoiceRequests)
	if err != nil {
		return err
	}
	for _, invoiceResult := range invoiceResults {
		result.Invoices = append(result.Invoices, *invoiceResult.Invoice)
		e.emitEntity(ctx, tenantID, invoiceResult.Invoice.ID, "invoice", invoiceResult.IsNew, invoiceResult.Invoice)
	}
	return nil
}

func (e *Engine) persistContainers(ctx context.Context, tenantID string, payload *models.NotificationPayload, result *Result) error {
	if len(payload.Containers) == 0 {
		return nil
	}

	containerRequests := make([]models.UpsertContainerRequest, 0, len(payload.Containers))
	for _, notificationContainer := range payload.Containers {
		containerRequests = append(containerRequests, models.UpsertContainerRequest{
			ContainerRef: notificationContainer.Container,
			BookingRef:   payload.Booking,
		})
	}

	containerResults, err := e.containers.BatchUpsert(ctx, tenantID, containerRequests)
	if err != nil {
		return err
	}
	for _, containerResult := range containerResults {
		result.Containers = append(result.Containers, *containerResult.Container)
		e.emitEntity(ctx, tenantID, containerResult.Container.ID, "container", containerResult.IsNew, containerResult.Container)
	}
	return nil
}

// reconcileBooking links every order stored under the booking to every
// container stored under it. The message's own entities are included because
// their upserts adopted the booking before this runs.
func (e *Engine) reconcileBooking(ctx context.Context, tenantID, bookingRef string, result *Result) error {
	ctx, span := tracing.StartSpan(ctx, "linking.Engine.reconcileBooking")
	defer span.End()

	orders, err := e.orders.ListByBookingRef(ctx, tenantID, bookingRef)
	if err != nil {
		return err
	}
	containers, err := e.containers.ListByBookingRef(ctx, tenantID, bookingRef)
	if err != nil {
		return err
	}

	return e.linkPairs(ctx, tenantID, orders, containers, models.LinkReasonBookingMatch, result)
}

func (e *Engine) linkPairs(ctx context.Context, tenantID string, orders []models.Order, containers []models.Container, reason models.LinkReason, result *Result) error {
	if len(orders) == 0 || len(containers) == 0 {
		return nil
	}

	requests := make([]models.CreateLinkRequest, 0, len(orders)*len(containers))
	ordersByID := make(map[string]*models.Order, len(orders))
	containersByID := make(map[string]*models.Container, len(containers))
	for i := range orders {
		ordersByID[orders[i].ID] = &orders[i]
		for j := range containers {
			requests = append(requests, models.CreateLinkRequest{
				OrderID:     orders[i].ID,
				ContainerID: containers[j].ID,
				Reason:      reason,
			})
		}
	}
	for j := range containers {
		containersByID[containers[j].ID] = &containers[j]
	}

	linkResults, err := e.links.BatchLink(ctx, tenantID, requests)
	for i := range linkResults {
		linkResult := &linkResults[i]
		result.Links = append(result.Links, *linkResult.Link)
		if linkResult.IsNew {
			result.NewLinks++
			metrics.RecordLinkCreated(string(linkResult.Link.Reason))
		}
		e.emitLink(ctx, linkResult.Link, linkResult.IsNew)
		e.syncGraph(ctx, ordersByID[linkResult.Link.OrderID], containersByID[linkResult.Link.ContainerID], linkResult.Link)
	}
	return err
}

// sink failures are logged but never fail ingestion
func (e *Engine) emitEntity(ctx context.Context, tenantID, entityID, entityType string, isNew bool, entity any) {
	if e.emitter == nil {
		return
	}
	if err := e.emitter.EmitEntityUpserted(ctx, tenantID, entityID, entityType, isNew, entity); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Warn("Failed to emit entity event")
	}
}

func (e *Engine) emitLink(ctx context.Context, l *models.Link, isNew bool) {
	if e.emitter == nil {
		return
	}
	if err := e.emitter.EmitLinkCreated(ctx, l, isNew); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"link_id": l.ID}).Warn("Failed to emit link event")
	}
}

func (e *Engine) syncGraph(ctx context.Context, o *models.Order, c *models.Container, l *models.Link) {
	if e.graphLinks == nil {
		return
	}
	if err := e.graphLinks.SyncLink(ctx, o, c, l); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"link_id": l.ID}).Warn("Failed to sync link to graph")
	}
}
