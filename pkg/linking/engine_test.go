package linking

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/quay/internal/repositories/booking"
	"github.com/Ramsey-B/quay/internal/repositories/container"
	"github.com/Ramsey-B/quay/internal/repositories/invoice"
	"github.com/Ramsey-B/quay/internal/repositories/link"
	"github.com/Ramsey-B/quay/internal/repositories/order"
	"github.com/Ramsey-B/quay/pkg/models"
)

type state struct {
	bookings   map[string]*models.Booking
	orders     map[string]*models.Order
	containers map[string]*models.Container
	invoices   map[string]*models.Invoice
	links      map[string]*models.Link
}

func newState() *state {
	return &state{
		bookings:   map[string]*models.Booking{},
		orders:     map[string]*models.Order{},
		containers: map[string]*models.Container{},
		invoices:   map[string]*models.Invoice{},
		links:      map[string]*models.Link{},
	}
}

type fakeBookingStore struct{ s *state }

func (f *fakeBookingStore) Upsert(_ context.Context, tenantID, bookingRef string) (*booking.UpsertResult, error) {
	key := tenantID + "|" + bookingRef
	if existing, ok := f.s.bookings[key]; ok {
		return &booking.UpsertResult{Booking: existing, IsNew: false}, nil
	}
	b := &models.Booking{ID: uuid.NewString(), TenantID: tenantID, BookingRef: bookingRef, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	f.s.bookings[key] = b
	return &booking.UpsertResult{Booking: b, IsNew: true}, nil
}

type fakeOrderStore struct{ s *state }

func (f *fakeOrderStore) BatchUpsert(_ context.Context, tenantID string, requests []models.UpsertOrderRequest) ([]order.UpsertResult, error) {
	results := make([]order.UpsertResult, 0, len(requests))
	for _, request := range requests {
		key := tenantID + "|" + request.PurchaseRef
		if existing, ok := f.s.orders[key]; ok {
			if request.BookingRef != nil {
				existing.BookingRef = request.BookingRef
			}
			results = append(results, order.UpsertResult{Order: existing, IsNew: false})
			continue
		}
		o := &models.Order{ID: uuid.NewString(), TenantID: tenantID, PurchaseRef: request.PurchaseRef, BookingRef: request.BookingRef}
		f.s.orders[key] = o
		results = append(results, order.UpsertResult{Order: o, IsNew: true})
	}
	return results, nil
}

func (f *fakeOrderStore) ListByBookingRef(_ context.Context, tenantID, bookingRef string) ([]models.Order, error) {
	var out []models.Order
	for _, o := range f.s.orders {
		if o.TenantID == tenantID && o.BookingRef != nil && *o.BookingRef == bookingRef {
			out = append(out, *o)
		}
	}
	return out, nil
}

type fakeContainerStore struct{ s *state }

func (f *fakeContainerStore) BatchUpsert(_ context.Context, tenantID string, requests []models.UpsertContainerRequest) ([]container.UpsertResult, error) {
	results := make([]container.UpsertResult, 0, len(requests))
	for _, request := range requests {
		key := tenantID + "|" + request.ContainerRef
		if existing, ok := f.s.containers[key]; ok {
			if request.BookingRef != nil {
				existing.BookingRef = request.BookingRef
			}
			results = append(results, container.UpsertResult{Container: existing, IsNew: false})
			continue
		}
		c := &models.Container{ID: uuid.NewString(), TenantID: tenantID, ContainerRef: request.ContainerRef, BookingRef: request.BookingRef}
		f.s.containers[key] = c
		results = append(results, container.UpsertResult{Container: c, IsNew: true})
	}
	return results, nil
}

func (f *fakeContainerStore) ListByBookingRef(_ context.Context, tenantID, bookingRef string) ([]models.Container, error) {
	var out []models.Container
	for _, c := range f.s.containers {
		if c.TenantID == tenantID && c.BookingRef != nil && *c.BookingRef == bookingRef {
			out = append(out, *c)
		}
	}
	return out, nil
}

type fakeInvoiceStore struct{ s *state }

func (f *fakeInvoiceStore) BatchUpsert(_ context.Context, tenantID string, requests []models.UpsertInvoiceRequest) ([]invoice.UpsertResult, error) {
	results := make([]invoice.UpsertResult, 0, len(requests))
	for _, request := range requests {
		key := tenantID + "|" + request.InvoiceRef
		if existing, ok := f.s.invoices[key]; ok {
			existing.PurchaseRef = request.PurchaseRef
			results = append(results, invoice.UpsertResult{Invoice: existing, IsNew: false})
			continue
		}
		inv := &models.Invoice{ID: uuid.NewString(), TenantID: tenantID, InvoiceRef: request.InvoiceRef, PurchaseRef: request.PurchaseRef}
		f.s.invoices[key] = inv
		results = append(results, invoice.UpsertResult{Invoice: inv, IsNew: true})
	}
	return results, nil
}

type fakeLinkStore struct{ s *state }

func (f *fakeLinkStore) BatchLink(_ context.Context, tenantID string, requests []models.CreateLinkRequest) ([]link.UpsertResult, error) {
	results := make([]link.UpsertResult, 0, len(requests))
	for _, request := range requests {
		key := fmt.Sprintf("%s|%s|%s", tenantID, request.OrderID, request.ContainerID)
		confidence := request.Reason.Confidence()
		if existing, ok := f.s.links[key]; ok {
			if confidence >= existing.Confidence {
				existing.Reason = request.Reason
				existing.Confidence = confidence
			}
			results = append(results, link.UpsertResult{Link: existing, IsNew: false})
			continue
		}
		l := &models.Link{
			ID:          link.ComputeID(tenantID, request.OrderID, request.ContainerID),
			TenantID:    tenantID,
			OrderID:     request.OrderID,
			ContainerID: request.ContainerID,
			Reason:      request.Reason,
			Confidence:  confidence,
		}
		f.s.links[key] = l
		results = append(results, link.UpsertResult{Link: l, IsNew: true})
	}
	return results, nil
}

func newTestEngine(s *state) *Engine {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewEngine(
		logger,
		&fakeBookingStore{s},
		&fakeOrderStore{s},
		&fakeContainerStore{s},
		&fakeInvoiceStore{s},
		&fakeLinkStore{s},
		nil,
		nil,
	)
}

func strPtr(s string) *string { return &s }

func TestProcessLinksEverythingUnderBooking(t *testing.T) {
	s := newState()
	engine := newTestEngine(s)

	payload := &models.NotificationPayload{
		Booking: strPtr("BK-100"),
		Orders: []models.NotificationOrder{
			{Purchase: "PO-1"},
			{Purchase: "PO-2"},
		},
		Containers: []models.NotificationContainer{
			{Container: "CSQU3054383"},
			{Container: "MSKU0000006"},
			{Container: "TEMU1234565"},
		},
	}

	result, err := engine.Process(context.Background(), "tenant-1", payload)
	require.NoError(t, err)

	assert.NotNil(t, result.Booking)
	assert.Len(t, result.Orders, 2)
	assert.Len(t, result.Containers, 3)
	assert.Equal(t, 6, result.NewLinks)
	assert.Len(t, s.links, 6)
	for _, l := range s.links {
		assert.Equal(t, models.LinkReasonBookingMatch, l.Reason)
		assert.Equal(t, 1.00, l.Confidence)
	}
}

func TestProcessIsIdempotent(t *testing.T) {
	s := newState()
	engine := newTestEngine(s)

	payload := &models.NotificationPayload{
		Booking:    strPtr("BK-100"),
		Orders:     []models.NotificationOrder{{Purchase: "PO-1"}},
		Containers: []models.NotificationContainer{{Container: "CSQU3054383"}},
	}

	first, err := engine.Process(context.Background(), "tenant-1", payload)
	require.NoError(t, err)
	assert.Equal(t, 1, first.NewLinks)

	second, err := engine.Process(context.Background(), "tenant-1", payload)
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewLinks)
	assert.Len(t, s.links, 1)
}

func TestProcessConvergesRegardlessOfArrivalOrder(t *testing.T) {
	ordersFirst := &models.NotificationPayload{
		Booking: strPtr("BK-200"),
		Orders:  []models.NotificationOrder{{Purchase: "PO-1"}, {Purchase: "PO-2"}, {Purchase: "PO-3"}},
	}
	containersFirst := &models.NotificationPayload{
		Booking:    strPtr("BK-200"),
		Containers: []models.NotificationContainer{{Container: "CSQU3054383"}, {Container: "MSKU0000006"}},
	}

	run := func(payloads ...*models.NotificationPayload) *state {
		s := newState()
		engine := newTestEngine(s)
		for _, p := range payloads {
			_, err := engine.Process(context.Background(), "tenant-1", p)
			require.NoError(t, err)
		}
		return s
	}

	forward := run(ordersFirst, containersFirst)
	reverse := run(containersFirst, ordersFirst)

	require.Len(t, forward.links, 6)
	require.Len(t, reverse.links, 6)
	for _, s := range []*state{forward, reverse} {
		for _, l := range s.links {
			assert.Equal(t, models.LinkReasonBookingMatch, l.Reason)
			assert.Equal(t, 1.00, l.Confidence)
		}
	}
}

func TestProcessWithoutBookingLinksAtMigrationConfidence(t *testing.T) {
	s := newState()
	engine := newTestEngine(s)

	payload := &models.NotificationPayload{
		Orders:     []models.NotificationOrder{{Purchase: "PO-1"}, {Purchase: "PO-2"}},
		Containers: []models.NotificationContainer{{Container: "CSQU3054383"}, {Container: "MSKU0000006"}, {Container: "TEMU1234565"}},
	}

	result, err := engine.Process(context.Background(), "tenant-1", payload)
	require.NoError(t, err)

	assert.Equal(t, 6, result.NewLinks)
	for _, l := range s.links {
		assert.Equal(t, models.LinkReasonSystemMigration, l.Reason)
		assert.Equal(t, 0.35, l.Confidence)
	}
}

func TestProcessUpgradesLinkConfidence(t *testing.T) {
	s := newState()
	engine := newTestEngine(s)

	noBooking := &models.NotificationPayload{
		Orders:     []models.NotificationOrder{{Purchase: "PO-1"}},
		Containers: []models.NotificationContainer{{Container: "CSQU3054383"}},
	}
	_, err := engine.Process(context.Background(), "tenant-1", noBooking)
	require.NoError(t, err)
	require.Len(t, s.links, 1)
	for _, l := range s.links {
		require.Equal(t, models.LinkReasonSystemMigration, l.Reason)
	}

	withBooking := &models.NotificationPayload{
		Booking:    strPtr("BK-300"),
		Orders:     []models.NotificationOrder{{Purchase: "PO-1"}},
		Containers: []models.NotificationContainer{{Container: "CSQU3054383"}},
	}
	_, err = engine.Process(context.Background(), "tenant-1", withBooking)
	require.NoError(t, err)

	assert.Len(t, s.links, 1)
	for _, l := range s.links {
		assert.Equal(t, models.LinkReasonBookingMatch, l.Reason)
		assert.Equal(t, 1.00, l.Confidence)
	}
}

func TestProcessDoesNotDemoteLinkConfidence(t *testing.T) {
	s := newState()
	engine := newTestEngine(s)

	withBooking := &models.NotificationPayload{
		Booking:    strPtr("BK-400"),
		Orders:     []models.NotificationOrder{{Purchase: "PO-1"}},
		Containers: []models.NotificationContainer{{Container: "CSQU3054383"}},
	}
	_, err := engine.Process(context.Background(), "tenant-1", withBooking)
	require.NoError(t, err)

	// same pair again without a booking; the nil booking_ref leaves the
	// stored booking intact so reconciliation still wins
	noBooking := &models.NotificationPayload{
		Orders:     []models.NotificationOrder{{Purchase: "PO-1"}},
		Containers: []models.NotificationContainer{{Container: "CSQU3054383"}},
	}
	_, err = engine.Process(context.Background(), "tenant-1", noBooking)
	require.NoError(t, err)

	assert.Len(t, s.links, 1)
	for _, l := range s.links {
		assert.Equal(t, models.LinkReasonBookingMatch, l.Reason)
		assert.Equal(t, 1.00, l.Confidence)
	}
}

func TestProcessBookingOnlyMessageReconcilesExistingEntities(t *testing.T) {
	s := newState()
	engine := newTestEngine(s)

	seedOrders := &models.NotificationPayload{
		Booking: strPtr("BK-600"),
		Orders:  []models.NotificationOrder{{Purchase: "PO-1"}, {Purchase: "PO-2"}},
	}
	seedContainers := &models.NotificationPayload{
		Booking:    strPtr("BK-600"),
		Containers: []models.NotificationContainer{{Container: "CSQU3054383"}, {Container: "MSKU0000006"}},
	}
	_, err := engine.Process(context.Background(), "tenant-1", seedOrders)
	require.NoError(t, err)
	_, err = engine.Process(context.Background(), "tenant-1", seedContainers)
	require.NoError(t, err)
	require.Len(t, s.links, 4)

	// wipe the links so only the booking-only message can recreate them
	s.links = map[string]*models.Link{}

	bookingOnly := &models.NotificationPayload{Booking: strPtr("BK-600")}
	result, err := engine.Process(context.Background(), "tenant-1", bookingOnly)
	require.NoError(t, err)

	assert.Equal(t, 4, result.NewLinks)
	assert.Len(t, s.links, 4)
	for _, l := range s.links {
		assert.Equal(t, models.LinkReasonBookingMatch, l.Reason)
	}
}

func TestProcessWithoutInvoicesLeavesStoredInvoicesAlone(t *testing.T) {
	s := newState()
	engine := newTestEngine(s)

	withInvoices := &models.NotificationPayload{
		Orders: []models.NotificationOrder{{
			Purchase: "PO-1",
			Invoices: []models.NotificationInvoice{{Invoice: "INV-1"}, {Invoice: "INV-2"}},
		}},
	}
	_, err := engine.Process(context.Background(), "tenant-1", withInvoices)
	require.NoError(t, err)
	require.Len(t, s.invoices, 2)

	withoutInvoices := &models.NotificationPayload{
		Orders: []models.NotificationOrder{{Purchase: "PO-1"}},
	}
	_, err = engine.Process(context.Background(), "tenant-1", withoutInvoices)
	require.NoError(t, err)

	assert.Len(t, s.invoices, 2)
	for _, inv := range s.invoices {
		assert.Equal(t, "PO-1", inv.PurchaseRef)
	}
}

func TestProcessRepointsInvoice(t *testing.T) {
	s := newState()
	engine := newTestEngine(s)

	first := &models.NotificationPayload{
		Orders: []models.NotificationOrder{{Purchase: "PO-1", Invoices: []models.NotificationInvoice{{Invoice: "INV-1"}}}},
	}
	_, err := engine.Process(context.Background(), "tenant-1", first)
	require.NoError(t, err)

	second := &models.NotificationPayload{
		Orders: []models.NotificationOrder{{Purchase: "PO-2", Invoices: []models.NotificationInvoice{{Invoice: "INV-1"}}}},
	}
	_, err = engine.Process(context.Background(), "tenant-1", second)
	require.NoError(t, err)

	require.Len(t, s.invoices, 1)
	for _, inv := range s.invoices {
		assert.Equal(t, "PO-2", inv.PurchaseRef)
	}
}

func TestProcessIsolatesTenants(t *testing.T) {
	s := newState()
	engine := newTestEngine(s)

	payload := &models.NotificationPayload{
		Booking:    strPtr("BK-500"),
		Orders:     []models.NotificationOrder{{Purchase: "PO-1"}},
		Containers: []models.NotificationContainer{{Container: "CSQU3054383"}},
	}

	_, err := engine.Process(context.Background(), "tenant-1", payload)
	require.NoError(t, err)
	_, err = engine.Process(context.Background(), "tenant-2", payload)
	require.NoError(t, err)

	assert.Len(t, s.orders, 2)
	assert.Len(t, s.containers, 2)
	assert.Len(t, s.links, 2)
	for _, l := range s.links {
		o := findOrder(s, l.TenantID, "PO-1")
		require.NotNil(t, o)
		assert.Equal(t, o.ID, l.OrderID)
	}
}

func findOrder(s *state, tenantID, purchaseRef string) *models.Order {
	return s.orders[tenantID+"|"+purchaseRef]
}
