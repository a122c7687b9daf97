package integration

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/quay/internal/repositories/booking"
	"github.com/Ramsey-B/quay/internal/repositories/container"
	"github.com/Ramsey-B/quay/internal/repositories/invoice"
	"github.com/Ramsey-B/quay/internal/repositories/link"
	"github.com/Ramsey-B/quay/internal/repositories/order"
	"github.com/Ramsey-B/quay/pkg/database"
	"github.com/Ramsey-B/quay/pkg/linking"
	"github.com/Ramsey-B/quay/pkg/models"
)

// testContext holds shared test context
type testContext struct {
	db         database.DB
	bookings   *booking.Repository
	orders     *order.Repository
	containers *container.Repository
	invoices   *invoice.Repository
	links      *link.Repository
	engine     *linking.Engine
	ctx        context.Context
	tenantID   string
}

// setupTestContext initializes the test context
// In real tests, this would connect to a test database
func setupTestContext(t *testing.T) *testContext {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tc := &testContext{
		ctx:      context.Background(),
		tenantID: "test-tenant-" + uuid.New().String()[:8],
	}

	// Note: In real tests, you'd initialize DB connection here
	// tc.db = database.NewDatabaseInstance(sqlxDB, logger)
	// tc.bookings = booking.NewRepository(tc.db, logger)
	// tc.engine = linking.NewEngine(logger, tc.bookings, ...)

	return tc
}

// TestBookingReconciliationAcrossMessages verifies that entities arriving in
// separate messages under the same booking end up fully cross-linked.
func TestBookingReconciliationAcrossMessages(t *testing.T) {
	tc := setupTestContext(t)
	if tc.db == nil {
		t.Skip("Database not configured")
	}

	bookingRef := "BK-" + uuid.New().String()[:8]

	// First message: the booking and one order
	_, err := tc.engine.Process(tc.ctx, tc.tenantID, &models.NotificationPayload{
		Booking: strPtr(bookingRef),
		Orders:  []models.NotificationOrder{{Purchase: "PO-1001"}},
	})
	require.NoError(t, err)

	// Second message: two containers under the same booking, no orders
	result, err := tc.engine.Process(tc.ctx, tc.tenantID, &models.NotificationPayload{
		Booking:    strPtr(bookingRef),
		Containers: []models.NotificationContainer{{Container: "CSQU3054383"}, {Container: "MSKU0000006"}},
	})
	require.NoError(t, err)

	// Reconciliation links the earlier order to both new containers
	assert.Len(t, result.Links, 2)
	for _, l := range result.Links {
		assert.Equal(t, models.LinkReasonBookingMatch, l.Reason)
	}
}

// TestDuplicateMessageCreatesNoNewLinks verifies processing the same payload
// twice leaves the link set unchanged.
func TestDuplicateMessageCreatesNoNewLinks(t *testing.T) {
	tc := setupTestContext(t)
	if tc.db == nil {
		t.Skip("Database not configured")
	}

	payload := &models.NotificationPayload{
		Booking:    strPtr("BK-" + uuid.New().String()[:8]),
		Orders:     []models.NotificationOrder{{Purchase: "PO-2001"}},
		Containers: []models.NotificationContainer{{Container: "TEMU1234565"}},
	}

	first, err := tc.engine.Process(tc.ctx, tc.tenantID, payload)
	require.NoError(t, err)
	assert.Equal(t, 1, first.NewLinks)

	second, err := tc.engine.Process(tc.ctx, tc.tenantID, payload)
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewLinks)
	assert.Len(t, second.Links, 1)
}

// TestManualLinkSurvivesMigrationReplay verifies a manual link is not demoted
// when the same pair is replayed at migration confidence.
func TestManualLinkSurvivesMigrationReplay(t *testing.T) {
	tc := setupTestContext(t)
	if tc.db == nil {
		t.Skip("Database not configured")
	}

	// Seed an order and a container without a booking
	result, err := tc.engine.Process(tc.ctx, tc.tenantID, &models.NotificationPayload{
		Orders:     []models.NotificationOrder{{Purchase: "PO-3001"}},
		Containers: []models.NotificationContainer{{Container: "CSQU3054383"}},
	})
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)
	require.Len(t, result.Containers, 1)

	orderID := result.Orders[0].ID
	containerID := result.Containers[0].ID

	manual, err := tc.links.Link(tc.ctx, tc.tenantID, &models.CreateLinkRequest{
		OrderID:     orderID,
		ContainerID: containerID,
		Reason:      models.LinkReasonManual,
	})
	require.NoError(t, err)
	assert.Equal(t, models.LinkReasonManual, manual.Link.Reason)

	// Replaying the original message links at migration confidence, which
	// must lose to the manual link
	_, err = tc.engine.Process(tc.ctx, tc.tenantID, &models.NotificationPayload{
		Orders:     []models.NotificationOrder{{Purchase: "PO-3001"}},
		Containers: []models.NotificationContainer{{Container: "CSQU3054383"}},
	})
	require.NoError(t, err)

	links, err := tc.links.ContainersForOrder(tc.ctx, tc.tenantID, orderID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, models.LinkReasonManual, links[0].Reason)
}

func strPtr(s string) *string {
	return &s
}
