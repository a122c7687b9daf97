package link

import (
	"fmt"

	"github.com/google/uuid"
)

// linkNamespace seeds the deterministic link IDs. It must never change or
// every existing link would land under a new ID on re-ingestion.
var linkNamespace = uuid.MustParse("8f0be0f4-6f1e-4f9d-9c3a-2d9d54c8a1b7")

// ComputeID derives a stable UUID for an order-container pair. The same
// tenant, order, and container always yield the same ID, so replays and
// duplicate notifications converge on one row.
func ComputeID(tenantID, orderID, containerID string) string {
	return uuid.NewSHA1(linkNamespace, []byte(fmt.Sprintf("%s|%s|%s", tenantID, orderID, containerID))).String()
}
