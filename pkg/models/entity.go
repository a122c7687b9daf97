package models

import "time"

// Booking is a carrier booking. Orders and containers reference it by
// booking_ref; it is the join point the linking engine reconciles against.
type Booking struct {
	ID         string    `json:"id" db:"id"`
	TenantID   string    `json:"tenant_id" db:"tenant_id"`
	BookingRef string    `json:"booking_ref" db:"booking_ref"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Order is a purchase order identified by purchase_ref within a tenant.
// BookingRef is nullable: orders frequently arrive before the booking that
// will carry them is known.
type Order struct {
	ID          string    `json:"id" db:"id"`
	TenantID    string    `json:"tenant_id" db:"tenant_id"`
	PurchaseRef string    `json:"purchase_ref" db:"purchase_ref"`
	BookingRef  *string   `json:"booking_ref,omitempty" db:"booking_ref"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Container is a shipping container identified by its ISO 6346 number.
type Container struct {
	ID           string    `json:"id" db:"id"`
	TenantID     string    `json:"tenant_id" db:"tenant_id"`
	ContainerRef string    `json:"container_ref" db:"container_ref"`
	BookingRef   *string   `json:"booking_ref,omitempty" db:"booking_ref"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Invoice belongs to exactly one purchase order. Re-ingestion may repoint it
// at a different purchase_ref.
type Invoice struct {
	ID          string    `json:"id" db:"id"`
	TenantID    string    `json:"tenant_id" db:"tenant_id"`
	InvoiceRef  string    `json:"invoice_ref" db:"invoice_ref"`
	PurchaseRef string    `json:"purchase_ref" db:"purchase_ref"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// UpsertOrderRequest carries the fields a notification may set on an order.
// A nil BookingRef leaves any stored booking reference untouched.
type UpsertOrderRequest struct {
	PurchaseRef string  `json:"purchase_ref" validate:"required"`
	BookingRef  *string `json:"booking_ref,omitempty"`
}

// UpsertContainerRequest carries the fields a notification may set on a
// container. A nil BookingRef leaves any stored booking reference untouched.
type UpsertContainerRequest struct {
	ContainerRef string  `json:"container_ref" validate:"required"`
	BookingRef   *string `json:"booking_ref,omitempty"`
}

// UpsertInvoiceRequest always repoints the invoice at PurchaseRef.
type UpsertInvoiceRequest struct {
	InvoiceRef  string `json:"invoice_ref" validate:"required"`
	PurchaseRef string `json:"purchase_ref" validate:"required"`
}
