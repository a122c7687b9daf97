package models

import (
	"fmt"

	"github.com/Ramsey-B/quay/pkg/refs"
)

// Normalize validates every reference in the payload and rewrites them to
// their canonical form (trimmed, container numbers uppercased). Payloads that
// fail here will fail identically on every retry.
func (p *NotificationPayload) Normalize() error {
	if p.Booking != nil {
		ref, err := refs.NewBookingRef(*p.Booking)
		if err != nil {
			return fmt.Errorf("invalid booking ref: %w", err)
		}
		normalized := ref.String()
		p.Booking = &normalized
	}

	for i := range p.Orders {
		ref, err := refs.NewPurchaseRef(p.Orders[i].Purchase)
		if err != nil {
			return fmt.Errorf("invalid purchase ref: %w", err)
		}
		p.Orders[i].Purchase = ref.String()

		for j := range p.Orders[i].Invoices {
			invoiceRef, err := refs.NewInvoiceRef(p.Orders[i].Invoices[j].Invoice)
			if err != nil {
				return fmt.Errorf("invalid invoice ref: %w", err)
			}
			p.Orders[i].Invoices[j].Invoice = invoiceRef.String()
		}
	}

	for i := range p.Containers {
		ref, err := refs.NewContainerRef(p.Containers[i].Container)
		if err != nil {
			return fmt.Errorf("invalid container ref: %w", err)
		}
		p.Containers[i].Container = ref.String()
	}

	if p.Booking == nil && len(p.Orders) == 0 && len(p.Containers) == 0 {
		return fmt.Errorf("payload carries no entities")
	}

	return nil
}
