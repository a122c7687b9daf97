// Package refs defines the validated reference identifiers shared by
// notifications, persistence, and the linking engine. A reference that fails
// validation never reaches the database.
package refs

import (
	"fmt"
	"strings"
)

type TenantID string

type BookingRef string

type PurchaseRef string

type InvoiceRef string

// ContainerRef is an ISO 6346 container number: a three letter owner code, an
// equipment category letter, a six digit serial and a check digit.
type ContainerRef string

func NewTenantID(s string) (TenantID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("tenant id must not be blank")
	}
	return TenantID(s), nil
}

func NewBookingRef(s string) (BookingRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("booking reference must not be blank")
	}
	return BookingRef(s), nil
}

func NewPurchaseRef(s string) (PurchaseRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("purchase reference must not be blank")
	}
	return PurchaseRef(s), nil
}

func NewInvoiceRef(s string) (InvoiceRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("invoice reference must not be blank")
	}
	return InvoiceRef(s), nil
}

func NewContainerRef(s string) (ContainerRef, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if err := validateContainerRef(s); err != nil {
		return "", err
	}
	return ContainerRef(s), nil
}

func (t TenantID) String() string    { return string(t) }
func (b BookingRef) String() string  { return string(b) }
func (p PurchaseRef) String() string { return string(p) }
func (i InvoiceRef) String() string  { return string(i) }
func (c ContainerRef) String() string { return string(c) }

// letterValues maps A-Z to the ISO 6346 numeric values, which skip every
// multiple of 11 (11, 22, 33).
var letterValues = map[byte]int{
	'A': 10, 'B': 12, 'C': 13, 'D': 14, 'E': 15, 'F': 16, 'G': 17,
	'H': 18, 'I': 19, 'J': 20, 'K': 21, 'L': 23, 'M': 24, 'N': 25,
	'O': 26, 'P': 27, 'Q': 28, 'R': 29, 'S': 30, 'T': 31, 'U': 32,
	'V': 34, 'W': 35, 'X': 36, 'Y': 37, 'Z': 38,
}

func validateContainerRef(s string) error {
	if len(s) != 11 {
		return fmt.Errorf("container reference %q must be 11 characters", s)
	}
	for i := 0; i < 4; i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return fmt.Errorf("container reference %q must start with four letters", s)
		}
	}
	for i := 4; i < 11; i++ {
		if s[i] < '0' || s[i] > '9' {
			return fmt.Errorf("container reference %q must end with seven digits", s)
		}
	}

	expected := CheckDigit(s[:10])
	actual := int(s[10] - '0')
	if expected != actual {
		return fmt.Errorf("container reference %q has check digit %d, expected %d", s, actual, expected)
	}
	return nil
}

// CheckDigit computes the ISO 6346 check digit for the first ten characters
// of a container number. Each character value is weighted by 2^position, the
// sum is taken modulo 11 and a result of 10 wraps to 0.
func CheckDigit(s string) int {
	sum := 0
	weight := 1
	for i := 0; i < len(s) && i < 10; i++ {
		c := s[i]
		var v int
		if c >= '0' && c <= '9' {
			v = int(c - '0')
		} else {
			v = letterValues[c]
		}
		sum += v * weight
		weight *= 2
	}
	return (sum % 11) % 10
}
