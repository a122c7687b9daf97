package refs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContainerRef(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "valid reference",
			input: "CSQU3054383",
			want:  "CSQU3054383",
		},
		{
			name:  "valid reference with zero serial",
			input: "MSKU0000006",
			want:  "MSKU0000006",
		},
		{
			name:  "lowercase is normalized",
			input: "csqu3054383",
			want:  "CSQU3054383",
		},
		{
			name:  "surrounding whitespace is trimmed",
			input: "  CSQU3054383 ",
			want:  "CSQU3054383",
		},
		{
			name:    "wrong check digit",
			input:   "CSQU3054380",
			wantErr: true,
		},
		{
			name:    "too short",
			input:   "CSQU305438",
			wantErr: true,
		},
		{
			name:    "digits in owner code",
			input:   "CS1U3054383",
			wantErr: true,
		},
		{
			name:    "letters in serial",
			input:   "CSQUA054383",
			wantErr: true,
		},
		{
			name:    "blank",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := NewContainerRef(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ref.String())
		})
	}
}

func TestCheckDigit(t *testing.T) {
	tests := []struct {
		prefix string
		want   int
	}{
		{"CSQU305438", 3},
		{"MSKU000000", 6},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckDigit(tt.prefix))
		})
	}
}

func TestBlankRefsRejected(t *testing.T) {
	_, err := NewTenantID("   ")
	assert.Error(t, err)

	_, err = NewBookingRef("")
	assert.Error(t, err)

	_, err = NewPurchaseRef(" ")
	assert.Error(t, err)

	_, err = NewInvoiceRef("")
	assert.Error(t, err)
}

func TestRefsPreserveValue(t *testing.T) {
	tenant, err := NewTenantID("acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", tenant.String())

	booking, err := NewBookingRef("BKG-2024-001")
	require.NoError(t, err)
	assert.Equal(t, "BKG-2024-001", booking.String())
}
