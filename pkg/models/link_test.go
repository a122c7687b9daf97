package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinkReasonConfidence(t *testing.T) {
	tests := []struct {
		reason LinkReason
		want   float64
	}{
		{LinkReasonBookingMatch, 1.00},
		{LinkReasonManual, 0.95},
		{LinkReasonAIInference, 0.70},
		{LinkReasonTemporalCorrelation, 0.60},
		{LinkReasonSystemMigration, 0.35},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			assert.NoError(t, tt.reason.Validate())
			assert.Equal(t, tt.want, tt.reason.Confidence())
		})
	}
}

func TestLinkReasonValidateRejectsUnknown(t *testing.T) {
	assert.Error(t, LinkReason("GUESSWORK").Validate())
	assert.Error(t, LinkReason("").Validate())
}
