package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeIDIsDeterministic(t *testing.T) {
	a := ComputeID("tenant-1", "order-1", "container-1")
	b := ComputeID("tenant-1", "order-1", "container-1")
	assert.Equal(t, a, b)
}

func TestComputeIDSeparatesTenants(t *testing.T) {
	a := ComputeID("tenant-1", "order-1", "container-1")
	b := ComputeID("tenant-2", "order-1", "container-1")
	assert.NotEqual(t, a, b)
}

func TestComputeIDSeparatesPairs(t *testing.T) {
	seen := map[string]bool{}
	pairs := [][2]string{
		{"order-1", "container-1"},
		{"order-1", "container-2"},
		{"order-2", "container-1"},
		{"order-2", "container-2"},
	}
	for _, pair := range pairs {
		id := ComputeID("tenant-1", pair[0], pair[1])
		assert.False(t, seen[id], "duplicate id for pair %v", pair)
		seen[id] = true
	}
}
