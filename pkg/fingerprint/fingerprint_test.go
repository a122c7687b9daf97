package fingerprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIsKeyOrderIndependent(t *testing.T) {
	a, err := GenerateFromJSON(json.RawMessage(`{"booking":"BK-1","orders":[{"purchase_ref":"PO-1"}]}`))
	require.NoError(t, err)

	b, err := GenerateFromJSON(json.RawMessage(`{"orders":[{"purchase_ref":"PO-1"}],"booking":"BK-1"}`))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestGenerateDiffersOnContent(t *testing.T) {
	a := Generate(map[string]any{"booking": "BK-1"})
	b := Generate(map[string]any{"booking": "BK-2"})

	assert.NotEqual(t, a, b)
}

func TestGeneratePreservesArrayOrder(t *testing.T) {
	a := Generate(map[string]any{"orders": []any{"PO-1", "PO-2"}})
	b := Generate(map[string]any{"orders": []any{"PO-2", "PO-1"}})

	assert.NotEqual(t, a, b)
}

func TestGenerateFromJSONRejectsNonObject(t *testing.T) {
	_, err := GenerateFromJSON(json.RawMessage(`[1,2,3]`))
	assert.Error(t, err)
}

func TestGenerateHandlesNestedStructures(t *testing.T) {
	a := Generate(map[string]any{
		"booking": "BK-1",
		"orders": []any{
			map[string]any{"purchase_ref": "PO-1", "invoices": []any{"INV-1"}},
		},
	})
	b := Generate(map[string]any{
		"orders": []any{
			map[string]any{"invoices": []any{"INV-1"}, "purchase_ref": "PO-1"},
		},
		"booking": "BK-1",
	})

	assert.Equal(t, a, b)
}
