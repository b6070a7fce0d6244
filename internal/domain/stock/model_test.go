package stock

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan_Total(t *testing.T) {
	p := Plan{
		ProductID: 1,
		Required:  6,
		Lines:     []PlanLine{{LotID: 1, Qty: 4}, {LotID: 2, Qty: 2}},
	}
	assert.Equal(t, 6.0, p.Total())
	assert.False(t, p.Empty())
}

func TestPlan_EmptyForUnmanagedProduct(t *testing.T) {
	p := Plan{ProductID: 1, Required: 3}
	assert.True(t, p.Empty())
	assert.Equal(t, 0.0, p.Total())
}

func TestErrors_CarryQuantities(t *testing.T) {
	var err error = &InsufficientStockError{ProductID: 2, Required: 10, Available: 7}
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Contains(t, err.Error(), "10.000")
	assert.Contains(t, err.Error(), "7.000")

	err = &OverAllocationError{LotID: 5, Requested: 9, Available: 4}
	assert.Contains(t, err.Error(), "lot 5")

	err = &ConflictError{ProductID: 3, LotID: 8}
	assert.Contains(t, err.Error(), "lot 8")
	err = &ConflictError{ProductID: 3}
	assert.Contains(t, err.Error(), "product 3")

	err = &InvalidTransitionError{From: "completed", To: "completed"}
	assert.Contains(t, err.Error(), "completed")

	assert.True(t, errors.Is(ErrNotFound, ErrNotFound))
}
