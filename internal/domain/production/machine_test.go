package production

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/gastro-stock/internal/domain/stock"
)

// Откат читает только снимок применения: состав рецепта сюда даже не передаётся,
// поэтому правки ингредиентов после completed на обратные дельты не влияют.
func TestReversalDeltas_FromSnapshotOnly(t *testing.T) {
	lotID := int64(12)
	app := &Application{
		ProducedQty:   20,
		ProducedLotID: &lotID,
		Ingredients: []AppliedIngredient{
			{
				ProductID: 3,
				Qty:       2,
				Plan: &stock.Plan{
					ProductID: 3,
					Required:  2,
					Lines:     []stock.PlanLine{{LotID: 5, Qty: 1.5}, {LotID: 6, Qty: 0.5}},
				},
			},
			{ProductID: 4, Qty: 3}, // товар без партионного учёта
		},
	}

	deltas := reversalDeltas(9, app)
	require.Len(t, deltas, 3)

	// Первой уходит произведённая партия, ровно в том объёме, что приходовали.
	assert.Equal(t, stock.Consume, deltas[0].dir)
	assert.Equal(t, int64(9), deltas[0].productID)
	require.NotNil(t, deltas[0].plan)
	assert.Equal(t, []stock.PlanLine{{LotID: 12, Qty: 20}}, deltas[0].plan.Lines)

	// Ингредиенты возвращаются в те же партии и в тех же количествах из снимка.
	assert.Equal(t, stock.Restore, deltas[1].dir)
	require.NotNil(t, deltas[1].plan)
	assert.Equal(t, app.Ingredients[0].Plan.Lines, deltas[1].plan.Lines)

	assert.Equal(t, stock.Restore, deltas[2].dir)
	assert.Nil(t, deltas[2].plan)
	assert.Equal(t, 3.0, deltas[2].qty)
	assert.Equal(t, int64(4), deltas[2].productID)
}

// Готовый продукт без партионного учёта откатывается совокупной дельтой.
func TestReversalDeltas_UnmanagedProducedProduct(t *testing.T) {
	app := &Application{
		ProducedQty: 8,
		Ingredients: []AppliedIngredient{{ProductID: 2, Qty: 1}},
	}

	deltas := reversalDeltas(7, app)
	require.Len(t, deltas, 2)
	assert.Equal(t, stock.Consume, deltas[0].dir)
	assert.Nil(t, deltas[0].plan)
	assert.Equal(t, 8.0, deltas[0].qty)
	assert.Equal(t, int64(7), deltas[0].productID)
}
