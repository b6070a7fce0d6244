package production

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/gastro-stock/internal/domain/stock"
)

func TestTransitionTable_AllSixEdges(t *testing.T) {
	statuses := []Status{StatusInPreparation, StatusCompleted, StatusDiscarded}
	for _, from := range statuses {
		for _, to := range statuses {
			if from == to {
				// Переход в текущий статус — не no-op, а отклонение:
				// петель в таблице нет намеренно.
				assert.False(t, CanTransition(from, to), "self-loop %s must be rejected", from)
				continue
			}
			assert.True(t, CanTransition(from, to), "edge %s -> %s must exist", from, to)
		}
	}
}

func TestTransitionTable_UnknownStatus(t *testing.T) {
	assert.False(t, ValidStatus("canceled"))
	assert.False(t, CanTransition("canceled", StatusCompleted))
	assert.False(t, CanTransition(StatusCompleted, "canceled"))
}

func TestIngredient_Generic(t *testing.T) {
	pid := int64(7)
	assert.False(t, Ingredient{ProductID: &pid}.Generic())
	assert.True(t, Ingredient{Name: "соль морская"}.Generic())
}

// Снимок дельт обязан переживать правки рецепта: откат читает его,
// а не текущий состав. Проверяем, что из jsonb он поднимается без потерь.
func TestApplication_SnapshotRoundTrip(t *testing.T) {
	lotID := int64(12)
	app := Application{
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

	raw, err := json.Marshal(app)
	require.NoError(t, err)

	var got Application
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, app, got)
}
