package allocation

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/gastro-stock/internal/domain/lots"
	"github.com/Spok95/gastro-stock/internal/domain/stock"
)

func lot(id int64, qty float64, expires string) lots.Lot {
	l := lots.Lot{ID: id, ProductID: 1, CurrentStock: qty, Status: lots.StatusActive}
	if expires != "" {
		t, err := time.Parse("2006-01-02", expires)
		if err != nil {
			panic(err)
		}
		l.ExpiresAt = &t
	}
	return l
}

func TestBuild_FEFOAutoFill(t *testing.T) {
	// L1 истекает раньше и уходит первой, остаток добирается из L2.
	active := []lots.Lot{
		lot(1, 4, "2024-01-01"),
		lot(2, 10, "2024-06-01"),
	}

	plan, err := Build(1, 6, nil, active)
	require.NoError(t, err)

	require.Equal(t, []stock.PlanLine{{LotID: 1, Qty: 4}, {LotID: 2, Qty: 2}}, plan.Lines)
	assert.Equal(t, 6.0, plan.Total())
	assert.Equal(t, 6.0, plan.Required)
}

func TestBuild_ExactSingleLot(t *testing.T) {
	active := []lots.Lot{lot(1, 5, "2024-01-01"), lot(2, 5, "2024-02-01")}

	plan, err := Build(1, 5, nil, active)
	require.NoError(t, err)
	require.Equal(t, []stock.PlanLine{{LotID: 1, Qty: 5}}, plan.Lines)
}

func TestBuild_ManualChoiceRespected(t *testing.T) {
	active := []lots.Lot{
		lot(1, 4, "2024-01-01"),
		lot(2, 10, "2024-06-01"),
	}

	// Пользователь выбрал позднюю партию — добор идёт из оставшихся.
	plan, err := Build(1, 6, []stock.PlanLine{{LotID: 2, Qty: 3}}, active)
	require.NoError(t, err)
	require.Equal(t, []stock.PlanLine{{LotID: 2, Qty: 3}, {LotID: 1, Qty: 3}}, plan.Lines)
	assert.Equal(t, 6.0, plan.Total())
}

func TestBuild_ManualDuplicatesMerged(t *testing.T) {
	active := []lots.Lot{lot(1, 10, "2024-01-01")}

	plan, err := Build(1, 6, []stock.PlanLine{{LotID: 1, Qty: 2}, {LotID: 1, Qty: 4}}, active)
	require.NoError(t, err)
	require.Equal(t, []stock.PlanLine{{LotID: 1, Qty: 6}}, plan.Lines)
}

func TestBuild_OverAllocation(t *testing.T) {
	active := []lots.Lot{lot(1, 4, "2024-01-01")}

	_, err := Build(1, 4, []stock.PlanLine{{LotID: 1, Qty: 5}}, active)

	var over *stock.OverAllocationError
	require.ErrorAs(t, err, &over)
	assert.Equal(t, int64(1), over.LotID)
	assert.Equal(t, 5.0, over.Requested)
	assert.Equal(t, 4.0, over.Available)
}

func TestBuild_InsufficientStock(t *testing.T) {
	active := []lots.Lot{
		lot(1, 4, "2024-01-01"),
		lot(2, 3, "2024-06-01"),
	}

	_, err := Build(1, 10, nil, active)

	var insufficient *stock.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(1), insufficient.ProductID)
	assert.Equal(t, 10.0, insufficient.Required)
	assert.Equal(t, 7.0, insufficient.Available)
}

func TestBuild_InsufficientWithManual(t *testing.T) {
	active := []lots.Lot{lot(1, 4, "2024-01-01"), lot(2, 3, "")}

	_, err := Build(1, 8, []stock.PlanLine{{LotID: 1, Qty: 2}}, active)

	// Ручной выбор не мешает добору, но всего доступно 7 < 8.
	var insufficient *stock.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 7.0, insufficient.Available)
}

func TestBuild_UnknownManualLot(t *testing.T) {
	active := []lots.Lot{lot(1, 4, "2024-01-01")}

	_, err := Build(1, 2, []stock.PlanLine{{LotID: 99, Qty: 1}}, active)
	require.ErrorIs(t, err, stock.ErrNotFound)
}

func TestBuild_ManualExceedsRequired(t *testing.T) {
	active := []lots.Lot{lot(1, 10, "2024-01-01")}

	_, err := Build(1, 3, []stock.PlanLine{{LotID: 1, Qty: 5}}, active)
	require.Error(t, err)
}

func TestBuild_RejectsNonPositive(t *testing.T) {
	active := []lots.Lot{lot(1, 10, "2024-01-01")}

	_, err := Build(1, 0, nil, active)
	require.Error(t, err)

	_, err = Build(1, 2, []stock.PlanLine{{LotID: 1, Qty: -1}}, active)
	require.Error(t, err)
}

func TestBuild_NoLotsAtAll(t *testing.T) {
	_, err := Build(1, 1, nil, nil)

	var insufficient *stock.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 0.0, insufficient.Available)
}

// Полнота аллокации: план либо покрывает заявку целиком, либо не возвращается вовсе.
func TestBuild_CompletenessRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(6)
		active := make([]lots.Lot, 0, n)
		var available float64
		for j := 0; j < n; j++ {
			qty := float64(1 + rng.Intn(20))
			active = append(active, lots.Lot{ID: int64(j + 1), ProductID: 1, CurrentStock: qty, Status: lots.StatusActive})
			available += qty
		}

		required := float64(1 + rng.Intn(int(available)+10))

		plan, err := Build(1, required, nil, active)
		if required > available {
			var insufficient *stock.InsufficientStockError
			require.ErrorAs(t, err, &insufficient)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, required, plan.Total())

		// Строки не повторяют партии и не превышают их остатки.
		seen := map[int64]bool{}
		for _, line := range plan.Lines {
			require.False(t, seen[line.LotID])
			seen[line.LotID] = true
			require.LessOrEqual(t, line.Qty, active[line.LotID-1].CurrentStock)
			require.Greater(t, line.Qty, 0.0)
		}
	}
}
