package allocation

import (
	"fmt"

	"github.com/Spok95/gastro-stock/internal/domain/lots"
	"github.com/Spok95/gastro-stock/internal/domain/stock"
)

// Build собирает план распределения required по партиям из снимка active.
// Чистая функция: работает только с переданным снимком, ничего не пишет.
//
// Порядок: сначала ручной выбор (manual), затем авто-добор из незатронутых
// партий в порядке среза active (FEFO-порядок обеспечивает выборка партий).
func Build(productID int64, required float64, manual []stock.PlanLine, active []lots.Lot) (stock.Plan, error) {
	plan := stock.Plan{ProductID: productID, Required: required}

	if required <= 0 {
		return plan, fmt.Errorf("required qty must be > 0")
	}

	byID := make(map[int64]*lots.Lot, len(active))
	for i := range active {
		byID[active[i].ID] = &active[i]
	}

	// Ручной выбор: повторы одной партии складываем.
	picked := make(map[int64]float64)
	order := make([]int64, 0, len(manual))
	for _, m := range manual {
		if m.Qty <= 0 {
			return plan, fmt.Errorf("manual qty for lot %d must be > 0", m.LotID)
		}
		if _, ok := picked[m.LotID]; !ok {
			order = append(order, m.LotID)
		}
		picked[m.LotID] += m.Qty
	}

	var total float64
	for _, lotID := range order {
		l, ok := byID[lotID]
		if !ok {
			return plan, fmt.Errorf("lot %d: %w", lotID, stock.ErrNotFound)
		}
		qty := picked[lotID]
		if qty > l.CurrentStock {
			return plan, &stock.OverAllocationError{LotID: lotID, Requested: qty, Available: l.CurrentStock}
		}
		plan.Lines = append(plan.Lines, stock.PlanLine{LotID: lotID, Qty: qty})
		total += qty
	}

	if total > required {
		return plan, fmt.Errorf("manual choices exceed required qty: %.3f > %.3f", total, required)
	}

	// Авто-добор недостающего из партий, не тронутых ручным выбором.
	for i := range active {
		if total >= required {
			break
		}
		l := &active[i]
		if _, taken := picked[l.ID]; taken {
			continue
		}
		take := required - total
		if take > l.CurrentStock {
			take = l.CurrentStock
		}
		if take <= 0 {
			continue
		}
		plan.Lines = append(plan.Lines, stock.PlanLine{LotID: l.ID, Qty: take})
		total += take
	}

	if total < required {
		var available float64
		for i := range active {
			available += active[i].CurrentStock
		}
		return plan, &stock.InsufficientStockError{ProductID: productID, Required: required, Available: available}
	}

	return plan, nil
}
