package stock

import (
	"errors"
	"fmt"
)

// ErrNotFound — нет такого товара/партии/рецепта (или партия чужого товара).
var ErrNotFound = errors.New("not found")

// InsufficientStockError — требуемое количество не набирается даже после авто-добора.
type InsufficientStockError struct {
	ProductID int64
	Required  float64
	Available float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: required %.3f, available %.3f",
		e.ProductID, e.Required, e.Available)
}

// OverAllocationError — ручной выбор партии превышает её текущий остаток.
type OverAllocationError struct {
	LotID     int64
	Requested float64
	Available float64
}

func (e *OverAllocationError) Error() string {
	return fmt.Sprintf("over-allocation on lot %d: requested %.3f, available %.3f",
		e.LotID, e.Requested, e.Available)
}

// ConflictError — остаток изменился между чтением и записью; план надо пересобрать.
type ConflictError struct {
	ProductID int64
	LotID     int64 // 0, если конфликт по совокупному остатку
}

func (e *ConflictError) Error() string {
	if e.LotID != 0 {
		return fmt.Sprintf("concurrent modification on lot %d (product %d)", e.LotID, e.ProductID)
	}
	return fmt.Sprintf("concurrent modification on product %d", e.ProductID)
}

// InvalidTransitionError — переход в/из нераспознанного статуса рецепта.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid recipe transition %q -> %q", e.From, e.To)
}
