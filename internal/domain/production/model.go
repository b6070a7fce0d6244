package production

import (
	"time"

	"github.com/Spok95/gastro-stock/internal/domain/stock"
)

type Status string

const (
	StatusInPreparation Status = "in_preparation"
	StatusCompleted     Status = "completed"
	StatusDiscarded     Status = "discarded"
)

// transitions — явная таблица переходов: все шесть направленных рёбер,
// петель нет (переход в текущий статус отклоняется).
var transitions = map[Status][]Status{
	StatusInPreparation: {StatusCompleted, StatusDiscarded},
	StatusCompleted:     {StatusInPreparation, StatusDiscarded},
	StatusDiscarded:     {StatusInPreparation, StatusCompleted},
}

func ValidStatus(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition проверяет ребро from -> to по таблице.
func CanTransition(from, to Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Ingredient — позиция рецепта. ProductID == nil означает «свободный» ингредиент:
// он стоит денег, но на остатки не влияет.
type Ingredient struct {
	ID        int64
	RecipeID  int64
	ProductID *int64
	Name      string
	Qty       float64
	Unit      string
	Cost      float64
}

func (i Ingredient) Generic() bool { return i.ProductID == nil }

// Recipe — производственная запись: при завершении превращает остатки
// ингредиентов в остаток готового продукта.
type Recipe struct {
	ID          int64
	Name        string
	Status      Status
	ProductID   int64
	Servings    float64
	Ingredients []Ingredient
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Application — снимок фактически применённых дельт на момент входа в completed.
// Откат читает его, а не текущий (возможно отредактированный) состав рецепта.
type Application struct {
	ProducedQty   float64             `json:"produced_qty"`
	ProducedLotID *int64              `json:"produced_lot_id,omitempty"`
	Ingredients   []AppliedIngredient `json:"ingredients"`
}

// AppliedIngredient — что реально списали по одному ингредиенту.
// Plan == nil означает списание по совокупному остатку.
type AppliedIngredient struct {
	ProductID int64       `json:"product_id"`
	Qty       float64     `json:"qty"`
	Plan      *stock.Plan `json:"plan,omitempty"`
}
