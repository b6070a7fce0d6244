package ledger

import (
	"time"

	"github.com/Spok95/gastro-stock/internal/domain/stock"
)

// Movement — строка журнала движений. Журнал только дописывается:
// каждое изменение остатка (партии или совокупного) оставляет след.
type Movement struct {
	ID        int64
	LotID     *int64 // nil для товаров без партионного учёта
	ProductID int64
	Qty       float64 // подписанная дельта: >0 приход, <0 расход
	Kind      stock.MoveKind
	Note      string
	CreatedAt time.Time
}

// ExpiredLot — результат сметания просроченной партии (для сводки-оповещения).
type ExpiredLot struct {
	LotID       int64
	ProductID   int64
	BatchNumber string
	Qty         float64
}
