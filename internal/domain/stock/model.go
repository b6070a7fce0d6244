package stock

// Direction задаёт знак применения плана/дельты.
type Direction string

const (
	Consume Direction = "consume"
	Restore Direction = "restore"
)

// MoveKind — тип движения для журнала movements.
type MoveKind string

const (
	MoveSale              MoveKind = "sale"
	MoveRestore           MoveKind = "restore"
	MovePurchase          MoveKind = "purchase"
	MoveProduction        MoveKind = "production"
	MoveProductionReverse MoveKind = "production_reverse"
	MoveExpiry            MoveKind = "expiry"
	MoveAdjust            MoveKind = "adjust"
)

// PlanLine — сколько берём из конкретной партии.
type PlanLine struct {
	LotID int64   `json:"lot_id"`
	Qty   float64 `json:"qty"`
}

// Plan — распределение требуемого количества товара по партиям.
// Строится аллокатором, применяется только леджером, ровно один раз.
type Plan struct {
	ProductID int64      `json:"product_id"`
	Required  float64    `json:"required"`
	Lines     []PlanLine `json:"lines"`
}

func (p Plan) Total() float64 {
	var sum float64
	for _, l := range p.Lines {
		sum += l.Qty
	}
	return sum
}

// Empty — товар без партионного учёта: количество гасится по совокупному остатку.
func (p Plan) Empty() bool { return len(p.Lines) == 0 }
