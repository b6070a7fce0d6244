package catalog

import "time"

type Unit string

const (
	UnitPcs Unit = "pcs"
	UnitG   Unit = "g"
	UnitKg  Unit = "kg"
	UnitMl  Unit = "ml"
	UnitL   Unit = "l"
)

type Product struct {
	ID          int64
	Name        string
	Unit        Unit
	ManagesLots bool
	Stock       float64 // производный кэш: при ManagesLots == сумме активных партий
	Active      bool
	CreatedAt   time.Time
}
