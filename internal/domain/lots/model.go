package lots

import "time"

type Status string

const (
	StatusActive   Status = "active"
	StatusDepleted Status = "depleted"
	StatusExpired  Status = "expired"
)

// Lot — партия: конечное количество товара, принятое за один раз.
// Никогда не удаляется, только исчерпывается — это постоянная запись для аудита.
type Lot struct {
	ID           int64
	ProductID    int64
	BatchNumber  string
	Unit         string
	CurrentStock float64 // >= 0; 0 => StatusDepleted
	ExpiresAt    *time.Time
	Status       Status
	CreatedAt    time.Time
}
