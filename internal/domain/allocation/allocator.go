package allocation

import (
	"context"

	"github.com/Spok95/gastro-stock/internal/domain/catalog"
	"github.com/Spok95/gastro-stock/internal/domain/lots"
	"github.com/Spok95/gastro-stock/internal/domain/stock"
)

// Allocator подбирает партии под требуемое количество товара.
// Allocate — сухой прогон: план не применяется к остаткам, это делает ledger.
type Allocator struct {
	catalog *catalog.Repo
	lots    *lots.Repo
}

func New(catalogRepo *catalog.Repo, lotsRepo *lots.Repo) *Allocator {
	return &Allocator{catalog: catalogRepo, lots: lotsRepo}
}

// Allocate строит план по текущему снимку партий.
// Для товара без партионного учёта возвращает пустой план — это не ошибка.
// План нельзя переиспользовать после правок строки: пересобирайте заново.
func (a *Allocator) Allocate(ctx context.Context, productID int64, required float64, manual []stock.PlanLine) (stock.Plan, error) {
	p, err := a.catalog.GetByID(ctx, productID)
	if err != nil {
		return stock.Plan{}, err
	}
	if !p.ManagesLots {
		return stock.Plan{ProductID: productID, Required: required}, nil
	}

	active, err := a.lots.ActiveLots(ctx, productID)
	if err != nil {
		return stock.Plan{}, err
	}
	return Build(productID, required, manual, active)
}
