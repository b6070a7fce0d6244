package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Allocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gastrostock_allocations_total",
		Help: "Allocation attempts by result.",
	}, []string{"result"})

	LedgerApplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gastrostock_ledger_applies_total",
		Help: "Ledger mutations by kind and direction.",
	}, []string{"kind", "direction"})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gastrostock_recipe_transitions_total",
		Help: "Recipe transitions by target status and result.",
	}, []string{"to", "result"})

	Conflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gastrostock_stock_conflicts_total",
		Help: "Concurrent-modification conflicts detected by the ledger.",
	})

	ExpiredLots = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gastrostock_expired_lots_total",
		Help: "Lots transitioned to expired by the sweeper.",
	})
)
