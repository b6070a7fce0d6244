package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Spok95/gastro-stock/internal/domain/allocation"
	"github.com/Spok95/gastro-stock/internal/domain/catalog"
	"github.com/Spok95/gastro-stock/internal/domain/ledger"
	"github.com/Spok95/gastro-stock/internal/domain/lots"
	"github.com/Spok95/gastro-stock/internal/domain/production"
	"github.com/Spok95/gastro-stock/internal/domain/stock"
	"github.com/Spok95/gastro-stock/internal/infra/metrics"
	"github.com/Spok95/gastro-stock/internal/infra/notify"
)

// API — тонкий JSON-слой над ядром: разбор запроса, вызов домена,
// маппинг типизированных ошибок в статусы. Никакой складской арифметики здесь.
type API struct {
	log       *slog.Logger
	catalog   *catalog.Repo
	lots      *lots.Repo
	allocator *allocation.Allocator
	ledger    *ledger.Ledger
	recipes   *production.Repo
	machine   *production.Machine

	notifier     *notify.Notifier // может быть nil
	lowThreshold float64
}

func NewAPI(
	log *slog.Logger,
	catalogRepo *catalog.Repo,
	lotsRepo *lots.Repo,
	allocator *allocation.Allocator,
	led *ledger.Ledger,
	recipes *production.Repo,
	machine *production.Machine,
	notifier *notify.Notifier,
	lowThreshold float64,
) *API {
	return &API{
		log:          log,
		catalog:      catalogRepo,
		lots:         lotsRepo,
		allocator:    allocator,
		ledger:       led,
		recipes:      recipes,
		machine:      machine,
		notifier:     notifier,
		lowThreshold: lowThreshold,
	}
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/products", a.createProduct)
	mux.HandleFunc("GET /api/products", a.listProducts)
	mux.HandleFunc("GET /api/products/{id}/lots", a.productLots)
	mux.HandleFunc("GET /api/products/{id}/lots/{lotID}", a.getLot)
	mux.HandleFunc("GET /api/products/{id}/movements", a.productMovements)

	mux.HandleFunc("POST /api/allocate", a.allocate)
	mux.HandleFunc("POST /api/sale-items/commit", a.commitSaleItem)
	mux.HandleFunc("POST /api/sale-items/revert", a.revertSaleItem)
	mux.HandleFunc("POST /api/stock/delta", a.stockDelta)
	mux.HandleFunc("POST /api/purchase-items/receive", a.receivePurchaseItem)
	mux.HandleFunc("GET /api/stock/export", a.exportStock)

	mux.HandleFunc("POST /api/recipes", a.createRecipe)
	mux.HandleFunc("GET /api/recipes/{id}", a.getRecipe)
	mux.HandleFunc("PUT /api/recipes/{id}/ingredients", a.replaceIngredients)
	mux.HandleFunc("POST /api/recipes/{id}/status", a.transitionRecipe)
}

/* Товары */

func (a *API) createProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Unit        string `json:"unit"`
		ManagesLots bool   `json:"manages_lots"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	p, err := a.catalog.Create(r.Context(), req.Name, catalog.Unit(req.Unit), req.ManagesLots)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, p)
}

func (a *API) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := a.catalog.List(r.Context(), r.URL.Query().Get("all") == "")
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, ps)
}

func (a *API) productLots(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	ls, err := a.lots.ActiveLots(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, ls)
}

func (a *API) getLot(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	lotID, err := strconv.ParseInt(r.PathValue("lotID"), 10, 64)
	if err != nil || lotID <= 0 {
		a.writeJSON(w, http.StatusBadRequest, errBody{Error: "invalid lot id"})
		return
	}
	// Партия чужого товара отдаётся как 404: принадлежность проверяется в репозитории.
	l, err := a.lots.GetLot(r.Context(), lotID, id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, l)
}

func (a *API) productMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ms, err := a.ledger.Movements(r.Context(), id, limit)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, ms)
}

/* Аллокация и строки продажи/закупки */

type saleItem struct {
	ProductID int64            `json:"product_id"`
	Qty       float64          `json:"qty"`
	Manual    []stock.PlanLine `json:"manual,omitempty"`
	Plan      *stock.Plan      `json:"plan,omitempty"`
}

func (a *API) allocate(w http.ResponseWriter, r *http.Request) {
	var req saleItem
	if !a.decode(w, r, &req) {
		return
	}
	plan, err := a.allocator.Allocate(r.Context(), req.ProductID, req.Qty, req.Manual)
	if err != nil {
		metrics.Allocations.WithLabelValues(allocResult(err)).Inc()
		a.writeError(w, err)
		return
	}
	metrics.Allocations.WithLabelValues("ok").Inc()
	a.writeJSON(w, http.StatusOK, plan)
}

// commitSaleItem применяет план продажи. При конфликте (остаток уехал)
// один раз пересобираем план по свежему снимку и пробуем снова.
func (a *API) commitSaleItem(w http.ResponseWriter, r *http.Request) {
	var req saleItem
	if !a.decode(w, r, &req) {
		return
	}

	var plan stock.Plan
	if req.Plan != nil {
		plan = *req.Plan
	} else {
		// Без плана аллоцируем сами: партионный товар нельзя гасить
		// по совокупному остатку мимо партий.
		fresh, err := a.allocator.Allocate(r.Context(), req.ProductID, req.Qty, req.Manual)
		if err != nil {
			a.writeError(w, err)
			return
		}
		plan = fresh
	}

	err := a.ledger.ApplyPlan(r.Context(), plan, stock.Consume, stock.MoveSale, "sale committed")
	var conflict *stock.ConflictError
	if errors.As(err, &conflict) {
		metrics.Conflicts.Inc()
		fresh, allocErr := a.allocator.Allocate(r.Context(), req.ProductID, req.Qty, nil)
		if allocErr != nil {
			a.writeError(w, allocErr)
			return
		}
		plan = fresh
		err = a.ledger.ApplyPlan(r.Context(), plan, stock.Consume, stock.MoveSale, "sale committed (retry)")
	}
	if err != nil {
		a.writeError(w, err)
		return
	}
	metrics.LedgerApplies.WithLabelValues(string(stock.MoveSale), string(stock.Consume)).Inc()

	a.maybeNotifyLowStock(r, req.ProductID)
	a.writeJSON(w, http.StatusOK, plan)
}

// revertSaleItem — удаление/отмена продажи: те же партии, те же количества, знак обратный.
func (a *API) revertSaleItem(w http.ResponseWriter, r *http.Request) {
	var req saleItem
	if !a.decode(w, r, &req) {
		return
	}
	plan := stock.Plan{ProductID: req.ProductID, Required: req.Qty}
	if req.Plan != nil {
		plan = *req.Plan
	}
	if err := a.ledger.ApplyPlan(r.Context(), plan, stock.Restore, stock.MoveRestore, "sale reverted"); err != nil {
		a.writeError(w, err)
		return
	}
	metrics.LedgerApplies.WithLabelValues(string(stock.MoveRestore), string(stock.Restore)).Inc()
	a.writeJSON(w, http.StatusOK, plan)
}

func (a *API) stockDelta(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID int64   `json:"product_id"`
		Qty       float64 `json:"qty"`
		Direction string  `json:"direction"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	dir := stock.Direction(req.Direction)
	if dir != stock.Consume && dir != stock.Restore {
		a.writeJSON(w, http.StatusBadRequest, errBody{Error: "direction must be consume or restore"})
		return
	}
	if err := a.ledger.ApplyDelta(r.Context(), req.ProductID, req.Qty, dir, stock.MoveAdjust, "manual adjustment"); err != nil {
		a.writeError(w, err)
		return
	}
	metrics.LedgerApplies.WithLabelValues(string(stock.MoveAdjust), string(dir)).Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) receivePurchaseItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID   int64      `json:"product_id"`
		LotID       *int64     `json:"lot_id,omitempty"` // долив существующей партии
		BatchNumber string     `json:"batch_number"`
		Unit        string     `json:"unit"`
		Qty         float64    `json:"qty"`
		ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	}
	if !a.decode(w, r, &req) {
		return
	}

	if req.LotID != nil {
		if err := a.ledger.TopUpLot(r.Context(), req.ProductID, *req.LotID, req.Qty); err != nil {
			a.writeError(w, err)
			return
		}
		metrics.LedgerApplies.WithLabelValues(string(stock.MovePurchase), string(stock.Restore)).Inc()
		w.WriteHeader(http.StatusNoContent)
		return
	}

	lot, err := a.ledger.ReceiveLot(r.Context(), req.ProductID, req.BatchNumber, req.Unit, req.Qty, req.ExpiresAt)
	if err != nil {
		a.writeError(w, err)
		return
	}
	metrics.LedgerApplies.WithLabelValues(string(stock.MovePurchase), string(stock.Restore)).Inc()
	a.writeJSON(w, http.StatusCreated, lot)
}

/* Рецепты */

type ingredientReq struct {
	ProductID *int64  `json:"product_id,omitempty"`
	Name      string  `json:"name"`
	Qty       float64 `json:"qty"`
	Unit      string  `json:"unit"`
	Cost      float64 `json:"cost"`
}

func (a *API) createRecipe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string          `json:"name"`
		ProductID   int64           `json:"product_id"`
		Servings    float64         `json:"servings"`
		Ingredients []ingredientReq `json:"ingredients"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	ings := make([]production.Ingredient, 0, len(req.Ingredients))
	for _, ing := range req.Ingredients {
		ings = append(ings, production.Ingredient{
			ProductID: ing.ProductID, Name: ing.Name, Qty: ing.Qty, Unit: ing.Unit, Cost: ing.Cost,
		})
	}
	rec, err := a.recipes.Create(r.Context(), req.Name, req.ProductID, req.Servings, ings)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, rec)
}

func (a *API) getRecipe(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	rec, err := a.recipes.GetByID(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, rec)
}

func (a *API) replaceIngredients(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Ingredients []ingredientReq `json:"ingredients"`
	}
	if !a.decode(w, r, &req) {
		return
	}
	ings := make([]production.Ingredient, 0, len(req.Ingredients))
	for _, ing := range req.Ingredients {
		ings = append(ings, production.Ingredient{
			ProductID: ing.ProductID, Name: ing.Name, Qty: ing.Qty, Unit: ing.Unit, Cost: ing.Cost,
		})
	}
	if err := a.recipes.ReplaceIngredients(r.Context(), id, ings); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) transitionRecipe(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !a.decode(w, r, &req) {
		return
	}

	to := production.Status(req.Status)
	if err := a.machine.Transition(r.Context(), id, to); err != nil {
		metrics.Transitions.WithLabelValues(req.Status, "error").Inc()
		a.writeError(w, err)
		return
	}
	metrics.Transitions.WithLabelValues(req.Status, "ok").Inc()
	w.WriteHeader(http.StatusNoContent)
}

/* Вспомогательное */

type errBody struct {
	Error string         `json:"error"`
	Kind  string         `json:"kind,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		a.writeJSON(w, http.StatusBadRequest, errBody{Error: "invalid JSON body"})
		return false
	}
	return true
}

func (a *API) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		a.writeJSON(w, http.StatusBadRequest, errBody{Error: "invalid id"})
		return 0, false
	}
	return id, true
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Error("response encode failed", "err", err)
	}
}

// writeError переводит типизированные ошибки ядра в HTTP-статусы.
// Тексты отдаём как есть: в пользовательские сообщения их превращает клиент.
func (a *API) writeError(w http.ResponseWriter, err error) {
	var (
		insufficient *stock.InsufficientStockError
		over         *stock.OverAllocationError
		conflict     *stock.ConflictError
		invalid      *stock.InvalidTransitionError
	)
	switch {
	case errors.Is(err, stock.ErrNotFound):
		a.writeJSON(w, http.StatusNotFound, errBody{Error: err.Error(), Kind: "not_found"})
	case errors.As(err, &insufficient):
		a.writeJSON(w, http.StatusUnprocessableEntity, errBody{
			Error: insufficient.Error(),
			Kind:  "insufficient_stock",
			Data: map[string]any{
				"product_id": insufficient.ProductID,
				"required":   insufficient.Required,
				"available":  insufficient.Available,
			},
		})
	case errors.As(err, &over):
		a.writeJSON(w, http.StatusUnprocessableEntity, errBody{
			Error: over.Error(),
			Kind:  "over_allocation",
			Data: map[string]any{
				"lot_id":    over.LotID,
				"requested": over.Requested,
				"available": over.Available,
			},
		})
	case errors.As(err, &conflict):
		a.writeJSON(w, http.StatusConflict, errBody{Error: conflict.Error(), Kind: "concurrent_modification"})
	case errors.As(err, &invalid):
		a.writeJSON(w, http.StatusConflict, errBody{Error: invalid.Error(), Kind: "invalid_transition"})
	default:
		a.log.Error("internal error", "err", err)
		a.writeJSON(w, http.StatusInternalServerError, errBody{Error: "internal error"})
	}
}

func allocResult(err error) string {
	var (
		insufficient *stock.InsufficientStockError
		over         *stock.OverAllocationError
	)
	switch {
	case errors.As(err, &insufficient):
		return "insufficient"
	case errors.As(err, &over):
		return "over_allocation"
	default:
		return "error"
	}
}

// maybeNotifyLowStock — после списания смотрим совокупный остаток и сигналим,
// если он опустился ниже порога.
func (a *API) maybeNotifyLowStock(r *http.Request, productID int64) {
	if a.notifier == nil || a.lowThreshold <= 0 {
		return
	}
	p, err := a.catalog.GetByID(r.Context(), productID)
	if err != nil {
		return
	}
	if p.Stock < a.lowThreshold {
		a.notifier.LowStock(p.Name, p.Stock, string(p.Unit))
	}
}
