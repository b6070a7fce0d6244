package production

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/gastro-stock/internal/domain/allocation"
	"github.com/Spok95/gastro-stock/internal/domain/ledger"
	"github.com/Spok95/gastro-stock/internal/domain/lots"
	"github.com/Spok95/gastro-stock/internal/domain/stock"
)

// Machine — машина состояний рецепта. Каждый переход через границу completed
// применяет (или в точности откатывает) складские дельты, всё в одной транзакции:
// либо ложатся все дельты перехода, либо ни одной.
type Machine struct {
	ledger *ledger.Ledger
	lots   *lots.Repo
}

func NewMachine(led *ledger.Ledger, lotsRepo *lots.Repo) *Machine {
	return &Machine{ledger: led, lots: lotsRepo}
}

// Transition переводит рецепт в статус to.
// Затвор идемпотентности — записанный статус рецепта под блокировкой строки:
// повторное "completed" не применит дельты дважды, а упадёт как недопустимый переход.
func (m *Machine) Transition(ctx context.Context, recipeID int64, to Status) error {
	if !ValidStatus(to) {
		return &stock.InvalidTransitionError{To: string(to)}
	}

	return m.ledger.RunInTx(ctx, func(tx pgx.Tx) error {
		var rec Recipe
		row := tx.QueryRow(ctx, `
			SELECT id, name, status, product_id, servings
			FROM recipes
			WHERE id = $1
			FOR UPDATE
		`, recipeID)
		err := row.Scan(&rec.ID, &rec.Name, &rec.Status, &rec.ProductID, &rec.Servings)
		if errors.Is(err, pgx.ErrNoRows) {
			return stock.ErrNotFound
		}
		if err != nil {
			return err
		}

		from := rec.Status
		if !ValidStatus(from) || !CanTransition(from, to) {
			return &stock.InvalidTransitionError{From: string(from), To: string(to)}
		}

		switch {
		case to == StatusCompleted:
			app, err := m.applyCompletion(ctx, tx, &rec)
			if err != nil {
				return err
			}
			payload, err := json.Marshal(app)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO recipe_applications (recipe_id, payload)
				VALUES ($1,$2)
			`, rec.ID, payload); err != nil {
				return err
			}
		case from == StatusCompleted:
			if err := m.reverseCompletion(ctx, tx, &rec); err != nil {
				return err
			}
		default:
			// in_preparation <-> discarded: остатки не трогаем
		}

		_, err = tx.Exec(ctx, `
			UPDATE recipes SET status = $2, updated_at = now() WHERE id = $1
		`, rec.ID, to)
		return err
	})
}

// applyCompletion списывает ингредиенты и приходует готовый продукт.
// Возвращает снимок фактических дельт для будущего отката.
func (m *Machine) applyCompletion(ctx context.Context, tx pgx.Tx, rec *Recipe) (*Application, error) {
	ings, err := ingredientsTx(ctx, tx, rec.ID)
	if err != nil {
		return nil, err
	}

	// Товары обрабатываем в порядке id — встречные переходы не взаимоблокируются.
	var linked []Ingredient
	for _, ing := range ings {
		if ing.Generic() {
			continue // стоит денег, но на остатки не влияет
		}
		linked = append(linked, ing)
	}
	sort.Slice(linked, func(i, j int) bool { return *linked[i].ProductID < *linked[j].ProductID })

	app := &Application{ProducedQty: rec.Servings}

	for _, ing := range linked {
		pid := *ing.ProductID
		managesLots, _, err := productInfoTx(ctx, tx, pid)
		if err != nil {
			return nil, err
		}

		plan := stock.Plan{ProductID: pid, Required: ing.Qty}
		if managesLots {
			active, err := m.lots.ActiveLotsForUpdate(ctx, tx, pid)
			if err != nil {
				return nil, err
			}
			plan, err = allocation.Build(pid, ing.Qty, nil, active)
			if err != nil {
				return nil, err
			}
		}
		if err := m.ledger.ApplyPlanTx(ctx, tx, plan, stock.Consume, stock.MoveProduction, "recipe completed"); err != nil {
			return nil, err
		}

		applied := AppliedIngredient{ProductID: pid, Qty: ing.Qty}
		if managesLots {
			p := plan
			applied.Plan = &p
		}
		app.Ingredients = append(app.Ingredients, applied)
	}

	// Приход готового продукта: партия, если он сам на партионном учёте.
	managesLots, unit, err := productInfoTx(ctx, tx, rec.ProductID)
	if err != nil {
		return nil, err
	}
	if managesLots {
		batch := fmt.Sprintf("R%d-%s", rec.ID, time.Now().Format("20060102150405"))
		lot, err := m.ledger.ReceiveLotTx(ctx, tx, rec.ProductID, batch, unit, rec.Servings, nil, stock.MoveProduction, "recipe completed")
		if err != nil {
			return nil, err
		}
		app.ProducedLotID = &lot.ID
	} else {
		if err := m.ledger.ApplyDeltaTx(ctx, tx, rec.ProductID, rec.Servings, stock.Restore, stock.MoveProduction, "recipe completed"); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// reversalDelta — одна обратная операция при выходе из completed.
// plan == nil означает дельту по совокупному остатку.
type reversalDelta struct {
	productID int64
	qty       float64
	dir       stock.Direction
	plan      *stock.Plan
}

// reversalDeltas строит точные обратные дельты по снимку применения.
// Источник — только снимок: состав рецепта к этому моменту мог быть
// отредактирован, поэтому сюда он даже не передаётся. Первой идёт уборка
// произведённого (может конфликтовать, если партию уже продали), затем
// возвраты ингредиентов в те же партии и в тех же количествах.
func reversalDeltas(producedProductID int64, app *Application) []reversalDelta {
	out := make([]reversalDelta, 0, len(app.Ingredients)+1)

	produced := reversalDelta{productID: producedProductID, qty: app.ProducedQty, dir: stock.Consume}
	if app.ProducedLotID != nil {
		produced.plan = &stock.Plan{
			ProductID: producedProductID,
			Required:  app.ProducedQty,
			Lines:     []stock.PlanLine{{LotID: *app.ProducedLotID, Qty: app.ProducedQty}},
		}
	}
	out = append(out, produced)

	for _, ing := range app.Ingredients {
		d := reversalDelta{productID: ing.ProductID, qty: ing.Qty, dir: stock.Restore}
		if ing.Plan != nil {
			p := *ing.Plan
			d.plan = &p
		}
		out = append(out, d)
	}
	return out
}

// reverseCompletion применяет точные обратные дельты по снимку.
func (m *Machine) reverseCompletion(ctx context.Context, tx pgx.Tx, rec *Recipe) error {
	var payload []byte
	err := tx.QueryRow(ctx, `
		SELECT payload FROM recipe_applications WHERE recipe_id = $1 FOR UPDATE
	`, rec.ID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("recipe %d: completion snapshot missing", rec.ID)
	}
	if err != nil {
		return err
	}

	var app Application
	if err := json.Unmarshal(payload, &app); err != nil {
		return fmt.Errorf("recipe %d: bad completion snapshot: %w", rec.ID, err)
	}

	for _, d := range reversalDeltas(rec.ProductID, &app) {
		if d.plan != nil {
			if err := m.ledger.ApplyPlanTx(ctx, tx, *d.plan, d.dir, stock.MoveProductionReverse, "recipe reverted"); err != nil {
				return err
			}
			continue
		}
		if err := m.ledger.ApplyDeltaTx(ctx, tx, d.productID, d.qty, d.dir, stock.MoveProductionReverse, "recipe reverted"); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `DELETE FROM recipe_applications WHERE recipe_id = $1`, rec.ID)
	return err
}

func ingredientsTx(ctx context.Context, tx pgx.Tx, recipeID int64) ([]Ingredient, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, recipe_id, product_id, name, qty, unit, cost
		FROM recipe_ingredients
		WHERE recipe_id = $1
		ORDER BY id
	`, recipeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Ingredient
	for rows.Next() {
		var ing Ingredient
		if err := rows.Scan(&ing.ID, &ing.RecipeID, &ing.ProductID, &ing.Name, &ing.Qty, &ing.Unit, &ing.Cost); err != nil {
			return nil, err
		}
		out = append(out, ing)
	}
	return out, rows.Err()
}

func productInfoTx(ctx context.Context, tx pgx.Tx, productID int64) (managesLots bool, unit string, err error) {
	err = tx.QueryRow(ctx, `
		SELECT manages_lots, unit FROM products WHERE id = $1
	`, productID).Scan(&managesLots, &unit)
	if errors.Is(err, pgx.ErrNoRows) {
		err = stock.ErrNotFound
	}
	return managesLots, unit, err
}
