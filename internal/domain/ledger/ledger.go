package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spok95/gastro-stock/internal/domain/lots"
	"github.com/Spok95/gastro-stock/internal/domain/stock"
)

// Ledger — единственная точка записи остатков. Никто, кроме него,
// не трогает products.stock и lots.current_stock.
type Ledger struct{ pool *pgxpool.Pool }

func New(pool *pgxpool.Pool) *Ledger { return &Ledger{pool: pool} }

// RunInTx выполняет fn в одной транзакции. Нужен production,
// чтобы применить несколько планов/дельт атомарно.
func (l *Ledger) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ApplyPlan применяет план к партиям и совокупному остатку атомарно.
// Consume списывает, Restore возвращает те же количества в те же партии.
func (l *Ledger) ApplyPlan(ctx context.Context, plan stock.Plan, dir stock.Direction, kind stock.MoveKind, note string) error {
	return l.RunInTx(ctx, func(tx pgx.Tx) error {
		return l.ApplyPlanTx(ctx, tx, plan, dir, kind, note)
	})
}

func (l *Ledger) ApplyPlanTx(ctx context.Context, tx pgx.Tx, plan stock.Plan, dir stock.Direction, kind stock.MoveKind, note string) error {
	// Пустой план — товар без партионного учёта, гасим по совокупному остатку.
	if plan.Empty() {
		return l.ApplyDeltaTx(ctx, tx, plan.ProductID, plan.Required, dir, kind, note)
	}

	// Строки плана приходят и снаружи (HTTP), им нельзя верить: отрицательное
	// количество при consume увеличило бы партию вместо списания.
	for _, line := range plan.Lines {
		if line.Qty <= 0 {
			return fmt.Errorf("plan line for lot %d: qty must be > 0", line.LotID)
		}
	}

	// План принимается только целиком: сумма строк должна покрывать заявку.
	// Допуск — на накопленную погрешность сложения float64.
	if math.Abs(plan.Total()-plan.Required) > 1e-9 {
		return fmt.Errorf("plan total %.3f != required %.3f", plan.Total(), plan.Required)
	}

	if _, _, err := lockProduct(ctx, tx, plan.ProductID); err != nil {
		return err
	}

	// Партии блокируем в порядке id, чтобы встречные планы не взаимоблокировались.
	lines := make([]stock.PlanLine, len(plan.Lines))
	copy(lines, plan.Lines)
	sort.Slice(lines, func(i, j int) bool { return lines[i].LotID < lines[j].LotID })

	for _, line := range lines {
		cur, status, err := lockLot(ctx, tx, line.LotID, plan.ProductID)
		if err != nil {
			return err
		}

		next, nextStatus, err := nextLotState(cur, status, line.Qty, dir)
		if errors.Is(err, errLotConflict) {
			// Остаток уехал с момента построения плана — пусть вызывающий пересоберёт.
			return &stock.ConflictError{ProductID: plan.ProductID, LotID: line.LotID}
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE lots SET current_stock = $2, status = $3 WHERE id = $1
		`, line.LotID, next, nextStatus); err != nil {
			return err
		}

		qty := line.Qty
		if dir == stock.Consume {
			qty = -qty
		}
		if err := insertMovement(ctx, tx, &line.LotID, plan.ProductID, qty, kind, note); err != nil {
			return err
		}
	}

	delta := plan.Total()
	if dir == stock.Consume {
		delta = -delta
	}
	return bumpAggregate(ctx, tx, plan.ProductID, delta)
}

// ApplyDelta меняет совокупный остаток без привязки к партиям:
// товары без партионного учёта и порции готового продукта.
func (l *Ledger) ApplyDelta(ctx context.Context, productID int64, qty float64, dir stock.Direction, kind stock.MoveKind, note string) error {
	return l.RunInTx(ctx, func(tx pgx.Tx) error {
		return l.ApplyDeltaTx(ctx, tx, productID, qty, dir, kind, note)
	})
}

func (l *Ledger) ApplyDeltaTx(ctx context.Context, tx pgx.Tx, productID int64, qty float64, dir stock.Direction, kind stock.MoveKind, note string) error {
	if qty <= 0 {
		return fmt.Errorf("qty must be > 0")
	}

	cur, managesLots, err := lockProduct(ctx, tx, productID)
	if err != nil {
		return err
	}
	// Партионный товар совокупной дельтой не трогаем: кэш разъехался бы
	// с суммой партий. Для него — только план или приёмка партии.
	if managesLots {
		return fmt.Errorf("product %d manages lots: apply a plan instead of an aggregate delta", productID)
	}

	signed := qty
	if dir == stock.Consume {
		if cur < qty {
			// В минус не уходим и молча не обрезаем.
			return &stock.InsufficientStockError{ProductID: productID, Required: qty, Available: cur}
		}
		signed = -qty
	}

	if _, err := tx.Exec(ctx, `
		UPDATE products SET stock = stock + $2 WHERE id = $1
	`, productID, signed); err != nil {
		return err
	}
	return insertMovement(ctx, tx, nil, productID, signed, kind, note)
}

// ReceiveLot приходует новую партию (приёмка закупки) и поднимает совокупный остаток.
func (l *Ledger) ReceiveLot(ctx context.Context, productID int64, batchNumber, unit string, qty float64, expiresAt *time.Time) (*lots.Lot, error) {
	var lot *lots.Lot
	err := l.RunInTx(ctx, func(tx pgx.Tx) error {
		var err error
		lot, err = l.ReceiveLotTx(ctx, tx, productID, batchNumber, unit, qty, expiresAt, stock.MovePurchase, "lot received")
		return err
	})
	if err != nil {
		return nil, err
	}
	return lot, nil
}

// ReceiveLotTx — вариант для составных операций (production создаёт партию
// готового продукта в той же транзакции, что и списание ингредиентов).
func (l *Ledger) ReceiveLotTx(ctx context.Context, tx pgx.Tx, productID int64, batchNumber, unit string, qty float64, expiresAt *time.Time, kind stock.MoveKind, note string) (*lots.Lot, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("qty must be > 0")
	}

	_, managesLots, err := lockProduct(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if !managesLots {
		return nil, fmt.Errorf("product %d does not manage lots", productID)
	}

	var lot lots.Lot
	row := tx.QueryRow(ctx, `
		INSERT INTO lots (product_id, batch_number, unit, current_stock, expires_at, status)
		VALUES ($1,$2,$3,$4,$5,'active')
		RETURNING id, product_id, batch_number, unit, current_stock, expires_at, status, created_at
	`, productID, batchNumber, unit, qty, expiresAt)
	if err := row.Scan(&lot.ID, &lot.ProductID, &lot.BatchNumber, &lot.Unit, &lot.CurrentStock, &lot.ExpiresAt, &lot.Status, &lot.CreatedAt); err != nil {
		return nil, err
	}

	if err := insertMovement(ctx, tx, &lot.ID, productID, qty, kind, note); err != nil {
		return nil, err
	}
	if err := bumpAggregate(ctx, tx, productID, qty); err != nil {
		return nil, err
	}
	return &lot, nil
}

// TopUpLot доливает существующую партию (закупка ссылается на уже заведённый лот).
func (l *Ledger) TopUpLot(ctx context.Context, productID, lotID int64, qty float64) error {
	if qty <= 0 {
		return fmt.Errorf("qty must be > 0")
	}
	return l.RunInTx(ctx, func(tx pgx.Tx) error {
		if _, _, err := lockProduct(ctx, tx, productID); err != nil {
			return err
		}
		cur, status, err := lockLot(ctx, tx, lotID, productID)
		if err != nil {
			return err
		}

		next := cur + qty
		nextStatus := status
		if status == lots.StatusDepleted {
			nextStatus = lots.StatusActive
		}
		if _, err := tx.Exec(ctx, `
			UPDATE lots SET current_stock = $2, status = $3 WHERE id = $1
		`, lotID, next, nextStatus); err != nil {
			return err
		}
		if err := insertMovement(ctx, tx, &lotID, productID, qty, stock.MovePurchase, "lot top-up"); err != nil {
			return err
		}
		return bumpAggregate(ctx, tx, productID, qty)
	})
}

// ExpireDue помечает партии с истёкшим сроком как expired и выводит их остаток
// из совокупного кэша. Сами партии не обнуляются — это запись для аудита.
func (l *Ledger) ExpireDue(ctx context.Context, now time.Time) ([]ExpiredLot, error) {
	var swept []ExpiredLot
	err := l.RunInTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, product_id, batch_number, current_stock
			FROM lots
			WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at < $1
			ORDER BY product_id, id
			FOR UPDATE
		`, now)
		if err != nil {
			return err
		}
		var due []ExpiredLot
		for rows.Next() {
			var e ExpiredLot
			if err := rows.Scan(&e.LotID, &e.ProductID, &e.BatchNumber, &e.Qty); err != nil {
				rows.Close()
				return err
			}
			due = append(due, e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, e := range due {
			if _, err := tx.Exec(ctx, `
				UPDATE lots SET status = 'expired' WHERE id = $1
			`, e.LotID); err != nil {
				return err
			}
			if e.Qty > 0 {
				lotID := e.LotID
				if err := insertMovement(ctx, tx, &lotID, e.ProductID, -e.Qty, stock.MoveExpiry, "expired lot removed from stock"); err != nil {
					return err
				}
				if err := bumpAggregate(ctx, tx, e.ProductID, -e.Qty); err != nil {
					return err
				}
			}
			swept = append(swept, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return swept, nil
}

// Movements возвращает последние движения по товару (журнал аудита).
func (l *Ledger) Movements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.pool.Query(ctx, `
		SELECT id, lot_id, product_id, qty, kind, note, created_at
		FROM movements
		WHERE product_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.LotID, &m.ProductID, &m.Qty, &m.Kind, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

/* Внутреннее */

var errLotConflict = errors.New("lot state conflict")

// nextLotState — чистая арифметика одной строки плана: новый остаток
// и статус партии, либо errLotConflict, когда партия в текущем состоянии
// операцию не переживёт. Consume и Restore симметричны: возврат тех же
// количеств возвращает партию в исходное состояние.
func nextLotState(cur float64, status lots.Status, qty float64, dir stock.Direction) (float64, lots.Status, error) {
	if qty <= 0 {
		return 0, "", fmt.Errorf("qty must be > 0")
	}

	var next float64
	switch dir {
	case stock.Consume:
		if status == lots.StatusExpired || cur < qty {
			return 0, "", errLotConflict
		}
		next = cur - qty
	case stock.Restore:
		// Просроченную партию sweep уже вывел из совокупного кэша:
		// возврат в неё разъехался бы со сверкой.
		if status == lots.StatusExpired {
			return 0, "", errLotConflict
		}
		next = cur + qty
	default:
		return 0, "", fmt.Errorf("unknown direction %q", dir)
	}

	nextStatus := status
	if next == 0 {
		nextStatus = lots.StatusDepleted
	} else if status == lots.StatusDepleted && next > 0 {
		nextStatus = lots.StatusActive
	}
	return next, nextStatus, nil
}

func lockProduct(ctx context.Context, tx pgx.Tx, productID int64) (float64, bool, error) {
	var (
		cur         float64
		managesLots bool
	)
	err := tx.QueryRow(ctx, `
		SELECT stock, manages_lots FROM products WHERE id = $1 FOR UPDATE
	`, productID).Scan(&cur, &managesLots)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, stock.ErrNotFound
	}
	return cur, managesLots, err
}

func lockLot(ctx context.Context, tx pgx.Tx, lotID, productID int64) (float64, lots.Status, error) {
	var (
		cur    float64
		status lots.Status
	)
	err := tx.QueryRow(ctx, `
		SELECT current_stock, status FROM lots WHERE id = $1 AND product_id = $2 FOR UPDATE
	`, lotID, productID).Scan(&cur, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", stock.ErrNotFound
	}
	return cur, status, err
}

func bumpAggregate(ctx context.Context, tx pgx.Tx, productID int64, delta float64) error {
	var next float64
	err := tx.QueryRow(ctx, `
		UPDATE products SET stock = stock + $2 WHERE id = $1 RETURNING stock
	`, productID, delta).Scan(&next)
	if err != nil {
		return err
	}
	if next < 0 {
		// Кэш разъехался с партиями — прерываемся, ничего не фиксируем.
		return &stock.ConflictError{ProductID: productID}
	}
	return nil
}

func insertMovement(ctx context.Context, tx pgx.Tx, lotID *int64, productID int64, qty float64, kind stock.MoveKind, note string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO movements (lot_id, product_id, qty, kind, note)
		VALUES ($1,$2,$3,$4,$5)
	`, lotID, productID, qty, string(kind), note)
	return err
}
