package lots

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spok95/gastro-stock/internal/domain/stock"
)

// Repo — хранилище партий. Только чтение: все записи идут через ledger.
type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

// ActiveLots возвращает активные партии с остатком, раньше истекающие — первыми (FEFO).
// Партии без срока годности идут в конец.
func (r *Repo) ActiveLots(ctx context.Context, productID int64) ([]Lot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, product_id, batch_number, unit, current_stock, expires_at, status, created_at
		FROM lots
		WHERE product_id = $1 AND status = 'active' AND current_stock > 0
		ORDER BY COALESCE(expires_at, 'infinity'::timestamptz) ASC, id ASC
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// GetLot возвращает партию и проверяет её принадлежность товару:
// чужая партия для вызывающего неотличима от отсутствующей.
func (r *Repo) GetLot(ctx context.Context, lotID, productID int64) (*Lot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, product_id, batch_number, unit, current_stock, expires_at, status, created_at
		FROM lots
		WHERE id = $1
	`, lotID)
	var l Lot
	err := row.Scan(&l.ID, &l.ProductID, &l.BatchNumber, &l.Unit, &l.CurrentStock, &l.ExpiresAt, &l.Status, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, stock.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if l.ProductID != productID {
		return nil, stock.ErrNotFound
	}
	return &l, nil
}

// ListByProduct возвращает все партии товара, включая исчерпанные и просроченные.
func (r *Repo) ListByProduct(ctx context.Context, productID int64) ([]Lot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, product_id, batch_number, unit, current_stock, expires_at, status, created_at
		FROM lots
		WHERE product_id = $1
		ORDER BY created_at, id
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// ActiveLotsForUpdate — как ActiveLots, но внутри чужой транзакции и с блокировкой
// строк: production подбирает партии под списание, не отпуская их до коммита.
func (r *Repo) ActiveLotsForUpdate(ctx context.Context, tx pgx.Tx, productID int64) ([]Lot, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, product_id, batch_number, unit, current_stock, expires_at, status, created_at
		FROM lots
		WHERE product_id = $1 AND status = 'active' AND current_stock > 0
		ORDER BY COALESCE(expires_at, 'infinity'::timestamptz) ASC, id ASC
		FOR UPDATE
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Lot, error) {
	var out []Lot
	for rows.Next() {
		var l Lot
		if err := rows.Scan(&l.ID, &l.ProductID, &l.BatchNumber, &l.Unit, &l.CurrentStock, &l.ExpiresAt, &l.Status, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
