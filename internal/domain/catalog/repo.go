package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spok95/gastro-stock/internal/domain/stock"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) Create(ctx context.Context, name string, unit Unit, managesLots bool) (*Product, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO products (name, unit, manages_lots, stock, active)
		VALUES ($1,$2,$3,0,TRUE)
		RETURNING id, name, unit, manages_lots, stock, active, created_at
	`, name, unit, managesLots)
	return scanProduct(row)
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*Product, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, unit, manages_lots, stock, active, created_at
		FROM products
		WHERE id = $1
	`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, stock.ErrNotFound
	}
	return p, err
}

func (r *Repo) List(ctx context.Context, onlyActive bool) ([]Product, error) {
	q := `
		SELECT id, name, unit, manages_lots, stock, active, created_at
		FROM products
	`
	if onlyActive {
		q += ` WHERE active`
	}
	q += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Unit, &p.ManagesLots, &p.Stock, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) SetActive(ctx context.Context, id int64, active bool) error {
	ct, err := r.pool.Exec(ctx, `UPDATE products SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return stock.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	if err := row.Scan(&p.ID, &p.Name, &p.Unit, &p.ManagesLots, &p.Stock, &p.Active, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
