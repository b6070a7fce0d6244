package production

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spok95/gastro-stock/internal/domain/stock"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) Create(ctx context.Context, name string, productID int64, servings float64, ings []Ingredient) (*Recipe, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec := Recipe{Name: name, Status: StatusInPreparation, ProductID: productID, Servings: servings}
	row := tx.QueryRow(ctx, `
		INSERT INTO recipes (name, status, product_id, servings)
		VALUES ($1,'in_preparation',$2,$3)
		RETURNING id, created_at, updated_at
	`, name, productID, servings)
	if err := row.Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}

	for _, ing := range ings {
		var ins Ingredient
		row := tx.QueryRow(ctx, `
			INSERT INTO recipe_ingredients (recipe_id, product_id, name, qty, unit, cost)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING id
		`, rec.ID, ing.ProductID, ing.Name, ing.Qty, ing.Unit, ing.Cost)
		ins = ing
		ins.RecipeID = rec.ID
		if err := row.Scan(&ins.ID); err != nil {
			return nil, err
		}
		rec.Ingredients = append(rec.Ingredients, ins)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*Recipe, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, status, product_id, servings, created_at, updated_at
		FROM recipes
		WHERE id = $1
	`, id)
	var rec Recipe
	err := row.Scan(&rec.ID, &rec.Name, &rec.Status, &rec.ProductID, &rec.Servings, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, stock.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	ings, err := r.ingredients(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Ingredients = ings
	return &rec, nil
}

// ReplaceIngredients перезаписывает состав рецепта. На уже применённые дельты
// (снимок в recipe_applications) правки не влияют.
func (r *Repo) ReplaceIngredients(ctx context.Context, recipeID int64, ings []Ingredient) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `UPDATE recipes SET updated_at = now() WHERE id = $1`, recipeID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return stock.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM recipe_ingredients WHERE recipe_id = $1`, recipeID); err != nil {
		return err
	}
	for _, ing := range ings {
		if _, err := tx.Exec(ctx, `
			INSERT INTO recipe_ingredients (recipe_id, product_id, name, qty, unit, cost)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, recipeID, ing.ProductID, ing.Name, ing.Qty, ing.Unit, ing.Cost); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) List(ctx context.Context) ([]Recipe, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, status, product_id, servings, created_at, updated_at
		FROM recipes
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Recipe
	for rows.Next() {
		var rec Recipe
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Status, &rec.ProductID, &rec.Servings, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repo) ingredients(ctx context.Context, recipeID int64) ([]Ingredient, error) {
	rows, err := r.pool.Query(ctx, `
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
