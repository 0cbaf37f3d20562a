package core

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Ingredient is a catalog entry: a name, calorie count and color.
type Ingredient struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Calories int    `json:"calories"`
	Color    string `json:"color"`
}

type IngredientRepository interface {
	List(ctx context.Context) ([]Ingredient, error)
	Create(ctx context.Context, name string, calories int, color string) (*Ingredient, error)
}

type PgIngredientRepository struct {
	db *pgxpool.Pool
}

func NewPgIngredientRepository(db *pgxpool.Pool) *PgIngredientRepository {
	return &PgIngredientRepository{db: db}
}

func (r *PgIngredientRepository) List(ctx context.Context) ([]Ingredient, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, calories, COALESCE(color,'') FROM ingredients ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Ingredient
	for rows.Next() {
		var ing Ingredient
		if err := rows.Scan(&ing.ID, &ing.Name, &ing.Calories, &ing.Color); err != nil {
			return nil, err
		}
		items = append(items, ing)
	}
	return items, rows.Err()
}

func (r *PgIngredientRepository) Create(ctx context.Context, name string, calories int, color string) (*Ingredient, error) {
	name = strings.TrimSpace(name)
	const q = `INSERT INTO ingredients (name, calories, color) VALUES ($1,$2,$3) RETURNING id`
	var ing Ingredient
	if err := r.db.QueryRow(ctx, q, name, calories, color).Scan(&ing.ID); err != nil {
		return nil, err
	}
	ing.Name = name
	ing.Calories = calories
	ing.Color = color
	return &ing, nil
}
