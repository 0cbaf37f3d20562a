package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRecipeNotFound is returned when a recipe id does not resolve.
var ErrRecipeNotFound = errors.New("recipe not found")

// Recipe is a catalog entry. ImagePath is relative to the upload dir and
// may be empty.
type Recipe struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImagePath   string    `json:"image_path"`
	Categories  []string  `json:"categories"`
	CategoryIDs []int64   `json:"category_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RecipeRepository defines persistence operations for recipes.
type RecipeRepository interface {
	List(ctx context.Context, page, perPage int) ([]Recipe, int, error)
	ListByCategory(ctx context.Context, categoryID int64, page, perPage int) ([]Recipe, int, error)
	Search(ctx context.Context, name string, page, perPage int) ([]Recipe, int, error)
	Get(ctx context.Context, id int64) (*Recipe, error)
	FindByName(ctx context.Context, name string) (*Recipe, error)
	Create(ctx context.Context, name, description, imagePath string, categoryIDs []int64) (*Recipe, error)
	Update(ctx context.Context, id int64, name, description, imagePath string, categoryIDs []int64) (*Recipe, error)
	Delete(ctx context.Context, id int64) (imagePath string, err error)
}

// PgRecipeRepository implements RecipeRepository using pgxpool.
type PgRecipeRepository struct {
	db *pgxpool.Pool
}

func NewPgRecipeRepository(db *pgxpool.Pool) *PgRecipeRepository {
	return &PgRecipeRepository{db: db}
}

const recipeListSelect = `
SELECT r.id, r.name, r.description, COALESCE(r.image_path,''), r.created_at, r.updated_at,
       COALESCE(array_agg(c.name ORDER BY c.name) FILTER (WHERE c.id IS NOT NULL), '{}'),
       COALESCE(array_agg(c.id ORDER BY c.name) FILTER (WHERE c.id IS NOT NULL), '{}')
FROM recipes r
LEFT JOIN recipe_categories rc ON rc.recipe_id = r.id
LEFT JOIN categories c ON c.id = rc.category_id
`

func (r *PgRecipeRepository) List(ctx context.Context, page, perPage int) ([]Recipe, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM recipes`).Scan(&total); err != nil {
		return nil, 0, err
	}
	q := recipeListSelect + `
GROUP BY r.id
ORDER BY r.id
LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, q, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := scanRecipes(rows, perPage)
	return items, total, err
}

func (r *PgRecipeRepository) ListByCategory(ctx context.Context, categoryID int64, page, perPage int) ([]Recipe, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	var total int
	const countQ = `SELECT COUNT(*) FROM recipe_categories WHERE category_id=$1`
	if err := r.db.QueryRow(ctx, countQ, categoryID).Scan(&total); err != nil {
		return nil, 0, err
	}
	q := recipeListSelect + `
WHERE r.id IN (SELECT recipe_id FROM recipe_categories WHERE category_id=$1)
GROUP BY r.id
ORDER BY r.id
LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, q, categoryID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := scanRecipes(rows, perPage)
	return items, total, err
}

// Search matches recipe names case-insensitively on a substring.
func (r *PgRecipeRepository) Search(ctx context.Context, name string, page, perPage int) ([]Recipe, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	pattern := "%" + escapeLike(strings.TrimSpace(name)) + "%"
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM recipes WHERE name ILIKE $1`, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	q := recipeListSelect + `
WHERE r.name ILIKE $1
GROUP BY r.id
ORDER BY r.id
LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, q, pattern, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := scanRecipes(rows, perPage)
	return items, total, err
}

func (r *PgRecipeRepository) Get(ctx context.Context, id int64) (*Recipe, error) {
	q := recipeListSelect + `
WHERE r.id=$1
GROUP BY r.id`
	row := r.db.QueryRow(ctx, q, id)
	var rec Recipe
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Description, &rec.ImagePath, &rec.CreatedAt, &rec.UpdatedAt, &rec.Categories, &rec.CategoryIDs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecipeNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// FindByName resolves a recipe by exact name.
func (r *PgRecipeRepository) FindByName(ctx context.Context, name string) (*Recipe, error) {
	q := recipeListSelect + `
WHERE r.name=$1
GROUP BY r.id`
	row := r.db.QueryRow(ctx, q, strings.TrimSpace(name))
	var rec Recipe
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Description, &rec.ImagePath, &rec.CreatedAt, &rec.UpdatedAt, &rec.Categories, &rec.CategoryIDs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecipeNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (r *PgRecipeRepository) Create(ctx context.Context, name, description, imagePath string, categoryIDs []int64) (*Recipe, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const q = `INSERT INTO recipes (name, description, image_path) VALUES ($1,$2,$3) RETURNING id`
	var id int64
	if err := tx.QueryRow(ctx, q, name, description, imagePath).Scan(&id); err != nil {
		return nil, err
	}
	if err := replaceCategories(ctx, tx, id, categoryIDs); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Update rewrites the recipe row and its category links. An empty imagePath
// keeps the stored one.
func (r *PgRecipeRepository) Update(ctx context.Context, id int64, name, description, imagePath string, categoryIDs []int64) (*Recipe, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const q = `
UPDATE recipes
SET name=$1, description=$2,
    image_path=CASE WHEN $3 <> '' THEN $3 ELSE image_path END,
    updated_at=now()
WHERE id=$4`
	tag, err := tx.Exec(ctx, q, name, description, imagePath, id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrRecipeNotFound
	}
	if categoryIDs != nil {
		if err := replaceCategories(ctx, tx, id, categoryIDs); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Delete removes the recipe and its comments, returning the stored image
// path so the caller can unlink the file.
func (r *PgRecipeRepository) Delete(ctx context.Context, id int64) (string, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	var imagePath string
	if err := tx.QueryRow(ctx, `SELECT COALESCE(image_path,'') FROM recipes WHERE id=$1`, id).Scan(&imagePath); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrRecipeNotFound
		}
		return "", err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM comments WHERE recipe_id=$1`, id); err != nil {
		return "", err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM recipe_categories WHERE recipe_id=$1`, id); err != nil {
		return "", err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM recipes WHERE id=$1`, id); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return imagePath, nil
}

func replaceCategories(ctx context.Context, tx pgx.Tx, recipeID int64, categoryIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM recipe_categories WHERE recipe_id=$1`, recipeID); err != nil {
		return err
	}
	for _, cid := range categoryIDs {
		if _, err := tx.Exec(ctx, `INSERT INTO recipe_categories (recipe_id, category_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, recipeID, cid); err != nil {
			return fmt.Errorf("link category %d: %w", cid, err)
		}
	}
	return nil
}

func scanRecipes(rows pgx.Rows, capHint int) ([]Recipe, error) {
	items := make([]Recipe, 0, capHint)
	for rows.Next() {
		var rec Recipe
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Description, &rec.ImagePath, &rec.CreatedAt, &rec.UpdatedAt, &rec.Categories, &rec.CategoryIDs); err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

// escapeLike neutralizes LIKE metacharacters in user-provided search input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
