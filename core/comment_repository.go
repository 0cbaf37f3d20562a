package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Comment is a user remark on a recipe with a 1..5 rating.
type Comment struct {
	ID         int64     `json:"id"`
	RecipeID   int64     `json:"recipe_id"`
	UserID     int64     `json:"user_id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	Rating     int       `json:"rating"`
	CreatedAt  time.Time `json:"created_at"`
}

type CommentRepository interface {
	ListByRecipe(ctx context.Context, recipeID int64) ([]Comment, error)
	Create(ctx context.Context, recipeID, userID int64, text string, rating int) (*Comment, error)
}

type PgCommentRepository struct {
	db *pgxpool.Pool
}

func NewPgCommentRepository(db *pgxpool.Pool) *PgCommentRepository {
	return &PgCommentRepository{db: db}
}

func (r *PgCommentRepository) ListByRecipe(ctx context.Context, recipeID int64) ([]Comment, error) {
	const q = `
SELECT cm.id, cm.recipe_id, cm.user_id, COALESCE(u.name,''), cm.text, cm.rating, cm.created_at
FROM comments cm
LEFT JOIN users u ON u.id = cm.user_id
WHERE cm.recipe_id=$1
ORDER BY cm.created_at DESC, cm.id DESC`
	rows, err := r.db.Query(ctx, q, recipeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Comment
	for rows.Next() {
		var cm Comment
		if err := rows.Scan(&cm.ID, &cm.RecipeID, &cm.UserID, &cm.AuthorName, &cm.Text, &cm.Rating, &cm.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, cm)
	}
	return items, rows.Err()
}

func (r *PgCommentRepository) Create(ctx context.Context, recipeID, userID int64, text string, rating int) (*Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty comment text")
	}
	if rating < 1 || rating > 5 {
		return nil, errors.New("rating must be between 1 and 5")
	}
	const q = `INSERT INTO comments (recipe_id, user_id, text, rating) VALUES ($1,$2,$3,$4) RETURNING id, created_at`
	var cm Comment
	if err := r.db.QueryRow(ctx, q, recipeID, userID, text, rating).Scan(&cm.ID, &cm.CreatedAt); err != nil {
		return nil, err
	}
	cm.RecipeID = recipeID
	cm.UserID = userID
	cm.Text = text
	cm.Rating = rating
	return &cm, nil
}
