package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type memCategoryRepo struct {
	nextID int64
	items  []Category
}

func (r *memCategoryRepo) List(_ context.Context) ([]Category, error) {
	return r.items, nil
}

func (r *memCategoryRepo) Get(_ context.Context, id int64) (*Category, error) {
	for _, c := range r.items {
		if c.ID == id {
			cp := c
			return &cp, nil
		}
	}
	return nil, ErrCategoryNotFound
}

func (r *memCategoryRepo) Create(_ context.Context, name string) (*Category, error) {
	r.nextID++
	c := Category{ID: r.nextID, Name: strings.TrimSpace(name)}
	r.items = append(r.items, c)
	return &c, nil
}

func (r *memCategoryRepo) FindByName(_ context.Context, name string) (*Category, error) {
	for _, c := range r.items {
		if c.Name == name {
			cp := c
			return &cp, nil
		}
	}
	return nil, ErrCategoryNotFound
}

type memRecipeRepo struct {
	nextID int64
	items  []Recipe
}

func (r *memRecipeRepo) List(_ context.Context, page, perPage int) ([]Recipe, int, error) {
	return r.items, len(r.items), nil
}

func (r *memRecipeRepo) ListByCategory(_ context.Context, categoryID int64, page, perPage int) ([]Recipe, int, error) {
	return nil, 0, nil
}

func (r *memRecipeRepo) Search(_ context.Context, name string, page, perPage int) ([]Recipe, int, error) {
	var hits []Recipe
	needle := strings.ToLower(name)
	for _, rec := range r.items {
		if strings.Contains(strings.ToLower(rec.Name), needle) {
			hits = append(hits, rec)
		}
	}
	total := len(hits)
	lo := (page - 1) * perPage
	if lo > total {
		lo = total
	}
	hi := lo + perPage
	if hi > total {
		hi = total
	}
	return hits[lo:hi], total, nil
}

func (r *memRecipeRepo) Get(_ context.Context, id int64) (*Recipe, error) {
	for _, rec := range r.items {
		if rec.ID == id {
			cp := rec
			return &cp, nil
		}
	}
	return nil, ErrRecipeNotFound
}

func (r *memRecipeRepo) FindByName(_ context.Context, name string) (*Recipe, error) {
	for _, rec := range r.items {
		if rec.Name == name {
			cp := rec
			return &cp, nil
		}
	}
	return nil, ErrRecipeNotFound
}

func (r *memRecipeRepo) Create(_ context.Context, name, description, imagePath string, categoryIDs []int64) (*Recipe, error) {
	r.nextID++
	rec := Recipe{ID: r.nextID, Name: name, Description: description, ImagePath: imagePath, CategoryIDs: categoryIDs}
	r.items = append(r.items, rec)
	return &rec, nil
}

func (r *memRecipeRepo) Update(_ context.Context, id int64, name, description, imagePath string, categoryIDs []int64) (*Recipe, error) {
	for i := range r.items {
		if r.items[i].ID == id {
			r.items[i].Name = name
			r.items[i].Description = description
			cp := r.items[i]
			return &cp, nil
		}
	}
	return nil, ErrRecipeNotFound
}

func (r *memRecipeRepo) Delete(_ context.Context, id int64) (string, error) {
	for i := range r.items {
		if r.items[i].ID == id {
			path := r.items[i].ImagePath
			r.items = append(r.items[:i], r.items[i+1:]...)
			return path, nil
		}
	}
	return "", ErrRecipeNotFound
}

func (r *memRecipeRepo) countNamed(name string) int {
	n := 0
	for _, rec := range r.items {
		if rec.Name == name {
			n++
		}
	}
	return n
}

type memIngredientRepo struct {
	nextID int64
	items  []Ingredient
}

func (r *memIngredientRepo) List(_ context.Context) ([]Ingredient, error) {
	return r.items, nil
}

func (r *memIngredientRepo) Create(_ context.Context, name string, calories int, color string) (*Ingredient, error) {
	r.nextID++
	ing := Ingredient{ID: r.nextID, Name: name, Calories: calories, Color: color}
	r.items = append(r.items, ing)
	return &ing, nil
}

func writeSeedFile(t *testing.T, content string) Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	return Config{SeedFile: path}
}

const seedDoc = `
categories:
  - Dessert
recipes:
  - name: Tarte
    description: Fond de pâte et garniture
    categories: [Dessert]
ingredients:
  - name: Farine
    calories: 364
    color: blanc
`

func TestBootstrapSeedIdempotent(t *testing.T) {
	cfg := writeSeedFile(t, seedDoc)
	cats := &memCategoryRepo{}
	recipes := &memRecipeRepo{}
	ingredients := &memIngredientRepo{}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := BootstrapSeed(ctx, cfg, cats, recipes, ingredients); err != nil {
			t.Fatalf("BootstrapSeed run %d error: %v", i+1, err)
		}
	}

	if n := recipes.countNamed("Tarte"); n != 1 {
		t.Fatalf("recipe seeded %d times, want 1", n)
	}
	if len(cats.items) != 1 {
		t.Fatalf("categories = %d, want 1", len(cats.items))
	}
	if len(ingredients.items) != 1 {
		t.Fatalf("ingredients = %d, want 1", len(ingredients.items))
	}
}

func TestBootstrapSeedExactNameMatch(t *testing.T) {
	cfg := writeSeedFile(t, seedDoc)
	cats := &memCategoryRepo{}
	recipes := &memRecipeRepo{}
	ingredients := &memIngredientRepo{}
	ctx := context.Background()

	// A longer name containing the seed name, with a lower id. The existence
	// check must match on the exact name, not a substring page.
	if _, err := recipes.Create(ctx, "Tarte aux pommes", "", "", nil); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := BootstrapSeed(ctx, cfg, cats, recipes, ingredients); err != nil {
			t.Fatalf("BootstrapSeed run %d error: %v", i+1, err)
		}
	}

	if n := recipes.countNamed("Tarte"); n != 1 {
		t.Fatalf("recipe seeded %d times, want 1", n)
	}
	if n := recipes.countNamed("Tarte aux pommes"); n != 1 {
		t.Fatalf("pre-existing recipe duplicated, %d records", n)
	}
}

func TestBootstrapSeedNoFileIsNoop(t *testing.T) {
	recipes := &memRecipeRepo{}
	if err := BootstrapSeed(context.Background(), Config{}, &memCategoryRepo{}, recipes, &memIngredientRepo{}); err != nil {
		t.Fatalf("BootstrapSeed error: %v", err)
	}
	if len(recipes.items) != 0 {
		t.Fatalf("unexpected seeding without a seed file: %d recipes", len(recipes.items))
	}
}
