package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile describes the optional startup seed document:
//
//	categories:
//	  - Dessert
//	  - Végétarien
//	recipes:
//	  - name: Gâteau au Yaourt
//	    description: Gâteau très simple à réaliser
//	    categories: [Dessert]
//	ingredients:
//	  - name: Farine
//	    calories: 364
//	    color: blanc
type SeedFile struct {
	Categories []string `yaml:"categories"`
	Recipes    []struct {
		Name        string   `yaml:"name"`
		Description string   `yaml:"description"`
		Categories  []string `yaml:"categories"`
	} `yaml:"recipes"`
	Ingredients []struct {
		Name     string `yaml:"name"`
		Calories int    `yaml:"calories"`
		Color    string `yaml:"color"`
	} `yaml:"ingredients"`
}

// BootstrapSeed loads cfg.SeedFile (if set) and inserts any category,
// recipe or ingredient that is not already present, keyed by name.
func BootstrapSeed(ctx context.Context, cfg Config, categories CategoryRepository, recipes RecipeRepository, ingredients IngredientRepository) error {
	if cfg.SeedFile == "" {
		return nil
	}

	raw, err := os.ReadFile(cfg.SeedFile)
	if err != nil {
		return fmt.Errorf("read seed file %s: %w", cfg.SeedFile, err)
	}
	var doc SeedFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse seed file %s: %w", cfg.SeedFile, err)
	}

	byName := map[string]int64{}
	for _, name := range doc.Categories {
		cat, err := findOrCreateCategory(ctx, categories, name)
		if err != nil {
			return err
		}
		byName[cat.Name] = cat.ID
	}

	for _, rec := range doc.Recipes {
		if rec.Name == "" {
			continue
		}
		// Skip recipes that already exist (seeding is idempotent).
		if _, err := recipes.FindByName(ctx, rec.Name); err == nil {
			continue
		} else if !errors.Is(err, ErrRecipeNotFound) {
			return err
		}
		var catIDs []int64
		for _, cn := range rec.Categories {
			cat, err := findOrCreateCategory(ctx, categories, cn)
			if err != nil {
				return err
			}
			catIDs = append(catIDs, cat.ID)
		}
		if _, err := recipes.Create(ctx, rec.Name, rec.Description, "", catIDs); err != nil {
			return err
		}
		log.Printf("seeded recipe %q", rec.Name)
	}

	if len(doc.Ingredients) > 0 {
		existing, err := ingredients.List(ctx)
		if err != nil {
			return err
		}
		have := map[string]struct{}{}
		for _, ing := range existing {
			have[ing.Name] = struct{}{}
		}
		for _, ing := range doc.Ingredients {
			if ing.Name == "" {
				continue
			}
			if _, ok := have[ing.Name]; ok {
				continue
			}
			if _, err := ingredients.Create(ctx, ing.Name, ing.Calories, ing.Color); err != nil {
				return err
			}
		}
	}

	return nil
}

func findOrCreateCategory(ctx context.Context, categories CategoryRepository, name string) (*Category, error) {
	cat, err := categories.FindByName(ctx, name)
	if err == nil {
		return cat, nil
	}
	if !errors.Is(err, ErrCategoryNotFound) {
		return nil, err
	}
	return categories.Create(ctx, name)
}
