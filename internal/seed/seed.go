// Package seed loads a product and recipe catalog from a YAML file.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/mamadbah2/pantry/internal/domain/models"
)

// File is the YAML document layout. Quantities are strings so that values
// such as 0.1 keep their exact decimal form.
type File struct {
	Products []ProductEntry `yaml:"products"`
	Recipes  []RecipeEntry  `yaml:"recipes"`
}

// ProductEntry is one product with its opening balance.
type ProductEntry struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Unit     string `yaml:"unit"`
	Quantity string `yaml:"quantity"`
}

// RecipeEntry is one recipe.
type RecipeEntry struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Ingredients []IngredientEntry `yaml:"ingredients"`
}

// IngredientEntry is one recipe line. Unit defaults to the product's unit.
type IngredientEntry struct {
	ProductID          string `yaml:"productId"`
	QuantityPerPortion string `yaml:"quantityPerPortion"`
	Unit               string `yaml:"unit"`
}

// Writer is the store surface seeding needs.
type Writer interface {
	UpsertProduct(ctx context.Context, product models.Product) error
	UpsertRecipe(ctx context.Context, recipe models.Recipe) error
}

// Result counts what Apply wrote.
type Result struct {
	Products int
	Recipes  int
}

// LoadFile reads and parses a seed file.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a seed document. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return &file, nil
		}
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	return &file, nil
}

// Catalog validates the file and converts it to domain models.
func (f *File) Catalog(now time.Time) ([]models.Product, []models.Recipe, error) {
	products := make([]models.Product, 0, len(f.Products))
	units := make(map[string]string, len(f.Products))

	for i, entry := range f.Products {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			return nil, nil, fmt.Errorf("products[%d]: id is required", i)
		}
		if _, dup := units[id]; dup {
			return nil, nil, fmt.Errorf("products[%d]: duplicate id %q", i, id)
		}
		qty, err := parseQuantity(entry.Quantity, true)
		if err != nil {
			return nil, nil, fmt.Errorf("products[%d] %s: %w", i, id, err)
		}
		units[id] = entry.Unit
		products = append(products, models.Product{
			ID:        id,
			Name:      entry.Name,
			Unit:      entry.Unit,
			Quantity:  qty,
			UpdatedAt: now,
		})
	}

	recipes := make([]models.Recipe, 0, len(f.Recipes))
	seen := make(map[string]struct{}, len(f.Recipes))
	for i, entry := range f.Recipes {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			return nil, nil, fmt.Errorf("recipes[%d]: id is required", i)
		}
		if _, dup := seen[id]; dup {
			return nil, nil, fmt.Errorf("recipes[%d]: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}

		recipe := models.Recipe{ID: id, Name: entry.Name, Ingredients: make([]models.IngredientLine, 0, len(entry.Ingredients))}
		for j, ing := range entry.Ingredients {
			if strings.TrimSpace(ing.ProductID) == "" {
				return nil, nil, fmt.Errorf("recipes[%d].ingredients[%d]: productId is required", i, j)
			}
			qty, err := parseQuantity(ing.QuantityPerPortion, false)
			if err != nil {
				return nil, nil, fmt.Errorf("recipes[%d].ingredients[%d]: %w", i, j, err)
			}
			unit := ing.Unit
			if unit == "" {
				unit = units[ing.ProductID]
			}
			recipe.Ingredients = append(recipe.Ingredients, models.IngredientLine{
				ProductID:          ing.ProductID,
				QuantityPerPortion: qty,
				Unit:               unit,
			})
		}
		recipes = append(recipes, recipe)
	}

	return products, recipes, nil
}

// Apply upserts every product, then every recipe.
func Apply(ctx context.Context, w Writer, f *File, now time.Time) (Result, error) {
	products, recipes, err := f.Catalog(now.UTC())
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, p := range products {
		if err := w.UpsertProduct(ctx, p); err != nil {
			return res, fmt.Errorf("upsert product %s: %w", p.ID, err)
		}
		res.Products++
	}
	for _, r := range recipes {
		if err := w.UpsertRecipe(ctx, r); err != nil {
			return res, fmt.Errorf("upsert recipe %s: %w", r.ID, err)
		}
		res.Recipes++
	}
	return res, nil
}

func parseQuantity(raw string, allowZero bool) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Decimal{}, fmt.Errorf("quantity is required")
	}
	qty, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("quantity %q is not a number", raw)
	}
	if qty.IsNegative() || (!allowZero && qty.IsZero()) {
		return decimal.Decimal{}, fmt.Errorf("quantity %s is out of range", qty)
	}
	return qty, nil
}
