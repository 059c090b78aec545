package mongodb

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mamadbah2/pantry/internal/domain/models"
)

// Quantities are stored as Decimal128 so that $inc and $gte stay exact.

type productDoc struct {
	ID        string               `bson:"_id"`
	Name      string               `bson:"name"`
	Unit      string               `bson:"unit"`
	Quantity  primitive.Decimal128 `bson:"quantity"`
	UpdatedAt time.Time            `bson:"updatedAt"`
}

type ingredientDoc struct {
	ProductID          string               `bson:"productId"`
	QuantityPerPortion primitive.Decimal128 `bson:"quantityPerPortion"`
	Unit               string               `bson:"unit"`
}

type recipeDoc struct {
	ID          string          `bson:"_id"`
	Name        string          `bson:"name"`
	Ingredients []ingredientDoc `bson:"ingredients"`
}

type sourceDoc struct {
	Kind       string                `bson:"kind"`
	RecipeID   string                `bson:"recipeId,omitempty"`
	RecipeName string                `bson:"recipeName,omitempty"`
	Portions   *primitive.Decimal128 `bson:"portions,omitempty"`
}

type lineDoc struct {
	ProductID   string               `bson:"productId"`
	ProductName string               `bson:"productName,omitempty"`
	Quantity    primitive.Decimal128 `bson:"quantity"`
	Unit        string               `bson:"unit"`
}

type issueDoc struct {
	ID          string    `bson:"_id"`
	CreatedAt   time.Time `bson:"createdAt"`
	Description string    `bson:"description"`
	Reference   string    `bson:"reference,omitempty"`
	Source      sourceDoc `bson:"source"`
	Lines       []lineDoc `bson:"lines"`
}

type usageLineDoc struct {
	ProductID   string               `bson:"productId"`
	ProductName string               `bson:"productName,omitempty"`
	Unit        string               `bson:"unit"`
	Quantity    primitive.Decimal128 `bson:"quantity"`
}

type usageReportDoc struct {
	Date       time.Time      `bson:"date"`
	IssueCount int            `bson:"issueCount"`
	CookCount  int            `bson:"cookCount"`
	Lines      []usageLineDoc `bson:"lines"`
	CreatedAt  time.Time      `bson:"createdAt"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("encode quantity %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode quantity %s: %w", v, err)
	}
	return d, nil
}

func newProductDoc(p models.Product) (productDoc, error) {
	qty, err := toDecimal128(p.Quantity)
	if err != nil {
		return productDoc{}, err
	}
	return productDoc{ID: p.ID, Name: p.Name, Unit: p.Unit, Quantity: qty, UpdatedAt: p.UpdatedAt}, nil
}

func (d productDoc) model() (models.Product, error) {
	qty, err := fromDecimal128(d.Quantity)
	if err != nil {
		return models.Product{}, err
	}
	return models.Product{ID: d.ID, Name: d.Name, Unit: d.Unit, Quantity: qty, UpdatedAt: d.UpdatedAt}, nil
}

func newRecipeDoc(r models.Recipe) (recipeDoc, error) {
	doc := recipeDoc{ID: r.ID, Name: r.Name, Ingredients: make([]ingredientDoc, 0, len(r.Ingredients))}
	for _, ing := range r.Ingredients {
		qty, err := toDecimal128(ing.QuantityPerPortion)
		if err != nil {
			return recipeDoc{}, err
		}
		doc.Ingredients = append(doc.Ingredients, ingredientDoc{ProductID: ing.ProductID, QuantityPerPortion: qty, Unit: ing.Unit})
	}
	return doc, nil
}

func (d recipeDoc) model() (models.Recipe, error) {
	r := models.Recipe{ID: d.ID, Name: d.Name, Ingredients: make([]models.IngredientLine, 0, len(d.Ingredients))}
	for _, ing := range d.Ingredients {
		qty, err := fromDecimal128(ing.QuantityPerPortion)
		if err != nil {
			return models.Recipe{}, err
		}
		r.Ingredients = append(r.Ingredients, models.IngredientLine{ProductID: ing.ProductID, QuantityPerPortion: qty, Unit: ing.Unit})
	}
	return r, nil
}

func newIssueDoc(rec models.IssueRecord) (issueDoc, error) {
	doc := issueDoc{
		ID:          rec.ID,
		CreatedAt:   rec.CreatedAt,
		Description: rec.Description,
		Reference:   rec.Reference,
		Source: sourceDoc{
			Kind:       string(rec.Source.Kind),
			RecipeID:   rec.Source.RecipeID,
			RecipeName: rec.Source.RecipeName,
		},
		Lines: make([]lineDoc, 0, len(rec.Lines)),
	}
	if rec.Source.Portions != nil {
		portions, err := toDecimal128(*rec.Source.Portions)
		if err != nil {
			return issueDoc{}, err
		}
		doc.Source.Portions = &portions
	}
	for _, line := range rec.Lines {
		qty, err := toDecimal128(line.Quantity)
		if err != nil {
			return issueDoc{}, err
		}
		doc.Lines = append(doc.Lines, lineDoc{ProductID: line.ProductID, ProductName: line.ProductName, Quantity: qty, Unit: line.Unit})
	}
	return doc, nil
}

func (d issueDoc) model() (models.IssueRecord, error) {
	rec := models.IssueRecord{
		ID:          d.ID,
		CreatedAt:   d.CreatedAt.UTC(),
		Description: d.Description,
		Reference:   d.Reference,
		Source: models.IssueSource{
			Kind:       models.IssueSourceKind(d.Source.Kind),
			RecipeID:   d.Source.RecipeID,
			RecipeName: d.Source.RecipeName,
		},
		Lines: make([]models.IssueLine, 0, len(d.Lines)),
	}
	if d.Source.Portions != nil {
		portions, err := fromDecimal128(*d.Source.Portions)
		if err != nil {
			return models.IssueRecord{}, err
		}
		rec.Source.Portions = &portions
	}
	for _, line := range d.Lines {
		qty, err := fromDecimal128(line.Quantity)
		if err != nil {
			return models.IssueRecord{}, err
		}
		rec.Lines = append(rec.Lines, models.IssueLine{ProductID: line.ProductID, ProductName: line.ProductName, Quantity: qty, Unit: line.Unit})
	}
	return rec, nil
}

func newUsageReportDoc(r models.UsageReport) (usageReportDoc, error) {
	doc := usageReportDoc{
		Date:       r.Date,
		IssueCount: r.IssueCount,
		CookCount:  r.CookCount,
		Lines:      make([]usageLineDoc, 0, len(r.Lines)),
		CreatedAt:  r.CreatedAt,
	}
	for _, line := range r.Lines {
		qty, err := toDecimal128(line.Quantity)
		if err != nil {
			return usageReportDoc{}, err
		}
		doc.Lines = append(doc.Lines, usageLineDoc{ProductID: line.ProductID, ProductName: line.ProductName, Unit: line.Unit, Quantity: qty})
	}
	return doc, nil
}
