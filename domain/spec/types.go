package spec

import "strings"

// Category classifies a specification parameter. The set follows the
// question groups used in ingredient compliance masters.
type Category string

const (
	CategoryNutrient        Category = "Nutrient"
	CategoryDietary         Category = "Dietary"
	CategoryAllergen        Category = "Allergen"
	CategoryGMO             Category = "GMO"
	CategorySafety          Category = "Safety"
	CategoryComposition     Category = "Composition"
	CategoryMicrobiological Category = "Microbiological"
	CategoryRegulatory      Category = "Regulatory"
	CategoryOther           Category = "Other"
)

// ParseCategory maps free-text category labels onto the closed set.
// Unknown labels fall back to CategoryOther.
func ParseCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nutrient", "nutrients", "nutrition", "nutritional":
		return CategoryNutrient
	case "dietary", "diet":
		return CategoryDietary
	case "allergen", "allergens", "allergy":
		return CategoryAllergen
	case "gmo", "gm", "genetic":
		return CategoryGMO
	case "safety", "contaminant", "contaminants", "heavy metals":
		return CategorySafety
	case "composition", "ingredient", "ingredients":
		return CategoryComposition
	case "microbiological", "microbiology", "micro":
		return CategoryMicrobiological
	case "regulatory", "regulation", "regulations", "compliance":
		return CategoryRegulatory
	default:
		return CategoryOther
	}
}

// CellRef addresses a single cell in the master workbook.
type CellRef struct {
	Sheet string
	Cell  string // A1-style coordinate, e.g. "B4"
}

func (c CellRef) String() string {
	if c.Sheet == "" {
		return c.Cell
	}
	return c.Sheet + "!" + c.Cell
}

// Row is one expected parameter from the master specification file.
// SourceCell points at the expected-value cell and is immutable after load.
type Row struct {
	Name          string
	ExpectedValue string
	Unit          string
	Category      Category
	SourceCell    CellRef
	Index         int // position in load (source row) order
}

// Comparable reports whether the row carries an expected value. Rows
// without one are informational and are never sent to the comparator.
func (r Row) Comparable() bool {
	return strings.TrimSpace(r.ExpectedValue) != ""
}
