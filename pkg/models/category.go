package models

import "strings"

// Category classifies a task by the area of the project it touches.
type Category string

const (
	// CategoryUI covers visual components, pages, and styling.
	CategoryUI Category = "UI"
	// CategoryBackend covers APIs, services, and server logic.
	CategoryBackend Category = "Backend"
	// CategoryDatabase covers schemas, migrations, and queries.
	CategoryDatabase Category = "Database"
	// CategoryTesting covers unit, integration, and end-to-end tests.
	CategoryTesting Category = "Testing"
	// CategoryDeployment covers builds, releases, and infrastructure rollout.
	CategoryDeployment Category = "Deployment"
	// CategoryDocumentation covers READMEs, guides, and API docs.
	CategoryDocumentation Category = "Documentation"
	// CategoryGeneral is the fallback when nothing more specific applies.
	CategoryGeneral Category = "General"
)

// AllCategories lists the known categories in their canonical order.
var AllCategories = []Category{
	CategoryUI,
	CategoryBackend,
	CategoryDatabase,
	CategoryTesting,
	CategoryDeployment,
	CategoryDocumentation,
	CategoryGeneral,
}

// Valid returns true if the category is a known value.
func (c Category) Valid() bool {
	switch c {
	case CategoryUI, CategoryBackend, CategoryDatabase, CategoryTesting,
		CategoryDeployment, CategoryDocumentation, CategoryGeneral:
		return true
	default:
		return false
	}
}

// ParseCategory converts a case-insensitive name into a Category.
// Unknown names map to CategoryGeneral and ok=false.
func ParseCategory(s string) (Category, bool) {
	for _, c := range AllCategories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, true
		}
	}
	return CategoryGeneral, false
}
