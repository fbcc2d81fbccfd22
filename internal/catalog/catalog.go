// Package catalog holds the fixed set of topical categories a refresh run
// searches for.
//
// The built-in table can be replaced by a YAML file listing categories:
//
//	categories:
//	  - id: diagnosis
//	    title: Diagnosis
//	    summary: Early warning signs, imaging, biomarkers, and screening protocols.
//	    query: schizophrenia diagnosis early+identification imaging biomarkers screening
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/helixir/research-feed-service/internal/domain"
)

var defaultCategories = []domain.Category{
	{
		ID:      "diagnosis",
		Title:   "Diagnosis",
		Summary: "Early warning signs, imaging, biomarkers, and screening protocols.",
		Query:   "schizophrenia diagnosis early+identification imaging biomarkers screening",
	},
	{
		ID:      "treatment",
		Title:   "Treatment",
		Summary: "Medication advances, psychosocial interventions, and digital therapies.",
		Query:   `schizophrenia treatment pharmacological psychosocial "digital therapy"`,
	},
	{
		ID:      "prevention",
		Title:   "Prevention",
		Summary: "Risk reduction strategies, prodromal support, and community programs.",
		Query:   "schizophrenia prevention prodromal intervention risk+reduction resilience",
	},
}

// Default returns a copy of the built-in catalog.
func Default() []domain.Category {
	out := make([]domain.Category, len(defaultCategories))
	copy(out, defaultCategories)
	return out
}

type file struct {
	Categories []domain.Category `yaml:"categories"`
}

// Load returns the catalog from path, or the built-in catalog when path is empty.
func Load(path string) ([]domain.Category, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads and validates a YAML catalog file.
func LoadFile(path string) ([]domain.Category, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w: %w", path, domain.ErrInvalidInput, err)
	}

	for i := range f.Categories {
		c := &f.Categories[i]
		c.ID = strings.TrimSpace(c.ID)
		c.Title = strings.TrimSpace(c.Title)
		c.Summary = strings.TrimSpace(c.Summary)
		c.Query = strings.TrimSpace(c.Query)
	}

	if err := Validate(path, f.Categories); err != nil {
		return nil, err
	}
	return f.Categories, nil
}

// Validate checks that a catalog is non-empty and that every category has a
// unique id, a title and a query. All problems are reported together.
func Validate(subject string, categories []domain.Category) error {
	var issues []string
	if len(categories) == 0 {
		issues = append(issues, "Catalog must define at least one category.")
	}

	seen := make(map[string]bool, len(categories))
	for i, c := range categories {
		if c.ID == "" {
			issues = append(issues, fmt.Sprintf("Category %d must include an id.", i))
		} else if seen[c.ID] {
			issues = append(issues, fmt.Sprintf("Category id %q is duplicated.", c.ID))
		}
		seen[c.ID] = true

		label := c.ID
		if label == "" {
			label = fmt.Sprint(i)
		}
		if c.Title == "" {
			issues = append(issues, fmt.Sprintf("Category %s needs a title.", label))
		}
		if c.Query == "" {
			issues = append(issues, fmt.Sprintf("Category %s needs a query.", label))
		}
	}

	return domain.NewValidationFailure(subject, issues)
}
