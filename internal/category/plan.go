package category

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed plan.yaml
var embeddedPlan []byte

// PlanEntry is one category as written in a plan YAML file.
type PlanEntry struct {
	ID              string `yaml:"id"`
	Label           string `yaml:"label"`
	Parent          string `yaml:"parent"`
	SortOrder       int    `yaml:"sort_order"`
	AcceptsPostings bool   `yaml:"accepts_postings"`
}

type planFile struct {
	Categories []PlanEntry `yaml:"categories"`
}

// LoadPlan parses plan YAML into category definitions. Path, level and ledger
// group are derived from each entry's parent path.
func LoadPlan(data []byte) ([]domain.CategoryDefinition, error) {
	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse category plan YAML: %w", err)
	}

	defs := make([]domain.CategoryDefinition, 0, len(pf.Categories))
	for i, entry := range pf.Categories {
		def, err := domain.NewCategoryDefinition(entry.ID, entry.Label, entry.Parent, entry.SortOrder, entry.AcceptsPostings)
		if err != nil {
			return nil, fmt.Errorf("category %d (%s): %w", i, entry.ID, err)
		}
		defs = append(defs, *def)
	}
	return defs, nil
}

// LoadDefaultPlan returns the embedded global default chart of accounts.
func LoadDefaultPlan() ([]domain.CategoryDefinition, error) {
	return LoadPlan(embeddedPlan)
}

// LoadPlanFromFile loads a chart of accounts from a YAML file.
func LoadPlanFromFile(path string) ([]domain.CategoryDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read category plan %s: %w", path, err)
	}
	return LoadPlan(data)
}

// DefaultIndex builds an index over the embedded default plan.
func DefaultIndex() (*Index, error) {
	defs, err := LoadDefaultPlan()
	if err != nil {
		return nil, err
	}
	return NewIndex(defs)
}
