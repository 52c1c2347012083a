package validate

import (
	"errors"
	"testing"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
)

func def(id, label, parent string, acceptsPostings bool) domain.CategoryDefinition {
	d, err := domain.NewCategoryDefinition(id, label, parent, 0, acceptsPostings)
	if err != nil {
		panic(err)
	}
	return *d
}

func TestValidateCategoryPlan_Empty(t *testing.T) {
	result := ValidateCategoryPlan(nil)

	if len(result.Errors) != 0 {
		t.Errorf("empty plan should have no errors, got %d", len(result.Errors))
	}
	if result.Err() != nil {
		t.Errorf("Err() = %v, want nil", result.Err())
	}
}

func TestValidateCategoryPlan_ValidPlan(t *testing.T) {
	plan := []domain.CategoryDefinition{
		def("occupancy", "Occupancy", "administrative_expenses", false),
		def("rent", "Rent", "administrative_expenses.occupancy", true),
		def("sales", "Sales", "revenue", true),
	}

	result := ValidateCategoryPlan(plan)
	if result.HasErrors() {
		t.Fatalf("valid plan should have no errors, got %+v", result.Errors)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("valid plan should have no warnings, got %+v", result.Warnings)
	}
}

func TestValidateCategoryPlan_Errors(t *testing.T) {
	tests := []struct {
		name      string
		plan      []domain.CategoryDefinition
		wantField string
	}{
		{
			name: "missing parent",
			plan: []domain.CategoryDefinition{
				def("rent", "Rent", "administrative_expenses.occupancy", true),
			},
			wantField: "ParentPath",
		},
		{
			name: "duplicate path",
			plan: []domain.CategoryDefinition{
				def("sales", "Sales", "revenue", true),
				def("sales", "Sales again", "revenue", true),
			},
			wantField: "Path",
		},
		{
			name: "empty label",
			plan: []domain.CategoryDefinition{
				{ID: "sales", Path: "revenue.sales", ParentPath: "revenue", Level: 1, LedgerGroup: domain.LedgerRevenue},
			},
			wantField: "Label",
		},
		{
			name: "invalid group",
			plan: []domain.CategoryDefinition{
				{ID: "x", Label: "X", Path: "revenue.x", ParentPath: "revenue", Level: 1, LedgerGroup: "housing"},
			},
			wantField: "LedgerGroup",
		},
		{
			name: "non-root without parent",
			plan: []domain.CategoryDefinition{
				{ID: "x", Label: "X", Path: "revenue.x", LedgerGroup: domain.LedgerRevenue},
			},
			wantField: "ParentPath",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateCategoryPlan(tt.plan)
			if !result.HasErrors() {
				t.Fatalf("expected errors, got none")
			}
			found := false
			for _, e := range result.Errors {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on field %s, got %+v", tt.wantField, result.Errors)
			}

			var se *domain.StructuralError
			if !errors.As(result.Err(), &se) {
				t.Errorf("Err() should be a StructuralError, got %T", result.Err())
			}
		})
	}
}

func TestValidateCategoryPlan_Cycle(t *testing.T) {
	plan := []domain.CategoryDefinition{
		{ID: "a", Label: "A", Path: "other.a", ParentPath: "other.b", Level: 1, LedgerGroup: domain.LedgerOther},
		{ID: "b", Label: "B", Path: "other.b", ParentPath: "other.a", Level: 1, LedgerGroup: domain.LedgerOther},
	}

	result := ValidateCategoryPlan(plan)

	cycles := 0
	for _, e := range result.Errors {
		if e.Message == "category is its own ancestor" {
			cycles++
		}
	}
	if cycles != 1 {
		t.Errorf("expected exactly one cycle error, got %d (%+v)", cycles, result.Errors)
	}
}

func TestValidateCategoryPlan_SelfParent(t *testing.T) {
	plan := []domain.CategoryDefinition{
		{ID: "a", Label: "A", Path: "other.a", ParentPath: "other.a", Level: 1, LedgerGroup: domain.LedgerOther},
	}

	if !ValidateCategoryPlan(plan).HasErrors() {
		t.Error("self-parented category should be rejected")
	}
}

func TestValidateCategoryPlan_Warnings(t *testing.T) {
	plan := []domain.CategoryDefinition{
		{ID: "sales", Label: "Sales", Path: "revenue.sales", ParentPath: "revenue", Level: 3, LedgerGroup: domain.LedgerRevenue},
		{ID: "misc", Label: "Misc", Path: "revenue.other_name", ParentPath: "revenue", Level: 1, LedgerGroup: domain.LedgerRevenue},
	}

	result := ValidateCategoryPlan(plan)
	if result.HasErrors() {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	if len(result.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %+v", result.Warnings)
	}

	for _, w := range result.DomainWarnings() {
		if w.Code != domain.WarnPlanLevelMismatch {
			t.Errorf("warning code = %s, want %s", w.Code, domain.WarnPlanLevelMismatch)
		}
	}
}
