package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
)

// ValidationResult contains all validation errors and warnings for a category plan
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// ValidationError represents a validation error
type ValidationError struct {
	Entity  string // "category"
	ID      string // category path
	Field   string
	Value   string
	Message string
}

// ValidationWarning represents a non-critical validation issue
type ValidationWarning struct {
	Entity  string
	ID      string
	Field   string
	Value   string
	Message string
}

// HasErrors reports whether any blocking problem was found.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Err converts the first error into a *domain.StructuralError, or returns nil.
func (r *ValidationResult) Err() error {
	if !r.HasErrors() {
		return nil
	}
	first := r.Errors[0]
	reason := first.Message
	if len(r.Errors) > 1 {
		reason = fmt.Sprintf("%s (and %d more)", reason, len(r.Errors)-1)
	}
	return &domain.StructuralError{Path: first.ID, Reason: reason}
}

// DomainWarnings converts the warnings for callers that report domain.Warning.
func (r *ValidationResult) DomainWarnings() []domain.Warning {
	out := make([]domain.Warning, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, domain.Warning{
			Code:    domain.WarnPlanLevelMismatch,
			Entity:  w.Entity,
			ID:      w.ID,
			Message: w.Message,
		})
	}
	return out
}

func (r *ValidationResult) addError(path, field, value, msg string) {
	r.Errors = append(r.Errors, ValidationError{Entity: "category", ID: path, Field: field, Value: value, Message: msg})
}

func (r *ValidationResult) addWarning(path, field, value, msg string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Entity: "category", ID: path, Field: field, Value: value, Message: msg})
}

// ValidateCategoryPlan checks a chart of accounts. Synthetic ledger group
// roots are implied and need not be listed. Missing parents, duplicate paths,
// cross-group parents and cycles are errors; inconsistent levels or paths that
// do not extend their parent are warnings.
func ValidateCategoryPlan(defs []domain.CategoryDefinition) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
	}

	byPath := make(map[string]domain.CategoryDefinition, len(defs)+len(domain.LedgerGroups()))
	for _, g := range domain.LedgerGroups() {
		byPath[g.RootPath()] = domain.RootCategory(g)
	}

	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		if def.Path == "" {
			result.addError(def.Path, "Path", "", fmt.Sprintf("category %q has an empty path", def.ID))
			continue
		}
		if def.ID == "" {
			result.addError(def.Path, "ID", "", "category ID cannot be empty")
		}
		if strings.TrimSpace(def.Label) == "" {
			result.addError(def.Path, "Label", def.Label, "category label cannot be empty")
		}
		if !domain.ValidateLedgerGroup(def.LedgerGroup) {
			result.addError(def.Path, "LedgerGroup", string(def.LedgerGroup), "invalid ledger group")
		}
		if seen[def.Path] {
			result.addError(def.Path, "Path", def.Path, "duplicate category path")
			continue
		}
		seen[def.Path] = true

		if def.ParentPath == "" {
			if def.Path != def.LedgerGroup.RootPath() {
				result.addError(def.Path, "ParentPath", "", "only ledger group roots may omit a parent")
			}
		}
		byPath[def.Path] = def
	}

	// Sorted for deterministic error order.
	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		def := byPath[p]
		if def.ParentPath == "" {
			continue
		}
		parent, ok := byPath[def.ParentPath]
		if !ok {
			result.addError(p, "ParentPath", def.ParentPath, "parent category not found")
			continue
		}
		if parent.LedgerGroup != def.LedgerGroup {
			result.addError(p, "LedgerGroup", string(def.LedgerGroup),
				fmt.Sprintf("ledger group differs from parent %s (%s)", parent.Path, parent.LedgerGroup))
		}
		if p != domain.JoinPath(def.ParentPath, def.ID) {
			result.addWarning(p, "Path", p, fmt.Sprintf("path does not extend parent path %s", def.ParentPath))
		}
		if def.Level != parent.Level+1 {
			result.addWarning(p, "Level", fmt.Sprint(def.Level), fmt.Sprintf("level should be %d", parent.Level+1))
		}
	}

	for _, p := range findCycles(byPath, paths) {
		result.addError(p, "ParentPath", byPath[p].ParentPath, "category is its own ancestor")
	}

	return result
}

// findCycles returns the first path of every parent cycle, using an iterative
// walk with three-colour marking so malformed plans cannot recurse.
func findCycles(byPath map[string]domain.CategoryDefinition, paths []string) []string {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(byPath))
	var cycles []string

	for _, start := range paths {
		if state[start] != unvisited {
			continue
		}
		var chain []string
		cur := start
		for cur != "" {
			if state[cur] == done {
				break
			}
			if state[cur] == inProgress {
				cycles = append(cycles, cur)
				break
			}
			def, ok := byPath[cur]
			if !ok {
				break
			}
			state[cur] = inProgress
			chain = append(chain, cur)
			cur = def.ParentPath
		}
		for _, p := range chain {
			state[p] = done
		}
	}
	return cycles
}
