// Package rules provides a YAML-based rules engine that assigns ledger groups
// and category paths from transaction descriptions.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/transform"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var embeddedRules []byte

// MatchType defines how patterns are matched against transaction descriptions
type MatchType string

const (
	// MatchTypeExact requires the pattern to match the entire description exactly
	MatchTypeExact MatchType = "exact"
	// MatchTypeContains requires the pattern to be a substring of the description
	MatchTypeContains MatchType = "contains"
	// MatchTypePrefix requires the description to start with the pattern
	MatchTypePrefix MatchType = "prefix"
)

// Sign restricts a rule to inflows or outflows.
type Sign string

const (
	SignAny    Sign = "any"
	SignCredit Sign = "credit"
	SignDebit  Sign = "debit"
)

// Rule represents a single categorization rule.
//
// Invariants (checked by NewRule and NewEngine):
//   - ID and Pattern are not empty
//   - Priority in range [0, 999]
//   - MatchType is exact, contains or prefix
//   - Sign is empty, any, credit or debit
//   - LedgerGroup is a valid domain.LedgerGroup
//   - CategoryPath, when set, starts with the ledger group
type Rule struct {
	ID           string             `yaml:"id"`
	Pattern      string             `yaml:"pattern"`
	MatchType    MatchType          `yaml:"match_type"`
	Sign         Sign               `yaml:"sign"`
	Priority     int                `yaml:"priority"`
	LedgerGroup  domain.LedgerGroup `yaml:"ledger_group"`
	CategoryPath string             `yaml:"category_path"`
}

func (r Rule) validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if strings.TrimSpace(r.Pattern) == "" {
		return fmt.Errorf("pattern cannot be empty")
	}
	if r.Priority < 0 || r.Priority > 999 {
		return fmt.Errorf("priority must be in [0,999], got %d", r.Priority)
	}
	switch r.MatchType {
	case MatchTypeExact, MatchTypeContains, MatchTypePrefix:
	default:
		return fmt.Errorf("invalid match_type %q (must be 'exact', 'contains' or 'prefix')", r.MatchType)
	}
	switch r.Sign {
	case "", SignAny, SignCredit, SignDebit:
	default:
		return fmt.Errorf("invalid sign %q (must be 'any', 'credit' or 'debit')", r.Sign)
	}
	if !domain.ValidateLedgerGroup(r.LedgerGroup) {
		return fmt.Errorf("invalid ledger group %q", r.LedgerGroup)
	}
	if r.CategoryPath != "" {
		if g, ok := domain.GroupOfPath(r.CategoryPath); !ok || g != r.LedgerGroup {
			return fmt.Errorf("category path %q is not under ledger group %s", r.CategoryPath, r.LedgerGroup)
		}
	}
	return nil
}

// NewRule creates a validated rule.
func NewRule(id, pattern string, matchType MatchType, sign Sign, priority int, group domain.LedgerGroup, categoryPath string) (*Rule, error) {
	r := Rule{
		ID:           id,
		Pattern:      pattern,
		MatchType:    matchType,
		Sign:         sign,
		Priority:     priority,
		LedgerGroup:  group,
		CategoryPath: categoryPath,
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// RuleSet represents the top-level YAML structure
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// Engine performs rule matching on transaction descriptions
type Engine struct {
	rules    []Rule   // Sorted by priority (highest first)
	patterns []string // normalized Pattern of rules[i]
}

// MatchResult contains the result of applying a rule
type MatchResult struct {
	RuleID       string
	LedgerGroup  domain.LedgerGroup
	CategoryPath string
}

// Target converts the match into a classification target.
func (m MatchResult) Target() domain.Target {
	return domain.Target{Group: m.LedgerGroup, CategoryPath: m.CategoryPath}
}

// NewEngine creates a rules engine from YAML data
func NewEngine(rulesData []byte) (*Engine, error) {
	var ruleSet RuleSet
	if err := yaml.Unmarshal(rulesData, &ruleSet); err != nil {
		return nil, fmt.Errorf("failed to parse YAML rules (check syntax, indentation, and field names): %w", err)
	}

	seen := make(map[string]bool, len(ruleSet.Rules))
	for i, rule := range ruleSet.Rules {
		if err := rule.validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.ID, err)
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("rule %d (%s): duplicate rule id", i, rule.ID)
		}
		seen[rule.ID] = true
	}

	// SliceStable keeps YAML order for equal priorities so matching is deterministic.
	sorted := make([]Rule, len(ruleSet.Rules))
	copy(sorted, ruleSet.Rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	patterns := make([]string, len(sorted))
	for i, r := range sorted {
		patterns[i] = transform.NormalizeText(r.Pattern)
	}

	return &Engine{rules: sorted, patterns: patterns}, nil
}

// LoadEmbedded loads the embedded rules.yaml file
func LoadEmbedded() (*Engine, error) {
	engine, err := NewEngine(embeddedRules)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded rules (possible binary corruption): %w", err)
	}
	return engine, nil
}

// LoadFromFile loads rules from a filesystem path
func LoadFromFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	engine, err := NewEngine(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from %q: %w", path, err)
	}
	return engine, nil
}

// Match applies rules to a transaction description and signed amount and
// returns the first match. Descriptions and patterns are compared after accent,
// case and whitespace folding. Rules with equal priority are evaluated in YAML
// file order.
func (e *Engine) Match(description string, amount float64) (MatchResult, bool) {
	desc := transform.NormalizeText(description)

	for i, rule := range e.rules {
		if !signMatches(rule.Sign, amount) {
			continue
		}

		pattern := e.patterns[i]
		matched := false
		switch rule.MatchType {
		case MatchTypeExact:
			matched = desc == pattern
		case MatchTypeContains:
			matched = strings.Contains(desc, pattern)
		case MatchTypePrefix:
			matched = strings.HasPrefix(desc, pattern)
		}

		if matched {
			return MatchResult{
				RuleID:       rule.ID,
				LedgerGroup:  rule.LedgerGroup,
				CategoryPath: rule.CategoryPath,
			}, true
		}
	}

	return MatchResult{}, false
}

func signMatches(s Sign, amount float64) bool {
	switch s {
	case SignCredit:
		return amount >= 0
	case SignDebit:
		return amount < 0
	default:
		return true
	}
}

// GetRules returns a copy of the rules in priority order.
func (e *Engine) GetRules() []Rule {
	result := make([]Rule, len(e.rules))
	copy(result, e.rules)
	return result
}
