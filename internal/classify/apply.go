package classify

import (
	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/rules"
)

// Matcher finds the categorization rule for a description. *rules.Engine
// implements it.
type Matcher interface {
	Match(description string, amount float64) (rules.MatchResult, bool)
}

// ApplyRules assigns rule classifications in place and returns how many
// transactions changed. Manually classified transactions are never touched.
// A rule target that does not accept postings is stored as its group root so
// the persisted classification always resolves to a posting node.
func ApplyRules(txns []domain.Transaction, idx Index, m Matcher) int {
	changed := 0
	for i := range txns {
		txn := &txns[i]
		if txn.ClassificationOrNone().Kind() == domain.KindManual {
			continue
		}

		match, ok := m.Match(txn.Description, txn.Amount)
		if !ok {
			continue
		}

		next := domain.RuleClassification{RuleID: match.RuleID, Target: match.Target()}
		probe := *txn
		probe.Classification = next
		res := Classify(probe, idx)
		next.Group = res.Group
		next.CategoryPath = res.Path

		if current, isRule := txn.Classification.(domain.RuleClassification); isRule && current == next {
			continue
		}
		txn.Classification = next
		changed++
	}
	return changed
}
