package domain

import "fmt"

// ClassificationKind discriminates the Classification variants.
type ClassificationKind string

const (
	KindNone   ClassificationKind = "none"
	KindRule   ClassificationKind = "rule"
	KindManual ClassificationKind = "manual"
)

// Target is where a classification points a transaction. Every field is
// optional; the classifier resolves whatever is present.
type Target struct {
	Group            LedgerGroup `json:"ledgerGroup,omitempty"`
	CategoryID       string      `json:"categoryId,omitempty"`
	CategoryPath     string      `json:"categoryPath,omitempty"`
	SubcategoryLabel string      `json:"subcategoryLabel,omitempty"`
}

// Classification is the mutable categorization attached to a transaction.
// It is one of Unclassified, RuleClassification or ManualClassification.
type Classification interface {
	Kind() ClassificationKind
	isClassification()
}

// Unclassified means no rule or person has categorized the transaction yet.
type Unclassified struct{}

// RuleClassification was assigned by a categorization rule.
type RuleClassification struct {
	RuleID string
	Target
}

// ManualClassification was assigned by a person and is never overwritten by rules.
type ManualClassification struct {
	Target
}

func (Unclassified) Kind() ClassificationKind         { return KindNone }
func (RuleClassification) Kind() ClassificationKind   { return KindRule }
func (ManualClassification) Kind() ClassificationKind { return KindManual }

func (Unclassified) isClassification()         {}
func (RuleClassification) isClassification()   {}
func (ManualClassification) isClassification() {}

// TargetOf returns the target carried by c, if any.
func TargetOf(c Classification) (Target, bool) {
	switch v := c.(type) {
	case RuleClassification:
		return v.Target, true
	case ManualClassification:
		return v.Target, true
	default:
		return Target{}, false
	}
}

// ClassificationRecord is the flat storage and wire form of a Classification.
type ClassificationRecord struct {
	Kind             ClassificationKind `json:"kind" firestore:"kind"`
	RuleID           string             `json:"ruleId,omitempty" firestore:"ruleId,omitempty"`
	LedgerGroup      LedgerGroup        `json:"ledgerGroup,omitempty" firestore:"ledgerGroup,omitempty"`
	CategoryID       string             `json:"categoryId,omitempty" firestore:"categoryId,omitempty"`
	CategoryPath     string             `json:"categoryPath,omitempty" firestore:"categoryPath,omitempty"`
	SubcategoryLabel string             `json:"subcategoryLabel,omitempty" firestore:"subcategoryLabel,omitempty"`
}

// EncodeClassification flattens c. A nil classification encodes as KindNone.
func EncodeClassification(c Classification) ClassificationRecord {
	switch v := c.(type) {
	case RuleClassification:
		rec := recordFromTarget(KindRule, v.Target)
		rec.RuleID = v.RuleID
		return rec
	case ManualClassification:
		return recordFromTarget(KindManual, v.Target)
	default:
		return ClassificationRecord{Kind: KindNone}
	}
}

func recordFromTarget(kind ClassificationKind, t Target) ClassificationRecord {
	return ClassificationRecord{
		Kind:             kind,
		LedgerGroup:      t.Group,
		CategoryID:       t.CategoryID,
		CategoryPath:     t.CategoryPath,
		SubcategoryLabel: t.SubcategoryLabel,
	}
}

// Decode rebuilds the Classification variant from its flat form.
func (r ClassificationRecord) Decode() (Classification, error) {
	target := Target{
		Group:            r.LedgerGroup,
		CategoryID:       r.CategoryID,
		CategoryPath:     r.CategoryPath,
		SubcategoryLabel: r.SubcategoryLabel,
	}
	if target.Group != "" && !ValidateLedgerGroup(target.Group) {
		return nil, fmt.Errorf("invalid ledger group in classification: %s", target.Group)
	}

	switch r.Kind {
	case KindNone, "":
		return Unclassified{}, nil
	case KindRule:
		if r.RuleID == "" {
			return nil, fmt.Errorf("rule classification requires a rule ID")
		}
		return RuleClassification{RuleID: r.RuleID, Target: target}, nil
	case KindManual:
		return ManualClassification{Target: target}, nil
	default:
		return nil, fmt.Errorf("unknown classification kind: %q", r.Kind)
	}
}
