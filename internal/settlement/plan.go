// Package settlement builds expected payout plans for sales and matches bank
// deposits against them.
package settlement

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
)

// DefaultRule applies when a leg has no usable rule: due one day after the sale.
var DefaultRule = domain.SettlementRule{Kind: domain.RuleDaysAfter, Days: 1}

var (
	dPlusPattern = regexp.MustCompile(`^d\s*\+\s*(\d{1,3})$`)
	daysPattern  = regexp.MustCompile(`^(\d{1,3})\s*d(ias?|ays?)?$`)
)

// ParseRule reads "D+N", "Nd" or "installments". Anything else, including
// the empty string, yields DefaultRule.
func ParseRule(s string) domain.SettlementRule {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "installments", "monthly", "parcelado":
		return domain.SettlementRule{Kind: domain.RuleMonthlyInstallments}
	}
	for _, re := range []*regexp.Regexp{dPlusPattern, daysPattern} {
		if m := re.FindStringSubmatch(s); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil {
				return domain.SettlementRule{Kind: domain.RuleDaysAfter, Days: n}
			}
		}
	}
	return DefaultRule
}

// RuleForMethod returns the usual payout rule of a payment method.
func RuleForMethod(method domain.PaymentMethod) domain.SettlementRule {
	switch method {
	case domain.MethodPix:
		return domain.SettlementRule{Kind: domain.RuleDaysAfter, Days: 0}
	case domain.MethodBoleto, domain.MethodDebitCard:
		return domain.SettlementRule{Kind: domain.RuleDaysAfter, Days: 1}
	case domain.MethodCreditCard:
		return domain.SettlementRule{Kind: domain.RuleMonthlyInstallments}
	default:
		return DefaultRule
	}
}

// GenerateSettlementPlan lists the parcels expected for a net amount.
//
// A days-after rule yields one parcel due Days after the sale. Monthly
// installments yield max(1, installments) parcels, parcel i due i months
// after the sale (clamped to the month's last day), each worth net/count
// with the remainder cents on the last parcel so the plan sums to net.
func GenerateSettlementPlan(saleDate time.Time, rule domain.SettlementRule, installments int, net domain.Cents) []domain.SettlementParcel {
	saleDate = dateOnly(saleDate)

	switch rule.Kind {
	case domain.RuleMonthlyInstallments:
		count := installments
		if count < 1 {
			count = 1
		}
		per := net / domain.Cents(count)
		parcels := make([]domain.SettlementParcel, count)
		for i := range parcels {
			parcels[i] = domain.SettlementParcel{
				N:              i + 1,
				DueDate:        addMonthsClamped(saleDate, i+1),
				ExpectedAmount: per,
			}
		}
		parcels[count-1].ExpectedAmount = net - per*domain.Cents(count-1)
		return parcels
	case domain.RuleDaysAfter:
		days := rule.Days
		if days < 0 {
			days = 0
		}
		return []domain.SettlementParcel{{N: 1, DueDate: saleDate.AddDate(0, 0, days), ExpectedAmount: net}}
	default:
		return GenerateSettlementPlan(saleDate, DefaultRule, installments, net)
	}
}

// addMonthsClamped adds months without overflowing into the next month:
// Jan 31 + 1 month is Feb 28 (or 29).
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, 0, 0, 0, 0, time.UTC)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LegSpec describes one payment leg of a new sale.
type LegSpec struct {
	ID           string
	Method       domain.PaymentMethod
	Gross        domain.Cents
	Net          domain.Cents
	Installments int
	// Rule overrides the method's usual rule when set ("D+30", "installments").
	Rule string
}

// BuildLeg validates spec and attaches its settlement plan.
func BuildLeg(saleDate time.Time, spec LegSpec) (domain.SaleLeg, error) {
	if spec.ID == "" {
		return domain.SaleLeg{}, fmt.Errorf("leg ID cannot be empty: %w", domain.ErrInvalidInput)
	}
	if spec.Method == "" {
		return domain.SaleLeg{}, fmt.Errorf("leg %s: payment method cannot be empty: %w", spec.ID, domain.ErrInvalidInput)
	}
	if spec.Net <= 0 {
		return domain.SaleLeg{}, fmt.Errorf("leg %s: net amount must be positive, got %s: %w", spec.ID, spec.Net, domain.ErrInvalidInput)
	}
	if spec.Gross < spec.Net {
		return domain.SaleLeg{}, fmt.Errorf("leg %s: gross amount %s is below net amount %s: %w", spec.ID, spec.Gross, spec.Net, domain.ErrInvalidInput)
	}

	rule := RuleForMethod(spec.Method)
	if spec.Rule != "" {
		rule = ParseRule(spec.Rule)
	}
	installments := spec.Installments
	if rule.Kind != domain.RuleMonthlyInstallments || installments < 1 {
		installments = 1
	}

	return domain.SaleLeg{
		ID:           spec.ID,
		Method:       spec.Method,
		GrossAmount:  spec.Gross,
		NetAmount:    spec.Net,
		Installments: installments,
		Rule:         rule,
		Parcels:      GenerateSettlementPlan(saleDate, rule, installments, spec.Net),
		Status:       domain.StatusUnmatched,
	}, nil
}
