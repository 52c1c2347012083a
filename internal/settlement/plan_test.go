package settlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseRule(t *testing.T) {
	tests := []struct {
		input string
		want  domain.SettlementRule
	}{
		{"D+30", domain.SettlementRule{Kind: domain.RuleDaysAfter, Days: 30}},
		{"d + 2", domain.SettlementRule{Kind: domain.RuleDaysAfter, Days: 2}},
		{"D+0", domain.SettlementRule{Kind: domain.RuleDaysAfter, Days: 0}},
		{"14d", domain.SettlementRule{Kind: domain.RuleDaysAfter, Days: 14}},
		{"30 dias", domain.SettlementRule{Kind: domain.RuleDaysAfter, Days: 30}},
		{"installments", domain.SettlementRule{Kind: domain.RuleMonthlyInstallments}},
		{" Parcelado ", domain.SettlementRule{Kind: domain.RuleMonthlyInstallments}},
		{"", DefaultRule},
		{"next week", DefaultRule},
		{"D-3", DefaultRule},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRule(tt.input))
		})
	}
}

func TestRuleForMethod(t *testing.T) {
	assert.Equal(t, 0, RuleForMethod(domain.MethodPix).Days)
	assert.Equal(t, domain.RuleDaysAfter, RuleForMethod(domain.MethodPix).Kind)
	assert.Equal(t, 1, RuleForMethod(domain.MethodBoleto).Days)
	assert.Equal(t, 1, RuleForMethod(domain.MethodDebitCard).Days)
	assert.Equal(t, domain.RuleMonthlyInstallments, RuleForMethod(domain.MethodCreditCard).Kind)
	assert.Equal(t, DefaultRule, RuleForMethod(domain.MethodCash))
	assert.Equal(t, DefaultRule, RuleForMethod("crypto"))
}

func TestGenerateSettlementPlan_DaysAfter(t *testing.T) {
	rule := domain.SettlementRule{Kind: domain.RuleDaysAfter, Days: 30}
	plan := GenerateSettlementPlan(time.Date(2025, 1, 10, 15, 30, 0, 0, time.UTC), rule, 6, 12345)

	require.Len(t, plan, 1)
	assert.Equal(t, 1, plan[0].N)
	assert.Equal(t, day(2025, 2, 9), plan[0].DueDate)
	assert.Equal(t, domain.Cents(12345), plan[0].ExpectedAmount)
	assert.False(t, plan[0].IsMatched())
}

func TestGenerateSettlementPlan_InstallmentRemainderOnLastParcel(t *testing.T) {
	rule := domain.SettlementRule{Kind: domain.RuleMonthlyInstallments}
	plan := GenerateSettlementPlan(day(2025, 3, 15), rule, 3, 10000)

	require.Len(t, plan, 3)
	amounts := []domain.Cents{plan[0].ExpectedAmount, plan[1].ExpectedAmount, plan[2].ExpectedAmount}
	assert.Equal(t, []domain.Cents{3333, 3333, 3334}, amounts)
	assert.Equal(t, day(2025, 4, 15), plan[0].DueDate)
	assert.Equal(t, day(2025, 5, 15), plan[1].DueDate)
	assert.Equal(t, day(2025, 6, 15), plan[2].DueDate)
}

func TestGenerateSettlementPlan_SumsExactly(t *testing.T) {
	rule := domain.SettlementRule{Kind: domain.RuleMonthlyInstallments}
	for _, net := range []domain.Cents{1, 99, 100, 10001, 123457} {
		for count := 1; count <= 12; count++ {
			var sum domain.Cents
			for _, p := range GenerateSettlementPlan(day(2025, 1, 1), rule, count, net) {
				sum += p.ExpectedAmount
			}
			assert.Equal(t, net, sum, "net=%s count=%d", net, count)
		}
	}
}

func TestGenerateSettlementPlan_MonthEndClamp(t *testing.T) {
	rule := domain.SettlementRule{Kind: domain.RuleMonthlyInstallments}
	plan := GenerateSettlementPlan(day(2025, 1, 31), rule, 3, 3000)

	require.Len(t, plan, 3)
	assert.Equal(t, day(2025, 2, 28), plan[0].DueDate)
	assert.Equal(t, day(2025, 3, 31), plan[1].DueDate)
	assert.Equal(t, day(2025, 4, 30), plan[2].DueDate)

	leap := GenerateSettlementPlan(day(2024, 1, 31), rule, 1, 3000)
	assert.Equal(t, day(2024, 2, 29), leap[0].DueDate)
}

func TestGenerateSettlementPlan_ZeroInstallmentsYieldsOneParcel(t *testing.T) {
	rule := domain.SettlementRule{Kind: domain.RuleMonthlyInstallments}
	plan := GenerateSettlementPlan(day(2025, 1, 10), rule, 0, 5000)

	require.Len(t, plan, 1)
	assert.Equal(t, domain.Cents(5000), plan[0].ExpectedAmount)
	assert.Equal(t, day(2025, 2, 10), plan[0].DueDate)
}

func TestGenerateSettlementPlan_UnknownKindUsesDefault(t *testing.T) {
	plan := GenerateSettlementPlan(day(2025, 1, 10), domain.SettlementRule{Kind: "weekly"}, 4, 5000)

	require.Len(t, plan, 1)
	assert.Equal(t, day(2025, 1, 11), plan[0].DueDate)
}

func TestBuildLeg(t *testing.T) {
	t.Run("credit card installments", func(t *testing.T) {
		leg, err := BuildLeg(day(2025, 1, 10), LegSpec{
			ID: "card", Method: domain.MethodCreditCard, Gross: 31000, Net: 30000, Installments: 3,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.RuleMonthlyInstallments, leg.Rule.Kind)
		assert.Equal(t, 3, leg.Installments)
		assert.Len(t, leg.Parcels, 3)
		assert.Equal(t, domain.StatusUnmatched, leg.Status)
	})

	t.Run("rule override forces single parcel", func(t *testing.T) {
		leg, err := BuildLeg(day(2025, 1, 10), LegSpec{
			ID: "card", Method: domain.MethodCreditCard, Gross: 30000, Net: 29000, Installments: 3, Rule: "D+30",
		})
		require.NoError(t, err)
		assert.Equal(t, 1, leg.Installments)
		require.Len(t, leg.Parcels, 1)
		assert.Equal(t, day(2025, 2, 9), leg.Parcels[0].DueDate)
	})

	t.Run("pix same day", func(t *testing.T) {
		leg, err := BuildLeg(day(2025, 1, 10), LegSpec{ID: "pix", Method: domain.MethodPix, Gross: 5000, Net: 5000})
		require.NoError(t, err)
		assert.Equal(t, day(2025, 1, 10), leg.Parcels[0].DueDate)
	})

	invalid := []struct {
		name string
		spec LegSpec
	}{
		{"empty id", LegSpec{Method: domain.MethodPix, Gross: 100, Net: 100}},
		{"empty method", LegSpec{ID: "a", Gross: 100, Net: 100}},
		{"zero net", LegSpec{ID: "a", Method: domain.MethodPix}},
		{"gross below net", LegSpec{ID: "a", Method: domain.MethodPix, Gross: 90, Net: 100}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildLeg(day(2025, 1, 10), tt.spec)
			assert.Error(t, err)
		})
	}
}
