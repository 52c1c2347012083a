// Package classify resolves a transaction to a ledger group and a category
// node of the client's chart of accounts.
package classify

import (
	"regexp"
	"strings"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/transform"
)

// Index is the read side of a category index. *category.Index implements it.
type Index interface {
	Lookup(path string) (domain.CategoryDefinition, bool)
	ByID(id string) (domain.CategoryDefinition, bool)
	Root(g domain.LedgerGroup) domain.CategoryDefinition
}

// Step records which rule of the fallback chain produced a Result.
type Step int

const (
	StepExplicitPath Step = iota + 1
	StepCategoryID
	StepLedgerGroup
	StepKeyword
	StepSign
)

func (s Step) String() string {
	switch s {
	case StepExplicitPath:
		return "explicit_path"
	case StepCategoryID:
		return "category_id"
	case StepLedgerGroup:
		return "ledger_group"
	case StepKeyword:
		return "keyword"
	case StepSign:
		return "sign"
	default:
		return "unknown"
	}
}

// Result is where a transaction's amount is posted.
type Result struct {
	Group domain.LedgerGroup
	Path  string
	Step  Step
	// Redirected is set when the requested node does not accept postings and
	// the amount was posted to its group root instead.
	Redirected bool
	// RequestedPath is the non-posting node a redirected transaction asked for.
	RequestedPath string
}

// Classify resolves txn against idx. The first matching step wins:
//  1. explicit category path that accepts postings
//  2. category id of a node that accepts postings
//  3. assigned ledger group, posted to its root
//  4. keywords in legacy free text, sign-aware
//  5. sign of the amount
//
// A known node that does not accept postings redirects to its group root.
func Classify(txn domain.Transaction, idx Index) Result {
	target, hasTarget := domain.TargetOf(txn.ClassificationOrNone())

	if hasTarget && target.CategoryPath != "" {
		if def, ok := idx.Lookup(target.CategoryPath); ok {
			return resolveNode(def, idx, StepExplicitPath)
		}
	}

	if hasTarget && target.CategoryID != "" {
		if def, ok := idx.ByID(target.CategoryID); ok {
			return resolveNode(def, idx, StepCategoryID)
		}
	}

	if hasTarget && domain.ValidateLedgerGroup(target.Group) {
		return atRoot(idx, target.Group, StepLedgerGroup)
	}

	if g, ok := InferGroup(legacyText(txn, target), txn.Amount); ok {
		return atRoot(idx, g, StepKeyword)
	}

	if txn.Amount >= 0 {
		return atRoot(idx, domain.LedgerRevenue, StepSign)
	}
	return atRoot(idx, domain.LedgerOther, StepSign)
}

func resolveNode(def domain.CategoryDefinition, idx Index, step Step) Result {
	if def.AcceptsPostings {
		return Result{Group: def.LedgerGroup, Path: def.Path, Step: step}
	}
	res := atRoot(idx, def.LedgerGroup, step)
	res.Redirected = true
	res.RequestedPath = def.Path
	return res
}

func atRoot(idx Index, g domain.LedgerGroup, step Step) Result {
	return Result{Group: g, Path: idx.Root(g).Path, Step: step}
}

func legacyText(txn domain.Transaction, target domain.Target) string {
	parts := []string{txn.LegacyCategory, txn.LegacyLabel, target.SubcategoryLabel}
	return strings.Join(parts, " ")
}

// keywordGroups is checked in order; the first group with a hit wins.
var keywordGroups = []struct {
	group    domain.LedgerGroup
	keywords []string
}{
	{domain.LedgerRevenueDeductions, []string{
		"deducao", "deducoes", "devolucao", "devolucoes", "cancelamento de venda",
		"imposto", "impostos", "simples nacional", "das", "iss", "icms", "pis", "cofins",
		"deduction", "deductions", "tax", "taxes",
	}},
	{domain.LedgerAdministrative, []string{
		"administrativo", "administrativa", "administrativos", "administrativas",
		"aluguel", "condominio", "energia", "agua", "internet", "telefone",
		"salario", "salarios", "folha", "pro labore", "contabilidade", "contador", "honorarios",
		"administrative", "rent", "payroll", "utilities", "office",
	}},
	{domain.LedgerCommercial, []string{
		"comercial", "comerciais", "marketing", "publicidade", "propaganda", "anuncio", "anuncios",
		"comissao", "comissoes", "frete", "commercial", "advertising", "ads", "commission", "freight",
	}},
	{domain.LedgerFinancial, []string{
		"financeiro", "financeira", "financeiras", "financeiros", "tarifa", "tarifas", "juros", "iof",
		"rendimento", "rendimentos", "bancaria", "bancario", "financial", "interest", "fee", "fees",
	}},
	{domain.LedgerRevenue, []string{
		"receita", "receitas", "faturamento", "venda", "vendas", "recebimento", "servicos prestados",
		"revenue", "billing", "sales", "income",
	}},
	{domain.LedgerOther, []string{
		"outro", "outros", "outras", "diversos", "transferencia", "other", "misc",
	}},
}

var punctuation = regexp.MustCompile(`[^a-z0-9]+`)

// InferGroup maps free text to a ledger group by whole-word keyword match.
// A revenue keyword on a negative amount is a deduction.
func InferGroup(text string, amount float64) (domain.LedgerGroup, bool) {
	words := strings.TrimSpace(punctuation.ReplaceAllString(transform.NormalizeText(text), " "))
	if words == "" {
		return "", false
	}
	norm := " " + words + " "
	for _, kg := range keywordGroups {
		for _, kw := range kg.keywords {
			if strings.Contains(norm, " "+kw+" ") {
				if kg.group == domain.LedgerRevenue && amount < 0 {
					return domain.LedgerRevenueDeductions, true
				}
				return kg.group, true
			}
		}
	}
	return "", false
}
