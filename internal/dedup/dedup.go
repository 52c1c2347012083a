// Package dedup detects statement entries that are already known, either
// persisted or earlier in the same import.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/transform"
)

// Reason explains why an entry was considered a duplicate.
type Reason string

const (
	ReasonExternalID      Reason = "external_id"
	ReasonDateAmountDescr Reason = "date_amount_description"
)

// Candidate is the part of an entry the duplicate rule looks at.
type Candidate struct {
	Date        time.Time
	Amount      domain.Cents
	Description string
	ExternalID  string
}

// CandidateOf extracts the duplicate-relevant fields of a transaction.
func CandidateOf(txn domain.Transaction) Candidate {
	return Candidate{
		Date:        txn.Date,
		Amount:      txn.Cents(),
		Description: txn.Description,
		ExternalID:  txn.ExternalID,
	}
}

// Match identifies the known transaction an entry duplicates.
type Match struct {
	TransactionID string
	Reason        Reason
}

type dayAmount struct {
	date   string
	amount domain.Cents
}

type known struct {
	id          string
	description string // normalized
}

// Index holds known transactions of one account. It is not safe for
// concurrent use; callers serialize imports per account.
type Index struct {
	byExternalID map[string]string
	byDayAmount  map[dayAmount][]known
	size         int
}

// NewIndex indexes every transaction of every given set.
func NewIndex(sets ...[]domain.Transaction) *Index {
	idx := &Index{
		byExternalID: make(map[string]string),
		byDayAmount:  make(map[dayAmount][]known),
	}
	for _, set := range sets {
		for _, txn := range set {
			idx.Add(txn)
		}
	}
	return idx
}

// Add records txn as known.
func (x *Index) Add(txn domain.Transaction) {
	c := CandidateOf(txn)
	if c.ExternalID != "" {
		if _, ok := x.byExternalID[c.ExternalID]; !ok {
			x.byExternalID[c.ExternalID] = txn.ID
		}
	}
	key := dayAmount{date: c.Date.Format(domain.DateLayout), amount: c.Amount}
	x.byDayAmount[key] = append(x.byDayAmount[key], known{id: txn.ID, description: transform.NormalizeText(c.Description)})
	x.size++
}

// Len returns the number of known transactions.
func (x *Index) Len() int {
	return x.size
}

// FindDuplicate applies the duplicate rule: equal external ids, or equal
// date and cents with compatible descriptions.
func (x *Index) FindDuplicate(c Candidate) (Match, bool) {
	if c.ExternalID != "" {
		if id, ok := x.byExternalID[c.ExternalID]; ok {
			return Match{TransactionID: id, Reason: ReasonExternalID}, true
		}
	}

	key := dayAmount{date: c.Date.Format(domain.DateLayout), amount: c.Amount}
	desc := transform.NormalizeText(c.Description)
	for _, k := range x.byDayAmount[key] {
		if compatible(desc, k.description) {
			return Match{TransactionID: k.id, Reason: ReasonDateAmountDescr}, true
		}
	}
	return Match{}, false
}

// DescriptionsCompatible reports whether two descriptions name the same
// transaction: equal after case and whitespace folding, or one containing the
// other (re-exports often truncate or prefix memo text).
func DescriptionsCompatible(a, b string) bool {
	return compatible(transform.NormalizeText(a), transform.NormalizeText(b))
}

func compatible(a, b string) bool {
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

// GenerateFingerprint creates a SHA256 hash of date, amount, and description.
// Format: SHA256("{YYYY-MM-DD}|{amount with 2 decimals}|{normalizedDescription}")
// It is the stable key for entries whose statement carries no external id.
func GenerateFingerprint(date time.Time, amount domain.Cents, description string) string {
	input := fmt.Sprintf("%s|%s|%s", date.Format(domain.DateLayout), amount, transform.NormalizeText(description))
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}
