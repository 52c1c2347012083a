package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidInput marks a request that can never succeed as given.
	ErrInvalidInput = errors.New("invalid input")
)

// StructuralError reports a malformed category graph: a cycle, a missing
// parent, a duplicate path, or sources that disagree on a node. It aborts
// the whole report build.
type StructuralError struct {
	Path   string
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural error at %q: %s", e.Path, e.Reason)
}

// ParseError reports an unparsable statement entry. The containing batch is
// rejected wholesale.
type ParseError struct {
	Source string
	Entry  int
	Field  string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse error in %s entry %d: invalid %s %q", e.Source, e.Entry, e.Field, e.Value)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ConflictError reports a reconciliation that would match an already matched
// parcel or transaction. No state is mutated when it is returned.
type ConflictError struct {
	Entity string
	ID     string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s %s: %s", e.Entity, e.ID, e.Reason)
}

// WarningCode classifies a non-blocking problem.
type WarningCode string

const (
	WarnSignCoerced           WarningCode = "sign_coerced"
	WarnMissingClosingBalance WarningCode = "missing_closing_balance"
	WarnBalanceDivergence     WarningCode = "balance_divergence"
	WarnEmptyAccount          WarningCode = "empty_account"
	WarnPostingRedirected     WarningCode = "posting_redirected"
	WarnPlanLevelMismatch     WarningCode = "plan_level_mismatch"
)

// Warning is collected alongside successful results and never blocks processing.
type Warning struct {
	Code    WarningCode `json:"code"`
	Entity  string      `json:"entity"`
	ID      string      `json:"id,omitempty"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	if w.ID == "" {
		return fmt.Sprintf("%s: %s: %s", w.Code, w.Entity, w.Message)
	}
	return fmt.Sprintf("%s: %s %s: %s", w.Code, w.Entity, w.ID, w.Message)
}
