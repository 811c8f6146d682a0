package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Infrastructure-level failures abort the enclosing test immediately;
// validation failures surface on the first fatal mismatch.

var (
	// ErrMailboxTimeout means inbox polling exhausted its attempt budget.
	ErrMailboxTimeout = errors.New("mailbox polling exhausted")
)

// ConfigError is a missing required configuration value or argument.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return "missing required config: " + e.Field
}

// NetworkError is a transport failure before any status code was received.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UnexpectedStatus is a response status outside the expected set.
type UnexpectedStatus struct {
	Endpoint string
	Want     []int
	Got      int
	Body     string
}

func (e *UnexpectedStatus) Error() string {
	return fmt.Sprintf("%s: expected status %v, got %d: %s", e.Endpoint, e.Want, e.Got, e.Body)
}

// SchemaViolation collects every schema problem found in one response.
type SchemaViolation struct {
	Ref      string
	Problems []string
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("schema %s: %d violation(s):\n  %s", e.Ref, len(e.Problems), strings.Join(e.Problems, "\n  "))
}

// FieldDiff is one compared key that differed from its snapshot value.
type FieldDiff struct {
	Path     string
	Expected any
	Actual   any
}

func (d FieldDiff) String() string {
	return fmt.Sprintf("%s: expected=%v actual=%v", d.Path, d.Expected, d.Actual)
}

// SnapshotMismatch is a tolerant-snapshot comparison that found value diffs.
type SnapshotMismatch struct {
	Ref   string
	Diffs []FieldDiff
}

func (e *SnapshotMismatch) Error() string {
	parts := make([]string, len(e.Diffs))
	for i, d := range e.Diffs {
		parts[i] = d.String()
	}
	return fmt.Sprintf("snapshot %s: %s", e.Ref, strings.Join(parts, "; "))
}

// FlowError means a flow reached a state its state machine does not allow.
type FlowError struct {
	Flow   string
	Phase  string
	Detail string
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("flow %s/%s: %s", e.Flow, e.Phase, e.Detail)
}

// PaymentFailed is a terminal failed/declined payment status.
type PaymentFailed struct {
	PaymentID string
	Status    string
}

func (e *PaymentFailed) Error() string {
	return fmt.Sprintf("payment %s failed with status %q", e.PaymentID, e.Status)
}

// PaymentTimeout means status polling ran out of attempts.
type PaymentTimeout struct {
	PaymentID string
	Attempts  int
	LastSeen  string
}

func (e *PaymentTimeout) Error() string {
	return fmt.Sprintf("payment %s: no terminal status after %d attempts (last %q)", e.PaymentID, e.Attempts, e.LastSeen)
}

// FilterViolation is a search result that does not satisfy a slug-derived
// predicate. Index is the offending element's position in result.
type FilterViolation struct {
	Index    int
	Field    string
	Expected any
	Actual   any
}

func (e *FilterViolation) Error() string {
	return fmt.Sprintf("result[%d].%s: expected %v, got %v", e.Index, e.Field, e.Expected, e.Actual)
}
