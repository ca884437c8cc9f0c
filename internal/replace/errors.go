package replace

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyID is returned when a rule has no id.
	ErrEmptyID = errors.New("rule id is empty")

	// ErrMissingPattern is returned when a rule has no pattern.
	ErrMissingPattern = errors.New("rule pattern is missing")
)

// InvalidRuleError reports a malformed rule definition.
// Reason names the part of the definition that was rejected.
type InvalidRuleError struct {
	ID      string
	Pattern string
	Reason  string
	Err     error
}

func (e *InvalidRuleError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid rule %q (pattern %q): %v", e.ID, e.Pattern, e.Err)
	}
	return fmt.Sprintf("invalid rule %q (pattern %q): %s: %v", e.ID, e.Pattern, e.Reason, e.Err)
}

func (e *InvalidRuleError) Unwrap() error {
	return e.Err
}

// UnknownRuleError reports a field bound to a rule id that is not registered.
type UnknownRuleError struct {
	Field  string
	RuleID string
}

func (e *UnknownRuleError) Error() string {
	return fmt.Sprintf("field %q references unknown rule %q", e.Field, e.RuleID)
}
