package chain

import (
	"strings"

	"github.com/Iron-Ham/workchain/internal/errors"
)

// Policy decides what happens when a chain is submitted under a name that
// already has an active run.
type Policy string

const (
	// PolicyReplace cancels the active run and starts the new chain.
	PolicyReplace Policy = "replace"
	// PolicyKeep keeps the active run and discards the new chain.
	PolicyKeep Policy = "keep"
	// PolicyAppend runs the new chain after the active run's last node.
	PolicyAppend Policy = "append"
)

// String returns the string representation of the policy.
func (p Policy) String() string {
	return string(p)
}

// Valid reports whether p is one of the known policies.
func (p Policy) Valid() bool {
	switch p {
	case PolicyReplace, PolicyKeep, PolicyAppend:
		return true
	default:
		return false
	}
}

// ParsePolicy converts a case-insensitive policy name.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", errors.NewValidationError("must be one of: replace, keep, append").
			WithField("policy").
			WithValue(s).
			WithCause(errors.ErrInvalidPolicy)
	}
	return p, nil
}

// ValidPolicies returns the accepted policy names.
func ValidPolicies() []string {
	return []string{string(PolicyReplace), string(PolicyKeep), string(PolicyAppend)}
}
