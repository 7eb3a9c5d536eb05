package version

import (
	"strings"

	"github.com/pkg/errors"
)

// Operator is one of the Debian relational operators used in Depends,
// Breaks, Conflicts, Recommends, Suggests, Provides, and Replaces fields.
type Operator string

const (
	OpLT Operator = "<<"
	OpLE Operator = "<="
	OpEQ Operator = "="
	OpGE Operator = ">="
	OpGT Operator = ">>"
)

// Requirement is a single version constraint, e.g. ">= 1.2.3-1".
type Requirement struct {
	Operator Operator
	Version  Version
}

// ParseRequirement parses the parenthesized constraint portion of a
// dependency field entry, e.g. "(>= 1.2.3-1)" or ">= 1.2.3-1".
func ParseRequirement(s string) (Requirement, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	s = strings.TrimSpace(s)
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Requirement{}, errors.Errorf("malformed version requirement %q", s)
	}
	op := Operator(fields[0])
	switch op {
	case OpLT, OpLE, OpEQ, OpGE, OpGT:
	default:
		return Requirement{}, errors.Errorf("unknown relational operator %q", fields[0])
	}
	v, err := Parse(fields[1])
	if err != nil {
		return Requirement{}, errors.Wrapf(err, "version requirement %q", s)
	}
	return Requirement{Operator: op, Version: v}, nil
}

// Within reports whether v satisfies the requirement.
func (r Requirement) Within(v Version) bool {
	c := v.Compare(r.Version)
	switch r.Operator {
	case OpLT:
		return c < 0
	case OpLE:
		return c <= 0
	case OpEQ:
		return c == 0
	case OpGE:
		return c >= 0
	case OpGT:
		return c > 0
	default:
		return false
	}
}

// String renders the requirement as "OP VERSION", e.g. ">= 1.2.3-1",
// without the surrounding parentheses of the dependency-field form.
func (r Requirement) String() string {
	return string(r.Operator) + " " + r.Version.String()
}
