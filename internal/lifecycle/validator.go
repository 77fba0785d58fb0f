package lifecycle

import (
	"fmt"

	appErrors "github.com/noah-isme/course-flow-api/pkg/errors"
)

// Validate checks whether the requested state is directly reachable from the
// current state in the kind's transition table. It is pure and performs no
// I/O; precondition guards run separately, and only after this check passes.
// An unrecognised current state is denied like any other illegal edge.
func Validate(kind EntityKind, current, requested string) error {
	table, ok := tables[kind]
	if !ok {
		return appErrors.Clone(appErrors.ErrInvalidStatusTransition, fmt.Sprintf("unknown entity kind %q", kind))
	}
	allowed, ok := table[current]
	if !ok {
		return appErrors.Clone(appErrors.ErrInvalidStatusTransition, fmt.Sprintf("unknown %s state %q", kind, current))
	}
	if _, ok := allowed[requested]; !ok {
		return appErrors.Clone(appErrors.ErrInvalidStatusTransition, fmt.Sprintf("%s cannot move from %s to %s", kind, current, requested))
	}
	return nil
}

// Check runs the two-phase pipeline: the structural table check first, then
// the guard chain for the (kind, requested) pair. A structurally illegal
// transition never evaluates a guard.
func (v *Validator) Check(kind EntityKind, current, requested string, ctx GuardContext) error {
	if err := Validate(kind, current, requested); err != nil {
		return err
	}
	return v.CheckGuards(kind, requested, ctx)
}

// Validator evaluates precondition guards with configured thresholds.
type Validator struct {
	minTopicsForCourse int
}

// NewValidator constructs a Validator. A non-positive minTopics falls back to
// DefaultMinTopicsForCourse.
func NewValidator(minTopicsForCourse int) *Validator {
	if minTopicsForCourse <= 0 {
		minTopicsForCourse = DefaultMinTopicsForCourse
	}
	return &Validator{minTopicsForCourse: minTopicsForCourse}
}
