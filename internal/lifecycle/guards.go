package lifecycle

import (
	"fmt"

	"github.com/noah-isme/course-flow-api/internal/models"
	appErrors "github.com/noah-isme/course-flow-api/pkg/errors"
)

// GuardContext carries the aggregate counts guards read. The orchestrator
// loads them up front; guards never query the store themselves.
type GuardContext struct {
	ModuleCount int
	LessonCount int
}

// guard is a precondition predicate attached to a (kind, target state) pair.
type guard func(v *Validator, ctx GuardContext) error

type guardKey struct {
	kind   EntityKind
	target string
}

// guardChains lists guards per target state, evaluated in declaration order
// with short-circuit on first failure.
var guardChains = map[guardKey][]guard{
	{KindCourse, string(models.CourseStatusTopicVoting)}: {requireMinimumModules},
	{KindCourse, string(models.CourseStatusInProgress)}:  {requireLessons},
}

// CheckGuards evaluates only the guard chain for the (kind, target) pair.
// Callers that already ran Validate use this to avoid a second table lookup.
func (v *Validator) CheckGuards(kind EntityKind, target string, ctx GuardContext) error {
	for _, g := range guardChains[guardKey{kind: kind, target: target}] {
		if err := g(v, ctx); err != nil {
			return err
		}
	}
	return nil
}

func requireMinimumModules(v *Validator, ctx GuardContext) error {
	if ctx.ModuleCount < v.minTopicsForCourse {
		return appErrors.Clone(appErrors.ErrInsufficientModules,
			fmt.Sprintf("course needs at least %d modules to open voting, has %d", v.minTopicsForCourse, ctx.ModuleCount))
	}
	return nil
}

func requireLessons(_ *Validator, ctx GuardContext) error {
	if ctx.LessonCount < 1 {
		return appErrors.Clone(appErrors.ErrNoLessons, "course has no lessons scheduled")
	}
	return nil
}
