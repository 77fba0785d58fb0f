package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-flow-api/internal/models"
	appErrors "github.com/noah-isme/course-flow-api/pkg/errors"
)

// edgesAsStrings flattens a typed edge declaration so the test can compare
// Validate against the source of truth rather than the derived lookup tables.
func edgesAsStrings[S ~string](edges map[S][]S) map[string][]string {
	out := make(map[string][]string, len(edges))
	for from, targets := range edges {
		tos := make([]string, 0, len(targets))
		for _, to := range targets {
			tos = append(tos, string(to))
		}
		out[string(from)] = tos
	}
	return out
}

func TestValidateMatchesTablesExhaustively(t *testing.T) {
	kinds := map[EntityKind]map[string][]string{
		KindCourse:     edgesAsStrings(courseTransitions),
		KindLesson:     edgesAsStrings(lessonTransitions),
		KindEnrollment: edgesAsStrings(enrollmentTransitions),
		KindPayment:    edgesAsStrings(paymentTransitions),
	}
	for kind, edges := range kinds {
		require.NotEmpty(t, edges)
		states := make([]string, 0, len(edges))
		for state := range edges {
			states = append(states, state)
		}
		assert.ElementsMatch(t, states, States(kind), "%s: derived table must cover the declared states", kind)
		for _, current := range states {
			allowed := make(map[string]struct{})
			for _, to := range edges[current] {
				allowed[to] = struct{}{}
			}
			for _, requested := range states {
				err := Validate(kind, current, requested)
				if _, ok := allowed[requested]; ok {
					assert.NoError(t, err, "%s: %s -> %s should be allowed", kind, current, requested)
				} else {
					require.Error(t, err, "%s: %s -> %s should be denied", kind, current, requested)
					assert.Equal(t, appErrors.ErrInvalidStatusTransition.Code, appErrors.FromError(err).Code)
				}
			}
		}
	}
}

func TestValidateUnknownCurrentState(t *testing.T) {
	err := Validate(KindCourse, "NOT_A_STATE", string(models.CourseStatusScheduled))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidStatusTransition.Code, appErrors.FromError(err).Code)
}

func TestValidateUnknownKind(t *testing.T) {
	err := Validate(EntityKind("invoice"), "PENDING", "PAID")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidStatusTransition.Code, appErrors.FromError(err).Code)
}

func TestTerminalStatesHaveNoTargets(t *testing.T) {
	assert.Empty(t, AllowedTargets(KindCourse, string(models.CourseStatusArchived)))
	assert.Empty(t, AllowedTargets(KindLesson, string(models.LessonStatusFeedbackSent)))
	assert.Empty(t, AllowedTargets(KindLesson, string(models.LessonStatusCancelled)))
	assert.Empty(t, AllowedTargets(KindEnrollment, string(models.EnrollmentStatusDropped)))
	assert.Empty(t, AllowedTargets(KindPayment, string(models.PaymentStatusRefunded)))
}

func TestCompletedToArchivedIsOneDirectional(t *testing.T) {
	require.NoError(t, Validate(KindCourse, string(models.CourseStatusCompleted), string(models.CourseStatusArchived)))
	assert.Error(t, Validate(KindCourse, string(models.CourseStatusArchived), string(models.CourseStatusCompleted)))
}
