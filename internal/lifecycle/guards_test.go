package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-flow-api/internal/models"
	appErrors "github.com/noah-isme/course-flow-api/pkg/errors"
)

func TestCheckTopicVotingRequiresModules(t *testing.T) {
	v := NewValidator(10)

	err := v.Check(KindCourse, string(models.CourseStatusDraft), string(models.CourseStatusTopicVoting), GuardContext{ModuleCount: 9})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInsufficientModules.Code, appErrors.FromError(err).Code)

	err = v.Check(KindCourse, string(models.CourseStatusDraft), string(models.CourseStatusTopicVoting), GuardContext{ModuleCount: 10})
	assert.NoError(t, err)
}

func TestCheckInProgressRequiresLessons(t *testing.T) {
	v := NewValidator(10)

	err := v.Check(KindCourse, string(models.CourseStatusScheduled), string(models.CourseStatusInProgress), GuardContext{LessonCount: 0})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoLessons.Code, appErrors.FromError(err).Code)

	err = v.Check(KindCourse, string(models.CourseStatusScheduled), string(models.CourseStatusInProgress), GuardContext{LessonCount: 1})
	assert.NoError(t, err)
}

func TestStructuralDenialSkipsGuards(t *testing.T) {
	v := NewValidator(10)

	// ARCHIVED -> TOPIC_VOTING is structurally illegal; the module-count guard
	// must not be reached even though it would also fail.
	err := v.Check(KindCourse, string(models.CourseStatusArchived), string(models.CourseStatusTopicVoting), GuardContext{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidStatusTransition.Code, appErrors.FromError(err).Code)
}

func TestCheckGuardsRunsGuardChainOnly(t *testing.T) {
	v := NewValidator(10)

	err := v.CheckGuards(KindCourse, string(models.CourseStatusTopicVoting), GuardContext{ModuleCount: 9})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInsufficientModules.Code, appErrors.FromError(err).Code)

	assert.NoError(t, v.CheckGuards(KindCourse, string(models.CourseStatusTopicVoting), GuardContext{ModuleCount: 10}))

	// Target states without a registered chain pass regardless of context.
	assert.NoError(t, v.CheckGuards(KindCourse, string(models.CourseStatusCancelled), GuardContext{}))
}

func TestUnguardedTransitionsPassWithEmptyContext(t *testing.T) {
	v := NewValidator(0)

	assert.NoError(t, v.Check(KindEnrollment, string(models.EnrollmentStatusActive), string(models.EnrollmentStatusSuspended), GuardContext{}))
	assert.NoError(t, v.Check(KindPayment, string(models.PaymentStatusPending), string(models.PaymentStatusPaid), GuardContext{}))
	assert.NoError(t, v.Check(KindLesson, string(models.LessonStatusScheduled), string(models.LessonStatusCancelled), GuardContext{}))
}

func TestNewValidatorDefaultsMinTopics(t *testing.T) {
	v := NewValidator(0)
	err := v.Check(KindCourse, string(models.CourseStatusDraft), string(models.CourseStatusTopicVoting), GuardContext{ModuleCount: DefaultMinTopicsForCourse - 1})
	require.Error(t, err)
	assert.NoError(t, v.Check(KindCourse, string(models.CourseStatusDraft), string(models.CourseStatusTopicVoting), GuardContext{ModuleCount: DefaultMinTopicsForCourse}))
}
