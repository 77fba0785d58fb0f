package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-flow-api/internal/models"
	appErrors "github.com/noah-isme/course-flow-api/pkg/errors"
)

type lessonRepoMock struct {
	lessons  map[string]models.Lesson
	replaced []models.Lesson
	status   map[string]models.LessonStatus
}

func (m *lessonRepoMock) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	if l, ok := m.lessons[id]; ok {
		return &l, nil
	}
	return nil, sql.ErrNoRows
}

func (m *lessonRepoMock) ListByCourse(ctx context.Context, courseID string) ([]models.Lesson, error) {
	var out []models.Lesson
	for _, l := range m.lessons {
		if l.CourseID == courseID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *lessonRepoMock) ReplaceForCourse(ctx context.Context, tx *sqlx.Tx, courseID string, lessons []models.Lesson) error {
	m.replaced = lessons
	return nil
}

func (m *lessonRepoMock) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.LessonStatus) error {
	if m.status == nil {
		m.status = map[string]models.LessonStatus{}
	}
	m.status[id] = status
	if l, ok := m.lessons[id]; ok {
		l.Status = status
		m.lessons[id] = l
	}
	return nil
}

type scheduleCourseMock struct {
	courses map[string]models.Course
	start   time.Time
	end     time.Time
	dated   bool
}

func (m *scheduleCourseMock) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *scheduleCourseMock) UpdateDates(ctx context.Context, exec sqlx.ExtContext, id string, start, end time.Time) error {
	m.start = start
	m.end = end
	m.dated = true
	return nil
}

type selectedModulesMock struct {
	modules []models.Module
}

func (m *selectedModulesMock) ListSelectedByCourse(ctx context.Context, courseID string) ([]models.Module, error) {
	return m.modules, nil
}

type progressIncMock struct {
	incremented []string
}

func (m *progressIncMock) IncrementCompletedForCourse(ctx context.Context, exec sqlx.ExtContext, courseID string) error {
	m.incremented = append(m.incremented, courseID)
	return nil
}

func defaultScheduling() SchedulingDefaults {
	return SchedulingDefaults{
		Frequency:       "weekly",
		PreferredTime:   "10:00",
		SkipWeekends:    true,
		NumberOfLessons: 10,
		DurationMinutes: 60,
	}
}

func TestLessonServiceGenerateSchedule(t *testing.T) {
	courses := &scheduleCourseMock{courses: map[string]models.Course{"c1": {ID: "c1", Status: models.CourseStatusScheduled}}}
	lessons := &lessonRepoMock{}
	modules := &selectedModulesMock{modules: []models.Module{
		{ID: "m1", Title: "Fractions"},
		{ID: "m2", Title: "Decimals"},
	}}
	db, mock := newTxDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	svc := NewLessonService(lessons, courses, modules, &progressIncMock{}, db, defaultScheduling(), &metricsMock{}, validator.New(), zap.NewNop())

	// Monday
	start := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	got, err := svc.GenerateSchedule(context.Background(), "c1", GenerateScheduleRequest{StartDate: start, NumberOfLessons: 4})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "Introduction", got[0].Title)
	assert.Equal(t, "Fractions", got[1].Title)
	assert.Equal(t, "Decimals", got[2].Title)
	assert.Equal(t, "Conclusion", got[3].Title)
	assert.Len(t, lessons.replaced, 4)
	require.True(t, courses.dated)
	assert.Equal(t, got[0].ScheduledAt, courses.start)
	assert.Equal(t, got[3].ScheduledAt, courses.end)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonServiceGenerateScheduleRequiresScheduledCourse(t *testing.T) {
	courses := &scheduleCourseMock{courses: map[string]models.Course{"c1": {ID: "c1", Status: models.CourseStatusDraft}}}
	db, _ := newTxDB(t)
	svc := NewLessonService(&lessonRepoMock{}, courses, &selectedModulesMock{}, &progressIncMock{}, db, defaultScheduling(), &metricsMock{}, validator.New(), zap.NewNop())

	_, err := svc.GenerateSchedule(context.Background(), "c1", GenerateScheduleRequest{StartDate: time.Now()})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestLessonServiceGenerateScheduleRejectsBadFrequency(t *testing.T) {
	courses := &scheduleCourseMock{courses: map[string]models.Course{"c1": {ID: "c1", Status: models.CourseStatusScheduled}}}
	db, _ := newTxDB(t)
	svc := NewLessonService(&lessonRepoMock{}, courses, &selectedModulesMock{}, &progressIncMock{}, db, defaultScheduling(), &metricsMock{}, validator.New(), zap.NewNop())

	_, err := svc.GenerateSchedule(context.Background(), "c1", GenerateScheduleRequest{StartDate: time.Now(), Frequency: "hourly"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestLessonServiceChangeStatus(t *testing.T) {
	lessons := &lessonRepoMock{lessons: map[string]models.Lesson{"l1": {ID: "l1", CourseID: "c1", Status: models.LessonStatusScheduled}}}
	db, _ := newTxDB(t)
	svc := NewLessonService(lessons, &scheduleCourseMock{}, &selectedModulesMock{}, &progressIncMock{}, db, defaultScheduling(), &metricsMock{}, validator.New(), zap.NewNop())

	got, err := svc.ChangeStatus(context.Background(), "l1", ChangeLessonStatusRequest{Status: models.LessonStatusInProgress})
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusInProgress, got.Status)
}

func TestLessonServiceChangeStatusCompletionBumpsProgress(t *testing.T) {
	lessons := &lessonRepoMock{lessons: map[string]models.Lesson{"l1": {ID: "l1", CourseID: "c1", Status: models.LessonStatusInProgress}}}
	progress := &progressIncMock{}
	db, mock := newTxDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	svc := NewLessonService(lessons, &scheduleCourseMock{}, &selectedModulesMock{}, progress, db, defaultScheduling(), &metricsMock{}, validator.New(), zap.NewNop())

	got, err := svc.ChangeStatus(context.Background(), "l1", ChangeLessonStatusRequest{Status: models.LessonStatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusCompleted, got.Status)
	assert.Contains(t, progress.incremented, "c1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonServiceChangeStatusDeniesIllegalEdge(t *testing.T) {
	lessons := &lessonRepoMock{lessons: map[string]models.Lesson{"l1": {ID: "l1", CourseID: "c1", Status: models.LessonStatusScheduled}}}
	db, _ := newTxDB(t)
	svc := NewLessonService(lessons, &scheduleCourseMock{}, &selectedModulesMock{}, &progressIncMock{}, db, defaultScheduling(), &metricsMock{}, validator.New(), zap.NewNop())

	_, err := svc.ChangeStatus(context.Background(), "l1", ChangeLessonStatusRequest{Status: models.LessonStatusCompleted})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidStatusTransition.Code, appErrors.FromError(err).Code)
	assert.Empty(t, lessons.status)
}
