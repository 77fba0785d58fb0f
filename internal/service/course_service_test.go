package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-flow-api/internal/lifecycle"
	"github.com/noah-isme/course-flow-api/internal/models"
	appErrors "github.com/noah-isme/course-flow-api/pkg/errors"
)

type courseRepoMock struct {
	courses   map[string]models.Course
	created   *models.Course
	statusSet map[string]models.CourseStatus
	deleted   []string
}

func (m *courseRepoMock) Create(ctx context.Context, course *models.Course) error {
	if m.courses == nil {
		m.courses = map[string]models.Course{}
	}
	if course.ID == "" {
		course.ID = "new-course"
	}
	m.courses[course.ID] = *course
	m.created = course
	return nil
}

func (m *courseRepoMock) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *courseRepoMock) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	if c, ok := m.courses[id]; ok {
		return &models.CourseDetail{Course: c}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *courseRepoMock) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	var out []models.CourseDetail
	for _, c := range m.courses {
		out = append(out, models.CourseDetail{Course: c})
	}
	return out, len(out), nil
}

func (m *courseRepoMock) UpdateDraft(ctx context.Context, course *models.Course) error {
	m.courses[course.ID] = *course
	return nil
}

func (m *courseRepoMock) UpdateStatus(ctx context.Context, id string, status models.CourseStatus) error {
	if m.statusSet == nil {
		m.statusSet = map[string]models.CourseStatus{}
	}
	m.statusSet[id] = status
	if c, ok := m.courses[id]; ok {
		c.Status = status
		m.courses[id] = c
	}
	return nil
}

func (m *courseRepoMock) SoftDelete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.courses, id)
	return nil
}

type countMock struct {
	count int
	err   error
}

func (m *countMock) CountByCourse(ctx context.Context, courseID string) (int, error) {
	return m.count, m.err
}

type activeCountMock struct {
	count int
}

func (m *activeCountMock) CountActive(ctx context.Context, courseID string) (int, error) {
	return m.count, nil
}

func newCourseService(repo *courseRepoMock, modules, lessons *countMock, active *activeCountMock, cache *cacheMock) *CourseService {
	cfg := CourseCacheConfig{}
	var store cacheStore
	if cache != nil {
		cfg.Enabled = true
		store = cache
	}
	return NewCourseService(repo, modules, lessons, active, lifecycle.NewValidator(0), store, cfg, &metricsMock{}, validator.New(), zap.NewNop())
}

func TestCourseServiceCreate(t *testing.T) {
	repo := &courseRepoMock{}
	svc := newCourseService(repo, &countMock{}, &countMock{}, &activeCountMock{}, nil)

	detail, err := svc.Create(context.Background(), "school-1", CreateCourseRequest{Title: "Algebra", MaxStudents: 25})
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusDraft, detail.Status)
	assert.Equal(t, "school-1", repo.created.SchoolID)
	assert.Equal(t, 25, repo.created.MaxStudents)
}

func TestCourseServiceCreateRejectsInvalidPayload(t *testing.T) {
	svc := newCourseService(&courseRepoMock{}, &countMock{}, &countMock{}, &activeCountMock{}, nil)

	_, err := svc.Create(context.Background(), "school-1", CreateCourseRequest{Title: "x", MaxStudents: 0})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceGetCachesDetail(t *testing.T) {
	repo := &courseRepoMock{courses: map[string]models.Course{"c1": {ID: "c1", Status: models.CourseStatusDraft}}}
	cache := newCacheMock()
	svc := newCourseService(repo, &countMock{}, &countMock{}, &activeCountMock{}, cache)

	_, err := svc.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Contains(t, cache.gets, courseCacheKey("c1"))
	assert.Contains(t, cache.sets, courseCacheKey("c1"))
}

func TestCourseServiceGetNotFound(t *testing.T) {
	svc := newCourseService(&courseRepoMock{}, &countMock{}, &countMock{}, &activeCountMock{}, nil)

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceChangeStatusOpensVoting(t *testing.T) {
	repo := &courseRepoMock{courses: map[string]models.Course{"c1": {ID: "c1", Status: models.CourseStatusDraft}}}
	svc := newCourseService(repo, &countMock{count: 12}, &countMock{}, &activeCountMock{}, nil)

	detail, err := svc.ChangeStatus(context.Background(), "c1", ChangeCourseStatusRequest{Status: models.CourseStatusTopicVoting})
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusTopicVoting, detail.Status)
	assert.Equal(t, models.CourseStatusTopicVoting, repo.statusSet["c1"])
}

func TestCourseServiceChangeStatusGuardDeniesThinCourse(t *testing.T) {
	repo := &courseRepoMock{courses: map[string]models.Course{"c1": {ID: "c1", Status: models.CourseStatusDraft}}}
	svc := newCourseService(repo, &countMock{count: 9}, &countMock{}, &activeCountMock{}, nil)

	_, err := svc.ChangeStatus(context.Background(), "c1", ChangeCourseStatusRequest{Status: models.CourseStatusTopicVoting})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInsufficientModules.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.statusSet)
}

func TestCourseServiceChangeStatusStructuralDenialSkipsGuards(t *testing.T) {
	repo := &courseRepoMock{courses: map[string]models.Course{"c1": {ID: "c1", Status: models.CourseStatusDraft}}}
	modules := &countMock{err: errors.New("must not be called")}
	svc := newCourseService(repo, modules, &countMock{}, &activeCountMock{}, nil)

	_, err := svc.ChangeStatus(context.Background(), "c1", ChangeCourseStatusRequest{Status: models.CourseStatusCompleted})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidStatusTransition.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceChangeStatusRequiresLessonsToStart(t *testing.T) {
	repo := &courseRepoMock{courses: map[string]models.Course{"c1": {ID: "c1", Status: models.CourseStatusScheduled}}}
	svc := newCourseService(repo, &countMock{}, &countMock{count: 0}, &activeCountMock{}, nil)

	_, err := svc.ChangeStatus(context.Background(), "c1", ChangeCourseStatusRequest{Status: models.CourseStatusInProgress})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoLessons.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceUpdateRejectsNonDraft(t *testing.T) {
	repo := &courseRepoMock{courses: map[string]models.Course{"c1": {ID: "c1", Status: models.CourseStatusScheduled}}}
	svc := newCourseService(repo, &countMock{}, &countMock{}, &activeCountMock{}, nil)

	_, err := svc.Update(context.Background(), "c1", UpdateCourseRequest{Title: "New Title", MaxStudents: 10})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceDeleteBlockedByActiveEnrollments(t *testing.T) {
	repo := &courseRepoMock{courses: map[string]models.Course{"c1": {ID: "c1", Status: models.CourseStatusDraft}}}
	svc := newCourseService(repo, &countMock{}, &countMock{}, &activeCountMock{count: 3}, nil)

	err := svc.Delete(context.Background(), "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestCourseServiceDelete(t *testing.T) {
	repo := &courseRepoMock{courses: map[string]models.Course{"c1": {ID: "c1", Status: models.CourseStatusDraft}}}
	svc := newCourseService(repo, &countMock{}, &countMock{}, &activeCountMock{}, nil)

	require.NoError(t, svc.Delete(context.Background(), "c1"))
	assert.Contains(t, repo.deleted, "c1")
}
