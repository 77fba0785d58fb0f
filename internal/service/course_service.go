package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-flow-api/internal/lifecycle"
	"github.com/noah-isme/course-flow-api/internal/models"
	appErrors "github.com/noah-isme/course-flow-api/pkg/errors"
)

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	UpdateDraft(ctx context.Context, course *models.Course) error
	UpdateStatus(ctx context.Context, id string, status models.CourseStatus) error
	SoftDelete(ctx context.Context, id string) error
}

type moduleCounter interface {
	CountByCourse(ctx context.Context, courseID string) (int, error)
}

type lessonCounter interface {
	CountByCourse(ctx context.Context, courseID string) (int, error)
}

type activeEnrollmentCounter interface {
	CountActive(ctx context.Context, courseID string) (int, error)
}

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CreateCourseRequest describes course creation payload.
type CreateCourseRequest struct {
	Title       string `json:"title" validate:"required,min=3"`
	Description string `json:"description"`
	MaxStudents int    `json:"max_students" validate:"required,min=1"`
}

// UpdateCourseRequest describes draft metadata updates.
type UpdateCourseRequest struct {
	Title       string `json:"title" validate:"required,min=3"`
	Description string `json:"description"`
	MaxStudents int    `json:"max_students" validate:"required,min=1"`
}

// ChangeCourseStatusRequest requests a lifecycle transition.
type ChangeCourseStatusRequest struct {
	Status models.CourseStatus `json:"status" validate:"required"`
}

// CourseCacheConfig tunes the read-through cache.
type CourseCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// CourseService orchestrates the course lifecycle.
type CourseService struct {
	repo        courseRepository
	modules     moduleCounter
	lessons     lessonCounter
	enrollments activeEnrollmentCounter
	lifecycle   *lifecycle.Validator
	cache       cacheStore
	cacheCfg    CourseCacheConfig
	metrics     transitionObserver
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(
	repo courseRepository,
	modules moduleCounter,
	lessons lessonCounter,
	enrollments activeEnrollmentCounter,
	lc *lifecycle.Validator,
	cache cacheStore,
	cacheCfg CourseCacheConfig,
	metrics transitionObserver,
	validate *validator.Validate,
	logger *zap.Logger,
) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if lc == nil {
		lc = lifecycle.NewValidator(lifecycle.DefaultMinTopicsForCourse)
	}
	return &CourseService{
		repo:        repo,
		modules:     modules,
		lessons:     lessons,
		enrollments: enrollments,
		lifecycle:   lc,
		cache:       cache,
		cacheCfg:    cacheCfg,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

func courseCacheKey(id string) string {
	return "course:detail:" + id
}

// Create registers a new course in DRAFT state.
func (s *CourseService) Create(ctx context.Context, schoolID string, req CreateCourseRequest) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course := &models.Course{
		SchoolID:    schoolID,
		Title:       req.Title,
		Description: req.Description,
		Status:      models.CourseStatusDraft,
		MaxStudents: req.MaxStudents,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	detail, err := s.repo.FindDetailByID(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course detail")
	}
	return detail, nil
}

// Get returns a course with aggregate counts, read through the cache.
func (s *CourseService) Get(ctx context.Context, id string) (*models.CourseDetail, error) {
	key := courseCacheKey(id)
	if s.cacheCfg.Enabled && s.cache != nil {
		var cached models.CourseDetail
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if s.cacheCfg.Enabled && s.cache != nil {
		if err := s.cache.Set(ctx, key, detail, s.cacheCfg.TTL); err != nil {
			s.logger.Warn("failed to cache course detail", zap.Error(err))
		}
	}
	return detail, nil
}

// List returns courses with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return courses, pagination, nil
}

// Update modifies author-editable fields while the course is still a draft.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.loadCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if course.Status != models.CourseStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only draft courses can be edited")
	}
	course.Title = req.Title
	course.Description = req.Description
	course.MaxStudents = req.MaxStudents
	if err := s.repo.UpdateDraft(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	s.invalidate(ctx, id)
	return s.repo.FindDetailByID(ctx, id)
}

// ChangeStatus runs the two-phase transition pipeline: the structural table
// check first, then the guard chain over freshly loaded aggregate counts.
func (s *CourseService) ChangeStatus(ctx context.Context, id string, req ChangeCourseStatusRequest) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	course, err := s.loadCourse(ctx, id)
	if err != nil {
		return nil, err
	}

	// The table check runs before any aggregate read so structurally illegal
	// requests never touch the guards.
	if err := lifecycle.Validate(lifecycle.KindCourse, string(course.Status), string(req.Status)); err != nil {
		return nil, err
	}

	guardCtx := lifecycle.GuardContext{}
	switch req.Status {
	case models.CourseStatusTopicVoting:
		count, err := s.modules.CountByCourse(ctx, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count modules")
		}
		guardCtx.ModuleCount = count
	case models.CourseStatusInProgress:
		count, err := s.lessons.CountByCourse(ctx, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count lessons")
		}
		guardCtx.LessonCount = count
	}
	if err := s.lifecycle.CheckGuards(lifecycle.KindCourse, string(req.Status), guardCtx); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, id, req.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course status")
	}
	s.invalidate(ctx, id)

	if s.metrics != nil {
		s.metrics.ObserveTransition(string(lifecycle.KindCourse), string(course.Status), string(req.Status))
	}
	s.logger.Info("course status changed",
		zap.String("course_id", id),
		zap.String("from", string(course.Status)),
		zap.String("to", string(req.Status)),
	)
	return s.repo.FindDetailByID(ctx, id)
}

// Delete tombstones a course. Courses holding pending or active enrollments
// cannot be removed.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if _, err := s.loadCourse(ctx, id); err != nil {
		return err
	}
	active, err := s.enrollments.CountActive(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	if active > 0 {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("course has %d active enrollments", active))
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *CourseService) loadCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *CourseService) invalidate(ctx context.Context, id string) {
	if !s.cacheCfg.Enabled || s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, courseCacheKey(id), tallyCacheKey(id)); err != nil {
		s.logger.Warn("failed to invalidate course cache", zap.Error(err))
	}
}
