package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/course-flow-api/internal/lifecycle"
	"github.com/noah-isme/course-flow-api/internal/models"
	"github.com/noah-isme/course-flow-api/internal/schedule"
	appErrors "github.com/noah-isme/course-flow-api/pkg/errors"
)

type lessonStore interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Lesson, error)
	ReplaceForCourse(ctx context.Context, tx *sqlx.Tx, courseID string, lessons []models.Lesson) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.LessonStatus) error
}

type scheduleCourseStore interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	UpdateDates(ctx context.Context, exec sqlx.ExtContext, id string, start, end time.Time) error
}

type selectedModuleLister interface {
	ListSelectedByCourse(ctx context.Context, courseID string) ([]models.Module, error)
}

type progressIncrementer interface {
	IncrementCompletedForCourse(ctx context.Context, exec sqlx.ExtContext, courseID string) error
}

// lessonDB needs both transaction support and direct statement execution.
// *sqlx.DB satisfies it.
type lessonDB interface {
	txBeginner
	sqlx.ExtContext
}

// SchedulingDefaults carries generation values used when a request leaves
// fields unset.
type SchedulingDefaults struct {
	Frequency       string
	PreferredTime   string
	SkipWeekends    bool
	NumberOfLessons int
	DurationMinutes int
}

// GenerateScheduleRequest describes one lesson generation run. Zero-valued
// fields fall back to the configured defaults; SkipWeekends uses a pointer so
// an explicit false survives.
type GenerateScheduleRequest struct {
	StartDate       time.Time `json:"start_date" validate:"required"`
	Frequency       string    `json:"frequency"`
	PreferredTime   string    `json:"preferred_time"`
	SkipWeekends    *bool     `json:"skip_weekends"`
	NumberOfLessons int       `json:"number_of_lessons" validate:"omitempty,min=1,max=100"`
	DurationMinutes int       `json:"duration_minutes" validate:"omitempty,min=15,max=480"`
}

// ChangeLessonStatusRequest requests a lesson transition.
type ChangeLessonStatusRequest struct {
	Status models.LessonStatus `json:"status" validate:"required"`
}

// LessonService generates and advances lessons.
type LessonService struct {
	lessons   lessonStore
	courses   scheduleCourseStore
	modules   selectedModuleLister
	progress  progressIncrementer
	db        lessonDB
	defaults  SchedulingDefaults
	metrics   transitionObserver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLessonService constructs LessonService.
func NewLessonService(
	lessons lessonStore,
	courses scheduleCourseStore,
	modules selectedModuleLister,
	progress progressIncrementer,
	db lessonDB,
	defaults SchedulingDefaults,
	metrics transitionObserver,
	validate *validator.Validate,
	logger *zap.Logger,
) *LessonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.Frequency == "" {
		defaults.Frequency = string(schedule.FrequencyWeekly)
	}
	if defaults.PreferredTime == "" {
		defaults.PreferredTime = "10:00"
	}
	if defaults.NumberOfLessons <= 0 {
		defaults.NumberOfLessons = 10
	}
	if defaults.DurationMinutes <= 0 {
		defaults.DurationMinutes = 60
	}
	return &LessonService{
		lessons:   lessons,
		courses:   courses,
		modules:   modules,
		progress:  progress,
		db:        db,
		defaults:  defaults,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// GenerateSchedule builds the full dated lesson batch for a SCHEDULED course
// and persists it together with the derived course start and end dates.
// Running it again replaces the previous batch wholesale.
func (s *LessonService) GenerateSchedule(ctx context.Context, courseID string, req GenerateScheduleRequest) ([]models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.Status != models.CourseStatusScheduled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "lessons can only be generated for a scheduled course")
	}

	modules, err := s.modules.ListSelectedByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load selected modules")
	}

	params := s.buildParams(req, modules)
	descriptors, err := schedule.Generate(params)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule parameters")
	}

	lessons := make([]models.Lesson, len(descriptors))
	for i, d := range descriptors {
		lessons[i] = models.Lesson{
			CourseID:     courseID,
			ModuleID:     d.ModuleID,
			LessonNumber: d.LessonNumber,
			Title:        d.Title,
			ScheduledAt:  d.ScheduledAt,
			Duration:     d.Duration,
			Status:       models.LessonStatusScheduled,
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin schedule write")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.lessons.ReplaceForCourse(ctx, tx, courseID, lessons); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store lessons")
	}
	start := lessons[0].ScheduledAt
	end := lessons[len(lessons)-1].ScheduledAt
	if err = s.courses.UpdateDates(ctx, tx, courseID, start, end); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course dates")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule")
	}

	s.logger.Info("lesson schedule generated",
		zap.String("course_id", courseID),
		zap.Int("lessons", len(lessons)),
		zap.Time("first", start),
		zap.Time("last", end),
	)
	return lessons, nil
}

// List returns a course's lessons in lesson-number order.
func (s *LessonService) List(ctx context.Context, courseID string) ([]models.Lesson, error) {
	lessons, err := s.lessons.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	return lessons, nil
}

// ChangeStatus advances a lesson through its teaching flow. Completing a
// lesson also bumps the progress counter of every active enrollment in the
// same transaction.
func (s *LessonService) ChangeStatus(ctx context.Context, lessonID string, req ChangeLessonStatusRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}

	if err := lifecycle.Validate(lifecycle.KindLesson, string(lesson.Status), string(req.Status)); err != nil {
		return nil, err
	}

	if req.Status == models.LessonStatusCompleted {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin completion")
		}
		defer func() {
			if err != nil {
				_ = tx.Rollback()
			}
		}()
		if err = s.lessons.UpdateStatus(ctx, tx, lessonID, req.Status); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson status")
		}
		if err = s.progress.IncrementCompletedForCourse(ctx, tx, lesson.CourseID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update progress")
		}
		if err = tx.Commit(); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit completion")
		}
	} else if err := s.lessons.UpdateStatus(ctx, s.db, lessonID, req.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson status")
	}

	if s.metrics != nil {
		s.metrics.ObserveTransition(string(lifecycle.KindLesson), string(lesson.Status), string(req.Status))
	}
	s.logger.Info("lesson status changed",
		zap.String("lesson_id", lessonID),
		zap.String("from", string(lesson.Status)),
		zap.String("to", string(req.Status)),
	)
	return s.lessons.FindByID(ctx, lessonID)
}

func (s *LessonService) buildParams(req GenerateScheduleRequest, modules []models.Module) schedule.Params {
	params := schedule.Params{
		StartDate:    req.StartDate,
		Frequency:    schedule.Frequency(req.Frequency),
		TimeOfDay:    req.PreferredTime,
		SkipWeekends: s.defaults.SkipWeekends,
		Count:        req.NumberOfLessons,
		Duration:     req.DurationMinutes,
		Modules:      modules,
	}
	if req.Frequency == "" {
		params.Frequency = schedule.Frequency(s.defaults.Frequency)
	}
	if req.PreferredTime == "" {
		params.TimeOfDay = s.defaults.PreferredTime
	}
	if req.SkipWeekends != nil {
		params.SkipWeekends = *req.SkipWeekends
	}
	if req.NumberOfLessons <= 0 {
		params.Count = s.defaults.NumberOfLessons
	}
	if req.DurationMinutes <= 0 {
		params.Duration = s.defaults.DurationMinutes
	}
	return params
}
