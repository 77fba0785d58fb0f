package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-flow-api/internal/lifecycle"
	"github.com/noah-isme/course-flow-api/internal/models"
	appErrors "github.com/noah-isme/course-flow-api/pkg/errors"
)

type moduleStore interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Module, error)
	ReplaceForCourse(ctx context.Context, courseID string, modules []models.Module) error
}

type moduleCourseStore interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// ModuleInput is one candidate topic in a replacement payload.
type ModuleInput struct {
	Title string `json:"title" validate:"required,min=3"`
}

// ReplaceModulesRequest swaps a course's whole topic collection. Order in the
// payload becomes the order index.
type ReplaceModulesRequest struct {
	Modules []ModuleInput `json:"modules" validate:"required,min=1,dive"`
}

// ModuleLimits bounds the topic collection size.
type ModuleLimits struct {
	MaxTopicsPerCourse int
}

// ModuleService manages a course's candidate topics.
type ModuleService struct {
	modules   moduleStore
	courses   moduleCourseStore
	limits    ModuleLimits
	validator *validator.Validate
	logger    *zap.Logger
}

// NewModuleService constructs ModuleService.
func NewModuleService(modules moduleStore, courses moduleCourseStore, limits ModuleLimits, validate *validator.Validate, logger *zap.Logger) *ModuleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if limits.MaxTopicsPerCourse <= 0 {
		limits.MaxTopicsPerCourse = lifecycle.DefaultMaxTopicsPerCourse
	}
	return &ModuleService{modules: modules, courses: courses, limits: limits, validator: validate, logger: logger}
}

// List returns a course's modules in order-index order.
func (s *ModuleService) List(ctx context.Context, courseID string) ([]models.Module, error) {
	if _, err := s.loadCourse(ctx, courseID); err != nil {
		return nil, err
	}
	modules, err := s.modules.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list modules")
	}
	return modules, nil
}

// Replace swaps the course's whole topic collection. Only draft courses
// accept changes: once voting opens the candidate set is frozen.
func (s *ModuleService) Replace(ctx context.Context, courseID string, req ReplaceModulesRequest) ([]models.Module, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid modules payload")
	}
	if len(req.Modules) > s.limits.MaxTopicsPerCourse {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("a course can hold at most %d topics", s.limits.MaxTopicsPerCourse))
	}

	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.Status != models.CourseStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "modules can only be changed while the course is a draft")
	}

	modules := make([]models.Module, len(req.Modules))
	for i, input := range req.Modules {
		modules[i] = models.Module{Title: input.Title}
	}
	if err := s.modules.ReplaceForCourse(ctx, courseID, modules); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace modules")
	}

	s.logger.Info("course modules replaced",
		zap.String("course_id", courseID),
		zap.Int("modules", len(modules)),
	)
	return modules, nil
}

func (s *ModuleService) loadCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}
