package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/course-flow-api/internal/lifecycle"
	"github.com/noah-isme/course-flow-api/internal/models"
	appErrors "github.com/noah-isme/course-flow-api/pkg/errors"
)

type votingCourseStore interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	UpdateStatusTx(ctx context.Context, exec sqlx.ExtContext, id string, status models.CourseStatus) error
}

type voteStore interface {
	ReplaceForStudent(ctx context.Context, studentID, courseID string, moduleIDs []string) error
	ListByStudent(ctx context.Context, studentID, courseID string) ([]string, error)
	TallyByCourse(ctx context.Context, courseID string) ([]models.ModuleTally, error)
}

type votingModuleStore interface {
	CountByCourseAndIDs(ctx context.Context, courseID string, ids []string) (int, error)
	UpdateSelection(ctx context.Context, exec sqlx.ExtContext, courseID string, selectedIDs []string) error
}

type activeEnrollmentChecker interface {
	ExistsActiveByStudent(ctx context.Context, studentID, courseID string) (bool, error)
}

// SubmitVotesRequest carries a student's full topic selection. Submissions
// replace any previous set, they never merge.
type SubmitVotesRequest struct {
	ModuleIDs []string `json:"module_ids" validate:"required,min=1,dive,required"`
}

// VotingConfig bounds the voting round.
type VotingConfig struct {
	RequiredTopics int
}

// FinalizationResult reports the outcome of closing a voting round.
type FinalizationResult struct {
	CourseID        string               `json:"course_id"`
	SelectedModules []models.ModuleTally `json:"selected_modules"`
}

// VotingService runs the topic voting round of a course.
type VotingService struct {
	courses     votingCourseStore
	votes       voteStore
	modules     votingModuleStore
	enrollments activeEnrollmentChecker
	db          txBeginner
	cache       cacheStore
	cacheCfg    CourseCacheConfig
	cfg         VotingConfig
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewVotingService constructs VotingService.
func NewVotingService(
	courses votingCourseStore,
	votes voteStore,
	modules votingModuleStore,
	enrollments activeEnrollmentChecker,
	db txBeginner,
	cache cacheStore,
	cacheCfg CourseCacheConfig,
	cfg VotingConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *VotingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequiredTopics <= 0 {
		cfg.RequiredTopics = lifecycle.DefaultRequiredTopics
	}
	return &VotingService{
		courses:     courses,
		votes:       votes,
		modules:     modules,
		enrollments: enrollments,
		db:          db,
		cache:       cache,
		cacheCfg:    cacheCfg,
		cfg:         cfg,
		validator:   validate,
		logger:      logger,
	}
}

func tallyCacheKey(courseID string) string {
	return "course:tally:" + courseID
}

// SubmitVotes stores a student's topic selection for a course in voting.
// The selection must contain exactly the required number of distinct modules,
// all belonging to the course, and the student must hold an active enrollment.
func (s *VotingService) SubmitVotes(ctx context.Context, studentID, courseID string, req SubmitVotesRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid vote payload")
	}

	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return err
	}
	if course.Status != models.CourseStatusTopicVoting {
		return appErrors.ErrVotingClosed
	}

	enrolled, err := s.enrollments.ExistsActiveByStudent(ctx, studentID, courseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return appErrors.Clone(appErrors.ErrForbidden, "student does not hold an active enrollment in the course")
	}

	distinct := dedupe(req.ModuleIDs)
	if len(distinct) != s.cfg.RequiredTopics {
		return appErrors.Clone(appErrors.ErrInvalidVoteCount,
			fmt.Sprintf("vote must select exactly %d distinct topics", s.cfg.RequiredTopics))
	}

	owned, err := s.modules.CountByCourseAndIDs(ctx, courseID, distinct)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify modules")
	}
	if owned != len(distinct) {
		return appErrors.ErrInvalidModules
	}

	if err := s.votes.ReplaceForStudent(ctx, studentID, courseID, distinct); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store votes")
	}
	s.invalidateTally(ctx, courseID)
	return nil
}

// MyVotes returns the module ids a student currently votes for.
func (s *VotingService) MyVotes(ctx context.Context, studentID, courseID string) ([]string, error) {
	moduleIDs, err := s.votes.ListByStudent(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load votes")
	}
	return moduleIDs, nil
}

// Tally returns every module with its distinct-student vote count, ordered by
// votes descending with order index as the tie-breaker. The result is cached.
func (s *VotingService) Tally(ctx context.Context, courseID string) ([]models.ModuleTally, error) {
	if _, err := s.loadCourse(ctx, courseID); err != nil {
		return nil, err
	}

	key := tallyCacheKey(courseID)
	if s.cacheCfg.Enabled && s.cache != nil {
		var cached []models.ModuleTally
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	tallies, err := s.votes.TallyByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to tally votes")
	}
	if s.cacheCfg.Enabled && s.cache != nil {
		if err := s.cache.Set(ctx, key, tallies, s.cacheCfg.TTL); err != nil {
			s.logger.Warn("failed to cache vote tally", zap.Error(err))
		}
	}
	return tallies, nil
}

// FinalizeVoting closes the round: the top modules by vote count become the
// course's selected set and the course moves to SCHEDULED, atomically. Ties
// break toward the lower order index; the tallies are re-sorted here so the
// outcome stays deterministic regardless of the store's ordering.
func (s *VotingService) FinalizeVoting(ctx context.Context, courseID string) (*FinalizationResult, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Validate(lifecycle.KindCourse, string(course.Status), string(models.CourseStatusScheduled)); err != nil {
		return nil, err
	}

	tallies, err := s.votes.TallyByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to tally votes")
	}
	sort.SliceStable(tallies, func(i, j int) bool {
		if tallies[i].VoteCount != tallies[j].VoteCount {
			return tallies[i].VoteCount > tallies[j].VoteCount
		}
		return tallies[i].OrderIndex < tallies[j].OrderIndex
	})

	take := s.cfg.RequiredTopics
	if take > len(tallies) {
		take = len(tallies)
	}
	selected := tallies[:take]
	selectedIDs := make([]string, len(selected))
	for i, tally := range selected {
		selectedIDs[i] = tally.ModuleID
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin finalization")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.modules.UpdateSelection(ctx, tx, courseID, selectedIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark selected modules")
	}
	if err = s.courses.UpdateStatusTx(ctx, tx, courseID, models.CourseStatusScheduled); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course status")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit finalization")
	}

	s.invalidateTally(ctx, courseID)
	if s.cacheCfg.Enabled && s.cache != nil {
		if err := s.cache.Delete(ctx, courseCacheKey(courseID)); err != nil {
			s.logger.Warn("failed to invalidate course cache", zap.Error(err))
		}
	}

	s.logger.Info("voting finalized",
		zap.String("course_id", courseID),
		zap.Int("selected_modules", len(selectedIDs)),
	)
	return &FinalizationResult{CourseID: courseID, SelectedModules: selected}, nil
}

func (s *VotingService) loadCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *VotingService) invalidateTally(ctx context.Context, courseID string) {
	if !s.cacheCfg.Enabled || s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, tallyCacheKey(courseID)); err != nil {
		s.logger.Warn("failed to invalidate tally cache", zap.Error(err))
	}
}

// dedupe preserves first-seen order while removing duplicates.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
