package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-flow-api/internal/models"
)

// ProgressRepository handles persistence of per-enrollment progress.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository constructs the repository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// FindByEnrollment returns the progress row paired with an enrollment.
func (r *ProgressRepository) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.Progress, error) {
	const query = `SELECT id, enrollment_id, total_lessons, completed_lessons, created_at, updated_at
		FROM progress WHERE enrollment_id = $1`
	var progress models.Progress
	if err := r.db.GetContext(ctx, &progress, query, enrollmentID); err != nil {
		return nil, err
	}
	return &progress, nil
}

// IncrementCompletedForCourse bumps completed lesson counters for every
// ACTIVE enrollment of the course, inside the caller's transaction. Invoked
// when a lesson reaches COMPLETED.
func (r *ProgressRepository) IncrementCompletedForCourse(ctx context.Context, exec sqlx.ExtContext, courseID string) error {
	const query = `UPDATE progress SET completed_lessons = completed_lessons + 1, updated_at = $1
		WHERE enrollment_id IN (SELECT id FROM enrollments WHERE course_id = $2 AND status = $3)`
	if _, err := exec.ExecContext(ctx, query, time.Now().UTC(), courseID, models.EnrollmentStatusActive); err != nil {
		return fmt.Errorf("increment progress: %w", err)
	}
	return nil
}
