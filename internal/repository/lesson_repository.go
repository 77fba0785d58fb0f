package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-flow-api/internal/models"
)

// LessonRepository handles persistence of lessons.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

const lessonColumns = `id, course_id, module_id, lesson_number, title, scheduled_at, duration, status, created_at, updated_at`

// FindByID returns a lesson by its ID.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	query := fmt.Sprintf(`SELECT %s FROM lessons WHERE id = $1`, lessonColumns)
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// ListByCourse returns a course's lessons in lesson-number order.
func (r *LessonRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Lesson, error) {
	query := fmt.Sprintf(`SELECT %s FROM lessons WHERE course_id = $1 ORDER BY lesson_number ASC`, lessonColumns)
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, courseID); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}

// CountByCourse returns the lesson count for a course.
func (r *LessonRepository) CountByCourse(ctx context.Context, courseID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM lessons WHERE course_id = $1`, courseID); err != nil {
		return 0, fmt.Errorf("count lessons: %w", err)
	}
	return count, nil
}

// ReplaceForCourse discards the course's previous lesson batch and inserts
// the new one inside the caller's transaction. There is no incremental mode:
// regeneration always replaces the whole batch.
func (r *LessonRepository) ReplaceForCourse(ctx context.Context, tx *sqlx.Tx, courseID string, lessons []models.Lesson) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM lessons WHERE course_id = $1`, courseID); err != nil {
		return fmt.Errorf("delete lessons: %w", err)
	}

	now := time.Now().UTC()
	for i := range lessons {
		payload := lessons[i]
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		payload.CourseID = courseID
		if payload.Status == "" {
			payload.Status = models.LessonStatusScheduled
		}
		payload.CreatedAt = now
		payload.UpdatedAt = now

		if _, err := sqlx.NamedExecContext(ctx, tx, `INSERT INTO lessons (id, course_id, module_id, lesson_number, title, scheduled_at, duration, status, created_at, updated_at)
			VALUES (:id, :course_id, :module_id, :lesson_number, :title, :scheduled_at, :duration, :status, :created_at, :updated_at)`, &payload); err != nil {
			return fmt.Errorf("insert lesson: %w", err)
		}
		lessons[i] = payload
	}
	return nil
}

// UpdateStatus moves a lesson to a new status.
func (r *LessonRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.LessonStatus) error {
	if _, err := exec.ExecContext(ctx, `UPDATE lessons SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update lesson status: %w", err)
	}
	return nil
}
