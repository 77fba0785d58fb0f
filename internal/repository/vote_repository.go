package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-flow-api/internal/models"
)

// VoteRepository handles persistence of topic votes.
type VoteRepository struct {
	db *sqlx.DB
}

// NewVoteRepository constructs the repository.
func NewVoteRepository(db *sqlx.DB) *VoteRepository {
	return &VoteRepository{db: db}
}

// ReplaceForStudent atomically swaps a student's entire vote set for a course
// with the new module selection. Resubmission is therefore always safe: the
// stored set equals the latest submission, never a union or partial merge.
func (r *VoteRepository) ReplaceForStudent(ctx context.Context, studentID, courseID string, moduleIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace votes: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM topic_votes WHERE student_id = $1 AND course_id = $2`, studentID, courseID); err != nil {
		return fmt.Errorf("delete votes: %w", err)
	}

	now := time.Now().UTC()
	for _, moduleID := range moduleIDs {
		vote := models.TopicVote{
			ID:        uuid.NewString(),
			StudentID: studentID,
			CourseID:  courseID,
			ModuleID:  moduleID,
			CreatedAt: now,
		}
		if _, err = sqlx.NamedExecContext(ctx, tx, `INSERT INTO topic_votes (id, student_id, course_id, module_id, created_at)
			VALUES (:id, :student_id, :course_id, :module_id, :created_at)`, &vote); err != nil {
			return fmt.Errorf("insert vote: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace votes: %w", err)
	}
	return nil
}

// ListByStudent returns the module ids a student currently votes for.
func (r *VoteRepository) ListByStudent(ctx context.Context, studentID, courseID string) ([]string, error) {
	var moduleIDs []string
	const query = `SELECT module_id FROM topic_votes WHERE student_id = $1 AND course_id = $2 ORDER BY module_id`
	if err := r.db.SelectContext(ctx, &moduleIDs, query, studentID, courseID); err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	return moduleIDs, nil
}

// TallyByCourse returns every module of the course with its distinct-student
// vote count, ordered by vote count descending and order index ascending so
// ties break deterministically toward the first-authored module.
func (r *VoteRepository) TallyByCourse(ctx context.Context, courseID string) ([]models.ModuleTally, error) {
	const query = `SELECT m.id AS module_id, m.title, m.order_index, COUNT(DISTINCT v.student_id) AS vote_count
		FROM modules m
		LEFT JOIN topic_votes v ON v.module_id = m.id
		WHERE m.course_id = $1
		GROUP BY m.id, m.title, m.order_index
		ORDER BY vote_count DESC, m.order_index ASC`
	var tallies []models.ModuleTally
	if err := r.db.SelectContext(ctx, &tallies, query, courseID); err != nil {
		return nil, fmt.Errorf("tally votes: %w", err)
	}
	return tallies, nil
}
