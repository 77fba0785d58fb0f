package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-flow-api/internal/models"
)

// ModuleRepository handles persistence of course modules.
type ModuleRepository struct {
	db *sqlx.DB
}

// NewModuleRepository constructs the repository.
func NewModuleRepository(db *sqlx.DB) *ModuleRepository {
	return &ModuleRepository{db: db}
}

// ListByCourse returns a course's modules in order-index order.
func (r *ModuleRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Module, error) {
	const query = `SELECT id, course_id, title, order_index, is_selected, created_at, updated_at
		FROM modules WHERE course_id = $1 ORDER BY order_index ASC`
	var modules []models.Module
	if err := r.db.SelectContext(ctx, &modules, query, courseID); err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	return modules, nil
}

// ListSelectedByCourse returns only the modules chosen by voting, in
// order-index order.
func (r *ModuleRepository) ListSelectedByCourse(ctx context.Context, courseID string) ([]models.Module, error) {
	const query = `SELECT id, course_id, title, order_index, is_selected, created_at, updated_at
		FROM modules WHERE course_id = $1 AND is_selected = TRUE ORDER BY order_index ASC`
	var modules []models.Module
	if err := r.db.SelectContext(ctx, &modules, query, courseID); err != nil {
		return nil, fmt.Errorf("list selected modules: %w", err)
	}
	return modules, nil
}

// CountByCourse returns the module count for a course.
func (r *ModuleRepository) CountByCourse(ctx context.Context, courseID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM modules WHERE course_id = $1`, courseID); err != nil {
		return 0, fmt.Errorf("count modules: %w", err)
	}
	return count, nil
}

// CountByCourseAndIDs counts how many of the given ids belong to the course.
func (r *ModuleRepository) CountByCourseAndIDs(ctx context.Context, courseID string, ids []string) (int, error) {
	query, args, err := sqlx.In(`SELECT COUNT(*) FROM modules WHERE course_id = ? AND id IN (?)`, courseID, ids)
	if err != nil {
		return 0, fmt.Errorf("build module membership query: %w", err)
	}
	query = r.db.Rebind(query)
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count modules by ids: %w", err)
	}
	return count, nil
}

// ReplaceForCourse swaps a course's whole module collection in one
// transaction, re-assigning dense zero-based order indexes from payload
// order. Existing votes against removed modules cascade away at the store.
func (r *ModuleRepository) ReplaceForCourse(ctx context.Context, courseID string, modules []models.Module) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace modules: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM modules WHERE course_id = $1`, courseID); err != nil {
		return fmt.Errorf("delete modules: %w", err)
	}

	now := time.Now().UTC()
	for i := range modules {
		payload := modules[i]
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		payload.CourseID = courseID
		payload.OrderIndex = i
		payload.IsSelected = false
		payload.CreatedAt = now
		payload.UpdatedAt = now

		if _, err = sqlx.NamedExecContext(ctx, tx, `INSERT INTO modules (id, course_id, title, order_index, is_selected, created_at, updated_at)
			VALUES (:id, :course_id, :title, :order_index, :is_selected, :created_at, :updated_at)`, &payload); err != nil {
			return fmt.Errorf("insert module: %w", err)
		}
		modules[i] = payload
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace modules: %w", err)
	}
	return nil
}

// UpdateSelection marks the given modules selected and clears the flag on
// every other module of the course, inside the caller's transaction.
func (r *ModuleRepository) UpdateSelection(ctx context.Context, exec sqlx.ExtContext, courseID string, selectedIDs []string) error {
	now := time.Now().UTC()
	if _, err := exec.ExecContext(ctx, `UPDATE modules SET is_selected = FALSE, updated_at = $1 WHERE course_id = $2`, now, courseID); err != nil {
		return fmt.Errorf("clear module selection: %w", err)
	}
	if len(selectedIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE modules SET is_selected = TRUE, updated_at = ? WHERE course_id = ? AND id IN (?)`, now, courseID, selectedIDs)
	if err != nil {
		return fmt.Errorf("build module selection query: %w", err)
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set module selection: %w", err)
	}
	return nil
}
