package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-flow-api/internal/models"
)

// CourseRepository handles persistence of courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = `id, school_id, title, description, status, max_students, start_date, end_date, deleted_at, created_at, updated_at`

const courseDetailSelect = `SELECT c.id, c.school_id, c.title, c.description, c.status, c.max_students, c.start_date, c.end_date, c.deleted_at, c.created_at, c.updated_at,
	(SELECT COUNT(*) FROM modules m WHERE m.course_id = c.id) AS module_count,
	(SELECT COUNT(*) FROM lessons l WHERE l.course_id = c.id) AS lesson_count,
	(SELECT COUNT(*) FROM enrollments e WHERE e.course_id = c.id AND e.status IN ('PENDING', 'ACTIVE')) AS enrollment_count
	FROM courses c`

// Create inserts a new course in DRAFT state.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	now := time.Now().UTC()
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	course.CreatedAt = now
	course.UpdatedAt = now

	const query = `INSERT INTO courses (id, school_id, title, description, status, max_students, created_at, updated_at)
		VALUES (:id, :school_id, :title, :description, :status, :max_students, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// FindByID returns a non-deleted course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1 AND deleted_at IS NULL`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindDetailByID returns a course with its aggregate counts.
func (r *CourseRepository) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	query := courseDetailSelect + ` WHERE c.id = $1 AND c.deleted_at IS NULL`
	var detail models.CourseDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns courses filtered by the provided criteria.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	conditions := []string{"c.deleted_at IS NULL"}
	var args []interface{}

	if filter.SchoolID != "" {
		conditions = append(conditions, fmt.Sprintf("c.school_id = $%d", len(args)+1))
		args = append(args, filter.SchoolID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("c.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("c.title ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := " WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"created_at": "c.created_at",
		"title":      "c.title",
		"start_date": "c.start_date",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`%s%s ORDER BY %s %s LIMIT %d OFFSET %d`, courseDetailSelect, clause, orderBy, order, size, offset)

	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM courses c" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// UpdateDraft modifies author-editable fields of a course.
func (r *CourseRepository) UpdateDraft(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET title = :title, description = :description, max_students = :max_students, updated_at = :updated_at
		WHERE id = :id AND deleted_at IS NULL`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// UpdateStatus moves the course to a new status.
func (r *CourseRepository) UpdateStatus(ctx context.Context, id string, status models.CourseStatus) error {
	return r.UpdateStatusTx(ctx, r.db, id, status)
}

// UpdateStatusTx moves the course to a new status inside the caller's
// transaction, so paired "update dependents, update course status" sequences
// stay one atomic unit.
func (r *CourseRepository) UpdateStatusTx(ctx context.Context, exec sqlx.ExtContext, id string, status models.CourseStatus) error {
	if _, err := exec.ExecContext(ctx, `UPDATE courses SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update course status: %w", err)
	}
	return nil
}

// UpdateDates sets the derived start/end bounds of a course.
func (r *CourseRepository) UpdateDates(ctx context.Context, exec sqlx.ExtContext, id string, start, end time.Time) error {
	if _, err := exec.ExecContext(ctx, `UPDATE courses SET start_date = $1, end_date = $2, updated_at = $3 WHERE id = $4`, start, end, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update course dates: %w", err)
	}
	return nil
}

// SoftDelete tombstones a course without removing the row.
func (r *CourseRepository) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, `UPDATE courses SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`, now, id); err != nil {
		return fmt.Errorf("soft delete course: %w", err)
	}
	return nil
}
