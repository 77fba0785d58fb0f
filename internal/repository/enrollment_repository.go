package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-flow-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, student_id, course_id, status, payment_status, amount_due, enrolled_at, created_at, updated_at`

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.course_id, e.status, e.payment_status, e.amount_due, e.enrolled_at, e.created_at, e.updated_at,
		s.full_name AS student_name, c.title AS course_title
		FROM enrollments e
		LEFT JOIN students s ON s.id = e.student_id
		LEFT JOIN courses c ON c.id = e.course_id
		WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN students s ON s.id = e.student_id
LEFT JOIN courses c ON c.id = e.course_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "s.full_name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
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

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.course_id, e.status, e.payment_status, e.amount_due, e.enrolled_at, e.created_at, e.updated_at,
		s.full_name AS student_name, c.title AS course_title
		%s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// Exists reports whether any enrollment exists for the pair, regardless of
// status. The (student, course) pair is unique.
func (r *EnrollmentRepository) Exists(ctx context.Context, studentID, courseID string) (bool, error) {
	var id string
	err := r.db.GetContext(ctx, &id, `SELECT id FROM enrollments WHERE student_id = $1 AND course_id = $2`, studentID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// ListEnrolledStudents returns which of the given student ids already hold an
// enrollment in the course.
func (r *EnrollmentRepository) ListEnrolledStudents(ctx context.Context, courseID string, studentIDs []string) ([]string, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT student_id FROM enrollments WHERE course_id = ? AND student_id IN (?)`, courseID, studentIDs)
	if err != nil {
		return nil, fmt.Errorf("build enrolled students query: %w", err)
	}
	query = r.db.Rebind(query)
	var enrolled []string
	if err := r.db.SelectContext(ctx, &enrolled, query, args...); err != nil {
		return nil, fmt.Errorf("list enrolled students: %w", err)
	}
	return enrolled, nil
}

// CountActive counts enrollments holding a capacity slot (PENDING or ACTIVE).
func (r *EnrollmentRepository) CountActive(ctx context.Context, courseID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status IN ($2, $3)`
	if err := r.db.GetContext(ctx, &count, query, courseID, models.EnrollmentStatusPending, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}

// ExistsActiveByStudent reports whether the student holds an ACTIVE
// enrollment in the course.
func (r *EnrollmentRepository) ExistsActiveByStudent(ctx context.Context, studentID, courseID string) (bool, error) {
	var id string
	err := r.db.GetContext(ctx, &id, `SELECT id FROM enrollments WHERE student_id = $1 AND course_id = $2 AND status = $3`,
		studentID, courseID, models.EnrollmentStatusActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// CreateWithProgress inserts an enrollment and its paired progress row inside
// the caller's transaction so neither can exist without the other.
func (r *EnrollmentRepository) CreateWithProgress(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment, progress *models.Progress) error {
	now := time.Now().UTC()
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now

	if _, err := sqlx.NamedExecContext(ctx, exec, `INSERT INTO enrollments (id, student_id, course_id, status, payment_status, amount_due, enrolled_at, created_at, updated_at)
		VALUES (:id, :student_id, :course_id, :status, :payment_status, :amount_due, :enrolled_at, :created_at, :updated_at)`, enrollment); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}

	if progress.ID == "" {
		progress.ID = uuid.NewString()
	}
	progress.EnrollmentID = enrollment.ID
	progress.CreatedAt = now
	progress.UpdatedAt = now

	if _, err := sqlx.NamedExecContext(ctx, exec, `INSERT INTO progress (id, enrollment_id, total_lessons, completed_lessons, created_at, updated_at)
		VALUES (:id, :enrollment_id, :total_lessons, :completed_lessons, :created_at, :updated_at)`, progress); err != nil {
		return fmt.Errorf("insert progress: %w", err)
	}
	return nil
}

// UpdateStatus moves an enrollment to a new status.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE enrollments SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// UpdatePaymentStatus moves the payment side of an enrollment inside the
// caller's transaction.
func (r *EnrollmentRepository) UpdatePaymentStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.PaymentStatus) error {
	if _, err := exec.ExecContext(ctx, `UPDATE enrollments SET payment_status = $1, updated_at = $2 WHERE id = $3`, status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}
