package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/course-flow-api/internal/lifecycle"
	"github.com/noah-isme/course-flow-api/internal/models"
	appErrors "github.com/noah-isme/course-flow-api/pkg/errors"
	"github.com/noah-isme/course-flow-api/pkg/export"
)

type enrollmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	Exists(ctx context.Context, studentID, courseID string) (bool, error)
	ListEnrolledStudents(ctx context.Context, courseID string, studentIDs []string) ([]string, error)
	CountActive(ctx context.Context, courseID string) (int, error)
	CreateWithProgress(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment, progress *models.Progress) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
}

type enrollmentCourseStore interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type studentStore interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Student, error)
}

type enrollmentLessonCounter interface {
	CountByCourse(ctx context.Context, courseID string) (int, error)
}

type progressStore interface {
	FindByEnrollment(ctx context.Context, enrollmentID string) (*models.Progress, error)
}

type rosterExporter interface {
	Render(table export.Table) ([]byte, error)
}

type rosterPDFExporter interface {
	Render(table export.Table, title string) ([]byte, error)
}

// AdmitRequest enrolls a single student into a course.
type AdmitRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	CourseID  string  `json:"course_id" validate:"required"`
	AmountDue float64 `json:"amount_due" validate:"min=0"`
}

// AdmitBulkRequest enrolls a batch of students into a course. Capacity is
// all-or-nothing: the whole batch is rejected when the remaining slots cannot
// fit every student not already enrolled.
type AdmitBulkRequest struct {
	CourseID   string   `json:"course_id" validate:"required"`
	StudentIDs []string `json:"student_ids" validate:"required,min=1,dive,required"`
	AmountDue  float64  `json:"amount_due" validate:"min=0"`
}

// ChangeEnrollmentStatusRequest requests an enrollment transition.
type ChangeEnrollmentStatusRequest struct {
	Status models.EnrollmentStatus `json:"status" validate:"required"`
}

// RosterExport is a rendered roster document.
type RosterExport struct {
	Content     []byte
	ContentType string
	Filename    string
}

// EnrollmentService admits students and manages their enrollments.
type EnrollmentService struct {
	enrollments enrollmentStore
	courses     enrollmentCourseStore
	students    studentStore
	lessons     enrollmentLessonCounter
	progress    progressStore
	db          txBeginner
	csv         rosterExporter
	pdf         rosterPDFExporter
	metrics     transitionObserver
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(
	enrollments enrollmentStore,
	courses enrollmentCourseStore,
	students studentStore,
	lessons enrollmentLessonCounter,
	progress progressStore,
	db txBeginner,
	csv rosterExporter,
	pdf rosterPDFExporter,
	metrics transitionObserver,
	validate *validator.Validate,
	logger *zap.Logger,
) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		enrollments: enrollments,
		courses:     courses,
		students:    students,
		lessons:     lessons,
		progress:    progress,
		db:          db,
		csv:         csv,
		pdf:         pdf,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// Admit enrolls one student. The student and course must share a school, the
// pair must not already exist, and the course must have a free slot. Capacity
// is check-then-act: a concurrent admit can still slip past the count, which
// is accepted for this workload.
func (s *EnrollmentService) Admit(ctx context.Context, req AdmitRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid admission payload")
	}

	course, err := s.loadCourse(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	student, err := s.loadStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if student.SchoolID != course.SchoolID {
		return nil, appErrors.ErrSchoolMismatch
	}

	exists, err := s.enrollments.Exists(ctx, req.StudentID, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if exists {
		return nil, appErrors.ErrAlreadyEnrolled
	}

	active, err := s.enrollments.CountActive(ctx, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	if active >= course.MaxStudents {
		return nil, appErrors.ErrCourseFull
	}

	lessonCount, err := s.lessons.CountByCourse(ctx, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count lessons")
	}

	enrollment := buildEnrollment(req.StudentID, req.CourseID, req.AmountDue)
	progress := &models.Progress{TotalLessons: lessonCount}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin admission")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = s.enrollments.CreateWithProgress(ctx, tx, enrollment, progress); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit admission")
	}

	s.logger.Info("student admitted",
		zap.String("student_id", req.StudentID),
		zap.String("course_id", req.CourseID),
	)
	return s.enrollments.FindDetailByID(ctx, enrollment.ID)
}

// AdmitBulk enrolls a batch. Students already enrolled are skipped rather
// than treated as errors; if every student is already enrolled the batch is
// rejected. Capacity is evaluated against the post-skip batch size.
func (s *EnrollmentService) AdmitBulk(ctx context.Context, req AdmitBulkRequest) (*models.BulkEnrollmentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk admission payload")
	}

	course, err := s.loadCourse(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}

	candidates := dedupe(req.StudentIDs)
	students, err := s.students.ListByIDs(ctx, candidates)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	if len(students) != len(candidates) {
		return nil, appErrors.Clone(appErrors.ErrInvalidStudents,
			fmt.Sprintf("%d of %d students could not be resolved", len(candidates)-len(students), len(candidates)))
	}
	for _, student := range students {
		if student.SchoolID != course.SchoolID {
			return nil, appErrors.ErrSchoolMismatch
		}
	}

	enrolled, err := s.enrollments.ListEnrolledStudents(ctx, req.CourseID, candidates)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollments")
	}
	skippedSet := make(map[string]struct{}, len(enrolled))
	for _, id := range enrolled {
		skippedSet[id] = struct{}{}
	}
	var admit, skipped []string
	for _, id := range candidates {
		if _, ok := skippedSet[id]; ok {
			skipped = append(skipped, id)
			continue
		}
		admit = append(admit, id)
	}
	if len(admit) == 0 {
		return nil, appErrors.ErrAllAlreadyEnrolled
	}

	active, err := s.enrollments.CountActive(ctx, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	remaining := course.MaxStudents - active
	if remaining < len(admit) {
		return nil, appErrors.Clone(appErrors.ErrInsufficientCapacity,
			fmt.Sprintf("course has %d remaining slots for %d students", remaining, len(admit)))
	}

	lessonCount, err := s.lessons.CountByCourse(ctx, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count lessons")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin bulk admission")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, studentID := range admit {
		enrollment := buildEnrollment(studentID, req.CourseID, req.AmountDue)
		progress := &models.Progress{TotalLessons: lessonCount}
		if err = s.enrollments.CreateWithProgress(ctx, tx, enrollment, progress); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit bulk admission")
	}

	s.logger.Info("bulk admission completed",
		zap.String("course_id", req.CourseID),
		zap.Int("enrolled", len(admit)),
		zap.Int("skipped", len(skipped)),
	)
	return &models.BulkEnrollmentResult{Enrolled: admit, Skipped: skipped}, nil
}

// Get returns an enrollment with student and course context.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.enrollments.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ChangeStatus moves an enrollment through its lifecycle.
func (s *EnrollmentService) ChangeStatus(ctx context.Context, id string, req ChangeEnrollmentStatusRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if err := lifecycle.Validate(lifecycle.KindEnrollment, string(enrollment.Status), string(req.Status)); err != nil {
		return nil, err
	}
	if err := s.enrollments.UpdateStatus(ctx, id, req.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}

	if s.metrics != nil {
		s.metrics.ObserveTransition(string(lifecycle.KindEnrollment), string(enrollment.Status), string(req.Status))
	}
	s.logger.Info("enrollment status changed",
		zap.String("enrollment_id", id),
		zap.String("from", string(enrollment.Status)),
		zap.String("to", string(req.Status)),
	)
	return s.enrollments.FindDetailByID(ctx, id)
}

// Progress returns the completion counters paired with an enrollment.
func (s *EnrollmentService) Progress(ctx context.Context, enrollmentID string) (*models.Progress, error) {
	progress, err := s.progress.FindByEnrollment(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "progress not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress")
	}
	return progress, nil
}

// ExportRoster renders the course roster as CSV or PDF.
func (s *EnrollmentService) ExportRoster(ctx context.Context, courseID, format string) (*RosterExport, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	enrollments, _, err := s.enrollments.List(ctx, models.EnrollmentFilter{
		CourseID: courseID,
		PageSize: 100,
		SortBy:   "student_name",
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	table := export.Table{
		Headers: []string{"Student", "Status", "Payment", "Amount Due", "Enrolled At"},
	}
	for _, e := range enrollments {
		table.Rows = append(table.Rows, []string{
			e.StudentName,
			string(e.Status),
			string(e.PaymentStatus),
			fmt.Sprintf("%.2f", e.AmountDue),
			e.EnrolledAt.Format(time.RFC3339),
		})
	}

	switch strings.ToLower(format) {
	case "", "csv":
		content, err := s.csv.Render(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
		}
		return &RosterExport{Content: content, ContentType: "text/csv", Filename: rosterFilename(course.Title, "csv")}, nil
	case "pdf":
		content, err := s.pdf.Render(table, course.Title+" Roster")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
		}
		return &RosterExport{Content: content, ContentType: "application/pdf", Filename: rosterFilename(course.Title, "pdf")}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func (s *EnrollmentService) loadCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *EnrollmentService) loadStudent(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// buildEnrollment applies the admission defaults: enrollments start ACTIVE,
// and a zero amount due means the course is free and immediately PAID.
func buildEnrollment(studentID, courseID string, amountDue float64) *models.Enrollment {
	paymentStatus := models.PaymentStatusPending
	if amountDue == 0 {
		paymentStatus = models.PaymentStatusPaid
	}
	return &models.Enrollment{
		StudentID:     studentID,
		CourseID:      courseID,
		Status:        models.EnrollmentStatusActive,
		PaymentStatus: paymentStatus,
		AmountDue:     amountDue,
	}
}

func rosterFilename(title, ext string) string {
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(title), " ", "-"))
	if slug == "" {
		slug = "course"
	}
	return "roster-" + slug + "." + ext
}
