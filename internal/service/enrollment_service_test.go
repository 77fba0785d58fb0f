package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-flow-api/internal/models"
	appErrors "github.com/noah-isme/course-flow-api/pkg/errors"
	"github.com/noah-isme/course-flow-api/pkg/export"
)

type enrollmentRepoMock struct {
	enrollments map[string]models.Enrollment
	pairs       map[string]bool
	active      int
	created     []*models.Enrollment
	progress    []*models.Progress
	status      map[string]models.EnrollmentStatus
}

func pairKey(studentID, courseID string) string { return studentID + "/" + courseID }

func (m *enrollmentRepoMock) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *enrollmentRepoMock) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	for _, created := range m.created {
		if created.ID == id {
			return &models.EnrollmentDetail{Enrollment: *created}, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *enrollmentRepoMock) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var out []models.EnrollmentDetail
	for _, e := range m.enrollments {
		if filter.CourseID != "" && e.CourseID != filter.CourseID {
			continue
		}
		out = append(out, models.EnrollmentDetail{Enrollment: e, StudentName: "Student " + e.StudentID})
	}
	return out, len(out), nil
}

func (m *enrollmentRepoMock) Exists(ctx context.Context, studentID, courseID string) (bool, error) {
	return m.pairs[pairKey(studentID, courseID)], nil
}

func (m *enrollmentRepoMock) ListEnrolledStudents(ctx context.Context, courseID string, studentIDs []string) ([]string, error) {
	var enrolled []string
	for _, id := range studentIDs {
		if m.pairs[pairKey(id, courseID)] {
			enrolled = append(enrolled, id)
		}
	}
	return enrolled, nil
}

func (m *enrollmentRepoMock) CountActive(ctx context.Context, courseID string) (int, error) {
	return m.active, nil
}

func (m *enrollmentRepoMock) CreateWithProgress(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment, progress *models.Progress) error {
	if enrollment.ID == "" {
		enrollment.ID = "enroll-" + enrollment.StudentID
	}
	progress.EnrollmentID = enrollment.ID
	m.created = append(m.created, enrollment)
	m.progress = append(m.progress, progress)
	return nil
}

func (m *enrollmentRepoMock) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	if m.status == nil {
		m.status = map[string]models.EnrollmentStatus{}
	}
	m.status[id] = status
	if e, ok := m.enrollments[id]; ok {
		e.Status = status
		m.enrollments[id] = e
	}
	return nil
}

type enrollmentCourseMock struct {
	courses map[string]models.Course
}

func (m *enrollmentCourseMock) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

type studentRepoMock struct {
	students map[string]models.Student
}

func (m *studentRepoMock) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *studentRepoMock) ListByIDs(ctx context.Context, ids []string) ([]models.Student, error) {
	var out []models.Student
	for _, id := range ids {
		if s, ok := m.students[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

type progressRepoMock struct {
	rows map[string]models.Progress
}

func (m *progressRepoMock) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.Progress, error) {
	if p, ok := m.rows[enrollmentID]; ok {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func testStudents(schoolID string, ids ...string) map[string]models.Student {
	out := make(map[string]models.Student, len(ids))
	for _, id := range ids {
		out[id] = models.Student{ID: id, SchoolID: schoolID, FullName: "Student " + id, Active: true}
	}
	return out
}

func TestEnrollmentServiceAdmit(t *testing.T) {
	enrollments := &enrollmentRepoMock{pairs: map[string]bool{}}
	courses := &enrollmentCourseMock{courses: map[string]models.Course{"c1": {ID: "c1", SchoolID: "sch-1", MaxStudents: 30}}}
	students := &studentRepoMock{students: testStudents("sch-1", "s1")}
	db, mock := newTxDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	svc := NewEnrollmentService(enrollments, courses, students, &countMock{count: 10}, &progressRepoMock{}, db,
		export.NewCSVExporter(), export.NewPDFExporter(), &metricsMock{}, validator.New(), zap.NewNop())

	detail, err := svc.Admit(context.Background(), AdmitRequest{StudentID: "s1", CourseID: "c1", AmountDue: 150})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, detail.Status)
	assert.Equal(t, models.PaymentStatusPending, detail.PaymentStatus)
	require.Len(t, enrollments.progress, 1)
	assert.Equal(t, 10, enrollments.progress[0].TotalLessons)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentServiceAdmitFreeCourseIsPaid(t *testing.T) {
	enrollments := &enrollmentRepoMock{pairs: map[string]bool{}}
	courses := &enrollmentCourseMock{courses: map[string]models.Course{"c1": {ID: "c1", SchoolID: "sch-1", MaxStudents: 30}}}
	students := &studentRepoMock{students: testStudents("sch-1", "s1")}
	db, mock := newTxDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	svc := NewEnrollmentService(enrollments, courses, students, &countMock{}, &progressRepoMock{}, db,
		export.NewCSVExporter(), export.NewPDFExporter(), &metricsMock{}, validator.New(), zap.NewNop())

	detail, err := svc.Admit(context.Background(), AdmitRequest{StudentID: "s1", CourseID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, detail.PaymentStatus)
}

func TestEnrollmentServiceAdmitSchoolMismatch(t *testing.T) {
	enrollments := &enrollmentRepoMock{}
	courses := &enrollmentCourseMock{courses: map[string]models.Course{"c1": {ID: "c1", SchoolID: "sch-1", MaxStudents: 30}}}
	students := &studentRepoMock{students: testStudents("sch-2", "s1")}
	db, _ := newTxDB(t)
	svc := NewEnrollmentService(enrollments, courses, students, &countMock{}, &progressRepoMock{}, db,
		export.NewCSVExporter(), export.NewPDFExporter(), &metricsMock{}, validator.New(), zap.NewNop())

	_, err := svc.Admit(context.Background(), AdmitRequest{StudentID: "s1", CourseID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSchoolMismatch.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceAdmitDuplicate(t *testing.T) {
	enrollments := &enrollmentRepoMock{pairs: map[string]bool{pairKey("s1", "c1"): true}}
	courses := &enrollmentCourseMock{courses: map[string]models.Course{"c1": {ID: "c1", SchoolID: "sch-1", MaxStudents: 30}}}
	students := &studentRepoMock{students: testStudents("sch-1", "s1")}
	db, _ := newTxDB(t)
	svc := NewEnrollmentService(enrollments, courses, students, &countMock{}, &progressRepoMock{}, db,
		export.NewCSVExporter(), export.NewPDFExporter(), &metricsMock{}, validator.New(), zap.NewNop())

	_, err := svc.Admit(context.Background(), AdmitRequest{StudentID: "s1", CourseID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyEnrolled.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceAdmitCourseFull(t *testing.T) {
	enrollments := &enrollmentRepoMock{pairs: map[string]bool{}, active: 30}
	courses := &enrollmentCourseMock{courses: map[string]models.Course{"c1": {ID: "c1", SchoolID: "sch-1", MaxStudents: 30}}}
	students := &studentRepoMock{students: testStudents("sch-1", "s1")}
	db, _ := newTxDB(t)
	svc := NewEnrollmentService(enrollments, courses, students, &countMock{}, &progressRepoMock{}, db,
		export.NewCSVExporter(), export.NewPDFExporter(), &metricsMock{}, validator.New(), zap.NewNop())

	_, err := svc.Admit(context.Background(), AdmitRequest{StudentID: "s1", CourseID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCourseFull.Code, appErrors.FromError(err).Code)
	assert.Empty(t, enrollments.created)
}

func TestEnrollmentServiceAdmitBulkSkipsExisting(t *testing.T) {
	enrollments := &enrollmentRepoMock{pairs: map[string]bool{pairKey("s2", "c1"): true}}
	courses := &enrollmentCourseMock{courses: map[string]models.Course{"c1": {ID: "c1", SchoolID: "sch-1", MaxStudents: 30}}}
	students := &studentRepoMock{students: testStudents("sch-1", "s1", "s2", "s3")}
	db, mock := newTxDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	svc := NewEnrollmentService(enrollments, courses, students, &countMock{}, &progressRepoMock{}, db,
		export.NewCSVExporter(), export.NewPDFExporter(), &metricsMock{}, validator.New(), zap.NewNop())

	result, err := svc.AdmitBulk(context.Background(), AdmitBulkRequest{CourseID: "c1", StudentIDs: []string{"s1", "s2", "s3"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s3"}, result.Enrolled)
	assert.Equal(t, []string{"s2"}, result.Skipped)
	assert.Len(t, enrollments.created, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentServiceAdmitBulkAllDuplicates(t *testing.T) {
	enrollments := &enrollmentRepoMock{pairs: map[string]bool{pairKey("s1", "c1"): true, pairKey("s2", "c1"): true}}
	courses := &enrollmentCourseMock{courses: map[string]models.Course{"c1": {ID: "c1", SchoolID: "sch-1", MaxStudents: 30}}}
	students := &studentRepoMock{students: testStudents("sch-1", "s1", "s2")}
	db, _ := newTxDB(t)
	svc := NewEnrollmentService(enrollments, courses, students, &countMock{}, &progressRepoMock{}, db,
		export.NewCSVExporter(), export.NewPDFExporter(), &metricsMock{}, validator.New(), zap.NewNop())

	_, err := svc.AdmitBulk(context.Background(), AdmitBulkRequest{CourseID: "c1", StudentIDs: []string{"s1", "s2"}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAllAlreadyEnrolled.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceAdmitBulkInsufficientCapacity(t *testing.T) {
	enrollments := &enrollmentRepoMock{pairs: map[string]bool{}, active: 29}
	courses := &enrollmentCourseMock{courses: map[string]models.Course{"c1": {ID: "c1", SchoolID: "sch-1", MaxStudents: 30}}}
	students := &studentRepoMock{students: testStudents("sch-1", "s1", "s2")}
	db, _ := newTxDB(t)
	svc := NewEnrollmentService(enrollments, courses, students, &countMock{}, &progressRepoMock{}, db,
		export.NewCSVExporter(), export.NewPDFExporter(), &metricsMock{}, validator.New(), zap.NewNop())

	_, err := svc.AdmitBulk(context.Background(), AdmitBulkRequest{CourseID: "c1", StudentIDs: []string{"s1", "s2"}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInsufficientCapacity.Code, appErrors.FromError(err).Code)
	assert.Empty(t, enrollments.created)
}

func TestEnrollmentServiceAdmitBulkUnknownStudent(t *testing.T) {
	enrollments := &enrollmentRepoMock{pairs: map[string]bool{}}
	courses := &enrollmentCourseMock{courses: map[string]models.Course{"c1": {ID: "c1", SchoolID: "sch-1", MaxStudents: 30}}}
	students := &studentRepoMock{students: testStudents("sch-1", "s1")}
	db, _ := newTxDB(t)
	svc := NewEnrollmentService(enrollments, courses, students, &countMock{}, &progressRepoMock{}, db,
		export.NewCSVExporter(), export.NewPDFExporter(), &metricsMock{}, validator.New(), zap.NewNop())

	_, err := svc.AdmitBulk(context.Background(), AdmitBulkRequest{CourseID: "c1", StudentIDs: []string{"s1", "ghost"}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidStudents.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceChangeStatusDeniesIllegalEdge(t *testing.T) {
	enrollments := &enrollmentRepoMock{enrollments: map[string]models.Enrollment{"e1": {ID: "e1", Status: models.EnrollmentStatusDropped}}}
	db, _ := newTxDB(t)
	svc := NewEnrollmentService(enrollments, &enrollmentCourseMock{}, &studentRepoMock{}, &countMock{}, &progressRepoMock{}, db,
		export.NewCSVExporter(), export.NewPDFExporter(), &metricsMock{}, validator.New(), zap.NewNop())

	_, err := svc.ChangeStatus(context.Background(), "e1", ChangeEnrollmentStatusRequest{Status: models.EnrollmentStatusActive})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidStatusTransition.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceChangeStatusSuspend(t *testing.T) {
	enrollments := &enrollmentRepoMock{enrollments: map[string]models.Enrollment{"e1": {ID: "e1", Status: models.EnrollmentStatusActive}}}
	db, _ := newTxDB(t)
	svc := NewEnrollmentService(enrollments, &enrollmentCourseMock{}, &studentRepoMock{}, &countMock{}, &progressRepoMock{}, db,
		export.NewCSVExporter(), export.NewPDFExporter(), &metricsMock{}, validator.New(), zap.NewNop())

	detail, err := svc.ChangeStatus(context.Background(), "e1", ChangeEnrollmentStatusRequest{Status: models.EnrollmentStatusSuspended})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusSuspended, detail.Status)
}

func TestEnrollmentServiceExportRosterCSV(t *testing.T) {
	enrollments := &enrollmentRepoMock{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusActive, PaymentStatus: models.PaymentStatusPaid},
	}}
	courses := &enrollmentCourseMock{courses: map[string]models.Course{"c1": {ID: "c1", Title: "Algebra Basics", SchoolID: "sch-1"}}}
	db, _ := newTxDB(t)
	svc := NewEnrollmentService(enrollments, courses, &studentRepoMock{}, &countMock{}, &progressRepoMock{}, db,
		export.NewCSVExporter(), export.NewPDFExporter(), &metricsMock{}, validator.New(), zap.NewNop())

	roster, err := svc.ExportRoster(context.Background(), "c1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", roster.ContentType)
	assert.Equal(t, "roster-algebra-basics.csv", roster.Filename)
	content := string(roster.Content)
	assert.True(t, strings.HasPrefix(content, "Student,Status,Payment,Amount Due,Enrolled At"))
	assert.Contains(t, content, "Student s1")
}

func TestEnrollmentServiceExportRosterRejectsUnknownFormat(t *testing.T) {
	courses := &enrollmentCourseMock{courses: map[string]models.Course{"c1": {ID: "c1", Title: "Algebra"}}}
	db, _ := newTxDB(t)
	svc := NewEnrollmentService(&enrollmentRepoMock{}, courses, &studentRepoMock{}, &countMock{}, &progressRepoMock{}, db,
		export.NewCSVExporter(), export.NewPDFExporter(), &metricsMock{}, validator.New(), zap.NewNop())

	_, err := svc.ExportRoster(context.Background(), "c1", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
