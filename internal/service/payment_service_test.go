package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-flow-api/internal/models"
	appErrors "github.com/noah-isme/course-flow-api/pkg/errors"
)

type paymentRepoMock struct {
	payments []models.Payment
	total    float64
}

func (m *paymentRepoMock) Create(ctx context.Context, exec sqlx.ExtContext, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = "pay-1"
	}
	m.payments = append(m.payments, *payment)
	if payment.Refund {
		m.total -= payment.Amount
	} else {
		m.total += payment.Amount
	}
	return nil
}

func (m *paymentRepoMock) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error) {
	return m.payments, nil
}

func (m *paymentRepoMock) TotalPaid(ctx context.Context, exec sqlx.ExtContext, enrollmentID string) (float64, error) {
	return m.total, nil
}

type paymentEnrollmentMock struct {
	enrollments map[string]models.Enrollment
	statusSet   map[string]models.PaymentStatus
}

func (m *paymentEnrollmentMock) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *paymentEnrollmentMock) UpdatePaymentStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.PaymentStatus) error {
	if m.statusSet == nil {
		m.statusSet = map[string]models.PaymentStatus{}
	}
	m.statusSet[id] = status
	if e, ok := m.enrollments[id]; ok {
		e.PaymentStatus = status
		m.enrollments[id] = e
	}
	return nil
}

func TestPaymentServiceRecordPartial(t *testing.T) {
	enrollments := &paymentEnrollmentMock{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", AmountDue: 200, PaymentStatus: models.PaymentStatusPending},
	}}
	db, mock := newTxDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	svc := NewPaymentService(&paymentRepoMock{}, enrollments, db, &metricsMock{}, validator.New(), zap.NewNop())

	enrollment, err := svc.Record(context.Background(), "e1", RecordPaymentRequest{Amount: 50})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPartial, enrollment.PaymentStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentServiceRecordSettles(t *testing.T) {
	enrollments := &paymentEnrollmentMock{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", AmountDue: 200, PaymentStatus: models.PaymentStatusPartial},
	}}
	payments := &paymentRepoMock{total: 50}
	db, mock := newTxDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	svc := NewPaymentService(payments, enrollments, db, &metricsMock{}, validator.New(), zap.NewNop())

	enrollment, err := svc.Record(context.Background(), "e1", RecordPaymentRequest{Amount: 150})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, enrollment.PaymentStatus)
}

func TestPaymentServiceRecordRefund(t *testing.T) {
	enrollments := &paymentEnrollmentMock{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", AmountDue: 200, PaymentStatus: models.PaymentStatusPaid},
	}}
	payments := &paymentRepoMock{total: 200}
	db, mock := newTxDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	svc := NewPaymentService(payments, enrollments, db, &metricsMock{}, validator.New(), zap.NewNop())

	enrollment, err := svc.Record(context.Background(), "e1", RecordPaymentRequest{Amount: 200, Refund: true, Note: "withdrawal"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, enrollment.PaymentStatus)
}

func TestPaymentServiceRecordRefundFromPendingDenied(t *testing.T) {
	enrollments := &paymentEnrollmentMock{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", AmountDue: 200, PaymentStatus: models.PaymentStatusPending},
	}}
	db, mock := newTxDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	svc := NewPaymentService(&paymentRepoMock{}, enrollments, db, &metricsMock{}, validator.New(), zap.NewNop())

	_, err := svc.Record(context.Background(), "e1", RecordPaymentRequest{Amount: 10, Refund: true})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidStatusTransition.Code, appErrors.FromError(err).Code)
	assert.Empty(t, enrollments.statusSet)
}

func TestPaymentServiceRecordRejectsNonPositiveAmount(t *testing.T) {
	db, _ := newTxDB(t)
	svc := NewPaymentService(&paymentRepoMock{}, &paymentEnrollmentMock{}, db, &metricsMock{}, validator.New(), zap.NewNop())

	_, err := svc.Record(context.Background(), "e1", RecordPaymentRequest{Amount: 0})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceMarkOverdue(t *testing.T) {
	enrollments := &paymentEnrollmentMock{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", AmountDue: 200, PaymentStatus: models.PaymentStatusPending},
	}}
	db, _ := newTxDB(t)
	svc := NewPaymentService(&paymentRepoMock{}, enrollments, db, &metricsMock{}, validator.New(), zap.NewNop())

	enrollment, err := svc.MarkOverdue(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusOverdue, enrollment.PaymentStatus)
}

func TestPaymentServiceMarkOverdueDeniedWhenPaid(t *testing.T) {
	enrollments := &paymentEnrollmentMock{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", AmountDue: 200, PaymentStatus: models.PaymentStatusPaid},
	}}
	db, _ := newTxDB(t)
	svc := NewPaymentService(&paymentRepoMock{}, enrollments, db, &metricsMock{}, validator.New(), zap.NewNop())

	_, err := svc.MarkOverdue(context.Background(), "e1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidStatusTransition.Code, appErrors.FromError(err).Code)
}
