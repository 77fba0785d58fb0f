package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/course-flow-api/internal/lifecycle"
	"github.com/noah-isme/course-flow-api/internal/models"
	appErrors "github.com/noah-isme/course-flow-api/pkg/errors"
)

type paymentStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, payment *models.Payment) error
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error)
	TotalPaid(ctx context.Context, exec sqlx.ExtContext, enrollmentID string) (float64, error)
}

type paymentEnrollmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	UpdatePaymentStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.PaymentStatus) error
}

// paymentDB needs both transaction support and direct statement execution.
type paymentDB interface {
	txBeginner
	sqlx.ExtContext
}

// RecordPaymentRequest registers money received, or returned, against an
// enrollment.
type RecordPaymentRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
	Refund bool    `json:"refund"`
	Note   string  `json:"note" validate:"max=500"`
}

// PaymentService records payments and derives the enrollment's payment state.
type PaymentService struct {
	payments    paymentStore
	enrollments paymentEnrollmentStore
	db          paymentDB
	metrics     transitionObserver
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(
	payments paymentStore,
	enrollments paymentEnrollmentStore,
	db paymentDB,
	metrics transitionObserver,
	validate *validator.Validate,
	logger *zap.Logger,
) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		payments:    payments,
		enrollments: enrollments,
		db:          db,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// Record stores a payment and moves the enrollment's payment status to the
// state implied by the running total: fully covered means PAID, anything
// above zero PARTIAL, and a refund always lands on REFUNDED. The insert and
// the status change commit together.
func (s *PaymentService) Record(ctx context.Context, enrollmentID string, req RecordPaymentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	enrollment, err := s.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin payment")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	payment := &models.Payment{
		EnrollmentID: enrollmentID,
		Amount:       req.Amount,
		Refund:       req.Refund,
		Note:         req.Note,
	}
	if err = s.payments.Create(ctx, tx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	total, err := s.payments.TotalPaid(ctx, tx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum payments")
	}

	target := derivePaymentStatus(enrollment.AmountDue, total, req.Refund)
	if target != enrollment.PaymentStatus {
		if err = lifecycle.Validate(lifecycle.KindPayment, string(enrollment.PaymentStatus), string(target)); err != nil {
			return nil, err
		}
		if err = s.enrollments.UpdatePaymentStatus(ctx, tx, enrollmentID, target); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment status")
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit payment")
	}

	if s.metrics != nil && target != enrollment.PaymentStatus {
		s.metrics.ObserveTransition(string(lifecycle.KindPayment), string(enrollment.PaymentStatus), string(target))
	}
	s.logger.Info("payment recorded",
		zap.String("enrollment_id", enrollmentID),
		zap.Float64("amount", req.Amount),
		zap.Bool("refund", req.Refund),
		zap.String("payment_status", string(target)),
	)
	return s.enrollments.FindByID(ctx, enrollmentID)
}

// List returns the payments recorded against an enrollment.
func (s *PaymentService) List(ctx context.Context, enrollmentID string) ([]models.Payment, error) {
	if _, err := s.loadEnrollment(ctx, enrollmentID); err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	return payments, nil
}

// MarkOverdue flags an enrollment whose dues lapsed. Only PENDING and PARTIAL
// can become OVERDUE; the table denies the rest.
func (s *PaymentService) MarkOverdue(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	enrollment, err := s.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Validate(lifecycle.KindPayment, string(enrollment.PaymentStatus), string(models.PaymentStatusOverdue)); err != nil {
		return nil, err
	}
	if err := s.enrollments.UpdatePaymentStatus(ctx, s.db, enrollmentID, models.PaymentStatusOverdue); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment status")
	}
	return s.enrollments.FindByID(ctx, enrollmentID)
}

func (s *PaymentService) loadEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// derivePaymentStatus maps the running net total onto a payment state. The
// latest refund wins over the totals so partial refunds still read REFUNDED.
func derivePaymentStatus(amountDue, total float64, refund bool) models.PaymentStatus {
	switch {
	case refund:
		return models.PaymentStatusRefunded
	case total >= amountDue:
		return models.PaymentStatusPaid
	case total > 0:
		return models.PaymentStatusPartial
	default:
		return models.PaymentStatusPending
	}
}
