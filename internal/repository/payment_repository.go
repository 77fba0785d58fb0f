package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-flow-api/internal/models"
)

// PaymentRepository handles persistence of payments.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a payment inside the caller's transaction.
func (r *PaymentRepository) Create(ctx context.Context, exec sqlx.ExtContext, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	payment.CreatedAt = time.Now().UTC()

	if _, err := sqlx.NamedExecContext(ctx, exec, `INSERT INTO payments (id, enrollment_id, amount, refund, note, created_at)
		VALUES (:id, :enrollment_id, :amount, :refund, :note, :created_at)`, payment); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// ListByEnrollment returns the payments recorded against an enrollment.
func (r *PaymentRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error) {
	const query = `SELECT id, enrollment_id, amount, refund, note, created_at FROM payments WHERE enrollment_id = $1 ORDER BY created_at ASC`
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// TotalPaid sums the net amount received for an enrollment, refunds
// subtracted, inside the caller's transaction.
func (r *PaymentRepository) TotalPaid(ctx context.Context, exec sqlx.ExtContext, enrollmentID string) (float64, error) {
	const query = `SELECT COALESCE(SUM(CASE WHEN refund THEN -amount ELSE amount END), 0) FROM payments WHERE enrollment_id = $1`
	row := exec.QueryRowxContext(ctx, query, enrollmentID)
	var total float64
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("sum payments: %w", err)
	}
	return total, nil
}
