package models

import "time"

// Payment records money received against an enrollment. Enrollments cannot
// be removed while payments reference them.
type Payment struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	Amount       float64   `db:"amount" json:"amount"`
	Refund       bool      `db:"refund" json:"refund"`
	Note         string    `db:"note" json:"note"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
