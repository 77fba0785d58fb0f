package models

import "time"

// Progress tracks a student's completion within a course. TotalLessons is a
// snapshot of the course's lesson count at admission time.
type Progress struct {
	ID               string    `db:"id" json:"id"`
	EnrollmentID     string    `db:"enrollment_id" json:"enrollment_id"`
	TotalLessons     int       `db:"total_lessons" json:"total_lessons"`
	CompletedLessons int       `db:"completed_lessons" json:"completed_lessons"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}
