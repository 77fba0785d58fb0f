package models

import "time"

// LessonStatus represents the lifecycle state of a lesson.
type LessonStatus string

// Possible lesson statuses.
const (
	LessonStatusScheduled          LessonStatus = "SCHEDULED"
	LessonStatusReminderSent       LessonStatus = "REMINDER_SENT"
	LessonStatusQuestionsRequested LessonStatus = "QUESTIONS_REQUESTED"
	LessonStatusQuestionsReady     LessonStatus = "QUESTIONS_READY"
	LessonStatusInProgress         LessonStatus = "IN_PROGRESS"
	LessonStatusCompleted          LessonStatus = "COMPLETED"
	LessonStatusFeedbackPending    LessonStatus = "FEEDBACK_PENDING"
	LessonStatusFeedbackSent       LessonStatus = "FEEDBACK_SENT"
	LessonStatusCancelled          LessonStatus = "CANCELLED"
)

// Lesson is a dated teaching slot within a course. Lessons are generated and
// replaced as whole batches per course; LessonNumber is 1-based and unique
// within a course.
type Lesson struct {
	ID           string       `db:"id" json:"id"`
	CourseID     string       `db:"course_id" json:"course_id"`
	ModuleID     *string      `db:"module_id" json:"module_id,omitempty"`
	LessonNumber int          `db:"lesson_number" json:"lesson_number"`
	Title        string       `db:"title" json:"title"`
	ScheduledAt  time.Time    `db:"scheduled_at" json:"scheduled_at"`
	Duration     int          `db:"duration" json:"duration"`
	Status       LessonStatus `db:"status" json:"status"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}
