package models

import "time"

// TopicVote records that a student voted for a module within a course's
// voting round. A student's vote set is always replaced wholesale, never
// patched incrementally.
type TopicVote struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	ModuleID  string    `db:"module_id" json:"module_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
