package models

import "time"

// CourseStatus represents the lifecycle state of a course.
type CourseStatus string

// Possible course statuses.
const (
	CourseStatusDraft       CourseStatus = "DRAFT"
	CourseStatusTopicVoting CourseStatus = "TOPIC_VOTING"
	CourseStatusScheduled   CourseStatus = "SCHEDULED"
	CourseStatusInProgress  CourseStatus = "IN_PROGRESS"
	CourseStatusCompleted   CourseStatus = "COMPLETED"
	CourseStatusCancelled   CourseStatus = "CANCELLED"
	CourseStatusArchived    CourseStatus = "ARCHIVED"
)

// Course is the root aggregate of the lifecycle engine. StartDate and EndDate
// are derived from the generated lesson batch, never author-set.
type Course struct {
	ID          string       `db:"id" json:"id"`
	SchoolID    string       `db:"school_id" json:"school_id"`
	Title       string       `db:"title" json:"title"`
	Description string       `db:"description" json:"description"`
	Status      CourseStatus `db:"status" json:"status"`
	MaxStudents int          `db:"max_students" json:"max_students"`
	StartDate   *time.Time   `db:"start_date" json:"start_date,omitempty"`
	EndDate     *time.Time   `db:"end_date" json:"end_date,omitempty"`
	DeletedAt   *time.Time   `db:"deleted_at" json:"-"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

// CourseDetail enriches a course with aggregate counts used by guards and
// list views.
type CourseDetail struct {
	Course
	ModuleCount     int `db:"module_count" json:"module_count"`
	LessonCount     int `db:"lesson_count" json:"lesson_count"`
	EnrollmentCount int `db:"enrollment_count" json:"enrollment_count"`
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	SchoolID  string
	Status    CourseStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
