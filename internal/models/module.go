package models

import "time"

// Module is a candidate topic within a course. OrderIndex is dense and
// zero-based within a course; it defines both display order and the
// round-robin lesson assignment order. IsSelected is meaningful only after
// voting finalization.
type Module struct {
	ID         string    `db:"id" json:"id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	Title      string    `db:"title" json:"title"`
	OrderIndex int       `db:"order_index" json:"order_index"`
	IsSelected bool      `db:"is_selected" json:"is_selected"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// ModuleTally pairs a module with its distinct-student vote count.
type ModuleTally struct {
	ModuleID   string `db:"module_id" json:"module_id"`
	Title      string `db:"title" json:"title"`
	OrderIndex int    `db:"order_index" json:"order_index"`
	VoteCount  int    `db:"vote_count" json:"vote_count"`
}
