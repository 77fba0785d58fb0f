package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Course lifecycle reason codes. These are part of the API contract and must
// stay stable; the calling layer maps them to its own handling.
var (
	ErrInvalidStatusTransition = New("INVALID_STATUS_TRANSITION", http.StatusConflict, "status transition not allowed")
	ErrInsufficientModules     = New("INSUFFICIENT_MODULES", http.StatusPreconditionFailed, "course does not have enough modules")
	ErrNoLessons               = New("NO_LESSONS", http.StatusPreconditionFailed, "course has no scheduled lessons")
	ErrVotingClosed            = New("VOTING_CLOSED", http.StatusPreconditionFailed, "course is not accepting votes")
	ErrInvalidVoteCount        = New("INVALID_VOTE_COUNT", http.StatusBadRequest, "vote must select the required number of topics")
	ErrInvalidModules          = New("INVALID_MODULES", http.StatusBadRequest, "one or more modules do not belong to the course")
	ErrSchoolMismatch          = New("SCHOOL_MISMATCH", http.StatusBadRequest, "student and course belong to different schools")
	ErrAlreadyEnrolled         = New("ALREADY_ENROLLED", http.StatusConflict, "student is already enrolled in the course")
	ErrAllAlreadyEnrolled      = New("ALL_ALREADY_ENROLLED", http.StatusConflict, "all students are already enrolled in the course")
	ErrCourseFull              = New("COURSE_FULL", http.StatusConflict, "course has reached its capacity")
	ErrInsufficientCapacity    = New("INSUFFICIENT_CAPACITY", http.StatusConflict, "course capacity cannot fit the batch")
	ErrInvalidStudents         = New("INVALID_STUDENTS", http.StatusBadRequest, "one or more students could not be resolved")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
