package lifecycle

import "github.com/noah-isme/course-flow-api/internal/models"

// EntityKind selects one of the four transition tables.
type EntityKind string

// Entity kinds governed by the lifecycle engine.
const (
	KindCourse     EntityKind = "course"
	KindLesson     EntityKind = "lesson"
	KindEnrollment EntityKind = "enrollment"
	KindPayment    EntityKind = "payment"
)

// Default voting bounds. Services fall back to these when configuration
// leaves them unset.
const (
	DefaultMinTopicsForCourse = 10
	DefaultMaxTopicsPerCourse = 20
	DefaultRequiredTopics     = 8
)

// courseTransitions maps every course state to its directly reachable next
// states. Terminal states map to an empty set.
var courseTransitions = map[models.CourseStatus][]models.CourseStatus{
	models.CourseStatusDraft:       {models.CourseStatusTopicVoting, models.CourseStatusCancelled},
	models.CourseStatusTopicVoting: {models.CourseStatusScheduled, models.CourseStatusCancelled},
	models.CourseStatusScheduled:   {models.CourseStatusInProgress, models.CourseStatusCancelled},
	models.CourseStatusInProgress:  {models.CourseStatusCompleted, models.CourseStatusCancelled},
	models.CourseStatusCompleted:   {models.CourseStatusArchived},
	models.CourseStatusCancelled:   {models.CourseStatusArchived},
	models.CourseStatusArchived:    {},
}

// lessonTransitions follows the teaching flow. CANCELLED is reachable from
// every state up to and including IN_PROGRESS; the pre-lesson preparation
// states may be skipped when reminders or question rounds are not used.
var lessonTransitions = map[models.LessonStatus][]models.LessonStatus{
	models.LessonStatusScheduled:          {models.LessonStatusReminderSent, models.LessonStatusInProgress, models.LessonStatusCancelled},
	models.LessonStatusReminderSent:       {models.LessonStatusQuestionsRequested, models.LessonStatusInProgress, models.LessonStatusCancelled},
	models.LessonStatusQuestionsRequested: {models.LessonStatusQuestionsReady, models.LessonStatusInProgress, models.LessonStatusCancelled},
	models.LessonStatusQuestionsReady:     {models.LessonStatusInProgress, models.LessonStatusCancelled},
	models.LessonStatusInProgress:         {models.LessonStatusCompleted, models.LessonStatusCancelled},
	models.LessonStatusCompleted:          {models.LessonStatusFeedbackPending, models.LessonStatusFeedbackSent},
	models.LessonStatusFeedbackPending:    {models.LessonStatusFeedbackSent},
	models.LessonStatusFeedbackSent:       {},
	models.LessonStatusCancelled:          {},
}

var enrollmentTransitions = map[models.EnrollmentStatus][]models.EnrollmentStatus{
	models.EnrollmentStatusPending:   {models.EnrollmentStatusActive, models.EnrollmentStatusDropped},
	models.EnrollmentStatusActive:    {models.EnrollmentStatusSuspended, models.EnrollmentStatusCompleted, models.EnrollmentStatusDropped},
	models.EnrollmentStatusSuspended: {models.EnrollmentStatusActive, models.EnrollmentStatusDropped},
	models.EnrollmentStatusCompleted: {},
	models.EnrollmentStatusDropped:   {},
}

var paymentTransitions = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentStatusPending:  {models.PaymentStatusPartial, models.PaymentStatusPaid, models.PaymentStatusOverdue},
	models.PaymentStatusPartial:  {models.PaymentStatusPaid, models.PaymentStatusOverdue, models.PaymentStatusRefunded},
	models.PaymentStatusPaid:     {models.PaymentStatusRefunded},
	models.PaymentStatusOverdue:  {models.PaymentStatusPartial, models.PaymentStatusPaid},
	models.PaymentStatusRefunded: {},
}

// tables holds the per-kind transition sets keyed by state strings. Built
// once at init so lookups stay allocation-free.
var tables = map[EntityKind]map[string]map[string]struct{}{}

func init() {
	tables[KindCourse] = buildTable(courseTransitions)
	tables[KindLesson] = buildTable(lessonTransitions)
	tables[KindEnrollment] = buildTable(enrollmentTransitions)
	tables[KindPayment] = buildTable(paymentTransitions)
}

func buildTable[S ~string](edges map[S][]S) map[string]map[string]struct{} {
	table := make(map[string]map[string]struct{}, len(edges))
	for from, targets := range edges {
		set := make(map[string]struct{}, len(targets))
		for _, to := range targets {
			set[string(to)] = struct{}{}
		}
		table[string(from)] = set
	}
	return table
}

// States returns every state known to the table for a kind.
func States(kind EntityKind) []string {
	table := tables[kind]
	states := make([]string, 0, len(table))
	for state := range table {
		states = append(states, state)
	}
	return states
}

// AllowedTargets returns the set of reachable states from the given state.
func AllowedTargets(kind EntityKind, from string) []string {
	set, ok := tables[kind][from]
	if !ok {
		return nil
	}
	targets := make([]string, 0, len(set))
	for to := range set {
		targets = append(targets, to)
	}
	return targets
}
